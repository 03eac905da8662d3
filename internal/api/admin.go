package api

import (
	"context"
	"net/http"
	"time"

	"github.com/campusrent/campusrent/internal/auth"
	"github.com/campusrent/campusrent/internal/model"
	"github.com/campusrent/campusrent/internal/moderation"
	"github.com/campusrent/campusrent/internal/store"
)

// AdminHandler handles moderation endpoints and report filing.
type AdminHandler struct {
	Moderation *moderation.Service
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin manager"`
}

type banRequest struct {
	Reason string     `json:"reason" validate:"required,max=200"`
	Until  *time.Time `json:"until"`
}

type createReportRequest struct {
	ReportedItemID *int64 `json:"reported_item_id" validate:"omitempty,gt=0"`
	ReportedUserID *int64 `json:"reported_user_id" validate:"omitempty,gt=0"`
	Reason         string `json:"reason" validate:"required,max=200"`
	Details        string `json:"details" validate:"max=2000"`
}

type updateReportRequest struct {
	Status     string `json:"status" validate:"required,oneof=reviewing resolved dismissed"`
	AdminNotes string `json:"admin_notes" validate:"max=2000"`
}

// Stats handles GET /api/admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Moderation.Stats(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, stats)
}

// Users handles GET /api/admin/users.
func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f := store.UserFilter{
		Role:   r.URL.Query().Get("role"),
		Search: r.URL.Query().Get("q"),
		Limit:  limit,
		Offset: offset,
	}
	if f.Banned, err = queryBool(r, "banned"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.Active, err = queryBool(r, "active"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.Verified, err = queryBool(r, "verified"); err != nil {
		writeError(w, r, err)
		return
	}

	users, err := h.Moderation.ListUsers(r.Context(), auth.FromContext(r.Context()), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(users))
}

// ChangeRole handles PUT /api/admin/users/{id}/role.
func (h *AdminHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req changeRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.Moderation.ChangeRole(r.Context(), auth.FromContext(r.Context()), id, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// Ban handles POST /api/admin/users/{id}/ban.
func (h *AdminHandler) Ban(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req banRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.Moderation.Ban(r.Context(), auth.FromContext(r.Context()), id, moderation.BanInput{
		Reason: req.Reason,
		Until:  req.Until,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// Unban handles POST /api/admin/users/{id}/unban.
func (h *AdminHandler) Unban(w http.ResponseWriter, r *http.Request) {
	h.userOp(w, r, h.Moderation.Unban)
}

// Verify handles POST /api/admin/users/{id}/verify.
func (h *AdminHandler) Verify(w http.ResponseWriter, r *http.Request) {
	h.userOp(w, r, func(ctx context.Context, actor *auth.Identity, id int64) (*model.User, error) {
		return h.Moderation.SetVerified(ctx, actor, id, true)
	})
}

// Unverify handles POST /api/admin/users/{id}/unverify.
func (h *AdminHandler) Unverify(w http.ResponseWriter, r *http.Request) {
	h.userOp(w, r, func(ctx context.Context, actor *auth.Identity, id int64) (*model.User, error) {
		return h.Moderation.SetVerified(ctx, actor, id, false)
	})
}

// Activate handles POST /api/admin/users/{id}/activate.
func (h *AdminHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.userOp(w, r, func(ctx context.Context, actor *auth.Identity, id int64) (*model.User, error) {
		return h.Moderation.SetActive(ctx, actor, id, true)
	})
}

// Deactivate handles POST /api/admin/users/{id}/deactivate.
func (h *AdminHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.userOp(w, r, func(ctx context.Context, actor *auth.Identity, id int64) (*model.User, error) {
		return h.Moderation.SetActive(ctx, actor, id, false)
	})
}

func (h *AdminHandler) userOp(w http.ResponseWriter, r *http.Request, op func(context.Context, *auth.Identity, int64) (*model.User, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := op(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// DeleteUser handles DELETE /api/admin/users/{id}.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Moderation.DeleteUser(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, message("user deleted"))
}

// Items handles GET /api/admin/items.
func (h *AdminHandler) Items(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ownerID, err := queryInt(r, "owner_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	f := store.ItemFilter{OwnerID: int64(ownerID), Search: r.URL.Query().Get("q"), Limit: limit, Offset: offset}

	items, err := h.Moderation.ListItems(r.Context(), auth.FromContext(r.Context()), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(items))
}

// DeactivateItem handles POST /api/admin/items/{id}/deactivate.
func (h *AdminHandler) DeactivateItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	item, err := h.Moderation.DeactivateItem(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// RestoreItem handles POST /api/admin/items/{id}/restore.
func (h *AdminHandler) RestoreItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	item, err := h.Moderation.RestoreItem(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// DeleteReview handles DELETE /api/admin/reviews/{id}.
func (h *AdminHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Moderation.DeleteReview(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, message("review deleted"))
}

// CreateReport handles POST /api/reports.
func (h *AdminHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	var req createReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	report, err := h.Moderation.CreateReport(r.Context(), auth.FromContext(r.Context()), moderation.ReportInput{
		ItemID:  req.ReportedItemID,
		UserID:  req.ReportedUserID,
		Reason:  req.Reason,
		Details: req.Details,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, report)
}

// Reports handles GET /api/admin/reports.
func (h *AdminHandler) Reports(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	reports, err := h.Moderation.ListReports(r.Context(), auth.FromContext(r.Context()),
		r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(reports))
}

// UpdateReport handles PUT /api/admin/reports/{id}.
func (h *AdminHandler) UpdateReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	report, err := h.Moderation.TransitionReport(r.Context(), auth.FromContext(r.Context()), id, req.Status, req.AdminNotes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, report)
}
