package api

import (
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/campusrent/campusrent/internal/apperr"
	"github.com/campusrent/campusrent/internal/auth"
	"github.com/campusrent/campusrent/internal/blob"
	"github.com/campusrent/campusrent/internal/booking"
	"github.com/campusrent/campusrent/internal/catalog"
	"github.com/campusrent/campusrent/internal/imaging"
	"github.com/campusrent/campusrent/internal/review"
	"github.com/campusrent/campusrent/internal/store"
)

// UsersHandler handles profile endpoints.
type UsersHandler struct {
	DB       *sql.DB
	Blobs    blob.Store
	Reviews  *review.Aggregator
	Bookings *booking.Engine
	Now      func() time.Time
}

type updateProfileRequest struct {
	FullName string `json:"full_name" validate:"max=100"`
	Campus   string `json:"campus" validate:"max=100"`
}

// publicUser is the profile other users see.
type publicUser struct {
	ID          int64   `json:"id"`
	Username    string  `json:"username"`
	FullName    string  `json:"full_name,omitempty"`
	Campus      string  `json:"campus,omitempty"`
	AvatarURL   string  `json:"avatar_url,omitempty"`
	IsVerified  bool    `json:"is_verified"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"review_count"`
}

// Get handles GET /api/users/{id}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, apperr.Store(err))
		return
	}
	if user == nil || user.DeletedAt != nil {
		writeError(w, r, apperr.NotFound("user"))
		return
	}

	jsonResponse(w, http.StatusOK, publicUser{
		ID:          user.ID,
		Username:    user.Username,
		FullName:    user.FullName,
		Campus:      user.Campus,
		AvatarURL:   user.AvatarURL,
		IsVerified:  user.IsVerified,
		Rating:      user.Rating,
		ReviewCount: user.ReviewCount,
	})
}

// ListReviews handles GET /api/users/{id}/reviews.
func (h *UsersHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	reviews, err := h.Reviews.ListByUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(reviews))
}

// UpdateMe handles PUT /api/users/me.
func (h *UsersHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.UpdateProfile(r.Context(), h.DB, id.UserID, store.ProfileUpdate{
		FullName: strings.TrimSpace(req.FullName),
		Campus:   strings.TrimSpace(req.Campus),
	}); err != nil {
		writeError(w, r, apperr.Store(err))
		return
	}
	h.respondMe(w, r, id.UserID)
}

// UploadAvatar handles PUT /api/users/me/avatar.
func (h *UsersHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	data, err := readUpload(w, r, "avatar")
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id.UserID)
	if err != nil {
		writeError(w, r, apperr.Store(err))
		return
	}

	url, err := catalog.StoreImage(r.Context(), h.Blobs, data, imaging.Avatar, "avatars")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := store.SetAvatarURL(r.Context(), h.DB, id.UserID, url); err != nil {
		writeError(w, r, apperr.Store(err))
		return
	}
	if user.AvatarURL != "" {
		if err := h.Blobs.Delete(r.Context(), user.AvatarURL); err != nil {
			slog.Warn("removing old avatar", "user", id.Username, "error", err)
		}
	}

	slog.Info("avatar updated", "user", id.Username)
	h.respondMe(w, r, id.UserID)
}

// DeleteMe handles DELETE /api/users/me.
func (h *UsersHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	cancelled, ok, err := store.DeleteUser(r.Context(), h.DB, id.UserID, now)
	if err != nil {
		writeError(w, r, apperr.Store(err))
		return
	}
	if !ok {
		writeError(w, r, apperr.InvariantViolation("the last active %s cannot delete their account", id.Role))
		return
	}
	if err := store.RevokeToken(r.Context(), h.DB, id.TokenID, id.ExpiresAt); err != nil {
		slog.Warn("revoking token of deleted account", "user", id.Username, "error", err)
	}

	if h.Bookings != nil {
		h.Bookings.AnnounceCancelled(cancelled, booking.SourceOwner, id.UserID)
	}

	slog.Info("user deleted own account", "user", id.Username)
	jsonResponse(w, http.StatusOK, message("account deleted"))
}

func (h *UsersHandler) respondMe(w http.ResponseWriter, r *http.Request, userID int64) {
	user, err := store.GetUser(r.Context(), h.DB, userID)
	if err != nil {
		writeError(w, r, apperr.Store(err))
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// readUpload reads one file from a multipart form.
func readUpload(w http.ResponseWriter, r *http.Request, field string) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		return nil, apperr.Validation("file too large or invalid multipart form")
	}

	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, apperr.Validation("%s file required", field)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, imaging.MaxUploadBytes+1))
	if err != nil {
		return nil, apperr.Validation("reading upload: %v", err)
	}
	if len(data) > imaging.MaxUploadBytes {
		return nil, apperr.Validation("image larger than %d bytes", imaging.MaxUploadBytes)
	}
	return data, nil
}
