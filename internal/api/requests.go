package api

import (
	"context"
	"net/http"
	"time"

	"github.com/campusrent/campusrent/internal/apperr"
	"github.com/campusrent/campusrent/internal/auth"
	"github.com/campusrent/campusrent/internal/booking"
	"github.com/campusrent/campusrent/internal/model"
	"github.com/campusrent/campusrent/internal/review"
)

// dateLayout is the wire format of booking dates.
const dateLayout = "2006-01-02"

// RequestsHandler handles lending request and review endpoints.
type RequestsHandler struct {
	Booking *booking.Engine
	Reviews *review.Aggregator
}

type createRequestRequest struct {
	ItemID    int64  `json:"item_id" validate:"required,gt=0"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Message   string `json:"message" validate:"max=2000"`
}

type reviewRequest struct {
	Rating     int    `json:"rating" validate:"required,min=1,max=5"`
	Comment    string `json:"comment" validate:"max=1000"`
	RevieweeID int64  `json:"reviewee_id" validate:"omitempty,gt=0"`
}

// Create handles POST /api/requests.
func (h *RequestsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		writeError(w, r, apperr.Validation("invalid start_date"))
		return
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		writeError(w, r, apperr.Validation("invalid end_date"))
		return
	}

	lr, err := h.Booking.Create(r.Context(), auth.FromContext(r.Context()), booking.CreateInput{
		ItemID:    req.ItemID,
		StartDate: start,
		EndDate:   end,
		Message:   req.Message,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, lr)
}

// List handles GET /api/requests.
func (h *RequestsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	requests, err := h.Booking.List(r.Context(), auth.FromContext(r.Context()), booking.ListFilter{
		Role:     r.URL.Query().Get("role"),
		Statuses: statusFilter(r),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(requests))
}

// Get handles GET /api/requests/{id}.
func (h *RequestsHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.Booking.Get)
}

// Accept handles POST /api/requests/{id}/accept.
func (h *RequestsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.Booking.Accept)
}

// Reject handles POST /api/requests/{id}/reject.
func (h *RequestsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.Booking.Reject)
}

// Cancel handles POST /api/requests/{id}/cancel.
func (h *RequestsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.Booking.Cancel)
}

// Activate handles POST /api/requests/{id}/activate.
func (h *RequestsHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.Booking.Activate)
}

// Complete handles POST /api/requests/{id}/complete.
func (h *RequestsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.Booking.Complete)
}

type requestOp func(ctx context.Context, actor *auth.Identity, id int64) (*model.LendingRequest, error)

func (h *RequestsHandler) apply(w http.ResponseWriter, r *http.Request, op requestOp) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	lr, err := op(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, lr)
}

// Review handles POST /api/requests/{id}/reviews.
func (h *RequestsHandler) Review(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	rv, err := h.Reviews.Submit(r.Context(), auth.FromContext(r.Context()), review.SubmitInput{
		LendingRequestID: id,
		RevieweeID:       req.RevieweeID,
		Rating:           req.Rating,
		Comment:          req.Comment,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, rv)
}
