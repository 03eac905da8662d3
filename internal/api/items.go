package api

import (
	"net/http"

	"github.com/campusrent/campusrent/internal/auth"
	"github.com/campusrent/campusrent/internal/booking"
	"github.com/campusrent/campusrent/internal/catalog"
	"github.com/campusrent/campusrent/internal/model"
)

// ItemsHandler handles item endpoints.
type ItemsHandler struct {
	Catalog *catalog.Service
	Booking *booking.Engine
}

type itemRequest struct {
	Title        string  `json:"title" validate:"required,max=200"`
	Description  string  `json:"description" validate:"max=5000"`
	Category     string  `json:"category" validate:"max=50"`
	Campus       string  `json:"campus" validate:"max=100"`
	DailyRate    float64 `json:"daily_rate" validate:"gte=0"`
	Availability string  `json:"availability" validate:"omitempty,oneof=available unavailable"`
}

func (req itemRequest) input() catalog.ItemInput {
	return catalog.ItemInput{
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Campus:       req.Campus,
		DailyRate:    req.DailyRate,
		Availability: req.Availability,
	}
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	items, err := h.Catalog.List(r.Context(), catalog.ListFilter{
		Category: q.Get("category"),
		Campus:   q.Get("campus"),
		Search:   q.Get("q"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(items))
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	item, err := h.Catalog.Create(r.Context(), auth.FromContext(r.Context()), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id}. The caller may be anonymous.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	item, err := h.Catalog.Get(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Update handles PUT /api/items/{id}.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	item, err := h.Catalog.Update(r.Context(), auth.FromContext(r.Context()), id, req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /api/items/{id}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Catalog.Delete(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, message("item deleted"))
}

// UploadImage handles PUT /api/items/{id}/image.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	data, err := readUpload(w, r, "image")
	if err != nil {
		writeError(w, r, err)
		return
	}

	item, err := h.Catalog.UploadImage(r.Context(), auth.FromContext(r.Context()), id, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Calendar handles GET /api/items/{id}/calendar.
func (h *ItemsHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	ranges, err := h.Booking.Calendar(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(ranges))
}

// Requests handles GET /api/items/{id}/requests.
func (h *ItemsHandler) Requests(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	requests, err := h.Booking.ListForItem(r.Context(), auth.FromContext(r.Context()), id, statusFilter(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(requests))
}

// AddFavorite handles POST /api/items/{id}/favorite.
func (h *ItemsHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Catalog.AddFavorite(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, message("added to favorites"))
}

// RemoveFavorite handles DELETE /api/items/{id}/favorite.
func (h *ItemsHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Catalog.RemoveFavorite(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, message("removed from favorites"))
}

// Mine handles GET /api/me/items.
func (h *ItemsHandler) Mine(w http.ResponseWriter, r *http.Request) {
	items, err := h.Catalog.ListMine(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(items))
}

// Favorites handles GET /api/me/favorites.
func (h *ItemsHandler) Favorites(w http.ResponseWriter, r *http.Request) {
	items, err := h.Catalog.Favorites(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(items))
}

// statusFilter reads repeated or comma-separated ?status= values.
func statusFilter(r *http.Request) []model.RequestStatus {
	var statuses []model.RequestStatus
	for _, v := range r.URL.Query()["status"] {
		for _, s := range splitList(v) {
			statuses = append(statuses, model.RequestStatus(s))
		}
	}
	return statuses
}
