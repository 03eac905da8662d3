package api

import (
	"net/http"

	"github.com/campusrent/campusrent/internal/auth"
	"github.com/campusrent/campusrent/internal/messaging"
	"github.com/campusrent/campusrent/internal/model"
)

// MessagesHandler handles conversation endpoints. The thread is decided by
// the route: booking threads live under a request, inquiries under an item.
type MessagesHandler struct {
	Messaging *messaging.Service
}

type postMessageRequest struct {
	Content string `json:"content" validate:"required,max=5000"`
}

func bookingThread(r *http.Request) (model.Thread, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	return model.BookingThread{LendingRequestID: id}, nil
}

func inquiryThread(r *http.Request) (model.Thread, error) {
	itemID, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	inquirerID, err := pathID(r, "userId")
	if err != nil {
		return nil, err
	}
	return model.InquiryThread{ItemID: itemID, InquirerID: inquirerID}, nil
}

// Threads handles GET /api/threads.
func (h *MessagesHandler) Threads(w http.ResponseWriter, r *http.Request) {
	threads, err := h.Messaging.ListThreads(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(threads))
}

// UnreadCount handles GET /api/messages/unread-count.
func (h *MessagesHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.Messaging.UnreadCount(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int{"unread": n})
}

// BookingMessages handles GET /api/requests/{id}/messages.
func (h *MessagesHandler) BookingMessages(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, bookingThread)
}

// PostBookingMessage handles POST /api/requests/{id}/messages.
func (h *MessagesHandler) PostBookingMessage(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, bookingThread)
}

// InquiryMessages handles GET /api/items/{id}/inquiries/{userId}/messages.
func (h *MessagesHandler) InquiryMessages(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, inquiryThread)
}

// PostInquiryMessage handles POST /api/items/{id}/inquiries/{userId}/messages.
func (h *MessagesHandler) PostInquiryMessage(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, inquiryThread)
}

func (h *MessagesHandler) list(w http.ResponseWriter, r *http.Request, thread func(*http.Request) (model.Thread, error)) {
	t, err := thread(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	messages, err := h.Messaging.Messages(r.Context(), auth.FromContext(r.Context()), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, nonNil(messages))
}

func (h *MessagesHandler) post(w http.ResponseWriter, r *http.Request, thread func(*http.Request) (model.Thread, error)) {
	t, err := thread(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req postMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	m, err := h.Messaging.Post(r.Context(), auth.FromContext(r.Context()), t, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, m)
}
