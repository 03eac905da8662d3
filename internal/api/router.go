package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/campusrent/campusrent/internal/auth"
	"github.com/campusrent/campusrent/internal/blob"
	"github.com/campusrent/campusrent/internal/booking"
	"github.com/campusrent/campusrent/internal/catalog"
	"github.com/campusrent/campusrent/internal/messaging"
	"github.com/campusrent/campusrent/internal/metrics"
	"github.com/campusrent/campusrent/internal/model"
	"github.com/campusrent/campusrent/internal/moderation"
	"github.com/campusrent/campusrent/internal/notify"
	"github.com/campusrent/campusrent/internal/review"
)

// Deps are the collaborators the router is built from.
type Deps struct {
	DB       *sql.DB
	Tokens   auth.Tokens
	Blobs    blob.Store
	Notifier notify.Notifier
	Logger   *slog.Logger
	// RequireVerified restricts messaging to verified accounts.
	RequireVerified bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewRouter creates the HTTP handler with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	engine := &booking.Engine{DB: d.DB, Notifier: d.Notifier, Logger: d.Logger, Now: d.Now}
	reviews := &review.Aggregator{DB: d.DB, Notifier: d.Notifier, Logger: d.Logger}
	cat := &catalog.Service{DB: d.DB, Blobs: d.Blobs, Bookings: engine, Logger: d.Logger}

	authHandler := &AuthHandler{DB: d.DB, Tokens: d.Tokens, Now: d.Now}
	usersHandler := &UsersHandler{DB: d.DB, Blobs: d.Blobs, Reviews: reviews, Bookings: engine, Now: d.Now}
	itemsHandler := &ItemsHandler{Catalog: cat, Booking: engine}
	requestsHandler := &RequestsHandler{Booking: engine, Reviews: reviews}
	messagesHandler := &MessagesHandler{Messaging: &messaging.Service{
		DB: d.DB, Notifier: d.Notifier, RequireVerified: d.RequireVerified, Now: d.Now,
	}}
	adminHandler := &AdminHandler{Moderation: &moderation.Service{
		DB: d.DB, Reviews: reviews, Bookings: engine, Logger: d.Logger, Now: d.Now,
	}}
	opsHandler := &OpsHandler{DB: d.DB}

	authn := &auth.Authenticator{DB: d.DB, Tokens: d.Tokens, Now: d.Now}
	authMW := AuthMiddleware(authn)
	optionalAuth := OptionalAuth(authn)
	requireAdmin := RequireRole(model.RoleAdmin)

	authed := func(h http.HandlerFunc) http.Handler { return authMW(h) }
	admin := func(h http.HandlerFunc) http.Handler { return authMW(requireAdmin(h)) }

	// Public.
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/users/{id}", usersHandler.Get)
	mux.HandleFunc("GET /api/users/{id}/reviews", usersHandler.ListReviews)
	mux.HandleFunc("GET /api/items", itemsHandler.List)
	mux.Handle("GET /api/items/{id}", optionalAuth(http.HandlerFunc(itemsHandler.Get)))
	mux.HandleFunc("GET /api/items/{id}/calendar", itemsHandler.Calendar)

	// Account.
	mux.Handle("POST /api/auth/logout", authed(authHandler.Logout))
	mux.Handle("PUT /api/auth/password", authed(authHandler.ChangePassword))
	mux.Handle("GET /api/auth/me", authed(authHandler.Me))
	mux.Handle("PUT /api/users/me", authed(usersHandler.UpdateMe))
	mux.Handle("PUT /api/users/me/avatar", authed(usersHandler.UploadAvatar))
	mux.Handle("DELETE /api/users/me", authed(usersHandler.DeleteMe))

	// Items.
	mux.Handle("POST /api/items", authed(itemsHandler.Create))
	mux.Handle("PUT /api/items/{id}", authed(itemsHandler.Update))
	mux.Handle("DELETE /api/items/{id}", authed(itemsHandler.Delete))
	mux.Handle("PUT /api/items/{id}/image", authed(itemsHandler.UploadImage))
	mux.Handle("GET /api/items/{id}/requests", authed(itemsHandler.Requests))
	mux.Handle("POST /api/items/{id}/favorite", authed(itemsHandler.AddFavorite))
	mux.Handle("DELETE /api/items/{id}/favorite", authed(itemsHandler.RemoveFavorite))
	mux.Handle("GET /api/me/items", authed(itemsHandler.Mine))
	mux.Handle("GET /api/me/favorites", authed(itemsHandler.Favorites))

	// Lending requests and reviews.
	mux.Handle("POST /api/requests", authed(requestsHandler.Create))
	mux.Handle("GET /api/requests", authed(requestsHandler.List))
	mux.Handle("GET /api/requests/{id}", authed(requestsHandler.Get))
	mux.Handle("POST /api/requests/{id}/accept", authed(requestsHandler.Accept))
	mux.Handle("POST /api/requests/{id}/reject", authed(requestsHandler.Reject))
	mux.Handle("POST /api/requests/{id}/cancel", authed(requestsHandler.Cancel))
	mux.Handle("POST /api/requests/{id}/activate", authed(requestsHandler.Activate))
	mux.Handle("POST /api/requests/{id}/complete", authed(requestsHandler.Complete))
	mux.Handle("POST /api/requests/{id}/reviews", authed(requestsHandler.Review))

	// Messaging.
	mux.Handle("GET /api/threads", authed(messagesHandler.Threads))
	mux.Handle("GET /api/messages/unread-count", authed(messagesHandler.UnreadCount))
	mux.Handle("GET /api/requests/{id}/messages", authed(messagesHandler.BookingMessages))
	mux.Handle("POST /api/requests/{id}/messages", authed(messagesHandler.PostBookingMessage))
	mux.Handle("GET /api/items/{id}/inquiries/{userId}/messages", authed(messagesHandler.InquiryMessages))
	mux.Handle("POST /api/items/{id}/inquiries/{userId}/messages", authed(messagesHandler.PostInquiryMessage))

	// Reports.
	mux.Handle("POST /api/reports", authed(adminHandler.CreateReport))

	// Moderation (admin+; finer checks happen per action).
	mux.Handle("GET /api/admin/stats", admin(adminHandler.Stats))
	mux.Handle("GET /api/admin/users", admin(adminHandler.Users))
	mux.Handle("PUT /api/admin/users/{id}/role", admin(adminHandler.ChangeRole))
	mux.Handle("POST /api/admin/users/{id}/ban", admin(adminHandler.Ban))
	mux.Handle("POST /api/admin/users/{id}/unban", admin(adminHandler.Unban))
	mux.Handle("POST /api/admin/users/{id}/verify", admin(adminHandler.Verify))
	mux.Handle("POST /api/admin/users/{id}/unverify", admin(adminHandler.Unverify))
	mux.Handle("POST /api/admin/users/{id}/activate", admin(adminHandler.Activate))
	mux.Handle("POST /api/admin/users/{id}/deactivate", admin(adminHandler.Deactivate))
	mux.Handle("DELETE /api/admin/users/{id}", admin(adminHandler.DeleteUser))
	mux.Handle("GET /api/admin/items", admin(adminHandler.Items))
	mux.Handle("POST /api/admin/items/{id}/deactivate", admin(adminHandler.DeactivateItem))
	mux.Handle("POST /api/admin/items/{id}/restore", admin(adminHandler.RestoreItem))
	mux.Handle("DELETE /api/admin/reviews/{id}", admin(adminHandler.DeleteReview))
	mux.Handle("GET /api/admin/reports", admin(adminHandler.Reports))
	mux.Handle("PUT /api/admin/reports/{id}", admin(adminHandler.UpdateReport))

	// Ops.
	mux.HandleFunc("GET /healthz", opsHandler.Health)
	mux.Handle("GET /metrics", metrics.Handler())
	if dbBlobs, ok := d.Blobs.(*blob.DBStore); ok {
		opsHandler.Blobs = dbBlobs
		mux.HandleFunc("GET "+blob.URLPrefix+"{key...}", opsHandler.Blob)
	}

	return metrics.Middleware(LoggingMiddleware(mux))
}
