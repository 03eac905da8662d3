package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/campusrent/campusrent/internal/apperr"
	"github.com/campusrent/campusrent/internal/auth"
	"github.com/campusrent/campusrent/internal/db"
	"github.com/campusrent/campusrent/internal/model"
	"github.com/campusrent/campusrent/internal/store"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	DB     *sql.DB
	Tokens auth.Tokens
	Now    func() time.Time
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50,alphanumunicode"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
	FullName string `json:"full_name" validate:"max=100"`
	Campus   string `json:"campus" validate:"max=100"`
}

type loginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,max=72"`
}

func (h *AuthHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		writeError(w, r, apperr.Validation("%v", err))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, store.NewUser{
		Username:     req.Username,
		Email:        req.Email,
		FullName:     strings.TrimSpace(req.FullName),
		Campus:       strings.TrimSpace(req.Campus),
		PasswordHash: hash,
		Role:         model.RoleUser,
	})
	if db.IsUniqueViolation(err) {
		writeError(w, r, apperr.Conflict("account_exists", "username or email already registered"))
		return
	}
	if err != nil {
		writeError(w, r, apperr.Store(err))
		return
	}

	slog.Info("user registered", "user", user.Username, "user_id", user.ID)
	jsonResponse(w, http.StatusCreated, user)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := store.GetUserByLogin(r.Context(), h.DB, req.Login)
	if err != nil {
		writeError(w, r, apperr.Store(err))
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		slog.Warn("login failed", "login", req.Login, "remote", r.RemoteAddr)
		writeError(w, r, apperr.Unauthenticated("invalid_credentials", "invalid credentials"))
		return
	}
	if err := auth.CheckAccount(user, h.now()); err != nil {
		slog.Warn("login refused", "user", user.Username, "error", err)
		writeError(w, r, err)
		return
	}

	token, claims, err := h.Tokens.Issue(user.ID, user.Username, user.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := store.TouchLastActive(r.Context(), h.DB, user.ID, h.now()); err != nil {
		slog.Warn("recording last active", "user", user.Username, "error", err)
	}

	slog.Info("user logged in", "user", user.Username, "role", user.Role)
	jsonResponse(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: user})
}

// Logout handles POST /api/auth/logout by revoking the presented token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if err := store.RevokeToken(r.Context(), h.DB, id.TokenID, id.ExpiresAt); err != nil {
		writeError(w, r, apperr.Store(err))
		return
	}

	slog.Info("user logged out", "user", id.Username)
	jsonResponse(w, http.StatusOK, message("logged out"))
}

// ChangePassword handles PUT /api/auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := model.ValidatePassword(req.NewPassword); err != nil {
		writeError(w, r, apperr.Validation("%v", err))
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id.UserID)
	if err != nil {
		writeError(w, r, apperr.Store(err))
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		writeError(w, r, apperr.Forbidden("wrong_password", "current password is incorrect"))
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := store.UpdateUserPassword(r.Context(), h.DB, id.UserID, hash); err != nil {
		writeError(w, r, apperr.Store(err))
		return
	}

	slog.Info("user changed own password", "user", id.Username)
	jsonResponse(w, http.StatusOK, message("password updated"))
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	user, err := store.GetUser(r.Context(), h.DB, id.UserID)
	if err != nil {
		writeError(w, r, apperr.Store(err))
		return
	}
	jsonResponse(w, http.StatusOK, user)
}
