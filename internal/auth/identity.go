package auth

import (
	"context"
	"database/sql"
	"time"

	"github.com/campusrent/campusrent/internal/apperr"
	"github.com/campusrent/campusrent/internal/model"
	"github.com/campusrent/campusrent/internal/store"
)

// Identity is the authenticated caller. Role and flags come from the user
// row at request time, not from the token, so moderation takes effect
// immediately.
type Identity struct {
	UserID     int64
	Username   string
	Role       string
	IsVerified bool
	TokenID    string
	ExpiresAt  time.Time
}

// Authenticator resolves bearer tokens to identities.
type Authenticator struct {
	DB     *sql.DB
	Tokens Tokens
	// Now defaults to time.Now.
	Now func() time.Time
}

func (a *Authenticator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Authenticate checks a token and the account behind it. Unknown, revoked
// and expired tokens, deleted accounts, deactivated accounts and accounts
// under an active ban are all rejected as Unauthenticated with distinct codes.
func (a *Authenticator) Authenticate(ctx context.Context, tokenStr string) (*Identity, error) {
	claims, err := a.Tokens.Parse(tokenStr)
	if err != nil {
		return nil, apperr.Unauthenticated("invalid_token", "invalid token")
	}

	revoked, err := store.IsTokenRevoked(ctx, a.DB, claims.ID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if revoked {
		return nil, apperr.Unauthenticated("token_revoked", "token has been revoked")
	}

	user, err := store.GetUser(ctx, a.DB, claims.UserID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if err := CheckAccount(user, a.now()); err != nil {
		return nil, err
	}

	id := &Identity{
		UserID:     user.ID,
		Username:   user.Username,
		Role:       user.Role,
		IsVerified: user.IsVerified,
		TokenID:    claims.ID,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// CheckAccount rejects accounts that may not sign in or use a token.
func CheckAccount(user *model.User, now time.Time) error {
	if user == nil || user.DeletedAt != nil {
		return apperr.Unauthenticated("account_not_found", "account not found")
	}
	if !user.IsActive {
		return apperr.Unauthenticated("account_inactive", "account is deactivated")
	}
	if user.BanActive(now) {
		return apperr.Unauthenticated("account_banned", "account is banned")
	}
	return nil
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
