package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/campusrent/campusrent/internal/model"
)

const userColumns = `id, username, email, full_name, campus, avatar_url, password_hash, role,
	is_active, is_banned, banned_until, ban_reason, is_verified, rating, review_count,
	version, last_active, created_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	u := &model.User{}
	err := s.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.Campus, &u.AvatarURL, &u.PasswordHash, &u.Role,
		&u.IsActive, &u.IsBanned, &u.BannedUntil, &u.BanReason, &u.IsVerified, &u.Rating, &u.ReviewCount,
		&u.Version, &u.LastActive, &u.CreatedAt, &u.DeletedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// NewUser holds the fields of a registration.
type NewUser struct {
	Username     string
	Email        string
	FullName     string
	Campus       string
	PasswordHash string
	Role         string
	Verified     bool
}

// CreateUser creates a new user.
func CreateUser(ctx context.Context, db *sql.DB, nu NewUser) (*model.User, error) {
	if nu.Role == "" {
		nu.Role = model.RoleUser
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO users (username, email, full_name, campus, password_hash, role, is_verified)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nu.Username, strings.ToLower(nu.Email), nu.FullName, nu.Campus, nu.PasswordHash, nu.Role, nu.Verified,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID, including soft-deleted users.
func GetUser(ctx context.Context, db *sql.DB, id int64) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByLogin returns the live user whose username or email matches login.
func GetUserByLogin(ctx context.Context, db *sql.DB, login string) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE (username = ? OR email = ?) AND deleted_at IS NULL`,
		login, strings.ToLower(login),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by login: %w", err)
	}
	return u, nil
}

// UserFilter narrows ListUsers. Nil pointers mean "any".
type UserFilter struct {
	Role     string
	Banned   *bool
	Active   *bool
	Verified *bool
	Search   string
	Limit    int
	Offset   int
}

// ListUsers returns non-deleted users matching f.
func ListUsers(ctx context.Context, db *sql.DB, f UserFilter) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE deleted_at IS NULL`
	var args []any

	if f.Role != "" {
		query += ` AND role = ?`
		args = append(args, f.Role)
	}
	if f.Banned != nil {
		query += ` AND is_banned = ?`
		args = append(args, *f.Banned)
	}
	if f.Active != nil {
		query += ` AND is_active = ?`
		args = append(args, *f.Active)
	}
	if f.Verified != nil {
		query += ` AND is_verified = ?`
		args = append(args, *f.Verified)
	}
	if f.Search != "" {
		query += ` AND (username LIKE ? OR email LIKE ? OR full_name LIKE ?)`
		like := "%" + f.Search + "%"
		args = append(args, like, like, like)
	}
	query += ` ORDER BY id`
	query, args = paginate(query, args, f.Limit, f.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// ProfileUpdate holds the self-editable profile fields.
type ProfileUpdate struct {
	FullName string
	Campus   string
}

// UpdateProfile updates a user's own profile fields.
func UpdateProfile(ctx context.Context, db *sql.DB, id int64, p ProfileUpdate) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET full_name = ?, campus = ?, version = version + 1
		 WHERE id = ? AND deleted_at IS NULL`,
		p.FullName, p.Campus, id,
	)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	return nil
}

// SetAvatarURL points a user's avatar at url.
func SetAvatarURL(ctx context.Context, db *sql.DB, id int64, url string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET avatar_url = ? WHERE id = ? AND deleted_at IS NULL`,
		url, id,
	)
	if err != nil {
		return fmt.Errorf("setting avatar: %w", err)
	}
	return nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, db *sql.DB, id int64, passwordHash string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}

// TouchLastActive records a login.
func TouchLastActive(ctx context.Context, db *sql.DB, id int64, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET last_active = ? WHERE id = ?`, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating last active: %w", err)
	}
	return nil
}

// liveUser matches accounts that can sign in: active, not deleted and not
// under a running ban. It binds one argument, the current time, and agrees
// with model.User.BanActive.
func liveUser(table string) string {
	return table + `.is_active = 1 AND ` + table + `.deleted_at IS NULL
		AND (` + table + `.is_banned = 0
		     OR (` + table + `.banned_until IS NOT NULL AND ` + table + `.banned_until <= ?))`
}

// lastHolderGuard lets an UPDATE on users through unless the row is a live
// holder of one of the protected roles and no other live holder remains.
// The count runs inside the UPDATE, so two concurrent demotions cannot both
// pass it. The fragment binds the current time twice; see guardArgs.
func lastHolderGuard(protected ...string) string {
	quoted := make([]string, len(protected))
	for i, r := range protected {
		quoted[i] = "'" + r + "'"
	}
	in := strings.Join(quoted, ", ")
	return `(users.role NOT IN (` + in + `)
		OR NOT (` + liveUser("users") + `)
		OR (SELECT COUNT(*) FROM users h
		    WHERE h.role = users.role AND ` + liveUser("h") + `) > 1)`
}

func guardArgs(now time.Time) []any {
	t := now.UTC()
	return []any{t, t}
}

// execGuarded runs a guarded update and reports whether a row changed.
func execGuarded(ctx context.Context, db *sql.DB, what, query string, args ...any) (bool, error) {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", what, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", what, err)
	}
	return n > 0, nil
}

// ChangeRole sets a user's role. Demoting the last live manager is refused;
// it reports false when the guard or the deleted check stopped the update.
// Bans that ended before now no longer count against liveness.
func ChangeRole(ctx context.Context, db *sql.DB, id int64, role string, now time.Time) (bool, error) {
	return execGuarded(ctx, db, "changing role",
		`UPDATE users SET role = ?, version = version + 1
		 WHERE id = ? AND deleted_at IS NULL
		   AND (role = ? OR `+lastHolderGuard(model.RoleManager)+`)`,
		append([]any{role, id, role}, guardArgs(now)...)...,
	)
}

// BanUser bans a user until the given time (nil for indefinitely). The last
// live admin or manager cannot be banned.
func BanUser(ctx context.Context, db *sql.DB, id int64, until *time.Time, reason string, now time.Time) (bool, error) {
	var untilArg any
	if until != nil {
		untilArg = until.UTC()
	}
	return execGuarded(ctx, db, "banning user",
		`UPDATE users SET is_banned = 1, banned_until = ?, ban_reason = ?, version = version + 1
		 WHERE id = ? AND deleted_at IS NULL
		   AND `+lastHolderGuard(model.RoleManager, model.RoleAdmin),
		append([]any{untilArg, reason, id}, guardArgs(now)...)...,
	)
}

// UnbanUser lifts a ban.
func UnbanUser(ctx context.Context, db *sql.DB, id int64) (bool, error) {
	return execGuarded(ctx, db, "unbanning user",
		`UPDATE users SET is_banned = 0, banned_until = NULL, ban_reason = '', version = version + 1
		 WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
}

// SetVerified sets or clears the verification flag.
func SetVerified(ctx context.Context, db *sql.DB, id int64, verified bool) (bool, error) {
	return execGuarded(ctx, db, "setting verification",
		`UPDATE users SET is_verified = ?, version = version + 1
		 WHERE id = ? AND deleted_at IS NULL`,
		verified, id,
	)
}

// SetUserActive activates or deactivates an account. Deactivating the last
// live admin or manager is refused.
func SetUserActive(ctx context.Context, db *sql.DB, id int64, active bool, now time.Time) (bool, error) {
	if active {
		return execGuarded(ctx, db, "activating user",
			`UPDATE users SET is_active = 1, version = version + 1
			 WHERE id = ? AND deleted_at IS NULL`,
			id,
		)
	}
	return execGuarded(ctx, db, "deactivating user",
		`UPDATE users SET is_active = 0, version = version + 1
		 WHERE id = ? AND deleted_at IS NULL
		   AND `+lastHolderGuard(model.RoleManager, model.RoleAdmin),
		append([]any{id}, guardArgs(now)...)...,
	)
}

// DeleteUser soft-deletes an account and cascades in one transaction: the
// user's items are soft-deleted and every blocking request the user is a
// party to is cancelled. Reviews and messages are kept and keep pointing at
// the tombstoned row. Deleting the last live admin or manager is refused.
// The cancelled requests are returned so their parties can be told.
func DeleteUser(ctx context.Context, db *sql.DB, id int64, now time.Time) ([]MovedRequest, bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE users SET deleted_at = CURRENT_TIMESTAMP, is_active = 0, version = version + 1
		 WHERE id = ? AND deleted_at IS NULL
		   AND `+lastHolderGuard(model.RoleManager, model.RoleAdmin),
		append([]any{id}, guardArgs(now)...)...,
	)
	if err != nil {
		return nil, false, fmt.Errorf("deleting user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, false, nil
	}

	cancelled, err := cancelBlocking(ctx, tx, id, `borrower_id = ? OR lender_id = ?`, id, id)
	if err != nil {
		return nil, false, fmt.Errorf("cancelling user requests: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET is_active = 0, deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		 WHERE owner_id = ? AND deleted_at IS NULL`,
		id,
	); err != nil {
		return nil, false, fmt.Errorf("deleting user items: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing user deletion: %w", err)
	}
	return cancelled, true, nil
}

// CountRoleHolders counts live holders of role: active, not deleted and not
// under a ban still running at now.
func CountRoleHolders(ctx context.Context, db *sql.DB, role string, now time.Time) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role = ? AND `+liveUser("users"),
		role, now.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s holders: %w", role, err)
	}
	return n, nil
}

func paginate(query string, args []any, limit, offset int) (string, []any) {
	if limit <= 0 {
		return query, args
	}
	query += ` LIMIT ? OFFSET ?`
	return query, append(args, limit, offset)
}
