package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/campusrent/campusrent/internal/model"
)

// AddFavorite bookmarks an item for a user. The item's favorite counter moves
// only when the favorite row is new. It reports false if the item is not
// listed.
func AddFavorite(ctx context.Context, db *sql.DB, userID, itemID int64) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO favorites (user_id, item_id)
		 SELECT ?, id FROM items WHERE id = ? AND is_active = 1 AND deleted_at IS NULL
		 ON CONFLICT (user_id, item_id) DO NOTHING`,
		userID, itemID,
	)
	if err != nil {
		return false, fmt.Errorf("adding favorite: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM favorites WHERE user_id = ? AND item_id = ?)`, userID, itemID,
		).Scan(&exists); err != nil {
			return false, fmt.Errorf("checking favorite: %w", err)
		}
		return exists == 1, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET favorite_count = favorite_count + 1 WHERE id = ?`, itemID,
	); err != nil {
		return false, fmt.Errorf("counting favorite: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing favorite: %w", err)
	}
	return true, nil
}

// RemoveFavorite drops a bookmark. Removing a missing bookmark is a no-op.
func RemoveFavorite(ctx context.Context, db *sql.DB, userID, itemID int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = ? AND item_id = ?`, userID, itemID,
	)
	if err != nil {
		return fmt.Errorf("removing favorite: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET favorite_count = MAX(favorite_count - 1, 0) WHERE id = ?`, itemID,
	); err != nil {
		return fmt.Errorf("uncounting favorite: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing favorite removal: %w", err)
	}
	return nil
}

// ListFavorites returns the listed items a user bookmarked, most recent first.
func ListFavorites(ctx context.Context, db *sql.DB, userID int64) ([]model.Item, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+itemColumns+itemFrom+`
		 JOIN favorites f ON f.item_id = i.id
		 WHERE f.user_id = ? AND i.is_active = 1 AND i.deleted_at IS NULL
		 ORDER BY f.created_at DESC, i.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing favorites: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}
