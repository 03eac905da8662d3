package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/campusrent/campusrent/internal/model"
)

const itemColumns = `i.id, i.owner_id, i.title, i.description, i.category, i.campus, i.daily_rate,
	i.availability, i.is_active, i.image_url, i.view_count, i.favorite_count,
	i.created_at, i.updated_at, i.deleted_at, u.username`

const itemFrom = ` FROM items i JOIN users u ON u.id = i.owner_id`

func scanItem(s rowScanner) (*model.Item, error) {
	item := &model.Item{}
	err := s.Scan(&item.ID, &item.OwnerID, &item.Title, &item.Description, &item.Category, &item.Campus,
		&item.DailyRate, &item.Availability, &item.IsActive, &item.ImageURL, &item.ViewCount,
		&item.FavoriteCount, &item.CreatedAt, &item.UpdatedAt, &item.DeletedAt, &item.OwnerName)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ItemFields holds the owner-editable fields of an item.
type ItemFields struct {
	Title        string
	Description  string
	Category     string
	Campus       string
	DailyRate    float64
	Availability string
}

// CreateItem creates a new item owned by ownerID.
func CreateItem(ctx context.Context, db *sql.DB, ownerID int64, f ItemFields) (*model.Item, error) {
	if f.Availability == "" {
		f.Availability = model.AvailabilityAvailable
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO items (owner_id, title, description, category, campus, daily_rate, availability)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ownerID, f.Title, f.Description, f.Category, f.Campus, f.DailyRate, f.Availability,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	return GetItem(ctx, db, id)
}

// GetItem returns an item by ID, including inactive and deleted items.
func GetItem(ctx context.Context, db *sql.DB, id int64) (*model.Item, error) {
	item, err := scanItem(db.QueryRowContext(ctx,
		`SELECT `+itemColumns+itemFrom+` WHERE i.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ItemFilter narrows ListItems.
type ItemFilter struct {
	OwnerID  int64
	Category string
	Campus   string
	Search   string
	// IncludeInactive lists deactivated items too. Public listings never set it.
	IncludeInactive bool
	Limit           int
	Offset          int
}

// ListItems returns non-deleted items matching f, newest first.
func ListItems(ctx context.Context, db *sql.DB, f ItemFilter) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + itemFrom + ` WHERE i.deleted_at IS NULL`
	var args []any

	if !f.IncludeInactive {
		query += ` AND i.is_active = 1`
	}
	if f.OwnerID > 0 {
		query += ` AND i.owner_id = ?`
		args = append(args, f.OwnerID)
	}
	if f.Category != "" {
		query += ` AND i.category = ?`
		args = append(args, f.Category)
	}
	if f.Campus != "" {
		query += ` AND i.campus = ?`
		args = append(args, f.Campus)
	}
	if f.Search != "" {
		query += ` AND (i.title LIKE ? OR i.description LIKE ?)`
		like := "%" + f.Search + "%"
		args = append(args, like, like)
	}
	query += ` ORDER BY i.created_at DESC, i.id DESC`
	query, args = paginate(query, args, f.Limit, f.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

func scanItems(rows *sql.Rows) ([]model.Item, error) {
	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// UpdateItem updates an item's fields. Only the owner's row matches, so a
// false return means the item is gone or belongs to someone else.
func UpdateItem(ctx context.Context, db *sql.DB, id, ownerID int64, f ItemFields) (bool, error) {
	return execGuarded(ctx, db, "updating item",
		`UPDATE items SET title = ?, description = ?, category = ?, campus = ?, daily_rate = ?,
		        availability = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`,
		f.Title, f.Description, f.Category, f.Campus, f.DailyRate, f.Availability, id, ownerID,
	)
}

// SetItemImageURL points an item's image at url.
func SetItemImageURL(ctx context.Context, db *sql.DB, id int64, url string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE items SET image_url = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		url, id,
	)
	if err != nil {
		return fmt.Errorf("setting item image: %w", err)
	}
	return nil
}

// DeleteItem soft-deletes an item and cancels its blocking requests in one
// transaction. Requests already handed over (active) are cancelled as well.
// The cancelled requests are returned so their parties can be told.
func DeleteItem(ctx context.Context, db *sql.DB, id, actorID int64) ([]MovedRequest, bool, error) {
	return deactivateItem(ctx, db, id, actorID, true)
}

// DeactivateItem hides an item from listings and cancels its blocking
// requests. Used by moderation.
func DeactivateItem(ctx context.Context, db *sql.DB, id, actorID int64) ([]MovedRequest, bool, error) {
	return deactivateItem(ctx, db, id, actorID, false)
}

func deactivateItem(ctx context.Context, db *sql.DB, id, actorID int64, softDelete bool) ([]MovedRequest, bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query := `UPDATE items SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`
	if softDelete {
		query = `UPDATE items SET is_active = 0, deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		         WHERE id = ? AND deleted_at IS NULL`
	}
	result, err := tx.ExecContext(ctx, query, id)
	if err != nil {
		return nil, false, fmt.Errorf("deactivating item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, false, nil
	}

	cancelled, err := cancelBlocking(ctx, tx, actorID, `item_id = ?`, id)
	if err != nil {
		return nil, false, fmt.Errorf("cancelling item requests: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing item deactivation: %w", err)
	}
	return cancelled, true, nil
}

// RestoreItem re-activates a deactivated, non-deleted item.
func RestoreItem(ctx context.Context, db *sql.DB, id int64) (bool, error) {
	return execGuarded(ctx, db, "restoring item",
		`UPDATE items SET is_active = 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL AND is_active = 0`,
		id,
	)
}

// IncrementViewCount bumps an item's view counter.
func IncrementViewCount(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE items SET view_count = view_count + 1 WHERE id = ? AND deleted_at IS NULL`, id,
	)
	if err != nil {
		return fmt.Errorf("incrementing view count: %w", err)
	}
	return nil
}
