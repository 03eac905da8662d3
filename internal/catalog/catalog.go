// Package catalog manages item listings, their images and users' favorites.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math"
	"strings"

	"github.com/campusrent/campusrent/internal/apperr"
	"github.com/campusrent/campusrent/internal/auth"
	"github.com/campusrent/campusrent/internal/blob"
	"github.com/campusrent/campusrent/internal/booking"
	"github.com/campusrent/campusrent/internal/imaging"
	"github.com/campusrent/campusrent/internal/model"
	"github.com/campusrent/campusrent/internal/policy"
	"github.com/campusrent/campusrent/internal/store"
)

// Field limits.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
	MaxPageSize          = 100
)

// Service owns item listings.
type Service struct {
	DB    *sql.DB
	Blobs blob.Store
	// Bookings announces requests cancelled when an item is deleted.
	Bookings *booking.Engine
	Logger   *slog.Logger
}

// ItemInput holds the owner-editable fields of an item. An empty
// Availability means available on create and unchanged on update.
type ItemInput struct {
	Title        string
	Description  string
	Category     string
	Campus       string
	DailyRate    float64
	Availability string
}

func (in ItemInput) fields() (store.ItemFields, error) {
	f := store.ItemFields{
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		Category:     strings.TrimSpace(in.Category),
		Campus:       strings.TrimSpace(in.Campus),
		DailyRate:    in.DailyRate,
		Availability: in.Availability,
	}
	switch {
	case f.Title == "":
		return f, apperr.Validation("title is required")
	case len(f.Title) > MaxTitleLength:
		return f, apperr.Validation("title must be at most %d characters", MaxTitleLength)
	case len(f.Description) > MaxDescriptionLength:
		return f, apperr.Validation("description must be at most %d characters", MaxDescriptionLength)
	case math.IsNaN(f.DailyRate) || math.IsInf(f.DailyRate, 0) || f.DailyRate < 0:
		return f, apperr.Validation("daily rate must be zero or more")
	}
	switch f.Availability {
	case "", model.AvailabilityAvailable, model.AvailabilityUnavailable:
	default:
		return f, apperr.Validation("invalid availability %q", f.Availability)
	}
	return f, nil
}

// Create lists a new item owned by the caller.
func (s *Service) Create(ctx context.Context, actor *auth.Identity, in ItemInput) (*model.Item, error) {
	f, err := in.fields()
	if err != nil {
		return nil, err
	}
	item, err := store.CreateItem(ctx, s.DB, actor.UserID, f)
	if err != nil {
		return nil, apperr.Store(err)
	}
	s.logger().Info("item created", "item_id", item.ID, "owner_id", actor.UserID)
	return item, nil
}

// Get returns an item. Unlisted items are visible to their owner and to
// moderators only. Views by anyone but the owner are counted. viewer may be
// nil.
func (s *Service) Get(ctx context.Context, viewer *auth.Identity, id int64) (*model.Item, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	owner := viewer != nil && viewer.UserID == item.OwnerID
	if !item.Listed() && !owner && (viewer == nil || !policy.CanModerate(viewer.Role)) {
		return nil, apperr.NotFound("item")
	}
	if !owner {
		if err := store.IncrementViewCount(ctx, s.DB, id); err != nil {
			return nil, apperr.Store(err)
		}
		item.ViewCount++
	}
	return item, nil
}

// Update replaces an item's editable fields.
func (s *Service) Update(ctx context.Context, actor *auth.Identity, id int64, in ItemInput) (*model.Item, error) {
	f, err := in.fields()
	if err != nil {
		return nil, err
	}
	item, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if f.Availability == "" {
		f.Availability = item.Availability
	}

	ok, err := store.UpdateItem(ctx, s.DB, id, actor.UserID, f)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if !ok {
		return nil, apperr.NotFound("item")
	}
	return s.load(ctx, id)
}

// Delete soft-deletes an item and cancels its open requests.
func (s *Service) Delete(ctx context.Context, actor *auth.Identity, id int64) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	cancelled, ok, err := store.DeleteItem(ctx, s.DB, id, actor.UserID)
	if err != nil {
		return apperr.Store(err)
	}
	if !ok {
		return apperr.NotFound("item")
	}
	s.logger().Info("item deleted", "item_id", id, "owner_id", actor.UserID)
	s.bookings().AnnounceCancelled(cancelled, booking.SourceOwner, actor.UserID)
	return nil
}

// ListFilter narrows public listings.
type ListFilter struct {
	Category string
	Campus   string
	Search   string
	Limit    int
	Offset   int
}

// List returns listed items, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]model.Item, error) {
	if f.Limit <= 0 || f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	items, err := store.ListItems(ctx, s.DB, store.ItemFilter{
		Category: f.Category,
		Campus:   f.Campus,
		Search:   strings.TrimSpace(f.Search),
		Limit:    f.Limit,
		Offset:   f.Offset,
	})
	if err != nil {
		return nil, apperr.Store(err)
	}
	return items, nil
}

// ListMine returns the caller's own items, deactivated ones included.
func (s *Service) ListMine(ctx context.Context, actor *auth.Identity) ([]model.Item, error) {
	items, err := store.ListItems(ctx, s.DB, store.ItemFilter{OwnerID: actor.UserID, IncludeInactive: true})
	if err != nil {
		return nil, apperr.Store(err)
	}
	return items, nil
}

// UploadImage processes a picture and makes it the item's image. The
// previous image, if any, is removed afterwards.
func (s *Service) UploadImage(ctx context.Context, actor *auth.Identity, id int64, data []byte) (*model.Item, error) {
	item, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	url, err := StoreImage(ctx, s.Blobs, data, imaging.ItemImage, "items")
	if err != nil {
		return nil, err
	}
	if err := store.SetItemImageURL(ctx, s.DB, id, url); err != nil {
		return nil, apperr.Store(err)
	}
	if item.ImageURL != "" {
		if err := s.Blobs.Delete(ctx, item.ImageURL); err != nil {
			s.logger().Warn("removing old item image", "item_id", id, "url", item.ImageURL, "error", err)
		}
	}
	return s.load(ctx, id)
}

// StoreImage processes an upload with profile p and puts it in folder.
// Unreadable input is a Validation error.
func StoreImage(ctx context.Context, blobs blob.Store, data []byte, p imaging.Profile, folder string) (string, error) {
	img, err := imaging.Process(data, p)
	if err != nil {
		if errors.Is(err, imaging.ErrUnsupportedFormat) {
			return "", apperr.Validation("%v", err)
		}
		return "", apperr.Validation("invalid image: %v", err)
	}
	url, err := blobs.Put(ctx, img.Data, img.MIME, folder)
	if err != nil {
		return "", apperr.Store(err)
	}
	return url, nil
}

// AddFavorite bookmarks a listed item.
func (s *Service) AddFavorite(ctx context.Context, actor *auth.Identity, itemID int64) error {
	ok, err := store.AddFavorite(ctx, s.DB, actor.UserID, itemID)
	if err != nil {
		return apperr.Store(err)
	}
	if !ok {
		return apperr.NotFound("item")
	}
	return nil
}

// RemoveFavorite drops a bookmark.
func (s *Service) RemoveFavorite(ctx context.Context, actor *auth.Identity, itemID int64) error {
	return apperr.Store(store.RemoveFavorite(ctx, s.DB, actor.UserID, itemID))
}

// Favorites returns the caller's bookmarked items that are still listed.
func (s *Service) Favorites(ctx context.Context, actor *auth.Identity) ([]model.Item, error) {
	items, err := store.ListFavorites(ctx, s.DB, actor.UserID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return items, nil
}

func (s *Service) load(ctx context.Context, id int64) (*model.Item, error) {
	item, err := store.GetItem(ctx, s.DB, id)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if item == nil || item.DeletedAt != nil {
		return nil, apperr.NotFound("item")
	}
	return item, nil
}

// owned loads an item the caller owns.
func (s *Service) owned(ctx context.Context, actor *auth.Identity, id int64) (*model.Item, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != actor.UserID {
		return nil, apperr.Forbidden("not_owner", "only the owner can change this item")
	}
	return item, nil
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) bookings() *booking.Engine {
	if s.Bookings == nil {
		return &booking.Engine{DB: s.DB, Logger: s.Logger}
	}
	return s.Bookings
}
