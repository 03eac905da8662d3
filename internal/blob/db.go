package blob

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/campusrent/campusrent/internal/store"
)

// URLPrefix is where DBStore blobs are served.
const URLPrefix = "/blobs/"

// DBStore keeps blobs in the SQLite database.
type DBStore struct {
	DB *sql.DB
}

// Put implements Store.
func (s *DBStore) Put(ctx context.Context, data []byte, mimeType, folder string) (string, error) {
	key := newKey(folder, mimeType)
	if err := store.PutBlob(ctx, s.DB, key, data, mimeType); err != nil {
		return "", fmt.Errorf("putting blob: %w", err)
	}
	return URLPrefix + key, nil
}

// Delete implements Store.
func (s *DBStore) Delete(ctx context.Context, url string) error {
	key, ok := strings.CutPrefix(url, URLPrefix)
	if !ok || key == "" {
		return nil
	}
	return store.DeleteBlob(ctx, s.DB, key)
}

// Get returns a blob's data and MIME type.
func (s *DBStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	data, mimeType, err := store.GetBlob(ctx, s.DB, key)
	if err != nil {
		return nil, "", err
	}
	if data == nil {
		return nil, "", ErrNotFound
	}
	return data, mimeType, nil
}
