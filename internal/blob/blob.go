// Package blob stores uploaded files and hands back the URL they are served
// from.
package blob

import (
	"context"
	"errors"
	"mime"
	"path"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a blob does not exist.
var ErrNotFound = errors.New("blob not found")

// Store keeps binary objects.
type Store interface {
	// Put stores data under folder and returns its public URL.
	Put(ctx context.Context, data []byte, mimeType, folder string) (string, error)
	// Delete removes the object behind a URL returned by Put. Unknown URLs
	// are ignored.
	Delete(ctx context.Context, url string) error
}

// newKey builds a random object key inside folder, with an extension
// matching mimeType.
func newKey(folder, mimeType string) string {
	ext := ".bin"
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		ext = exts[0]
	}
	if mimeType == "image/jpeg" {
		ext = ".jpg"
	}
	return path.Join(folder, uuid.NewString()+ext)
}
