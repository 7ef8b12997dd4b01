package object

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// ObjectStore defines the contract for saving and retrieving artifacts.
// Storage keys are opaque locator strings; callers never interpret them.
type ObjectStore interface {
	// Save stores an uploaded file under the user's namespace and returns
	// the generated storage key.
	Save(ctx context.Context, userID string, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	// SaveWithKey stores data at a caller-chosen storage key.
	SaveWithKey(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error)
	// Open returns a reader over a stored object.
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	// PresignURL returns a URL readable by external collaborators for ttl.
	PresignURL(ctx context.Context, storageKey string, ttl time.Duration) (string, error)
	// Delete removes a stored object. Deleting a missing key is not an error.
	Delete(ctx context.Context, storageKey string) error
}

// PutText stores a text artifact at the given key.
func PutText(ctx context.Context, store ObjectStore, storageKey, text string) error {
	if store == nil {
		return fmt.Errorf("object store not configured")
	}
	_, err := store.SaveWithKey(ctx, storageKey, "text/plain; charset=utf-8", strings.NewReader(text))
	return err
}

// GetText reads a stored text artifact in full.
func GetText(ctx context.Context, store ObjectStore, storageKey string) (string, error) {
	if store == nil {
		return "", fmt.Errorf("object store not configured")
	}
	rc, err := store.Open(ctx, storageKey)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read object %s: %w", storageKey, err)
	}
	return string(data), nil
}
