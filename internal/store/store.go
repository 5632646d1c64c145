// Package store holds binary image payloads produced during code execution
// so they can be fetched later by URL.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested image name was never stored
var ErrNotFound = errors.New("image not found")

// ImageStore defines the interface for registering and retrieving images.
// Names are allocated in strict insertion order (image-0.png, image-1.png, ...)
// and are never reused or removed.
type ImageStore interface {
	// Put stores the bytes under the next sequential name and returns it
	Put(ctx context.Context, data []byte) (string, error)

	// Get retrieves previously stored bytes, or ErrNotFound
	Get(ctx context.Context, name string) ([]byte, error)

	// Close releases any backend resources
	Close() error
}

// imageName formats the name for the n-th stored image
func imageName(n int64) string {
	return fmt.Sprintf("image-%d.png", n)
}
