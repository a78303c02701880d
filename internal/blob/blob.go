// Package blob abstracts the file-storage provider holding uploaded
// specification documents. The core needs exactly three capabilities:
// store bytes, fetch bytes back by key, and mint a write-capable URL a
// client can upload to directly.
package blob

import "context"

type Blob interface {
	// Put stores data under key and returns the object's location URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Get returns the bytes stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	// PresignPut returns a URL a client can PUT the object to directly.
	PresignPut(ctx context.Context, key string) (string, error)
	// Location returns the canonical location URL for key without
	// touching the backend.
	Location(key string) string
}
