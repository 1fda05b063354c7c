package harvest

import (
	"context"
	"io"
	"time"
)

// Renderer fetches a page through a real browser engine. A nil result means
// nothing could be rendered; implementations never return errors to callers.
type Renderer interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) []byte
	Close() error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// DocumentIndex records extracted documents in a queryable store.
type DocumentIndex interface {
	StoreDocument(ctx context.Context, doc Document, blobURI string) error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces document IDs.
type IDGenerator interface {
	NewID() (string, error)
}
