package recall

import (
	"context"
	"time"
)

// Adapter fetches one upstream source and normalizes it into candidates.
type Adapter interface {
	Source() Source
	Fetch(ctx context.Context) (Batch, error)
}

// Fetcher performs a single upstream HTTP call.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Store persists and queries recalls.
type Store interface {
	Insert(ctx context.Context, c Candidate) (string, error)
	FindByTitleAndSource(ctx context.Context, title string, source Source) (string, bool, error)
	Query(ctx context.Context, filters Filters, ordering Ordering, limit int) ([]StoredRecall, error)
	Ping(ctx context.Context) error
}

// AlertStore persists newsletter subscriptions.
type AlertStore interface {
	UpsertAlertPreference(ctx context.Context, pref AlertPreference) error
	ListActiveAlertPreferences(ctx context.Context, category string) ([]AlertPreference, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes recall events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests of raw payloads.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
