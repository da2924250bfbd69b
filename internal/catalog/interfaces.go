package catalog

import (
	"context"
	"time"
)

// TaskQueue is the durable multi-consumer work queue keyed by entity id.
type TaskQueue interface {
	// Enqueue inserts a pending task for every id that has no live task.
	// Ids already present are reported as Existing and left untouched.
	Enqueue(ctx context.Context, ids []string) (EnqueueResult, error)
	// Claim moves one pending task to processing with a conditional write.
	// It returns nil when no task could be claimed.
	Claim(ctx context.Context) (*Task, error)
	// Complete deletes the task row. Completing twice is harmless.
	Complete(ctx context.Context, id string) error
}

// EntityLock is a lease-based mutual exclusion marker per entity id.
type EntityLock interface {
	TryAcquire(ctx context.Context, id string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, id string) error
}

// Ledger records which entities have been fully crawled.
type Ledger interface {
	Mark(ctx context.Context, id string) error
	ContainsAny(ctx context.Context, ids []string) (map[string]struct{}, error)
	IsMember(ctx context.Context, id string) (bool, error)
}

// EntityStore upserts normalized artists and tracks.
type EntityStore interface {
	UpsertGraph(ctx context.Context, graph Graph) error
}

// CatalogFetcher retrieves the nested resource graph for one artist.
type CatalogFetcher interface {
	ArtistAlbums(ctx context.Context, artistID string) ([]Album, error)
	AlbumTracks(ctx context.Context, albumIDs []string) ([]Track, error)
}

// TokenSource hands out the current bearer token and refreshes it on demand.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
}

// Publisher pushes crawl events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces event and submission ids.
type IDGenerator interface {
	NewID() (string, error)
}

// QueueStatter is implemented by task queues that can count their rows cheaply.
type QueueStatter interface {
	Stats(ctx context.Context) (QueueStats, error)
}
