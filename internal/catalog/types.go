// Package catalog defines core types shared across the crawl subsystems.
package catalog

import (
	"errors"
	"time"
)

// TaskStatus represents the lifecycle state of a queued crawl task.
type TaskStatus string

// Task status values persisted in the task queue.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
)

// Task is one unit of crawl work keyed by the seed entity id.
type Task struct {
	EntityID string     `json:"entity_id"`
	Status   TaskStatus `json:"status"`
}

// EnqueueResult reports the per-id outcome of a bulk enqueue.
type EnqueueResult struct {
	Inserted []string         `json:"inserted"`
	Existing []string         `json:"existing"`
	Failed   map[string]error `json:"-"`
}

// Succeeded returns every id that is now live in the queue.
func (r EnqueueResult) Succeeded() []string {
	out := make([]string, 0, len(r.Inserted)+len(r.Existing))
	out = append(out, r.Inserted...)
	out = append(out, r.Existing...)
	return out
}

// CollectEnqueue folds per-id outcomes into an EnqueueResult in input order.
// failures[i] wins over inserted[i]; the returned error joins every failure.
func CollectEnqueue(ids []string, inserted []bool, failures []error) (EnqueueResult, error) {
	var (
		res  EnqueueResult
		errs []error
	)
	for i, id := range ids {
		switch {
		case failures[i] != nil:
			if res.Failed == nil {
				res.Failed = make(map[string]error)
			}
			res.Failed[id] = failures[i]
			errs = append(errs, failures[i])
		case inserted[i]:
			res.Inserted = append(res.Inserted, id)
		default:
			res.Existing = append(res.Existing, id)
		}
	}
	return res, errors.Join(errs...)
}

// Image is an artwork reference attached to an album.
type Image struct {
	URL    string `json:"url"`
	Height *int   `json:"height"`
	Width  *int   `json:"width"`
}

// Artist is the upstream artist reference embedded in track credits.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Album is the upstream album summary returned by the artist albums listing.
type Album struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ReleaseDate string  `json:"release_date"`
	AlbumType   string  `json:"album_type"`
	TotalTracks int     `json:"total_tracks"`
	Images      []Image `json:"images"`
}

// Track is the upstream track shape including every credited artist.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	PreviewURL *string  `json:"preview_url"`
	Artists    []Artist `json:"artists"`
}

// NormalizedArtist is the artist row persisted in the entity store.
type NormalizedArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NormalizedTrack is the track row persisted in the entity store; ArtistIDs is
// the track->artist adjacency list.
type NormalizedTrack struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	PreviewURL *string  `json:"preview_url,omitempty"`
	ArtistIDs  []string `json:"artists"`
}

// Graph is the flattened result of one seed crawl.
type Graph struct {
	Tracks  []NormalizedTrack
	Artists []NormalizedArtist
}

// SeedCompleted is published after a seed has been persisted and expanded.
type SeedCompleted struct {
	EventID   string        `json:"event_id"`
	SeedID    string        `json:"seed_id"`
	Tracks    int           `json:"tracks"`
	Artists   int           `json:"artists"`
	Enqueued  int           `json:"enqueued"`
	Duration  time.Duration `json:"duration_ns"`
	Completed time.Time     `json:"completed_at"`
}

// Key partitions events by seed.
func (e SeedCompleted) Key() string {
	return e.SeedID
}

// QueueStats counts live task rows by status.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
}
