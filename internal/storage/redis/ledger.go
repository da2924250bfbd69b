package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultLedgerKey is the set holding every fully crawled artist id.
const DefaultLedgerKey = "processed_artists"

// Ledger implements catalog.Ledger on a single Redis set.
type Ledger struct {
	client goredis.Cmdable
	key    string
}

// NewLedger constructs a Ledger. An empty key uses DefaultLedgerKey.
func NewLedger(client goredis.Cmdable, key string) *Ledger {
	if key == "" {
		key = DefaultLedgerKey
	}
	return &Ledger{client: client, key: key}
}

// Mark adds id to the set.
func (l *Ledger) Mark(ctx context.Context, id string) error {
	if err := l.client.SAdd(ctx, l.key, id).Err(); err != nil {
		return fmt.Errorf("mark processed %s: %w", id, err)
	}
	return nil
}

// ContainsAny returns the subset of ids already in the set with one SMISMEMBER round trip.
func (l *Ledger) ContainsAny(ctx context.Context, ids []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if len(ids) == 0 {
		return out, nil
	}
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	flags, err := l.client.SMIsMember(ctx, l.key, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("check processed set: %w", err)
	}
	for i, present := range flags {
		if present {
			out[ids[i]] = struct{}{}
		}
	}
	return out, nil
}

// IsMember reports whether id is in the set.
func (l *Ledger) IsMember(ctx context.Context, id string) (bool, error) {
	ok, err := l.client.SIsMember(ctx, l.key, id).Result()
	if err != nil {
		return false, fmt.Errorf("check processed %s: %w", id, err)
	}
	return ok, nil
}
