package scylla

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/bulkwrite"
	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

const (
	upsertArtistStmt = `INSERT INTO artists (id, name) VALUES (?, ?)`
	upsertTrackStmt  = `INSERT INTO tracks (id, name, preview_url, artists) VALUES (?, ?, ?, ?)`
)

// EntityStore writes normalized artists and tracks through chunked batches.
type EntityStore struct {
	exec        bulkwrite.Executor
	logger      *zap.Logger
	chunkSize   int
	consistency bulkwrite.Consistency
}

// NewEntityStore constructs an EntityStore. Zero chunkSize or empty consistency
// fall back to the bulkwrite defaults.
func NewEntityStore(exec bulkwrite.Executor, logger *zap.Logger, chunkSize int, consistency bulkwrite.Consistency) *EntityStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntityStore{
		exec:        exec,
		logger:      logger.Named("scylla_entities"),
		chunkSize:   chunkSize,
		consistency: consistency,
	}
}

// UpsertGraph writes all artist rows, then all track rows. Either failing
// means the graph must be treated as not persisted.
func (s *EntityStore) UpsertGraph(ctx context.Context, graph catalog.Graph) error {
	start := time.Now()
	if err := writeTable(ctx, s, "artists", upsertArtistStmt, graph.Artists, func(a catalog.NormalizedArtist) []any {
		return []any{a.ID, a.Name}
	}); err != nil {
		return err
	}
	if err := writeTable(ctx, s, "tracks", upsertTrackStmt, graph.Tracks, func(t catalog.NormalizedTrack) []any {
		return []any{t.ID, t.Name, t.PreviewURL, t.ArtistIDs}
	}); err != nil {
		return err
	}
	s.logger.Debug("graph persisted",
		zap.Int("artists", len(graph.Artists)),
		zap.Int("tracks", len(graph.Tracks)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func writeTable[R any](ctx context.Context, s *EntityStore, table, stmt string, records []R, bind func(R) []any) error {
	outcomes, err := bulkwrite.Write(ctx, s.exec, stmt, records, bind,
		bulkwrite.WithChunkSize(s.chunkSize), bulkwrite.WithConsistency(s.consistency))
	metrics.ObserveBatch(table, len(records), err)
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", catalog.ErrStoreWrite, table, err)
	}
	s.logger.Debug("table written", zap.String("table", table), zap.Int("rows", len(records)), zap.Int("chunks", len(outcomes)))
	return nil
}
