// Package postgres provides a Postgres-backed task queue.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	defaultTable           = "artist_tasks"
	defaultClaimCandidates = 16
	defaultEnqueueParallel = 16
)

// Config controls the Postgres connection pool backing the queue.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// TaskQueue implements catalog.TaskQueue with conditional inserts and updates.
type TaskQueue struct {
	pool       pool
	table      string
	logger     *zap.Logger
	candidates int
	parallel   int
}

// Option customises a TaskQueue.
type Option func(*TaskQueue)

// WithClaimCandidates sets how many pending rows one Claim inspects.
func WithClaimCandidates(n int) Option {
	return func(q *TaskQueue) {
		if n > 0 {
			q.candidates = n
		}
	}
}

// WithEnqueueParallelism bounds concurrent conditional inserts.
func WithEnqueueParallelism(n int) Option {
	return func(q *TaskQueue) {
		if n > 0 {
			q.parallel = n
		}
	}
}

// NewTaskQueue connects to Postgres using cfg.
func NewTaskQueue(ctx context.Context, cfg Config, logger *zap.Logger, opts ...Option) (*TaskQueue, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	q, err := NewTaskQueueWithPool(p, cfg.Table, logger, opts...)
	if err != nil {
		p.Close()
		return nil, err
	}
	return q, nil
}

// NewTaskQueueWithPool constructs a queue from an existing pool (primarily for testing).
func NewTaskQueueWithPool(p pool, table string, logger *zap.Logger, opts ...Option) (*TaskQueue, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &TaskQueue{
		pool:       p,
		table:      table,
		logger:     logger.Named("postgres_queue"),
		candidates: defaultClaimCandidates,
		parallel:   defaultEnqueueParallel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Close releases the underlying pool resources.
func (q *TaskQueue) Close() {
	if q == nil || q.pool == nil {
		return
	}
	q.pool.Close()
}

// EnsureSchema creates the task table when missing.
func (q *TaskQueue) EnsureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	artist_id text PRIMARY KEY,
	status text NOT NULL
)`, q.table)
	if _, err := q.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create task table: %w", err)
	}
	return nil
}

// Enqueue inserts one pending row per id, leaving existing rows untouched.
func (q *TaskQueue) Enqueue(ctx context.Context, ids []string) (catalog.EnqueueResult, error) {
	ids = catalog.UniqueIDs(ids)
	stmt := fmt.Sprintf(`INSERT INTO %s (artist_id, status) VALUES ($1, $2) ON CONFLICT (artist_id) DO NOTHING`, q.table)
	inserted := make([]bool, len(ids))
	failures := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(q.parallel)
	for i, id := range ids {
		g.Go(func() error {
			tag, err := q.pool.Exec(ctx, stmt, id, string(catalog.TaskStatusPending))
			if err != nil {
				failures[i] = fmt.Errorf("insert task %s: %w", id, err)
				return nil
			}
			inserted[i] = tag.RowsAffected() == 1
			return nil
		})
	}
	_ = g.Wait()

	return catalog.CollectEnqueue(ids, inserted, failures)
}

// Claim selects pending candidates and flips the first one whose status is
// still pending.
func (q *TaskQueue) Claim(ctx context.Context) (*catalog.Task, error) {
	ids, err := q.pendingCandidates(ctx)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf(`UPDATE %s SET status = $1 WHERE artist_id = $2 AND status = $3`, q.table)
	for _, id := range ids {
		tag, err := q.pool.Exec(ctx, stmt,
			string(catalog.TaskStatusProcessing), id, string(catalog.TaskStatusPending))
		if err != nil {
			return nil, fmt.Errorf("claim task %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			q.logger.Debug("claim lost", zap.String("artist_id", id))
			continue
		}
		return &catalog.Task{EntityID: id, Status: catalog.TaskStatusProcessing}, nil
	}
	return nil, nil
}

func (q *TaskQueue) pendingCandidates(ctx context.Context) ([]string, error) {
	stmt := fmt.Sprintf(`SELECT artist_id FROM %s WHERE status = $1 LIMIT $2`, q.table)
	rows, err := q.pool.Query(ctx, stmt, string(catalog.TaskStatusPending), q.candidates)
	if err != nil {
		return nil, fmt.Errorf("select pending tasks: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan pending tasks: %w", err)
	}
	return ids, nil
}

// Complete deletes the row.
func (q *TaskQueue) Complete(ctx context.Context, id string) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE artist_id = $1`, q.table)
	if _, err := q.pool.Exec(ctx, stmt, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

// Stats counts rows by status.
func (q *TaskQueue) Stats(ctx context.Context) (catalog.QueueStats, error) {
	stmt := fmt.Sprintf(`SELECT status, count(*) FROM %s GROUP BY status`, q.table)
	rows, err := q.pool.Query(ctx, stmt)
	if err != nil {
		return catalog.QueueStats{}, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	var stats catalog.QueueStats
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return catalog.QueueStats{}, fmt.Errorf("scan task counts: %w", err)
		}
		switch catalog.TaskStatus(status) {
		case catalog.TaskStatusPending:
			stats.Pending = int(n)
		case catalog.TaskStatusProcessing:
			stats.Processing = int(n)
		}
	}
	if err := rows.Err(); err != nil {
		return catalog.QueueStats{}, fmt.Errorf("read task counts: %w", err)
	}
	return stats, nil
}
