package scylla

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

const (
	defaultClaimCandidates = 16
	defaultEnqueueParallel = 16

	insertTaskStmt   = `INSERT INTO artist_tasks (artist_id, status) VALUES (?, ?) IF NOT EXISTS`
	selectPendingFmt = `SELECT artist_id FROM artist_tasks WHERE status = ? LIMIT %d ALLOW FILTERING`
	claimTaskStmt    = `UPDATE artist_tasks SET status = ? WHERE artist_id = ? IF status = ?`
	deleteTaskStmt   = `DELETE FROM artist_tasks WHERE artist_id = ? IF EXISTS`
)

// TaskQueue implements catalog.TaskQueue on the artist_tasks table using
// lightweight transactions for every state change.
type TaskQueue struct {
	session    Session
	logger     *zap.Logger
	candidates int
	parallel   int
}

// TaskQueueOption customises a TaskQueue.
type TaskQueueOption func(*TaskQueue)

// WithClaimCandidates sets how many pending rows one Claim inspects.
func WithClaimCandidates(n int) TaskQueueOption {
	return func(q *TaskQueue) {
		if n > 0 {
			q.candidates = n
		}
	}
}

// WithEnqueueParallelism bounds concurrent conditional inserts.
func WithEnqueueParallelism(n int) TaskQueueOption {
	return func(q *TaskQueue) {
		if n > 0 {
			q.parallel = n
		}
	}
}

// NewTaskQueue constructs a TaskQueue.
func NewTaskQueue(session Session, logger *zap.Logger, opts ...TaskQueueOption) *TaskQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &TaskQueue{
		session:    session,
		logger:     logger.Named("scylla_queue"),
		candidates: defaultClaimCandidates,
		parallel:   defaultEnqueueParallel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue inserts one pending row per id with INSERT IF NOT EXISTS.
func (q *TaskQueue) Enqueue(ctx context.Context, ids []string) (catalog.EnqueueResult, error) {
	ids = catalog.UniqueIDs(ids)
	inserted := make([]bool, len(ids))
	failures := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(q.parallel)
	for i, id := range ids {
		g.Go(func() error {
			var existingID, existingStatus string
			applied, err := q.session.ExecCAS(ctx, insertTaskStmt,
				[]any{id, string(catalog.TaskStatusPending)}, &existingID, &existingStatus)
			if err != nil {
				failures[i] = fmt.Errorf("insert task %s: %w", id, err)
				return nil
			}
			inserted[i] = applied
			return nil
		})
	}
	_ = g.Wait()

	return catalog.CollectEnqueue(ids, inserted, failures)
}

// Claim reads a handful of pending rows and conditionally flips the first one
// still pending. A lost race moves on to the next candidate.
func (q *TaskQueue) Claim(ctx context.Context) (*catalog.Task, error) {
	stmt := fmt.Sprintf(selectPendingFmt, q.candidates)
	ids, err := q.session.SelectStrings(ctx, stmt, string(catalog.TaskStatusPending))
	if err != nil {
		return nil, fmt.Errorf("select pending tasks: %w", err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var current string
		applied, err := q.session.ExecCAS(ctx, claimTaskStmt,
			[]any{string(catalog.TaskStatusProcessing), id, string(catalog.TaskStatusPending)}, &current)
		if err != nil {
			return nil, fmt.Errorf("claim task %s: %w", id, err)
		}
		if !applied {
			q.logger.Debug("claim lost", zap.String("artist_id", id), zap.String("status", current))
			continue
		}
		return &catalog.Task{EntityID: id, Status: catalog.TaskStatusProcessing}, nil
	}
	return nil, nil
}

// Complete conditionally deletes the row. The row is only ever written
// through LWTs, so the delete is one too; a missing row is not an error.
func (q *TaskQueue) Complete(ctx context.Context, id string) error {
	applied, err := q.session.ExecCAS(ctx, deleteTaskStmt, []any{id})
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if !applied {
		q.logger.Debug("complete found no task", zap.String("artist_id", id))
	}
	return nil
}
