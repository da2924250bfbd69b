// Package memory provides in-process store implementations for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

const defaultClaimCandidates = 16

// TaskQueue is a mutex-guarded task table with the same conditional semantics
// as the durable backends.
type TaskQueue struct {
	mu         sync.Mutex
	tasks      map[string]catalog.TaskStatus
	candidates int
}

// NewTaskQueue constructs an empty TaskQueue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{
		tasks:      make(map[string]catalog.TaskStatus),
		candidates: defaultClaimCandidates,
	}
}

// Enqueue inserts pending rows for ids without a live task.
func (q *TaskQueue) Enqueue(_ context.Context, ids []string) (catalog.EnqueueResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var res catalog.EnqueueResult
	for _, id := range catalog.UniqueIDs(ids) {
		if _, exists := q.tasks[id]; exists {
			res.Existing = append(res.Existing, id)
			continue
		}
		q.tasks[id] = catalog.TaskStatusPending
		res.Inserted = append(res.Inserted, id)
	}
	return res, nil
}

// Claim picks pending candidates in map order and swaps the first one whose
// status is still pending.
func (q *TaskQueue) Claim(ctx context.Context) (*catalog.Task, error) {
	for _, id := range q.pendingCandidates() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if q.compareAndSwap(id, catalog.TaskStatusPending, catalog.TaskStatusProcessing) {
			return &catalog.Task{EntityID: id, Status: catalog.TaskStatusProcessing}, nil
		}
	}
	return nil, nil
}

// Complete deletes the row.
func (q *TaskQueue) Complete(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.tasks, id)
	return nil
}

// Stats counts rows by status.
func (q *TaskQueue) Stats(_ context.Context) (catalog.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var stats catalog.QueueStats
	for _, status := range q.tasks {
		switch status {
		case catalog.TaskStatusPending:
			stats.Pending++
		case catalog.TaskStatusProcessing:
			stats.Processing++
		}
	}
	return stats, nil
}

// Status returns the current status of id, if present.
func (q *TaskQueue) Status(id string) (catalog.TaskStatus, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	status, ok := q.tasks[id]
	return status, ok
}

func (q *TaskQueue) pendingCandidates() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, q.candidates)
	for id, status := range q.tasks {
		if status != catalog.TaskStatusPending {
			continue
		}
		out = append(out, id)
		if len(out) == q.candidates {
			break
		}
	}
	return out
}

func (q *TaskQueue) compareAndSwap(id string, from, to catalog.TaskStatus) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	current, ok := q.tasks[id]
	if !ok || current != from {
		return false
	}
	q.tasks[id] = to
	return true
}
