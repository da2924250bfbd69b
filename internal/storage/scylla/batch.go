package scylla

import (
	"context"

	"github.com/JakeFAU/catalog-crawler/internal/bulkwrite"
)

// BatchExecutor issues each chunk from bulkwrite as one unlogged batch.
type BatchExecutor struct {
	session Session
}

// NewBatchExecutor wraps session.
func NewBatchExecutor(session Session) *BatchExecutor {
	return &BatchExecutor{session: session}
}

// ExecuteBatch implements bulkwrite.Executor.
func (e *BatchExecutor) ExecuteBatch(ctx context.Context, stmt string, rows [][]any, consistency bulkwrite.Consistency) error {
	return e.session.Batch(ctx, stmt, rows, consistency)
}
