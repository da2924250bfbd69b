// Package bulkwrite splits record collections into store-sized grouped writes
// and executes them in parallel.
package bulkwrite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultChunkSize keeps each grouped write under the store's batch statement limit.
const DefaultChunkSize = 700

// Consistency is the durability level applied to every chunk of one call.
type Consistency string

// Supported consistency levels; names follow CQL.
const (
	ConsistencyAny         Consistency = "ANY"
	ConsistencyOne         Consistency = "ONE"
	ConsistencyQuorum      Consistency = "QUORUM"
	ConsistencyLocalQuorum Consistency = "LOCAL_QUORUM"
	ConsistencyAll         Consistency = "ALL"
)

// Executor runs one grouped write containing one statement instance per row.
type Executor interface {
	ExecuteBatch(ctx context.Context, stmt string, rows [][]any, consistency Consistency) error
}

// Outcome describes one successfully applied chunk.
type Outcome struct {
	Chunk   int
	Rows    int
	Elapsed time.Duration
}

// ChunkError identifies the chunk whose write failed.
type ChunkError struct {
	Chunk int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %v", e.Chunk, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

type options struct {
	chunkSize   int
	consistency Consistency
}

// Option customises a Write call.
type Option func(*options)

// WithChunkSize overrides DefaultChunkSize. Non-positive values are ignored.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithConsistency sets the consistency level for every chunk.
func WithConsistency(c Consistency) Option {
	return func(o *options) {
		if c != "" {
			o.consistency = c
		}
	}
}

// Write binds every record into a row, issues ceil(len/chunk) grouped writes
// concurrently and waits for all of them. When any chunk fails the first
// failure in chunk order is returned and the caller must assume none of the
// records were applied.
func Write[R any](
	ctx context.Context,
	exec Executor,
	stmt string,
	records []R,
	bind func(R) []any,
	opts ...Option,
) ([]Outcome, error) {
	if exec == nil {
		return nil, errors.New("bulk write executor is required")
	}
	o := options{chunkSize: DefaultChunkSize, consistency: ConsistencyQuorum}
	for _, opt := range opts {
		opt(&o)
	}
	chunks := Chunk(records, o.chunkSize)
	if len(chunks) == 0 {
		return nil, nil
	}

	outcomes := make([]Outcome, len(chunks))
	errs := make([]error, len(chunks))
	// Zero-value group: no shared cancellation, every chunk runs to completion.
	var g errgroup.Group
	for i, chunk := range chunks {
		rows := make([][]any, len(chunk))
		for j, rec := range chunk {
			rows[j] = bind(rec)
		}
		g.Go(func() error {
			start := time.Now()
			if err := exec.ExecuteBatch(ctx, stmt, rows, o.consistency); err != nil {
				errs[i] = &ChunkError{Chunk: i, Err: err}
				return nil
			}
			outcomes[i] = Outcome{Chunk: i, Rows: len(rows), Elapsed: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return outcomes, nil
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
