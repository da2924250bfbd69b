// Package dispatcher manages worker fan-out over the task queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

// Runner is one worker loop, typically an orchestrator.
type Runner interface {
	Run(ctx context.Context)
}

// Dispatcher runs a pool of workers that coordinate only through the shared stores.
type Dispatcher struct {
	queue   catalog.TaskQueue
	workers []Runner
}

// New creates a Dispatcher.
func New(queue catalog.TaskQueue, workers []Runner) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until the context finishes and every worker returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk Runner) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, ids []string) (catalog.EnqueueResult, error) {
	res, err := d.queue.Enqueue(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("queue enqueue: %w", err)
	}
	return res, nil
}

// Stats reports queue counts when the backend supports it.
func (d *Dispatcher) Stats(ctx context.Context) (catalog.QueueStats, bool, error) {
	statter, ok := d.queue.(catalog.QueueStatter)
	if !ok {
		return catalog.QueueStats{}, false, nil
	}
	stats, err := statter.Stats(ctx)
	if err != nil {
		return catalog.QueueStats{}, true, fmt.Errorf("queue stats: %w", err)
	}
	return stats, true, nil
}
