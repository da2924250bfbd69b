// Package orchestrator drives one seed artist at a time through lock, fetch,
// persist and frontier expansion.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

const (
	defaultLockTTL      = 30 * time.Second
	defaultPollInterval = 500 * time.Millisecond
	requeueTimeout      = 10 * time.Second
)

// Config controls orchestration behavior.
type Config struct {
	LockTTL      time.Duration
	PollInterval time.Duration
	Retry        RetryPolicy
	// EventTopic enables SeedCompleted events when non-empty.
	EventTopic string
}

// Deps groups the collaborators an Orchestrator needs. Publisher and IDs are optional.
type Deps struct {
	Queue     catalog.TaskQueue
	Lock      catalog.EntityLock
	Ledger    catalog.Ledger
	Store     catalog.EntityStore
	Fetcher   catalog.CatalogFetcher
	Tokens    catalog.TokenSource
	Publisher catalog.Publisher
	Clock     catalog.Clock
	IDs       catalog.IDGenerator
}

// Result describes one ProcessSeed call.
type Result struct {
	SeedID   string        `json:"id"`
	Outcome  Outcome       `json:"outcome"`
	State    State         `json:"state"`
	Attempts int           `json:"attempts"`
	Tracks   int           `json:"tracks"`
	Artists  int           `json:"artists"`
	Enqueued int           `json:"enqueued"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// Orchestrator runs the per-seed state machine.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, cfg: cfg, logger: logger.Named("orchestrator")}
}

// Run claims and processes tasks until ctx is done. An empty queue is polled
// every PollInterval; after a processed task the next claim happens at once.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	for {
		processed, err := o.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			o.logger.Warn("task run failed", zap.Error(err))
		}
		if processed && ctx.Err() == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims one task and processes it. It reports false when nothing was claimable.
func (o *Orchestrator) RunOnce(ctx context.Context) (bool, error) {
	task, err := o.deps.Queue.Claim(ctx)
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}
	if task == nil {
		return false, nil
	}
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	_, err = o.ProcessSeed(ctx, task.EntityID)
	return true, err
}

// ProcessSeed crawls seedID synchronously. A non-nil error means the seed was
// requeued after exhausting its attempts.
func (o *Orchestrator) ProcessSeed(ctx context.Context, seedID string) (Result, error) {
	start := time.Now()
	res := Result{SeedID: seedID, State: StateClaimed}
	log := o.logger.With(zap.String("seed_id", seedID))
	o.transition(log, &res, StateClaimed, start)

	locked, err := o.deps.Lock.TryAcquire(ctx, seedID, o.cfg.LockTTL)
	if err != nil {
		return o.fail(ctx, log, res, start, false, fmt.Errorf("acquire lock: %w", err))
	}
	if !locked {
		log.Info("seed locked by another worker", zap.Duration("elapsed", time.Since(start)))
		if err := o.deps.Queue.Complete(ctx, seedID); err != nil {
			log.Error("complete contended task failed", zap.Error(err))
		}
		res.Outcome = OutcomeContended
		res.Elapsed = time.Since(start)
		o.transition(log, &res, StateCompleted, start)
		metrics.ObserveTask(string(OutcomeContended))
		return res, nil
	}
	o.transition(log, &res, StateLocked, start)

	att := newAttempt(o.cfg.Retry)
	for {
		res.Attempts = att.n
		err = o.crawl(ctx, log, seedID, &res, start)
		if err == nil {
			break
		}
		log.Warn("crawl attempt failed",
			zap.Int("attempt", att.n),
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)))
		switch att.after(err) {
		case giveUp:
			return o.fail(ctx, log, res, start, true, err)
		case refreshThenRetry:
			if o.deps.Tokens != nil {
				if rerr := o.deps.Tokens.Refresh(ctx); rerr != nil {
					log.Warn("token refresh before retry failed", zap.Error(rerr))
				}
			}
		case retry:
		}
	}

	o.finish(ctx, log, seedID)
	res.Outcome = OutcomeCompleted
	res.Elapsed = time.Since(start)
	o.transition(log, &res, StateCompleted, start)
	metrics.ObserveTask(string(OutcomeCompleted))
	o.publish(ctx, log, res)
	return res, nil
}

// crawl runs one attempt: fetch, normalize, persist, expand.
func (o *Orchestrator) crawl(ctx context.Context, log *zap.Logger, seedID string, res *Result, start time.Time) error {
	stage := time.Now()
	albums, err := o.deps.Fetcher.ArtistAlbums(ctx, seedID)
	if err != nil {
		return err
	}
	albumIDs := make([]string, 0, len(albums))
	for _, album := range albums {
		albumIDs = append(albumIDs, album.ID)
	}
	tracks, err := o.deps.Fetcher.AlbumTracks(ctx, albumIDs)
	if err != nil {
		return err
	}
	graph := catalog.Normalize(tracks)
	o.stage(log, "fetch", stage, zap.Int("albums", len(albums)), zap.Int("tracks_fetched", len(tracks)))
	res.Tracks, res.Artists = len(graph.Tracks), len(graph.Artists)
	o.transition(log, res, StateFetched, start)

	stage = time.Now()
	if err := o.deps.Store.UpsertGraph(ctx, graph); err != nil {
		return fmt.Errorf("persist graph: %w", err)
	}
	o.stage(log, "insert", stage, zap.Int("artists", res.Artists), zap.Int("tracks", res.Tracks))
	o.transition(log, res, StatePersisted, start)

	stage = time.Now()
	neighbors := catalog.Neighbors(graph, seedID)
	processed, err := o.deps.Ledger.ContainsAny(ctx, neighbors)
	if err != nil {
		return fmt.Errorf("read processed set: %w", err)
	}
	frontier := catalog.Frontier(neighbors, processed)
	o.stage(log, "ledger_read", stage, zap.Int("neighbors", len(neighbors)), zap.Int("frontier", len(frontier)))

	stage = time.Now()
	enq, err := o.deps.Queue.Enqueue(ctx, frontier)
	if err != nil {
		if len(frontier) > 0 && len(enq.Succeeded()) == 0 {
			return fmt.Errorf("enqueue frontier: %w", err)
		}
		log.Warn("frontier partially enqueued", zap.Int("failed", len(enq.Failed)), zap.Error(err))
	}
	res.Enqueued = len(enq.Inserted)
	metrics.ObserveFrontier(res.Enqueued)
	o.stage(log, "enqueue", stage, zap.Int("inserted", len(enq.Inserted)), zap.Int("existing", len(enq.Existing)))
	o.transition(log, res, StateExpanded, start)
	return nil
}

// finish marks the seed processed, releases the lease and deletes the task.
func (o *Orchestrator) finish(ctx context.Context, log *zap.Logger, seedID string) {
	stage := time.Now()
	if err := o.deps.Ledger.Mark(ctx, seedID); err != nil {
		log.Error("mark processed failed", zap.Error(err))
	}
	if err := o.deps.Lock.Release(ctx, seedID); err != nil {
		log.Warn("release lock failed", zap.Error(err))
	}
	if err := o.deps.Queue.Complete(ctx, seedID); err != nil {
		log.Error("complete task failed", zap.Error(err))
	}
	o.stage(log, "mark", stage)
}

// fail replaces the processing row with a fresh pending one. A held lease is
// released first, otherwise the next claim would see it as contended and
// delete the requeued row. Release is best effort; on error the TTL applies.
func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, res Result, start time.Time, held bool, cause error) (Result, error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requeueTimeout)
	defer cancel()

	if held {
		if err := o.deps.Lock.Release(rctx, res.SeedID); err != nil {
			log.Warn("release lock before requeue failed", zap.Error(err))
		}
	}
	var errs []error
	if err := o.deps.Queue.Complete(rctx, res.SeedID); err != nil {
		errs = append(errs, fmt.Errorf("complete failed task: %w", err))
	}
	if _, err := o.deps.Queue.Enqueue(rctx, []string{res.SeedID}); err != nil {
		errs = append(errs, fmt.Errorf("requeue seed: %w", err))
	}
	res.Outcome = OutcomeRequeued
	res.Elapsed = time.Since(start)
	o.transition(log, &res, StateFailed, start)
	metrics.ObserveTask(string(OutcomeRequeued))
	log.Error("seed requeued",
		zap.Int("attempts", res.Attempts),
		zap.Error(cause),
		zap.Errors("requeue_errors", errs),
		zap.Duration("elapsed", res.Elapsed))
	return res, errors.Join(append([]error{fmt.Errorf("process seed %s: %w", res.SeedID, cause)}, errs...)...)
}

func (o *Orchestrator) publish(ctx context.Context, log *zap.Logger, res Result) {
	if o.deps.Publisher == nil || o.cfg.EventTopic == "" {
		return
	}
	event := catalog.SeedCompleted{
		SeedID:    res.SeedID,
		Tracks:    res.Tracks,
		Artists:   res.Artists,
		Enqueued:  res.Enqueued,
		Duration:  res.Elapsed,
		Completed: o.deps.Clock.Now(),
	}
	if o.deps.IDs != nil {
		id, err := o.deps.IDs.NewID()
		if err != nil {
			log.Warn("event id generation failed", zap.Error(err))
		}
		event.EventID = id
	}
	if _, err := o.deps.Publisher.Publish(ctx, o.cfg.EventTopic, event); err != nil {
		log.Warn("publish seed completed failed", zap.Error(err))
	}
}

func (o *Orchestrator) transition(log *zap.Logger, res *Result, to State, start time.Time) {
	res.State = to
	log.Debug("seed transition", zap.String("state", string(to)), zap.Duration("elapsed", time.Since(start)))
}

func (o *Orchestrator) stage(log *zap.Logger, name string, start time.Time, fields ...zap.Field) {
	d := time.Since(start)
	metrics.ObserveStage(name, d)
	log.Debug("stage done", append([]zap.Field{zap.String("stage", name), zap.Duration("took", d)}, fields...)...)
}
