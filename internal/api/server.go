// Package api exposes the HTTP interface for the crawler service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
	"github.com/JakeFAU/catalog-crawler/internal/orchestrator"
)

const (
	defaultRequestTimeout  = 5 * time.Minute
	defaultSeedParallelism = 4
	enqueueTimeout         = 5 * time.Second
	maxSeedsPerRequest     = 500
)

// SeedProcessor crawls one seed synchronously.
type SeedProcessor interface {
	ProcessSeed(ctx context.Context, seedID string) (orchestrator.Result, error)
}

// Queue is the submission surface of the dispatcher.
type Queue interface {
	Enqueue(ctx context.Context, ids []string) (catalog.EnqueueResult, error)
	Stats(ctx context.Context) (catalog.QueueStats, bool, error)
}

// Check reports whether one downstream is usable.
type Check func(ctx context.Context) error

// Options tunes the server.
type Options struct {
	RequestTimeout  time.Duration
	SeedParallelism int
	APIKey          string
	MetricsPath     string
	DisableMetrics  bool
	Checks          map[string]Check
}

// Server wires HTTP handlers to the orchestrator and the queue.
type Server struct {
	router    chi.Router
	processor SeedProcessor
	queue     Queue
	ids       catalog.IDGenerator
	opts      Options
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	processor SeedProcessor,
	queue Queue,
	ids catalog.IDGenerator,
	opts Options,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.SeedParallelism <= 0 {
		opts.SeedParallelism = defaultSeedParallelism
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	s := &Server{
		processor: processor,
		queue:     queue,
		ids:       ids,
		opts:      opts,
		logger:    logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if !opts.DisableMetrics {
		r.Method(http.MethodGet, opts.MetricsPath, metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(opts.RequestTimeout))
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Post("/seeds", s.processSeeds)
		r.Post("/seeds/enqueue", s.enqueueSeeds)
		r.Get("/queue/stats", s.queueStats)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	failures := make(map[string]string)
	for name, check := range s.opts.Checks {
		if err := check(r.Context()); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failures": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type seedsRequest struct {
	IDs []string `json:"ids"`
}

type seedResult struct {
	orchestrator.Result
	Error string `json:"error,omitempty"`
}

type seedsResponse struct {
	SubmissionID string       `json:"submission_id"`
	Results      []seedResult `json:"results"`
}

func (s *Server) processSeeds(w http.ResponseWriter, r *http.Request) {
	ids, ok := s.decodeSeeds(w, r)
	if !ok {
		return
	}
	submissionID, err := s.ids.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("generate submission id: %v", err))
		return
	}
	log := s.logger.With(zap.String("submission_id", submissionID), zap.Int("seeds", len(ids)))
	log.Info("processing seeds")

	results := make([]seedResult, len(ids))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(s.opts.SeedParallelism)
	for i, id := range ids {
		g.Go(func() error {
			res, err := s.processor.ProcessSeed(ctx, id)
			res.SeedID = id
			results[i] = seedResult{Result: res}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	writeJSON(w, http.StatusOK, seedsResponse{SubmissionID: submissionID, Results: results})
}

type enqueueResponse struct {
	Inserted []string          `json:"inserted"`
	Existing []string          `json:"existing"`
	Failed   map[string]string `json:"failed,omitempty"`
}

func (s *Server) enqueueSeeds(w http.ResponseWriter, r *http.Request) {
	ids, ok := s.decodeSeeds(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()

	res, err := s.queue.Enqueue(ctx, ids)
	resp := enqueueResponse{Inserted: nonNil(res.Inserted), Existing: nonNil(res.Existing)}
	if len(res.Failed) > 0 {
		resp.Failed = make(map[string]string, len(res.Failed))
		for id, ferr := range res.Failed {
			resp.Failed[id] = ferr.Error()
		}
	}
	if err != nil && len(resp.Inserted)+len(resp.Existing) == 0 {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		s.logger.Error("enqueue failed", zap.Error(err), zap.Strings("ids", ids))
		writeError(w, status, err.Error())
		return
	}
	status := http.StatusAccepted
	if err != nil {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, resp)
}

func (s *Server) queueStats(w http.ResponseWriter, r *http.Request) {
	stats, supported, err := s.queue.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !supported {
		writeError(w, http.StatusNotImplemented, "queue backend does not report stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) decodeSeeds(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req seedsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return nil, false
	}
	ids := catalog.UniqueIDs(req.IDs)
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "ids required")
		return nil, false
	}
	if len(ids) > maxSeedsPerRequest {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d ids per request", maxSeedsPerRequest))
		return nil, false
	}
	return ids, true
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
