// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes liveness and readiness.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/seeds crawls the given artists synchronously.
//   - POST /v1/seeds/enqueue queues artists for the worker pool.
//   - GET /v1/queue/stats reports pending and processing counts.
package api
