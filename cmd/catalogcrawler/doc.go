// Package main hosts the catalog crawler entrypoint.
//
// Architecture overview:
//   - Workers: a dispatcher runs crawler.workers orchestrator loops. Each loop claims one artist task, takes the
//     per-artist lease, fetches the artist's albums and every album track, writes artists and tracks in chunked
//     batches, and enqueues credited artists that are not yet in the processed set. Workers coordinate only
//     through the stores.
//   - Stores: the task queue (memory, Scylla LWT, or Postgres), the lease and processed set (memory or Redis), and
//     the entity store (memory or Scylla) are chosen independently in config.
//   - Credentials: a refresher owns the bearer token, renews it on a timer, and performs a single guarded refresh
//     when a crawl attempt is rejected.
//   - HTTP API: internal/api.Server exposes health checks, Prometheus metrics, synchronous seed crawls, async enqueue, and
//     queue stats.
//
// Operational notes:
//   - Run with -bootstrap once against a fresh cluster to create the keyspace and tables.
//   - -seed a,b,c enqueues starting artists at startup; POST /v1/seeds/enqueue does the same at runtime.
//   - Tasks orphaned in processing by a crash are not reclaimed; their count is visible at /v1/queue/stats on
//     backends that report it.
//   - Configure via file or CRAWLER_* env vars, e.g. CRAWLER_QUEUE_BACKEND=scylla, CRAWLER_REDIS_ADDR.
package main
