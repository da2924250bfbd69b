package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 4, cfg.Crawler.Workers)
	require.Equal(t, 500*time.Millisecond, cfg.Crawler.PollInterval)
	require.Equal(t, 30*time.Second, cfg.Lock.TTL)
	require.Equal(t, 58*time.Minute, cfg.Auth.RefreshInterval)
	require.Equal(t, AuthPageScrape, cfg.Auth.Provider)
	require.Equal(t, BackendMemory, cfg.Queue.Backend)
	require.Equal(t, 700, cfg.Store.ChunkSize)
	require.Equal(t, "QUORUM", cfg.Store.Consistency)
	require.Equal(t, "processed_artists", cfg.Ledger.Key)
	require.Equal(t, PublisherNone, cfg.Publisher.Kind)
	require.False(t, cfg.UsesRedis())
	require.False(t, cfg.UsesScylla())
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
logging:
  development: false
auth:
  provider: client_credentials
  client_id: id
  client_secret: secret
crawler:
  workers: 12
  poll_interval: 2s
lock:
  backend: redis
  ttl: 45s
ledger:
  backend: redis
store:
  backend: scylla
  chunk_size: 300
queue:
  backend: postgres
  claim_candidates: 8
postgres:
  dsn: postgres://localhost/crawl
scylla:
  hosts: ["db1", "db2"]
  keyspace: catalog
publisher:
  kind: kafka
  topic: crawled
kafka:
  brokers: ["k1:9092"]
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, 12, cfg.Crawler.Workers)
	require.Equal(t, 2*time.Second, cfg.Crawler.PollInterval)
	require.Equal(t, 45*time.Second, cfg.Lock.TTL)
	require.Equal(t, 300, cfg.Store.ChunkSize)
	require.Equal(t, 8, cfg.Queue.ClaimCandidates)
	require.Equal(t, []string{"db1", "db2"}, cfg.Scylla.Hosts)
	require.Equal(t, "catalog", cfg.Scylla.Keyspace)
	require.Equal(t, []string{"k1:9092"}, cfg.Kafka.Brokers)
	require.True(t, cfg.UsesRedis())
	require.True(t, cfg.UsesScylla())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CRAWLER_CRAWLER_WORKERS", "7")
	t.Setenv("CRAWLER_AUTH_PROVIDER", "static")
	t.Setenv("CRAWLER_AUTH_TOKEN", "tok")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Crawler.Workers)
	require.Equal(t, AuthStatic, cfg.Auth.Provider)
	require.Equal(t, "tok", cfg.Auth.Token)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"port":            {func(c *Config) { c.Server.Port = 0 }, "server.port"},
		"workers":         {func(c *Config) { c.Crawler.Workers = 0 }, "crawler.workers"},
		"attempts":        {func(c *Config) { c.Crawler.MaxAttempts = 0 }, "crawler.max_attempts"},
		"ttl":             {func(c *Config) { c.Lock.TTL = 0 }, "lock.ttl"},
		"queue backend":   {func(c *Config) { c.Queue.Backend = "sqs" }, "queue.backend"},
		"store backend":   {func(c *Config) { c.Store.Backend = BackendPostgres }, "store.backend"},
		"publisher kind":  {func(c *Config) { c.Publisher.Kind = "nats" }, "publisher.kind"},
		"static token":    {func(c *Config) { c.Auth.Provider = AuthStatic }, "auth.token"},
		"client secret":   {func(c *Config) { c.Auth.Provider = AuthClientCredentials; c.Auth.ClientID = "id" }, "auth.client_id"},
		"postgres dsn":    {func(c *Config) { c.Queue.Backend = BackendPostgres }, "postgres.dsn"},
		"scylla hosts":    {func(c *Config) { c.Store.Backend = BackendScylla; c.Scylla.Hosts = nil }, "scylla.hosts"},
		"kafka brokers":   {func(c *Config) { c.Publisher.Kind = PublisherKafka }, "kafka.brokers"},
		"pubsub project":  {func(c *Config) { c.Publisher.Kind = PublisherPubSub }, "pubsub.project_id"},
		"publisher topic": {func(c *Config) { c.Publisher.Kind = PublisherMemory; c.Publisher.Topic = "" }, "publisher.topic"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}
