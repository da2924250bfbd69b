// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names accepted by the store selectors.
const (
	BackendMemory   = "memory"
	BackendScylla   = "scylla"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Publisher kinds.
const (
	PublisherNone   = "none"
	PublisherMemory = "memory"
	PublisherKafka  = "kafka"
	PublisherPubSub = "pubsub"
)

// Credential provider kinds.
const (
	AuthStatic            = "static"
	AuthClientCredentials = "client_credentials"
	AuthPageScrape        = "page_scrape"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Lock      LockConfig      `mapstructure:"lock"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Store     StoreConfig     `mapstructure:"store"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scylla    ScyllaConfig    `mapstructure:"scylla"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// APIKey guards every route except health checks when set.
	APIKey          string `mapstructure:"api_key"`
	SeedParallelism int    `mapstructure:"seed_parallelism"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CatalogConfig shapes upstream requests.
type CatalogConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	AlbumGroupSize int           `mapstructure:"album_group_size"`
	PageSize       int           `mapstructure:"page_size"`
	Concurrency    int           `mapstructure:"concurrency"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// AuthConfig selects and configures the credential provider.
type AuthConfig struct {
	Provider        string        `mapstructure:"provider"`
	Token           string        `mapstructure:"token"`
	ClientID        string        `mapstructure:"client_id"`
	ClientSecret    string        `mapstructure:"client_secret"`
	TokenURL        string        `mapstructure:"token_url"`
	ScrapeURL       string        `mapstructure:"scrape_url"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// CrawlerConfig governs the worker loops.
type CrawlerConfig struct {
	Workers        int           `mapstructure:"workers"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RefreshBetween bool          `mapstructure:"refresh_between"`
}

// LockConfig selects the per-artist lease backend.
type LockConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Prefix  string        `mapstructure:"prefix"`
}

// LedgerConfig selects the processed-set backend.
type LedgerConfig struct {
	Backend string `mapstructure:"backend"`
	Key     string `mapstructure:"key"`
}

// StoreConfig selects where artists and tracks are written.
type StoreConfig struct {
	Backend     string `mapstructure:"backend"`
	ChunkSize   int    `mapstructure:"chunk_size"`
	Consistency string `mapstructure:"consistency"`
}

// QueueConfig selects the task queue backend.
type QueueConfig struct {
	Backend            string `mapstructure:"backend"`
	ClaimCandidates    int    `mapstructure:"claim_candidates"`
	EnqueueParallelism int    `mapstructure:"enqueue_parallelism"`
}

// RedisConfig reaches the lock and ledger server.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ScyllaConfig reaches the wide-column cluster.
type ScyllaConfig struct {
	Hosts             []string      `mapstructure:"hosts"`
	Port              int           `mapstructure:"port"`
	Keyspace          string        `mapstructure:"keyspace"`
	Consistency       string        `mapstructure:"consistency"`
	ReplicationFactor int           `mapstructure:"replication_factor"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
}

// PostgresConfig controls access to the relational queue.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PublisherConfig chooses where completion events go.
type PublisherConfig struct {
	Kind  string `mapstructure:"kind"`
	Topic string `mapstructure:"topic"`
}

// KafkaConfig lists the brokers for the kafka publisher.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.seed_parallelism", 4)
	v.SetDefault("logging.development", true)
	v.SetDefault("catalog.base_url", "https://api.spotify.com/v1")
	v.SetDefault("catalog.timeout", "15s")
	v.SetDefault("catalog.user_agent", "catalog-crawler/0.1")
	v.SetDefault("catalog.album_group_size", 20)
	v.SetDefault("catalog.page_size", 50)
	v.SetDefault("catalog.concurrency", 16)
	v.SetDefault("catalog.rate_limit_rps", 10)
	v.SetDefault("catalog.rate_limit_burst", 10)
	v.SetDefault("auth.provider", AuthPageScrape)
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")
	v.SetDefault("auth.token_url", "")
	v.SetDefault("auth.scrape_url", "")
	v.SetDefault("auth.refresh_interval", "58m")
	v.SetDefault("crawler.workers", 4)
	v.SetDefault("crawler.poll_interval", "500ms")
	v.SetDefault("crawler.max_attempts", 2)
	v.SetDefault("crawler.refresh_between", true)
	v.SetDefault("lock.backend", BackendMemory)
	v.SetDefault("lock.ttl", "30s")
	v.SetDefault("lock.prefix", "lock:artist:")
	v.SetDefault("ledger.backend", BackendMemory)
	v.SetDefault("ledger.key", "processed_artists")
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.chunk_size", 700)
	v.SetDefault("store.consistency", "QUORUM")
	v.SetDefault("queue.backend", BackendMemory)
	v.SetDefault("queue.claim_candidates", 16)
	v.SetDefault("queue.enqueue_parallelism", 16)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("scylla.hosts", []string{"localhost"})
	v.SetDefault("scylla.port", 9042)
	v.SetDefault("scylla.keyspace", "music")
	v.SetDefault("scylla.consistency", "QUORUM")
	v.SetDefault("scylla.replication_factor", 1)
	v.SetDefault("scylla.timeout", "10s")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.table", "artist_tasks")
	v.SetDefault("postgres.max_conns", 8)
	v.SetDefault("publisher.kind", PublisherNone)
	v.SetDefault("publisher.topic", "seed-completed")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.MaxAttempts <= 0 {
		return fmt.Errorf("crawler.max_attempts must be > 0")
	}
	if c.Lock.TTL <= 0 {
		return fmt.Errorf("lock.ttl must be > 0")
	}
	if c.Catalog.Timeout <= 0 {
		return fmt.Errorf("catalog.timeout must be > 0")
	}
	if err := oneOf("lock.backend", c.Lock.Backend, BackendMemory, BackendRedis); err != nil {
		return err
	}
	if err := oneOf("ledger.backend", c.Ledger.Backend, BackendMemory, BackendRedis); err != nil {
		return err
	}
	if err := oneOf("store.backend", c.Store.Backend, BackendMemory, BackendScylla); err != nil {
		return err
	}
	if err := oneOf("queue.backend", c.Queue.Backend, BackendMemory, BackendScylla, BackendPostgres); err != nil {
		return err
	}
	if err := oneOf("publisher.kind", c.Publisher.Kind, PublisherNone, PublisherMemory, PublisherKafka, PublisherPubSub); err != nil {
		return err
	}
	if err := oneOf("auth.provider", c.Auth.Provider, AuthStatic, AuthClientCredentials, AuthPageScrape); err != nil {
		return err
	}
	switch c.Auth.Provider {
	case AuthStatic:
		if c.Auth.Token == "" {
			return fmt.Errorf("auth.token must be set for the static provider")
		}
	case AuthClientCredentials:
		if c.Auth.ClientID == "" || c.Auth.ClientSecret == "" {
			return fmt.Errorf("auth.client_id and auth.client_secret must be set for client credentials")
		}
	}
	if c.Queue.Backend == BackendPostgres && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn must be set when queue.backend is postgres")
	}
	if c.UsesScylla() && len(c.Scylla.Hosts) == 0 {
		return fmt.Errorf("scylla.hosts must be set when a scylla backend is selected")
	}
	if c.Publisher.Kind != PublisherNone && c.Publisher.Topic == "" {
		return fmt.Errorf("publisher.topic must be set when publisher.kind is %s", c.Publisher.Kind)
	}
	if c.Publisher.Kind == PublisherKafka && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must be set for the kafka publisher")
	}
	if c.Publisher.Kind == PublisherPubSub && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set for the pubsub publisher")
	}
	return nil
}

// UsesRedis reports whether any component needs the Redis client.
func (c Config) UsesRedis() bool {
	return c.Lock.Backend == BackendRedis || c.Ledger.Backend == BackendRedis
}

// UsesScylla reports whether any component needs a CQL session.
func (c Config) UsesScylla() bool {
	return c.Store.Backend == BackendScylla || c.Queue.Backend == BackendScylla
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}
