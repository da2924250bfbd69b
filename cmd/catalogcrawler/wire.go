package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/api"
	"github.com/JakeFAU/catalog-crawler/internal/auth"
	"github.com/JakeFAU/catalog-crawler/internal/bulkwrite"
	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/fetcher"
	"github.com/JakeFAU/catalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/catalog-crawler/internal/orchestrator"
	"github.com/JakeFAU/catalog-crawler/internal/policy/ratelimit"
	kafkapublisher "github.com/JakeFAU/catalog-crawler/internal/publisher/kafka"
	memorypublisher "github.com/JakeFAU/catalog-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/catalog-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/catalog-crawler/internal/storage/memory"
	"github.com/JakeFAU/catalog-crawler/internal/storage/postgres"
	redisstore "github.com/JakeFAU/catalog-crawler/internal/storage/redis"
	"github.com/JakeFAU/catalog-crawler/internal/storage/scylla"
)

// components holds every shared collaborator the workers and the API use.
type components struct {
	deps    orchestrator.Deps
	tokens  *auth.Refresher
	checks  map[string]api.Check
	closers []func()
}

func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func build(ctx context.Context, cfg config.Config, bootstrap bool, logger *zap.Logger) (*components, error) {
	c := &components{checks: make(map[string]api.Check)}
	clock := system.New()
	c.deps.Clock = clock
	c.deps.IDs = uuid.New()

	if bootstrap && cfg.UsesScylla() {
		if err := scylla.EnsureSchema(ctx, scyllaConfig(cfg)); err != nil {
			return c, fmt.Errorf("bootstrap scylla: %w", err)
		}
		logger.Info("scylla schema ready", zap.String("keyspace", cfg.Scylla.Keyspace))
	}

	var session *scylla.CQLSession
	if cfg.UsesScylla() {
		s, err := scylla.Open(scyllaConfig(cfg))
		if err != nil {
			return c, fmt.Errorf("open scylla: %w", err)
		}
		session = s
		c.closers = append(c.closers, s.Close)
	}

	var redisClient *goredis.Client
	if cfg.UsesRedis() {
		client, err := redisstore.NewClient(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return c, fmt.Errorf("connect redis: %w", err)
		}
		redisClient = client
		c.closers = append(c.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("close redis", zap.Error(err))
			}
		})
		c.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	queue, err := buildQueue(ctx, cfg, bootstrap, session, c, logger)
	if err != nil {
		return c, err
	}
	c.deps.Queue = queue

	if redisClient != nil && cfg.Lock.Backend == config.BackendRedis {
		c.deps.Lock = redisstore.NewLock(redisClient, cfg.Lock.Prefix)
	} else {
		c.deps.Lock = memory.NewLock(clock)
	}
	if redisClient != nil && cfg.Ledger.Backend == config.BackendRedis {
		c.deps.Ledger = redisstore.NewLedger(redisClient, cfg.Ledger.Key)
	} else {
		c.deps.Ledger = memory.NewLedger()
	}
	if session != nil && cfg.Store.Backend == config.BackendScylla {
		c.deps.Store = scylla.NewEntityStore(
			scylla.NewBatchExecutor(session),
			logger,
			cfg.Store.ChunkSize,
			bulkwrite.Consistency(cfg.Store.Consistency),
		)
	} else {
		c.deps.Store = memory.NewEntityStore()
	}

	c.tokens = auth.NewRefresher(credentialProvider(cfg), cfg.Auth.RefreshInterval, logger)
	c.deps.Tokens = c.tokens
	c.checks["token"] = func(ctx context.Context) error {
		_, err := c.tokens.Token(ctx)
		return err
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Catalog.RateLimitRPS,
		DefaultBurst: cfg.Catalog.RateLimitBurst,
	})
	c.deps.Fetcher = fetcher.New(fetcher.Config{
		BaseURL:        cfg.Catalog.BaseURL,
		Timeout:        cfg.Catalog.Timeout,
		AlbumGroupSize: cfg.Catalog.AlbumGroupSize,
		Concurrency:    cfg.Catalog.Concurrency,
		PageSize:       cfg.Catalog.PageSize,
		UserAgent:      cfg.Catalog.UserAgent,
	}, c.tokens, fetcher.WithLimiter(limiter), fetcher.WithLogger(logger))

	pub, err := buildPublisher(ctx, cfg, c, logger)
	if err != nil {
		return c, err
	}
	c.deps.Publisher = pub
	return c, nil
}

func buildQueue(
	ctx context.Context,
	cfg config.Config,
	bootstrap bool,
	session *scylla.CQLSession,
	c *components,
	logger *zap.Logger,
) (catalog.TaskQueue, error) {
	switch cfg.Queue.Backend {
	case config.BackendScylla:
		return scylla.NewTaskQueue(session, logger,
			scylla.WithClaimCandidates(cfg.Queue.ClaimCandidates),
			scylla.WithEnqueueParallelism(cfg.Queue.EnqueueParallelism),
		), nil
	case config.BackendPostgres:
		q, err := postgres.NewTaskQueue(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			Table:           cfg.Postgres.Table,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		}, logger,
			postgres.WithClaimCandidates(cfg.Queue.ClaimCandidates),
			postgres.WithEnqueueParallelism(cfg.Queue.EnqueueParallelism),
		)
		if err != nil {
			return nil, fmt.Errorf("open postgres queue: %w", err)
		}
		c.closers = append(c.closers, q.Close)
		if bootstrap {
			if err := q.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("bootstrap postgres: %w", err)
			}
		}
		c.checks["postgres"] = func(ctx context.Context) error {
			_, err := q.Stats(ctx)
			return err
		}
		return q, nil
	default:
		return memory.NewTaskQueue(), nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config, c *components, logger *zap.Logger) (catalog.Publisher, error) {
	switch cfg.Publisher.Kind {
	case config.PublisherMemory:
		return memorypublisher.New(), nil
	case config.PublisherKafka:
		p := kafkapublisher.New(cfg.Kafka.Brokers...)
		c.closers = append(c.closers, func() {
			if err := p.Close(); err != nil {
				logger.Warn("close kafka publisher", zap.Error(err))
			}
		})
		return p, nil
	case config.PublisherPubSub:
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		p := pubsubpublisher.New(client)
		c.closers = append(c.closers, func() {
			if err := p.Close(); err != nil {
				logger.Warn("close pubsub publisher", zap.Error(err))
			}
		})
		return p, nil
	default:
		return nil, nil
	}
}

func credentialProvider(cfg config.Config) auth.Provider {
	switch cfg.Auth.Provider {
	case config.AuthStatic:
		return auth.Static(cfg.Auth.Token)
	case config.AuthClientCredentials:
		return auth.NewClientCredentials(cfg.Auth.ClientID, cfg.Auth.ClientSecret, cfg.Auth.TokenURL)
	default:
		return auth.NewPageScrape(cfg.Auth.ScrapeURL, cfg.Catalog.UserAgent, cfg.Catalog.Timeout)
	}
}

func scyllaConfig(cfg config.Config) scylla.Config {
	return scylla.Config{
		Hosts:             cfg.Scylla.Hosts,
		Port:              cfg.Scylla.Port,
		Keyspace:          cfg.Scylla.Keyspace,
		Consistency:       cfg.Scylla.Consistency,
		ReplicationFactor: cfg.Scylla.ReplicationFactor,
		Timeout:           cfg.Scylla.Timeout,
		Username:          cfg.Scylla.Username,
		Password:          cfg.Scylla.Password,
	}
}
