package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"BarLake/internal/domain/models"
	"BarLake/internal/domain/repository"
	"BarLake/internal/handler/api"
	internalrepo "BarLake/internal/repository"
	"BarLake/internal/service/ratelimit"
	"BarLake/internal/usecase"
	"BarLake/pkg/cache"
	pkgch "BarLake/pkg/clickhouse"
	"BarLake/pkg/config"
	pkgkafka "BarLake/pkg/kafka"
	"BarLake/pkg/logger"
	"BarLake/pkg/metrics"
	"BarLake/pkg/postgresql"
	"BarLake/pkg/queue"
	"BarLake/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus recorder on its own registry.
func ProvideMetrics() *metrics.Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return metrics.New(reg)
}

func ProvideDomainMetrics(m *metrics.Recorder) repository.Metrics { return m }

// ProvidePostgresClient opens the bar store pool.
func ProvidePostgresClient(cfg *config.Config) (*postgresql.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Postgres.ConnectTimeout+5*time.Second)
	defer cancel()

	client, err := postgresql.NewClient(ctx,
		postgresql.WithHost(cfg.Postgres.Host, cfg.Postgres.Port),
		postgresql.WithDatabase(cfg.Postgres.Database),
		postgresql.WithCredentials(cfg.Postgres.User, cfg.Postgres.Password),
		postgresql.WithSSLMode(cfg.Postgres.SSLMode),
		postgresql.WithPoolSize(cfg.Postgres.MinConns, cfg.Postgres.MaxConns),
		postgresql.WithConnectTimeout(cfg.Postgres.ConnectTimeout),
		postgresql.WithApplicationName(cfg.Postgres.ApplicationName),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres client: %w", err)
	}
	return client, nil
}

// ProvideSchemaManager creates the schema manager and its registry table.
func ProvideSchemaManager(pg *postgresql.Client, l *logger.Logger, m repository.Metrics, cfg *config.Config) (*internalrepo.SchemaManager, error) {
	policy := postgresql.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.Postgres.DDLRetries

	sm, err := internalrepo.NewSchemaManager(internalrepo.NewPGCatalog(pg), l, m,
		internalrepo.WithTablePrefix(cfg.Postgres.TablePrefix),
		internalrepo.WithRetryPolicy(policy),
	)
	if err != nil {
		return nil, fmt.Errorf("schema manager: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sm.Init(ctx); err != nil {
		return nil, fmt.Errorf("schema init: %w", err)
	}
	return sm, nil
}

func ProvideSchema(sm *internalrepo.SchemaManager) repository.Schema { return sm }

func ProvideBarStore(pg *postgresql.Client, sm *internalrepo.SchemaManager, l *logger.Logger, cfg *config.Config) *internalrepo.PGBarStore {
	return internalrepo.NewPGBarStore(pg, sm, l, cfg.Postgres.InsertChunk)
}

// ProvideCache connects to Redis, or falls back to an in-process cache
// when Redis is disabled.
func ProvideCache(cfg *config.Config, l *logger.Logger) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		l.Warn("redis disabled, using in-process cache; repair locks are per process")
		return cache.NewMemoryCache(), nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2),
		cache.WithRedisTimeouts(cfg.Redis.DialTimeout, cfg.Redis.ReadTimeout, cfg.Redis.WriteTimeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideJobQueue shares the cache's Redis connection. It is nil when
// Redis is disabled and repairs run in-process.
func ProvideJobQueue(cfg *config.Config, l *logger.Logger, svc cache.Service) *queue.RedisQueue {
	rc, ok := svc.(*cache.RedisCache)
	if !ok {
		return nil
	}
	return queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Repair.Queue.Workers,
		RetryLimit: cfg.Repair.Queue.RetryLimit,
		RetryDelay: cfg.Repair.Queue.RetryDelay,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
}

// ProvideKafkaProducer creates the event producer and, when configured,
// ships aggregated error logs through it.
func ProvideKafkaProducer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Producer.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.Producer.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	if cfg.Log.Collector.Enabled {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.Threshold,
			Topic:          cfg.Log.Collector.Topic,
			Publisher:      producer,
		})
	}
	return producer, nil
}

func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.EventPublisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic)
}

// ProvideClickHouseClient opens the analytics mirror connection when enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ClickHouse.DialTimeout+5*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithAsyncInsert(true),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideBarMirror creates the ClickHouse mirror and its table.
func ProvideBarMirror(ch *pkgch.Client, l *logger.Logger) (repository.BarMirror, error) {
	if ch == nil {
		return nil, nil
	}
	mirror, err := internalrepo.NewCHBarMirror(ch, l)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ch.InitSchema(ctx, mirror.Schema()); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return mirror, nil
}

func ProvideIngestor(
	schema repository.Schema,
	store *internalrepo.PGBarStore,
	events repository.EventPublisher,
	m repository.Metrics,
	l *logger.Logger,
	mirror repository.BarMirror,
) *usecase.Ingestor {
	var opts []usecase.IngestorOption
	if mirror != nil {
		opts = append(opts, usecase.WithMirror(mirror))
	}
	return usecase.NewIngestor(schema, store, events, m, l, opts...)
}

func ProvideFileIngestor(ingestor *usecase.Ingestor, l *logger.Logger, cfg *config.Config) *usecase.FileIngestor {
	return usecase.NewFileIngestor(ingestor, cfg.Ingest.RecentWindow, l)
}

func ProvideQueryEngine(store *internalrepo.PGBarStore, svc cache.Service, m repository.Metrics, l *logger.Logger, cfg *config.Config) *usecase.QueryEngine {
	bc := usecase.NewBarCache(svc, cfg.Redis.TTL(), cfg.Query.CacheTimeout, m, l)
	return usecase.NewQueryEngine(store, bc, m, l,
		usecase.WithSlowQueryThreshold(cfg.Query.SlowThreshold),
		usecase.WithStoreTimeout(cfg.Query.StoreTimeout),
	)
}

func ProvideGapRepairer(
	store *internalrepo.PGBarStore,
	ingestor *usecase.Ingestor,
	events repository.EventPublisher,
	m repository.Metrics,
	l *logger.Logger,
	svc cache.Service,
	cfg *config.Config,
) *usecase.GapRepairer {
	return usecase.NewGapRepairer(
		store,
		ingestor,
		usecase.NewGapDetector(cfg.Repair.Threshold),
		usecase.NewGapFiller(models.FillMode(cfg.Repair.Mode), cfg.Repair.Threshold, cfg.Repair.MaxFillPerGap),
		events,
		m,
		l,
		usecase.WithLocker(svc, cfg.Repair.LockTTL),
		usecase.WithParallelism(cfg.Repair.Parallelism),
	)
}

func ProvideRepairJob(r *usecase.GapRepairer, l *logger.Logger) *usecase.RepairJob {
	return usecase.NewRepairJob(r, l)
}

func ProvideRepairScheduler(cfg *config.Config, q *queue.RedisQueue, r *usecase.GapRepairer, l *logger.Logger) *usecase.RepairScheduler {
	var jobs queue.Enqueuer
	if q != nil {
		jobs = q
	}
	return usecase.NewRepairScheduler(cfg.Repair.Interval, jobs, r, l)
}

// ProvideKafkaConsumer creates the batch consumer when enabled.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerMaxBytes(cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

func ProvideKafkaBatchHandler(cfg *config.Config, ingestor *usecase.Ingestor) *usecase.KafkaBatchHandler {
	return usecase.NewKafkaBatchHandler(cfg.Ingest.Topic, ingestor)
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.Server.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillPerSec)
}

// ProvideHTTPHandler assembles the bar API with its health checks.
func ProvideHTTPHandler(
	cfg *config.Config,
	l *logger.Logger,
	query *usecase.QueryEngine,
	files *usecase.FileIngestor,
	repairer *usecase.GapRepairer,
	store *internalrepo.PGBarStore,
	svc cache.Service,
	ch *pkgch.Client,
	q *queue.RedisQueue,
	limiter *ratelimit.Limiter,
) *api.BarsEchoHandler {
	opts := []api.BarsOption{
		api.WithIngestDir(cfg.Ingest.Dir),
		api.WithHealthCheck("postgres", store.Health),
		api.WithHealthCheck("cache", svc.Ping),
	}
	if ch != nil {
		opts = append(opts, api.WithHealthCheck("clickhouse", ch.Health))
	}
	if q != nil {
		opts = append(opts, api.WithJobQueue(q))
	}
	if limiter != nil {
		opts = append(opts, api.WithRateLimiter(limiter))
	}
	return api.NewBarsEchoHandler(l, query, files, repairer, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	m *metrics.Recorder,
	handler *api.BarsEchoHandler,
	pg *postgresql.Client,
	svc cache.Service,
	ch *pkgch.Client,
	producer *pkgkafka.Producer,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaBatchHandler,
	q *queue.RedisQueue,
	job *usecase.RepairJob,
	scheduler *usecase.RepairScheduler,
	limiter *ratelimit.Limiter,
) *server.App {
	return server.New(server.Deps{
		Config:    cfg,
		Logger:    l,
		Metrics:   m,
		Handler:   handler,
		Postgres:  pg,
		Cache:     svc,
		CH:        ch,
		Producer:  producer,
		Consumer:  consumer,
		Batches:   kh,
		Queue:     q,
		RepairJob: job,
		Scheduler: scheduler,
		Limiter:   limiter,
	})
}
