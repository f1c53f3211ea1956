package di

import (
	"context"
	"fmt"
	"time"

	tickcache "PricePulse/internal/cache"
	domrepo "PricePulse/internal/domain/repository"
	"PricePulse/internal/handler/api"
	"PricePulse/internal/relay"
	internalrepo "PricePulse/internal/repository"
	"PricePulse/internal/scheduler"
	"PricePulse/internal/source"
	"PricePulse/internal/usecase"
	pkgcache "PricePulse/pkg/cache"
	pkgch "PricePulse/pkg/clickhouse"
	"PricePulse/pkg/config"
	xhttp "PricePulse/pkg/http"
	pkgkafka "PricePulse/pkg/kafka"
	applogger "PricePulse/pkg/logger"
	"PricePulse/pkg/metrics"
	"PricePulse/pkg/queue"
	"PricePulse/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and ensures schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.SchemaStatements); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideTickStore creates the ClickHouse tick store.
func ProvideTickStore(ch *pkgch.Client, log *applogger.Logger) domrepo.TickStore {
	s := internalrepo.NewCHTickStore(ch)
	s.SetLogger(log)
	return s
}

// ProvideMessageStore creates the ClickHouse broadcast-message store.
func ProvideMessageStore(ch *pkgch.Client, log *applogger.Logger) domrepo.MessageStore {
	s := internalrepo.NewCHMessageStore(ch)
	s.SetLogger(log)
	return s
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Producer.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.Producer.RequiredAcks),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideTickPublisher creates the Kafka tick publisher.
func ProvideTickPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.TickPublisher {
	return internalrepo.NewKafkaTickPublisher(producer, cfg.Kafka.TicksTopic)
}

// ProvideKafkaConsumer creates the change-feed consumer.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideChangeFeed creates the Kafka change feed handler.
func ProvideChangeFeed(cfg *config.Config, log *applogger.Logger) *internalrepo.KafkaChangeFeed {
	return internalrepo.NewKafkaChangeFeed(cfg.Kafka.ChangeFeedTopic, cfg.Kafka.Consumer.BufferSize, log)
}

// ProvideTickCache creates the bounded in-memory tick cache.
func ProvideTickCache(cfg *config.Config) *tickcache.Bounded {
	return tickcache.NewBounded(cfg.TickCache.Capacity)
}

// ProvideTickSource creates the upstream HTTP tick source.
func ProvideTickSource(cfg *config.Config, log *applogger.Logger) domrepo.TickSource {
	return source.New(cfg.Upstream.URL, cfg.Upstream.Pair, cfg.Upstream.Timeout, log)
}

// ProvideResponseCache creates the chart response cache. Redis when
// enabled, in-process memory otherwise.
func ProvideResponseCache(cfg *config.Config, log *applogger.Logger) pkgcache.Service {
	if cfg.Redis.Enabled {
		rc, err := pkgcache.NewRedisCache(
			pkgcache.WithRedisHost(cfg.Redis.Host),
			pkgcache.WithRedisPort(cfg.Redis.Port),
			pkgcache.WithRedisPassword(cfg.Redis.Password),
			pkgcache.WithRedisDB(cfg.Redis.DB),
		)
		if err == nil {
			return rc
		}
		log.Warn("redis unavailable, using in-memory response cache", applogger.Error(err))
	}
	return pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(512))
}

// ProvideRetryQueue creates the Redis-backed insert retry queue. Returns
// nil when Redis is disabled or unreachable; failed inserts are then only
// logged.
func ProvideRetryQueue(
	cfg *config.Config,
	log *applogger.Logger,
	respCache pkgcache.Service,
	store domrepo.TickStore,
	m domrepo.Metrics,
) *queue.RedisQueue {
	rc, ok := respCache.(*pkgcache.RedisCache)
	if !ok {
		return nil
	}

	q := queue.NewRedisQueue(log, &queue.QueueConfig{
		Workers:    cfg.RetryQueue.Workers,
		RetryLimit: cfg.RetryQueue.RetryLimit,
		RetryDelay: cfg.RetryQueue.RetryDelay,
	}, rc.Client())
	q.RegisterJob(usecase.NewTickInsertJob(store, m))
	return q
}

// ProvideScheduler creates the poll scheduler.
func ProvideScheduler(
	cfg *config.Config,
	src domrepo.TickSource,
	ticks *tickcache.Bounded,
	store domrepo.TickStore,
	pub domrepo.TickPublisher,
	retryQueue *queue.RedisQueue,
	m domrepo.Metrics,
	log *applogger.Logger,
) *scheduler.Scheduler {
	opts := []scheduler.Option{
		scheduler.WithPublisher(pub),
		scheduler.WithIntervals(cfg.Upstream.PollInterval, cfg.Upstream.BackoffInterval),
	}
	if retryQueue != nil {
		opts = append(opts, scheduler.WithRetryQueue(retryQueue))
	}
	return scheduler.New(src, ticks, store, m, log, opts...)
}

// ProvideHub creates the relay hub.
func ProvideHub(
	cfg *config.Config,
	msgs domrepo.MessageStore,
	feed *internalrepo.KafkaChangeFeed,
	m domrepo.Metrics,
	log *applogger.Logger,
) *relay.Hub {
	return relay.NewHub(msgs, feed, m, log, cfg.Relay.SnapshotRows)
}

// ProvideChartUseCase creates the chart read use case.
func ProvideChartUseCase(
	cfg *config.Config,
	ticks *tickcache.Bounded,
	store domrepo.TickStore,
	respCache pkgcache.Service,
	m domrepo.Metrics,
	log *applogger.Logger,
) *usecase.ChartUseCase {
	return usecase.NewChartUseCase(ticks, store, m, log,
		usecase.WithResponseCache(respCache, cfg.ChartCache.TTL),
	)
}

// ProvideHTTPHandler assembles the HTTP surface.
func ProvideHTTPHandler(
	cfg *config.Config,
	log *applogger.Logger,
	charts *usecase.ChartUseCase,
	hub *relay.Hub,
	store domrepo.TickStore,
) xhttp.Handler {
	relayHandler := api.NewRelayHandler(log, hub, cfg.Relay.WriteTimeout, cfg.Relay.PingInterval)
	return api.NewHandler(log, charts, relayHandler, store)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	sched *scheduler.Scheduler,
	hub *relay.Hub,
	consumer *pkgkafka.Consumer,
	feed *internalrepo.KafkaChangeFeed,
	retryQueue *queue.RedisQueue,
	pub domrepo.TickPublisher,
	chClient *pkgch.Client,
	respCache pkgcache.Service,
	handler xhttp.Handler,
) *server.App {
	return server.New(cfg, log, sched, hub, consumer, feed, retryQueue, pub, chClient, respCache, handler)
}
