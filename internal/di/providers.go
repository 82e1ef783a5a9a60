package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"CalmPulse/internal/domain/repository"
	domsvc "CalmPulse/internal/domain/service"
	"CalmPulse/internal/engine"
	"CalmPulse/internal/handler/api"
	internalrepo "CalmPulse/internal/repository"
	"CalmPulse/internal/service/model"
	"CalmPulse/internal/service/wearable"
	"CalmPulse/internal/usecase"
	pkgcache "CalmPulse/pkg/cache"
	pkgch "CalmPulse/pkg/clickhouse"
	"CalmPulse/pkg/config"
	xhttp "CalmPulse/pkg/http"
	pkgkafka "CalmPulse/pkg/kafka"
	applogger "CalmPulse/pkg/logger"
	"CalmPulse/pkg/metrics"
	"CalmPulse/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lc := &applogger.Config{Level: "info", Format: "json", Output: "stdout"}
	if cfg.Environment == "development" {
		lc.Level = "debug"
		lc.Format = "console"
	}
	return applogger.New(lc)
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideStore selects and initializes the persistence backend.
func ProvideStore(cfg *config.Config) (repository.Store, error) {
	var (
		store repository.Store
		err   error
	)
	switch cfg.Storage.Driver {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err = internalrepo.NewPostgresStore(ctx, cfg.Storage.Postgres.DSN,
			cfg.Storage.Postgres.MaxConns, cfg.Storage.Postgres.ConnLifetime)
	default:
		store, err = internalrepo.NewSQLiteStore(cfg.Storage.SQLite.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("store init: %w", err)
	}
	return store, nil
}

// ProvideScorerBackend loads the pretrained model artifact. A missing or bad
// artifact is not fatal: the backend stays unready and the engine runs
// rule-only until the phase logic would need it.
func ProvideScorerBackend(cfg *config.Config, l *applogger.Logger) domsvc.Scorer {
	backend := model.NewLogisticScorer(cfg.Model.Path)
	if cfg.Model.Path == "" {
		l.Warn("no model artifact configured, ML scoring disabled")
		return backend
	}
	if err := backend.Initialize(); err != nil {
		l.Warn("model artifact load failed, ML scoring disabled", applogger.Error(err))
	}
	return backend
}

// ProvideEngineParams maps config overrides onto the shipped calibration.
func ProvideEngineParams(cfg *config.Config) engine.Params {
	p := engine.DefaultParams()
	if cfg.Engine.MaxReadingAge > 0 {
		p.MaxReadingAge = cfg.Engine.MaxReadingAge
	}
	if cfg.Engine.RecalcEvery > 0 {
		p.RecalcEvery = cfg.Engine.RecalcEvery
	}
	if cfg.Engine.BootstrapLimit > 0 {
		p.BootstrapReadingLimit = cfg.Engine.BootstrapLimit
	}
	return p
}

// ProvideEngine creates the detection engine.
func ProvideEngine(store repository.Store, backend domsvc.Scorer, m repository.Metrics,
	l *applogger.Logger, params engine.Params) *engine.Engine {
	return engine.New(store, backend, m, l, params)
}

// ProvideWearableSource creates the WebSocket bridge, or nil when disabled.
func ProvideWearableSource(cfg *config.Config) repository.ReadingSource {
	if !cfg.Wearable.Enabled {
		return nil
	}
	return wearable.New(
		cfg.Wearable.APIKey,
		cfg.Wearable.WebSocketURL,
		cfg.Wearable.DeviceIDs,
		cfg.Wearable.ReconnectDelay,
		cfg.Wearable.PingInterval,
	)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when the
// archive is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	ch := cfg.Archive.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout, ch.WriteTimeout),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideReadingArchive creates the long-horizon reading sink, or nil.
func ProvideReadingArchive(chClient *pkgch.Client, l *applogger.Logger) (repository.ReadingArchive, error) {
	if chClient == nil {
		return nil, nil
	}
	return internalrepo.NewClickHouseArchive(chClient, l)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is
// disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	opts := []pkgkafka.ProducerOption{
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	}
	if cfg.Kafka.Producer.RequiredAcks != 0 {
		opts = append(opts, pkgkafka.WithRequiredAcks(cfg.Kafka.Producer.RequiredAcks))
	}
	producer, err := pkgkafka.NewProducer(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher creates the companion-app sync publisher, or nil.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.EventPublisher {
	if producer == nil || cfg.Kafka.EventsTopic == "" {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic)
}

// ProvideKafkaConsumer creates a consumer for relayed readings, or nil.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.Consumer.Topic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.LoggingHook{Logger: l, SlowThreshold: time.Second})
	return consumer, nil
}

// ProvideReadingCollector creates the stream-to-engine collector.
func ProvideReadingCollector(source repository.ReadingSource, eng *engine.Engine,
	archive repository.ReadingArchive, m repository.Metrics, l *applogger.Logger,
	cfg *config.Config) *usecase.ReadingCollector {
	return usecase.NewReadingCollector(source, eng, archive, m, l,
		cfg.Wearable.ReconnectDelay, cfg.Archive.BatchSize, cfg.Archive.BatchTimeout)
}

// ProvideKafkaReadingsHandler registers the relayed-readings handler, or nil.
func ProvideKafkaReadingsHandler(collector *usecase.ReadingCollector, l *applogger.Logger,
	cfg *config.Config) pkgkafka.MessageHandler {
	if cfg.Kafka.Consumer.Topic == "" {
		return nil
	}
	return usecase.NewKafkaReadingsHandler(cfg.Kafka.Consumer.Topic, collector, l)
}

// ProvideHub creates the live-event WebSocket hub.
func ProvideHub(l *applogger.Logger) *api.Hub {
	return api.NewHub(l)
}

// ProvideCache selects the response cache: layered memory+Redis when Redis
// is configured, in-process memory otherwise.
func ProvideCache(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Cache.Redis.Enabled {
		return pkgcache.NewMemoryCache(), nil
	}
	host, portStr, err := net.SplitHostPort(cfg.Cache.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port: %w", err)
	}
	redisCache, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Cache.Redis.Password),
		pkgcache.WithRedisDB(cfg.Cache.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return pkgcache.NewLayeredCache(redisCache), nil
}

// ProvideEventDispatcher drains the engine's events into Kafka and the hub.
func ProvideEventDispatcher(eng *engine.Engine, publisher repository.EventPublisher,
	hub *api.Hub, m repository.Metrics, l *applogger.Logger) *usecase.EventDispatcher {
	return usecase.NewEventDispatcher(eng.Events(), publisher, hub, m, l)
}

// ProvideHTTPHandler creates the Echo route handler.
func ProvideHTTPHandler(l *applogger.Logger, eng *engine.Engine, collector *usecase.ReadingCollector,
	store repository.Store, cache pkgcache.Service, hub *api.Hub, cfg *config.Config) xhttp.Handler {
	return api.NewEngineHandler(l, eng, collector, store, cache, hub,
		cfg.Cache.TTL.Events, cfg.Cache.TTL.Baselines)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	eng *engine.Engine,
	store repository.Store,
	collector *usecase.ReadingCollector,
	dispatcher *usecase.EventDispatcher,
	producer *pkgkafka.Producer,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	httpHandler xhttp.Handler,
) *server.App {
	return server.New(cfg, l, eng, store, collector, dispatcher, producer, consumer, kh, chClient, httpHandler)
}
