package server

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	drepo "CalmPulse/internal/domain/repository"
	"CalmPulse/internal/engine"
	"CalmPulse/internal/usecase"
	pkgch "CalmPulse/pkg/clickhouse"
	"CalmPulse/pkg/config"
	xhttp "CalmPulse/pkg/http"
	pkgkafka "CalmPulse/pkg/kafka"
	applogger "CalmPulse/pkg/logger"
)

// producerPublisher adapts the Kafka producer to the log collector's
// Publisher interface. Aggregated logs are unkeyed.
type producerPublisher struct {
	p *pkgkafka.Producer
}

func (pp producerPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return pp.p.Publish(ctx, topic, nil, payload)
}

// App encapsulates the entire application lifecycle: engine, ingest paths,
// event dispatch and the HTTP API.
type App struct {
	cfg         *config.Config
	logger      *applogger.Logger
	eng         *engine.Engine
	store       drepo.Store
	collector   *usecase.ReadingCollector
	dispatcher  *usecase.EventDispatcher
	producer    *pkgkafka.Producer
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	chClient    *pkgch.Client
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	eng *engine.Engine,
	store drepo.Store,
	collector *usecase.ReadingCollector,
	dispatcher *usecase.EventDispatcher,
	producer *pkgkafka.Producer,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	httpHandler xhttp.Handler,
) *App {
	return &App{
		cfg:         cfg,
		logger:      logger,
		eng:         eng,
		store:       store,
		collector:   collector,
		dispatcher:  dispatcher,
		producer:    producer,
		consumer:    consumer,
		kh:          kh,
		chClient:    chClient,
		httpHandler: httpHandler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := a.logger

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.logger),
	)

	// Aggregated error logs ride the same producer as event sync.
	if a.producer != nil && a.cfg.Kafka.LogsTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          a.cfg.Kafka.LogsTopic,
			Publisher:      producerPublisher{a.producer},
		})
	}

	// Bootstrap baselines and trust from stored history, then open the taps.
	a.eng.Start(ctx)
	a.dispatcher.Start(ctx)

	if err := a.collector.Start(ctx); err != nil {
		l.Error("collector start error", applogger.Error(err))
		return err
	}
	l.Info("reading collector started",
		applogger.Bool("wearable_stream", a.cfg.Wearable.Enabled))

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}
	l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services in reverse dependency order.
func (a *App) shutdown(ctx context.Context) error {
	l := a.logger
	if l == nil {
		var err error
		l, err = applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
		if err != nil {
			log.Printf("failed to create logger: %v", err)
			return err
		}
	}
	l.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting new requests first.
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	// Stop ingest paths.
	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if err := a.collector.Shutdown(shutdownCtx); err != nil {
		l.Warn("collector stop error", applogger.Error(err))
	}

	// Close the engine's event stream and let the dispatcher drain it.
	a.eng.Close()
	a.dispatcher.Wait()

	l.RemoveCollector()
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		l.Warn("store close error", applogger.Error(err))
	}

	l.Info("shutdown complete")
	return nil
}
