// Code generated by Wire. DO NOT EDIT.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package di

import (
	"CalmPulse/pkg/config"
	"CalmPulse/pkg/server"
)

// Injectors from wire.go:

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}
	store, err := ProvideStore(cfg)
	if err != nil {
		return nil, err
	}
	scorer := ProvideScorerBackend(cfg, logger)
	metrics := ProvideMetrics()
	params := ProvideEngineParams(cfg)
	engine := ProvideEngine(store, scorer, metrics, logger, params)
	readingSource := ProvideWearableSource(cfg)
	client, err := ProvideClickHouseClient(cfg)
	if err != nil {
		return nil, err
	}
	readingArchive, err := ProvideReadingArchive(client, logger)
	if err != nil {
		return nil, err
	}
	readingCollector := ProvideReadingCollector(readingSource, engine, readingArchive, metrics, logger, cfg)
	producer, err := ProvideKafkaProducer(cfg)
	if err != nil {
		return nil, err
	}
	eventPublisher := ProvideEventPublisher(producer, cfg)
	hub := ProvideHub(logger)
	eventDispatcher := ProvideEventDispatcher(engine, eventPublisher, hub, metrics, logger)
	consumer, err := ProvideKafkaConsumer(cfg, logger)
	if err != nil {
		return nil, err
	}
	messageHandler := ProvideKafkaReadingsHandler(readingCollector, logger, cfg)
	service, err := ProvideCache(cfg)
	if err != nil {
		return nil, err
	}
	handler := ProvideHTTPHandler(logger, engine, readingCollector, store, service, hub, cfg)
	app := ProvideApp(cfg, logger, engine, store, readingCollector, eventDispatcher, producer, consumer, messageHandler, client, handler)
	return app, nil
}
