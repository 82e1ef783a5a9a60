//go:build wireinject
// +build wireinject

package di

import (
	"CalmPulse/pkg/config"
	"CalmPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideCache,

		// Persistence and publishing
		ProvideStore,
		ProvideReadingArchive,
		ProvideEventPublisher,

		// Detection core
		ProvideScorerBackend,
		ProvideEngineParams,
		ProvideEngine,

		// Ingest paths
		ProvideWearableSource,
		ProvideReadingCollector,
		ProvideKafkaReadingsHandler,

		// Delivery
		ProvideHub,
		ProvideEventDispatcher,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
