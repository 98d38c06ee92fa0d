//go:build wireinject
// +build wireinject

package di

import (
	"BarLake/pkg/config"
	"BarLake/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideDomainMetrics,

		// Infrastructure clients
		ProvidePostgresClient,
		ProvideCache,
		ProvideJobQueue,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideClickHouseClient,

		// Repositories
		ProvideSchemaManager,
		ProvideSchema,
		ProvideBarStore,
		ProvideEventPublisher,
		ProvideBarMirror,

		// Use cases
		ProvideIngestor,
		ProvideFileIngestor,
		ProvideQueryEngine,
		ProvideGapRepairer,
		ProvideRepairJob,
		ProvideRepairScheduler,
		ProvideKafkaBatchHandler,

		// HTTP
		ProvideRateLimiter,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeIngest builds only what a one-shot directory ingest needs.
func InitializeIngest(cfg *config.Config) (*IngestRunner, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideDomainMetrics,
		ProvidePostgresClient,
		ProvideKafkaProducer,
		ProvideClickHouseClient,
		ProvideSchemaManager,
		ProvideSchema,
		ProvideBarStore,
		ProvideEventPublisher,
		ProvideBarMirror,
		ProvideIngestor,
		ProvideFileIngestor,
		wire.Struct(new(IngestRunner), "*"),
	)
	return &IngestRunner{}, nil
}
