//go:build wireinject
// +build wireinject

package di

import (
	"CoinTrend/internal/domain/repository"
	"CoinTrend/pkg/config"
	"CoinTrend/pkg/metrics"
	"CoinTrend/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideMetrics,
	wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),
	ProvideKafkaProducer,
	ProvideLogger,
	ProvidePostgres,
	ProvideClickHouseClient,
	ProvideRedisCache,
	ProvideCache,
	ProvideLocker,
	ProvideStores,
	ProvideQueue,
)

var domainSet = wire.NewSet(
	ProvideNotifyManager,
	ProvideNotifiers,
	ProvideEventPipeline,
	ProvideRegistry,
	ProvideSampleProcessor,
	ProvideSentimentHandler,
	ProvideKafkaConsumer,
	ProvideProviders,
	ProvidePreferenceUseCase,
	ProvideEventUseCase,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		infraSet,
		domainSet,
		ProvideRouter,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
