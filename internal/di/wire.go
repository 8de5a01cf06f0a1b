//go:build wireinject
// +build wireinject

package di

import (
	"SigWatch/pkg/config"
	"SigWatch/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure
		ProvideSignalStateStore,
		ProvideRateLimiter,
		ProvideRunLog,
		ProvideKafkaProducer,
		ProvideAlertPublisher,

		// External services
		ProvideEntitySource,
		ProvideEvidenceProvider,
		ProvideTradingCalendar,
		ProvideRuleExecutor,
		ProvideJudgmentProvider,

		// Engine
		ProvideDispatcher,
		ProvideAlertGate,
		ProvideRunner,
		ProvideScheduler,
		ProvideRetention,

		// HTTP surface and application server
		ProvideEngineHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
