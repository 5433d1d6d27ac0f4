//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
)

func InitApp(opts Options) (*App, error) {
	wire.Build(
		NewApp,
		ProvideConfig,
		ProvideLogger,
		ProvideRegistry,
		ProvideCollector,
		ProvideMetricsServer,
		ProvideDispatcher,
		ProvideSession,
		ProvideHost,
		ProvideHardwareAddr,
		ProvideLineSource,
		ProvideClientConfig,
		ProvideMachine,
	)
	return nil, nil // wire will generate the result
}
