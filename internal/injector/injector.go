//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/recsync/internal/app"
	"github.com/zeusync/recsync/internal/config"
)

func InitializeApp(cfg *config.Config) (*app.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideLog,
		ProvideWorld,
		ProvideSourceFactory,
		ProvideSyncChannel,
		app.New,
	)
	return nil, nil, nil
}

func InitializeRelay(cfg *config.Config) (*app.Relay, error) {
	wire.Build(
		ProvideLogger,
		ProvideLog,
		ProvideSourceFactory,
		ProvideRelayServer,
		app.NewRelay,
	)
	return nil, nil
}
