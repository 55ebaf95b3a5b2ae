//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/Jovicsi/flowminds.ai/infrastructure/config"
)

// StorageSet provides the repositories of the configured backend
var StorageSet = wire.NewSet(
	ProvideBackend,
	ProvideProjectRepository,
	ProvideMemberRepository,
	ProvideUserDirectory,
	ProvideGate,
)

// RelaySet provides the realtime relay
var RelaySet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideTunables,
	StorageSet,
	ProvideAuthenticator,
	ProvideHub,
	ProvideRelayServer,
	ProvideRouter,
	wire.Struct(new(RelayContainer), "*"),
)

// ClientSet provides a headless editor environment
var ClientSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideTunables,
	StorageSet,
	ProvideTransport,
	ProvideTextGenerator,
	ProvideSaveListener,
	ProvideEditorDeps,
	wire.Struct(new(ClientContainer), "*"),
)

// InitializeRelay creates a fully wired relay
func InitializeRelay(ctx context.Context, cfg *config.Config) (*RelayContainer, func(), error) {
	wire.Build(RelaySet)
	return nil, nil, nil // Wire will replace this
}

// InitializeClient creates a fully wired client environment
func InitializeClient(ctx context.Context, cfg *config.Config) (*ClientContainer, func(), error) {
	wire.Build(ClientSet)
	return nil, nil, nil // Wire will replace this
}
