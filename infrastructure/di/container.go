// Package di wires the relay and the command-line client from configuration.
package di

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Jovicsi/flowminds.ai/application/editor"
	"github.com/Jovicsi/flowminds.ai/application/ports"
	"github.com/Jovicsi/flowminds.ai/application/session"
	"github.com/Jovicsi/flowminds.ai/infrastructure/config"
	"github.com/Jovicsi/flowminds.ai/interfaces/realtime"
	"github.com/Jovicsi/flowminds.ai/pkg/observability"
)

// RelayContainer holds the relay server's dependencies
type RelayContainer struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Tunables config.TunablesSource
	Gate     *session.Gate
	Hub      *realtime.Hub
	Server   *realtime.Server
	Router   http.Handler
}

// ClientContainer holds what flowctl needs to open and manage projects
type ClientContainer struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Tunables   config.TunablesSource
	Projects   ports.ProjectRepository
	Members    ports.MemberRepository
	Gate       *session.Gate
	EditorDeps editor.Deps
}
