package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Jovicsi/flowminds.ai/application/editor"
	"github.com/Jovicsi/flowminds.ai/application/persistence"
	"github.com/Jovicsi/flowminds.ai/application/ports"
	"github.com/Jovicsi/flowminds.ai/application/session"
	appsync "github.com/Jovicsi/flowminds.ai/application/sync"
	"github.com/Jovicsi/flowminds.ai/infrastructure/ai/openai"
	"github.com/Jovicsi/flowminds.ai/infrastructure/config"
	"github.com/Jovicsi/flowminds.ai/infrastructure/messaging/eventbridge"
	"github.com/Jovicsi/flowminds.ai/infrastructure/persistence/dynamodb"
	"github.com/Jovicsi/flowminds.ai/infrastructure/persistence/memory"
	"github.com/Jovicsi/flowminds.ai/infrastructure/persistence/resilient"
	supabaserepo "github.com/Jovicsi/flowminds.ai/infrastructure/persistence/supabase"
	"github.com/Jovicsi/flowminds.ai/infrastructure/realtime/websocket"
	"github.com/Jovicsi/flowminds.ai/interfaces/realtime"
	"github.com/Jovicsi/flowminds.ai/pkg/observability"
)

// MetricsNamespace prefixes every exported metric
const MetricsNamespace = "flowminds"

// ProvideLogger builds a production logger, or a development one outside
// production, at the configured level.
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zc := zap.NewProductionConfig()
	if !cfg.IsProduction() {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.With(zap.String("environment", cfg.Environment)), nil
}

// ProvideMetrics creates the process metrics
func ProvideMetrics() *observability.Metrics {
	return observability.NewMetrics(MetricsNamespace)
}

// ProvideAWSConfig loads the AWS SDK configuration for the configured region
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// Backend is the raw storage the configured backend provides
type Backend struct {
	Projects ports.ProjectRepository
	Members  ports.MemberRepository
	Users    ports.UserDirectory
	// Memory is set for the in-process backend
	Memory *memory.Store
}

// ProvideBackend connects to the configured storage backend
func ProvideBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	switch cfg.Backend {
	case config.BackendSupabase:
		client, err := supabaserepo.NewClient(cfg.Supabase.URL, cfg.Supabase.Key)
		if err != nil {
			return nil, err
		}
		repo := supabaserepo.NewRepository(client, logger)
		return &Backend{Projects: repo, Members: repo, Users: repo}, nil

	case config.BackendDynamoDB:
		awsCfg, err := ProvideAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		client := awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
			if cfg.AWS.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
			}
		})
		repo := dynamodb.NewRepository(client, cfg.AWS.Table, logger)
		return &Backend{Projects: repo, Members: repo, Users: repo}, nil

	default:
		logger.Warn("Using in-memory storage; projects are lost on exit")
		store := memory.NewStore()
		return &Backend{Projects: store, Members: store, Users: store, Memory: store}, nil
	}
}

func breakerSettings(cfg *config.Config, name string) resilient.Settings {
	s := resilient.DefaultSettings(name)
	s.MaxRequests = cfg.Breaker.MaxRequests
	s.Interval = cfg.Breaker.Interval
	s.Timeout = cfg.Breaker.Timeout
	s.FailureThreshold = cfg.Breaker.FailureThreshold
	return s
}

// ProvideProjectRepository guards the backend's project store with a
// circuit breaker when enabled
func ProvideProjectRepository(b *Backend, cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) ports.ProjectRepository {
	if !cfg.Breaker.Enabled || b.Memory != nil {
		return b.Projects
	}
	return resilient.NewProjectRepository(b.Projects, breakerSettings(cfg, "projects"), logger, metrics)
}

// ProvideMemberRepository guards the backend's member store likewise
func ProvideMemberRepository(b *Backend, cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) ports.MemberRepository {
	if !cfg.Breaker.Enabled || b.Memory != nil {
		return b.Members
	}
	return resilient.NewMemberRepository(b.Members, breakerSettings(cfg, "members"), logger, metrics)
}

// ProvideUserDirectory returns the backend's account lookup
func ProvideUserDirectory(b *Backend) ports.UserDirectory {
	return b.Users
}

// ProvideSaveListener publishes save notifications when an event bus is
// configured. Without one there is no listener.
func ProvideSaveListener(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.SaveListener, error) {
	if cfg.AWS.EventBusName == "" {
		return nil, nil
	}
	awsCfg, err := ProvideAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return eventbridge.NewPublisher(awseventbridge.NewFromConfig(awsCfg), cfg.AWS.EventBusName, logger), nil
}

// ProvideTextGenerator returns the AI client, or nil when no key is set
func ProvideTextGenerator(cfg *config.Config, logger *zap.Logger) ports.TextGenerator {
	if cfg.AI.APIKey == "" {
		logger.Info("No AI key configured; generator nodes will report failures")
		return nil
	}
	return openai.NewClient(openai.Config{APIKey: cfg.AI.APIKey, BaseURL: cfg.AI.BaseURL, Model: cfg.AI.Model}, logger)
}

// ProvideGate creates the access gate
func ProvideGate(projects ports.ProjectRepository, members ports.MemberRepository, users ports.UserDirectory, logger *zap.Logger) *session.Gate {
	return session.NewGate(projects, members, users, logger)
}

// ProvideTunables watches the YAML file for tunable changes when one was
// loaded, and serves the startup values otherwise
func ProvideTunables(cfg *config.Config, logger *zap.Logger) (config.TunablesSource, func(), error) {
	if cfg.ConfigFile == "" {
		return config.StaticTunables(cfg.Tunables), func() {}, nil
	}
	w, err := config.NewWatcher(cfg.ConfigFile, cfg.Tunables, logger)
	if err != nil {
		return nil, nil, err
	}
	w.Start()
	return w, w.Stop, nil
}

// ProvideAuthenticator verifies relay tokens locally with the JWT secret,
// or asks Supabase when only the project URL and key are known
func ProvideAuthenticator(cfg *config.Config) (realtime.Authenticator, error) {
	if cfg.Supabase.JWTSecret != "" {
		return realtime.NewJWTAuthenticator(cfg.Supabase.JWTSecret)
	}
	if cfg.Supabase.URL != "" && cfg.Supabase.Key != "" {
		client, err := supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.Key, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create supabase client: %w", err)
		}
		return realtime.NewSupabaseAuthenticator(client), nil
	}
	return nil, errors.New("relay authentication needs SUPABASE_JWT_SECRET or SUPABASE_URL and SUPABASE_KEY")
}

// ProvideHub creates and runs the relay hub
func ProvideHub(logger *zap.Logger, metrics *observability.Metrics) (*realtime.Hub, func()) {
	hub := realtime.NewHub(logger, metrics)
	go hub.Run()
	return hub, hub.Stop
}

// ProvideRelayServer creates the relay's websocket endpoint
func ProvideRelayServer(hub *realtime.Hub, auth realtime.Authenticator, gate *session.Gate, tunables config.TunablesSource, cfg *config.Config, logger *zap.Logger) *realtime.Server {
	return realtime.NewServer(hub, auth, gate, tunables, realtime.OriginChecker(cfg.Relay.AllowedOrigins), logger)
}

// ProvideRouter mounts the relay routes
func ProvideRouter(server *realtime.Server, cfg *config.Config, metrics *observability.Metrics) http.Handler {
	opts := realtime.RouterOptions{EnableCORS: cfg.EnableCORS, AllowedOrigins: cfg.Relay.AllowedOrigins}
	if cfg.EnableMetrics {
		opts.Metrics = metrics
	}
	return realtime.NewRouter(server, opts)
}

// ProvideTransport connects editors to the relay. Without a relay URL
// editors work alone.
func ProvideTransport(cfg *config.Config, logger *zap.Logger) (ports.Transport, error) {
	if cfg.Relay.URL == "" || cfg.Relay.Token == "" {
		return nil, nil
	}
	return websocket.NewTransport(websocket.Options{BaseURL: cfg.Relay.URL, Token: cfg.Relay.Token}, logger)
}

// SavePolicy converts tunables into autosave delays
func SavePolicy(t config.Tunables) persistence.Policy {
	p := persistence.DefaultPolicy()
	p.Structural = t.SaveStructural
	p.ContentEdit = t.SaveContent
	p.Idle = t.SaveIdle
	return p
}

// FollowSavePolicy keeps ed's autosave delays in step with reloaded
// tunables until the returned func is called.
func FollowSavePolicy(src config.TunablesSource, ed *editor.Editor) func() {
	return src.OnChange(func(t config.Tunables) {
		ed.SetSavePolicy(SavePolicy(t))
	})
}

// ProvideEditorDeps gathers what opening an editor needs
func ProvideEditorDeps(
	projects ports.ProjectRepository,
	transport ports.Transport,
	ai ports.TextGenerator,
	listener ports.SaveListener,
	tunables config.TunablesSource,
	logger *zap.Logger,
	metrics *observability.Metrics,
) editor.Deps {
	t := tunables.Current()
	syncOpts := appsync.DefaultOptions()
	syncOpts.ThrottleInterval = t.ThrottleInterval
	syncOpts.CursorTTL = t.CursorTTL
	return editor.Deps{
		Projects:     projects,
		Transport:    transport,
		AI:           ai,
		SaveListener: listener,
		Policy:       SavePolicy(t),
		Sync:         syncOpts,
		Logger:       logger,
		Metrics:      metrics,
	}
}
