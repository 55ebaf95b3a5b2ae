package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Jovicsi/flowminds.ai/infrastructure/config"
	"github.com/Jovicsi/flowminds.ai/infrastructure/persistence/memory"
	"github.com/Jovicsi/flowminds.ai/infrastructure/persistence/resilient"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("BACKEND", config.BackendMemory)
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("SUPABASE_JWT_SECRET", "super-secret-jwt-token-with-at-least-32-characters")
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	return cfg
}

func TestInitializeRelay(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.EnableMetrics = true

	c, cleanup, err := InitializeRelay(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()

	srv := httptest.NewServer(c.Router)
	defer srv.Close()

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestInitializeClient(t *testing.T) {
	cfg := memoryConfig(t)

	c, cleanup, err := InitializeClient(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, c.EditorDeps.Transport, "no relay token configured")
	assert.Nil(t, c.EditorDeps.AI, "no AI key configured")
	assert.Nil(t, c.EditorDeps.SaveListener)
	assert.Equal(t, cfg.Tunables.ThrottleInterval, c.EditorDeps.Sync.ThrottleInterval)
	assert.IsType(t, &memory.Store{}, c.Projects)
}

func TestProvideProjectRepository_WrapsRemoteBackends(t *testing.T) {
	cfg := memoryConfig(t)
	store := memory.NewStore()

	tests := []struct {
		name     string
		backend  *Backend
		breaker  bool
		wantWrap bool
	}{
		{name: "memory is never wrapped", backend: &Backend{Projects: store, Members: store, Memory: store}, breaker: true},
		{name: "remote with breaker", backend: &Backend{Projects: store, Members: store}, breaker: true, wantWrap: true},
		{name: "remote without breaker", backend: &Backend{Projects: store, Members: store}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg.Breaker.Enabled = tt.breaker
			projects := ProvideProjectRepository(tt.backend, cfg, zap.NewNop(), nil)
			members := ProvideMemberRepository(tt.backend, cfg, zap.NewNop(), nil)
			_, wrapped := projects.(*resilient.ProjectRepository)
			assert.Equal(t, tt.wantWrap, wrapped)
			_, wrapped = members.(*resilient.MemberRepository)
			assert.Equal(t, tt.wantWrap, wrapped)
		})
	}
}

func TestProvideAuthenticator(t *testing.T) {
	cfg := memoryConfig(t)

	_, err := ProvideAuthenticator(cfg)
	require.NoError(t, err)

	cfg.Supabase.JWTSecret = ""
	_, err = ProvideAuthenticator(cfg)
	assert.Error(t, err)
}

func TestSavePolicy(t *testing.T) {
	tun := config.DefaultTunables()
	tun.SaveContent = 2 * time.Second
	tun.SaveIdle = 7 * time.Second

	p := SavePolicy(tun)
	assert.Equal(t, time.Duration(0), p.Structural)
	assert.Equal(t, 2*time.Second, p.ContentEdit)
	assert.Equal(t, 7*time.Second, p.Idle)
	assert.NotZero(t, p.WriteTimeout)
}

func TestProvideLogger(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.LogLevel = "not-a-level"
	logger, err := ProvideLogger(cfg)
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
