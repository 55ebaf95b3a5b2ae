package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, "gemini-1.5-flash", cfg.AI.Model)
	assert.Equal(t, DefaultTunables(), cfg.Tunables)
	assert.True(t, cfg.IsDevelopment())
}

func TestYAMLOverlayThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowminds.yaml")
	writeFile(t, path, `
server_address: ":9090"
backend: supabase
supabase:
  url: https://abc.supabase.co
  key: anon
tunables:
  save_content: 2s
  max_room_size: 10
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVER_ADDRESS", ":7070")
	t.Setenv("CURSOR_TTL", "5s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.ServerAddress, "environment wins over the file")
	assert.Equal(t, BackendSupabase, cfg.Backend)
	assert.Equal(t, 2*time.Second, cfg.Tunables.SaveContent)
	assert.Equal(t, 10, cfg.Tunables.MaxRoomSize)
	assert.Equal(t, 5*time.Second, cfg.Tunables.CursorTTL)
	assert.Equal(t, 3*time.Second, cfg.Tunables.SaveIdle, "untouched keys keep defaults")
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"unknown backend", func(c *Config) { c.Backend = "mongo" }, true},
		{"supabase without url", func(c *Config) { c.Backend = BackendSupabase }, true},
		{"dynamodb without table", func(c *Config) { c.Backend = BackendDynamoDB; c.AWS.Table = "" }, true},
		{"memory in production", func(c *Config) { c.Environment = "production" }, true},
		{"zero throttle", func(c *Config) { c.Tunables.ThrottleInterval = 0 }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWatcherReloadsTunables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowminds.yaml")
	writeFile(t, path, "tunables:\n  save_idle: 3s\n")

	w, err := NewWatcher(path, DefaultTunables(), zaptest.NewLogger(t))
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond
	w.Start()
	t.Cleanup(w.Stop)

	changed := make(chan Tunables, 4)
	w.OnChange(func(tn Tunables) { changed <- tn })

	writeFile(t, path, "tunables:\n  save_idle: 9s\n  throttle_interval: 100ms\n")

	select {
	case tn := <-changed:
		assert.Equal(t, 9*time.Second, tn.SaveIdle)
		assert.Equal(t, 100*time.Millisecond, tn.ThrottleInterval)
		assert.Equal(t, time.Second, tn.SaveContent)
	case <-time.After(2 * time.Second):
		t.Fatal("tunables were not reloaded")
	}
	assert.Equal(t, 9*time.Second, w.Current().SaveIdle)

	// an invalid edit keeps the current values
	writeFile(t, path, "tunables:\n  throttle_interval: 0s\n")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, w.Current().ThrottleInterval)
}

func TestWatcherOnChangeRemoval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowminds.yaml")
	writeFile(t, path, "tunables:\n  save_idle: 3s\n")

	w, err := NewWatcher(path, DefaultTunables(), zaptest.NewLogger(t))
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond
	w.Start()
	t.Cleanup(w.Stop)

	kept := make(chan Tunables, 4)
	removed := make(chan Tunables, 4)
	w.OnChange(func(tn Tunables) { kept <- tn })
	remove := w.OnChange(func(tn Tunables) { removed <- tn })
	remove()

	writeFile(t, path, "tunables:\n  save_idle: 7s\n")
	select {
	case tn := <-kept:
		assert.Equal(t, 7*time.Second, tn.SaveIdle)
	case <-time.After(2 * time.Second):
		t.Fatal("tunables were not reloaded")
	}
	assert.Empty(t, removed)
}
