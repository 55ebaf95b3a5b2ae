// Package config loads relay and CLI configuration from the environment
// with an optional YAML overlay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Backend names
const (
	BackendMemory   = "memory"
	BackendSupabase = "supabase"
	BackendDynamoDB = "dynamodb"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"server_address" validate:"required"`
	Environment   string `yaml:"environment" validate:"oneof=development staging production"`
	LogLevel      string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// Backend selects the project store
	Backend  string         `yaml:"backend" validate:"oneof=memory supabase dynamodb"`
	Supabase SupabaseConfig `yaml:"supabase"`
	AWS      AWSConfig      `yaml:"aws"`
	Breaker  BreakerConfig  `yaml:"breaker"`

	AI    AIConfig    `yaml:"ai"`
	Relay RelayConfig `yaml:"relay"`

	// Feature flags
	EnableMetrics bool   `yaml:"enable_metrics"`
	EnableTracing bool   `yaml:"enable_tracing"`
	EnableCORS    bool   `yaml:"enable_cors"`
	OTLPEndpoint  string `yaml:"otlp_endpoint"`

	Tunables Tunables `yaml:"tunables"`

	// ConfigFile is where the YAML overlay was read from, if any
	ConfigFile string `yaml:"-"`
}

// SupabaseConfig points at the Supabase project holding workflows and members
type SupabaseConfig struct {
	URL       string `yaml:"url" validate:"omitempty,url"`
	Key       string `yaml:"key"`
	JWTSecret string `yaml:"jwt_secret"`
}

// AWSConfig configures the DynamoDB store and EventBridge notifications
type AWSConfig struct {
	Region       string `yaml:"region"`
	Table        string `yaml:"table"`
	EventBusName string `yaml:"event_bus_name"`
	// Endpoint overrides the service endpoint, for local DynamoDB
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`
}

// BreakerConfig tunes the circuit breaker around the project store
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold uint32        `yaml:"failure_threshold" validate:"gte=1"`
}

// AIConfig configures the OpenAI-compatible text service
type AIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	Model   string `yaml:"model" validate:"required"`
}

// RelayConfig configures the realtime relay and clients of it
type RelayConfig struct {
	// URL is the relay base URL used by clients such as flowctl
	URL            string   `yaml:"url" validate:"omitempty,url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// Token authenticates flowctl against the relay
	Token string `yaml:"token"`
}

// Tunables are the settings that can change while the process runs.
type Tunables struct {
	SaveStructural   time.Duration `yaml:"save_structural" validate:"gte=0"`
	SaveContent      time.Duration `yaml:"save_content" validate:"gte=0"`
	SaveIdle         time.Duration `yaml:"save_idle" validate:"gt=0"`
	ThrottleInterval time.Duration `yaml:"throttle_interval" validate:"gt=0"`
	CursorTTL        time.Duration `yaml:"cursor_ttl" validate:"gte=0"`
	MaxRoomSize      int           `yaml:"max_room_size" validate:"gte=1"`
	MessagesPerSec   float64       `yaml:"messages_per_second" validate:"gt=0"`
	MaxMessageBytes  int64         `yaml:"max_message_bytes" validate:"gte=512"`
}

// DefaultTunables returns the standard timings
func DefaultTunables() Tunables {
	return Tunables{
		SaveStructural:   0,
		SaveContent:      time.Second,
		SaveIdle:         3 * time.Second,
		ThrottleInterval: 50 * time.Millisecond,
		CursorTTL:        30 * time.Second,
		MaxRoomSize:      50,
		MessagesPerSec:   60,
		MaxMessageBytes:  64 << 10,
	}
}

func defaults() *Config {
	return &Config{
		ServerAddress: ":8080",
		Environment:   "development",
		LogLevel:      "info",
		Backend:       BackendMemory,
		AWS: AWSConfig{
			Region:       "us-west-2",
			Table:        "flowminds",
			EventBusName: "",
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
		AI: AIConfig{
			BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai/",
			Model:   "gemini-1.5-flash",
		},
		Relay: RelayConfig{
			URL:            "http://localhost:8080",
			AllowedOrigins: []string{"*"},
		},
		EnableCORS: true,
		Tunables:   DefaultTunables(),
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file
// named by CONFIG_FILE, then environment variables, and validates it.
func LoadConfig() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.ConfigFile = path
	return nil
}

func (c *Config) loadEnv() {
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Backend = getEnv("BACKEND", c.Backend)

	c.Supabase.URL = getEnv("SUPABASE_URL", c.Supabase.URL)
	c.Supabase.Key = getEnv("SUPABASE_KEY", getEnv("SUPABASE_ANON_KEY", c.Supabase.Key))
	c.Supabase.JWTSecret = getEnv("SUPABASE_JWT_SECRET", c.Supabase.JWTSecret)

	c.AWS.Region = getEnv("AWS_REGION", c.AWS.Region)
	c.AWS.Table = getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", c.AWS.Table))
	c.AWS.EventBusName = getEnv("EVENT_BUS_NAME", c.AWS.EventBusName)
	c.AWS.Endpoint = getEnv("AWS_ENDPOINT_URL", c.AWS.Endpoint)

	c.Breaker.Enabled = getEnvBool("ENABLE_CIRCUIT_BREAKER", c.Breaker.Enabled)

	c.AI.APIKey = getEnv("AI_API_KEY", getEnv("GEMINI_API_KEY", c.AI.APIKey))
	c.AI.BaseURL = getEnv("AI_BASE_URL", c.AI.BaseURL)
	c.AI.Model = getEnv("AI_MODEL", c.AI.Model)

	c.Relay.URL = getEnv("RELAY_URL", c.Relay.URL)
	c.Relay.Token = getEnv("RELAY_TOKEN", c.Relay.Token)
	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		c.Relay.AllowedOrigins = strings.Split(origins, ",")
	}

	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)
	c.EnableCORS = getEnvBool("ENABLE_CORS", c.EnableCORS)
	c.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTLPEndpoint)

	c.Tunables.SaveContent = getEnvDuration("SAVE_CONTENT_DELAY", c.Tunables.SaveContent)
	c.Tunables.SaveIdle = getEnvDuration("SAVE_IDLE_DELAY", c.Tunables.SaveIdle)
	c.Tunables.ThrottleInterval = getEnvDuration("THROTTLE_INTERVAL", c.Tunables.ThrottleInterval)
	c.Tunables.CursorTTL = getEnvDuration("CURSOR_TTL", c.Tunables.CursorTTL)
	c.Tunables.MaxRoomSize = getEnvInt("MAX_ROOM_SIZE", c.Tunables.MaxRoomSize)
}

var validate = validator.New()

// Validate checks field constraints and the settings each backend needs
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	switch c.Backend {
	case BackendSupabase:
		if c.Supabase.URL == "" || c.Supabase.Key == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_KEY are required for the supabase backend")
		}
	case BackendDynamoDB:
		if c.AWS.Table == "" {
			return fmt.Errorf("TABLE_NAME is required for the dynamodb backend")
		}
	}
	if c.IsProduction() && c.Backend == BackendMemory {
		return fmt.Errorf("the memory backend cannot be used in production")
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable such as "250ms"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
