package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Redaction RedactionConfig `yaml:"redaction" mapstructure:"redaction"`
	Security  SecurityConfig  `yaml:"security" mapstructure:"security"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Upstream  UpstreamConfig  `yaml:"upstream" mapstructure:"upstream"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// RedactionConfig contains entity detection and masking configuration
type RedactionConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Detectors lists entity types to enable, or the single entry "all".
	Detectors []string `yaml:"detectors" mapstructure:"detectors"`
	// ScopeHeader names the request header carrying the session scope for
	// proxied traffic. Requests without it fall back to the client IP.
	ScopeHeader     string                `yaml:"scope_header" mapstructure:"scope_header"`
	HeaderScrubbing HeaderScrubbingConfig `yaml:"header_scrubbing" mapstructure:"header_scrubbing"`
}

// HeaderScrubbingConfig controls sensitive-header removal on proxied requests
type HeaderScrubbingConfig struct {
	Enabled              bool     `yaml:"enabled" mapstructure:"enabled"`
	Headers              []string `yaml:"headers" mapstructure:"headers"`
	PreserveUpstreamAuth bool     `yaml:"preserve_upstream_auth" mapstructure:"preserve_upstream_auth"`
}

// SecurityConfig contains request guardrails configuration
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-client token bucket limiting
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	Burst          int  `yaml:"burst" mapstructure:"burst"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string            `yaml:"level" mapstructure:"level"`
	Format string            `yaml:"format" mapstructure:"format"` // json or console
	File   LoggingFileConfig `yaml:"file" mapstructure:"file"`
}

// LoggingFileConfig contains file logging configuration
type LoggingFileConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Path     string `yaml:"path" mapstructure:"path"`
	MaxSize  int    `yaml:"max_size" mapstructure:"max_size"`
	MaxAge   int    `yaml:"max_age" mapstructure:"max_age"`
	Compress bool   `yaml:"compress" mapstructure:"compress"`
}

// StoreConfig contains optional scope persistence configuration
type StoreConfig struct {
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// RedisConfig configures the scope snapshot cache
type RedisConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	URL            string        `yaml:"url" mapstructure:"url"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
}

// PostgresConfig configures the durable entity mapping store
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// AuditConfig configures the parquet audit trail
type AuditConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Directory     string        `yaml:"directory" mapstructure:"directory"`
	BufferSize    int           `yaml:"buffer_size" mapstructure:"buffer_size"`
	FlushInterval time.Duration `yaml:"flush_interval" mapstructure:"flush_interval"`
}

// UpstreamConfig contains upstream service configuration
type UpstreamConfig struct {
	OpenAI    string        `yaml:"openai" mapstructure:"openai"`
	Anthropic string        `yaml:"anthropic" mapstructure:"anthropic"`
	Ollama    string        `yaml:"ollama" mapstructure:"ollama"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled        bool                  `yaml:"enabled" mapstructure:"enabled"`
	Path           string                `yaml:"path" mapstructure:"path"`
	Username       string                `yaml:"username" mapstructure:"username"`
	Password       string                `yaml:"password" mapstructure:"password"`
	MaxConnections int                   `yaml:"max_connections" mapstructure:"max_connections"`
	Events         WebSocketEventsConfig `yaml:"events" mapstructure:"events"`
}

// WebSocketEventsConfig selects which event categories are broadcast
type WebSocketEventsConfig struct {
	BroadcastRequests    bool `yaml:"broadcast_requests" mapstructure:"broadcast_requests"`
	BroadcastRedactions  bool `yaml:"broadcast_redactions" mapstructure:"broadcast_redactions"`
	BroadcastSystem      bool `yaml:"broadcast_system" mapstructure:"broadcast_system"`
	BroadcastConnections bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Redaction: RedactionConfig{
			Enabled:     true,
			Detectors:   []string{"all"},
			ScopeHeader: "X-Session-ID",
			HeaderScrubbing: HeaderScrubbingConfig{
				Enabled:              true,
				Headers:              []string{"authorization", "x-api-key", "cookie"},
				PreserveUpstreamAuth: true,
			},
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled:        true,
				RequestsPerMin: 600,
				Burst:          60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File: LoggingFileConfig{
				Enabled:  false,
				Path:     "logs/shield.log",
				MaxSize:  100, // MB
				MaxAge:   30,  // days
				Compress: true,
			},
		},
		Store: StoreConfig{
			Redis: RedisConfig{
				Enabled:        false,
				URL:            "redis://localhost:6379",
				KeyPrefix:      "shield",
				DefaultTTL:     time.Hour,
				MaxConnections: 10,
				MinIdleConns:   2,
			},
			Postgres: PostgresConfig{
				Enabled:         false,
				DatabaseURL:     "postgres://localhost:5432/shield?sslmode=disable",
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 30 * time.Minute,
				ConnMaxIdleTime: 5 * time.Minute,
			},
		},
		Audit: AuditConfig{
			Enabled:       false,
			Directory:     "audit",
			BufferSize:    1024,
			FlushInterval: time.Minute,
		},
		Upstream: UpstreamConfig{
			OpenAI:    "https://api.openai.com",
			Anthropic: "https://api.anthropic.com",
			Ollama:    "http://localhost:11434",
			Timeout:   30 * time.Second,
		},
		WebSocket: WebSocketConfig{
			Enabled:        true,
			Path:           "/ws",
			Username:       "shield",
			Password:       "shield",
			MaxConnections: 100,
			Events: WebSocketEventsConfig{
				BroadcastRequests:    true,
				BroadcastRedactions:  true,
				BroadcastSystem:      true,
				BroadcastConnections: true,
			},
		},
	}
}
