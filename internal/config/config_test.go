package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetDefaults(t *testing.T) {
	cfg := GetDefaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if len(cfg.Redaction.Detectors) != 1 || cfg.Redaction.Detectors[0] != "all" {
		t.Errorf("default detectors = %v, want [all]", cfg.Redaction.Detectors)
	}
	if cfg.Redaction.ScopeHeader != "X-Session-ID" {
		t.Errorf("default scope header = %q", cfg.Redaction.ScopeHeader)
	}
	if !cfg.Redaction.Enabled {
		t.Error("redaction disabled by default")
	}
	if cfg.Store.Redis.Enabled || cfg.Store.Postgres.Enabled || cfg.Audit.Enabled {
		t.Error("persistence backends must be opt-in")
	}
	if err := validateConfig(cfg); err != nil {
		t.Errorf("defaults fail validation: %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config { return GetDefaults() }

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"no detectors", func(c *Config) { c.Redaction.Detectors = nil }},
		{"bad rate limit", func(c *Config) { c.Security.RateLimit.RequestsPerMin = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"audit without directory", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.Directory = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  port: 9090
redaction:
  enabled: true
  detectors:
    - email
    - ssn
  scope_header: X-Conversation-ID
logging:
  level: debug
  format: console
store:
  redis:
    enabled: true
    url: redis://cache:6379
    default_ttl: 2h
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if len(cfg.Redaction.Detectors) != 2 {
		t.Errorf("detectors = %v", cfg.Redaction.Detectors)
	}
	if cfg.Redaction.ScopeHeader != "X-Conversation-ID" {
		t.Errorf("scope header = %q", cfg.Redaction.ScopeHeader)
	}
	if !cfg.Store.Redis.Enabled {
		t.Error("redis not enabled from file")
	}
	if cfg.Store.Redis.DefaultTTL != 2*time.Hour {
		t.Errorf("redis ttl = %v, want 2h", cfg.Store.Redis.DefaultTTL)
	}
	// Untouched sections keep defaults
	if cfg.Upstream.OpenAI != "https://api.openai.com" {
		t.Errorf("upstream default lost: %q", cfg.Upstream.OpenAI)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  port: -1
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid port")
	}
}
