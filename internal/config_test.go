package internal

import (
	"strings"
	"testing"
	"time"

	"github.com/taskhive/taskhive/internal/auth"
)

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Model.APIKey = "test-key"
	return cfg
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if NewDefaultConfig().Integrations.Seed {
		t.Error("integration seeding should be opt-in")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != auth.ModeDisabled || cfg.DefaultOwner != auth.DefaultOwner {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_TokenMode(t *testing.T) {
	cfg := AuthConfig{Mode: auth.ModeToken, Tokens: map[string]string{"secret": "alice"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with tokens should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}

	cfg = AuthConfig{Mode: auth.ModeToken}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "no tokens") {
		t.Errorf("token mode without tokens: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestConfig_MissingAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.Model.APIKey = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Errorf("err = %v", err)
	}
}

func TestConfig_SectionErrors(t *testing.T) {
	cases := map[string]func(*Config){
		"app port":       func(c *Config) { c.App.HTTP.Port = 0 },
		"agents port":    func(c *Config) { c.Agents.HTTP.Port = 70000 },
		"job timeout":    func(c *Config) { c.Agents.JobTimeout = time.Millisecond },
		"sqlite path":    func(c *Config) { c.SQLite.Path = "" },
		"max rounds":     func(c *Config) { c.Chat.MaxRounds = 0 },
		"session ttl":    func(c *Config) { c.Chat.SessionTTL = 0 },
		"agent url":      func(c *Config) { c.Sync.AgentServiceURL = "" },
		"fixtures dir":   func(c *Config) { c.Sync.FixturesDir = "" },
		"chat model":     func(c *Config) { c.Model.ChatModel = "" },
		"negative retry": func(c *Config) { c.Model.MaxRetries = -1 },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestDefaultConfig_EnvFallbacks(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("AGENT_SERVICE_URL", "http://agents:9000")
	cfg := NewDefaultConfig()
	if cfg.Model.APIKey != "from-env" || cfg.Sync.AgentServiceURL != "http://agents:9000" {
		t.Errorf("model = %+v, sync = %+v", cfg.Model, cfg.Sync)
	}
}
