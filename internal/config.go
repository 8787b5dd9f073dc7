package internal

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/taskhive/taskhive/internal/auth"
	"github.com/taskhive/taskhive/internal/chat"
	"github.com/taskhive/taskhive/internal/jobs"
	"github.com/taskhive/taskhive/internal/llm"
)

// Config represents the application configuration.
type Config struct {
	App          ApplicationConfig  `yaml:"app"`
	Agents       AgentsConfig       `yaml:"agents"`
	SQLite       SQLiteConfig       `yaml:"sqlite"`
	Auth         AuthConfig         `yaml:"auth"`
	Model        ModelConfig        `yaml:"model"`
	Chat         ChatConfig         `yaml:"chat"`
	Sync         SyncConfig         `yaml:"sync"`
	Integrations IntegrationsConfig `yaml:"integrations"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Agents.Validate(); err != nil {
		return fmt.Errorf("agents: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if err := c.Chat.Validate(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

// ApplicationConfig holds public API settings.
type ApplicationConfig struct {
	LogLevel    slog.Level    `yaml:"log_level"`
	HTTP        HTTPConfig    `yaml:"http"`
	KPIThrottle time.Duration `yaml:"kpi_throttle"`
}

// Validate validates the application configuration.
func (c ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// AgentsConfig holds agent service settings.
type AgentsConfig struct {
	HTTP       HTTPConfig    `yaml:"http"`
	JobTimeout time.Duration `yaml:"job_timeout"`
	// WatchInbox enables the fixtures inbox drop folder.
	WatchInbox bool `yaml:"watch_inbox"`
}

// Validate validates the agents configuration.
func (c AgentsConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.JobTimeout, validation.Min(time.Second)),
	)
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c HTTPConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c SQLiteConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how the request owner is resolved:
//   - "disabled" (default): every request acts as DefaultOwner.
//   - "token": Bearer tokens are looked up in Tokens (token → owner id).
type AuthConfig struct {
	Mode         string            `yaml:"mode"`
	DefaultOwner string            `yaml:"default_owner"`
	Tokens       map[string]string `yaml:"tokens"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = auth.ModeDisabled
	}
	if c.DefaultOwner == "" {
		c.DefaultOwner = auth.DefaultOwner
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(auth.ModeDisabled, auth.ModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == auth.ModeToken && len(c.Tokens) == 0 {
		return fmt.Errorf("auth: mode is %q but no tokens are configured", auth.ModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == auth.ModeToken
}

// ModelConfig configures the OpenAI-compatible model endpoint.
type ModelConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	ChatModel    string        `yaml:"chat_model"`
	EmailModel   string        `yaml:"email_model"`
	MeetingModel string        `yaml:"meeting_model"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
}

// Validate validates the model configuration.
func (c ModelConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.APIKey, validation.Required.Error("is required (set GEMINI_API_KEY)")),
		validation.Field(&c.ChatModel, validation.Required),
		validation.Field(&c.EmailModel, validation.Required),
		validation.Field(&c.MeetingModel, validation.Required),
		validation.Field(&c.MaxRetries, validation.Min(0)),
	)
}

// Client builds a model client for name.
func (c *ModelConfig) Client(name string) *llm.OpenAIClient {
	return llm.NewOpenAIClient(name, llm.Config{
		BaseURL:    c.BaseURL,
		APIKey:     c.APIKey,
		Timeout:    c.Timeout,
		MaxRetries: c.MaxRetries,
	})
}

// ChatConfig tunes the conversational agent.
type ChatConfig struct {
	MaxRounds   int           `yaml:"max_rounds"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
	MaxSessions int           `yaml:"max_sessions"`
}

// Validate validates the chat configuration.
func (c ChatConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxRounds, validation.Required, validation.Min(1), validation.Max(32)),
		validation.Field(&c.SessionTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MaxSessions, validation.Required, validation.Min(1)),
	)
}

// SyncConfig configures the fixture sync and inbox.
type SyncConfig struct {
	AgentServiceURL string        `yaml:"agent_service_url"`
	FixturesDir     string        `yaml:"fixtures_dir"`
	Timeout         time.Duration `yaml:"timeout"`
}

// Validate validates the sync configuration.
func (c SyncConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.AgentServiceURL, validation.Required),
		validation.Field(&c.FixturesDir, validation.Required),
	)
}

// IntegrationsConfig controls demo integration seeding.
type IntegrationsConfig struct {
	Seed bool `yaml:"seed"`
}

// NewDefaultConfig returns a new Config with sensible default values.
// The model key and agent service URL fall back to GEMINI_API_KEY and
// AGENT_SERVICE_URL.
func NewDefaultConfig() *Config {
	agentURL := os.Getenv("AGENT_SERVICE_URL")
	if agentURL == "" {
		agentURL = "http://localhost:8081"
	}
	return &Config{
		App: ApplicationConfig{
			LogLevel:    slog.LevelInfo,
			HTTP:        HTTPConfig{Port: 8080},
			KPIThrottle: 2 * time.Second,
		},
		Agents: AgentsConfig{
			HTTP:       HTTPConfig{Port: 8081},
			JobTimeout: jobs.DefaultTimeout,
			WatchInbox: true,
		},
		SQLite: SQLiteConfig{
			Path: "./taskhive.db",
		},
		Auth: AuthConfig{
			Mode:         auth.ModeDisabled,
			DefaultOwner: auth.DefaultOwner,
		},
		Model: ModelConfig{
			BaseURL:      llm.DefaultBaseURL,
			APIKey:       os.Getenv("GEMINI_API_KEY"),
			ChatModel:    "gemini-2.5-flash",
			EmailModel:   "gemini-2.5-flash",
			MeetingModel: "gemini-2.5-pro",
			Timeout:      60 * time.Second,
			MaxRetries:   2,
		},
		Chat: ChatConfig{
			MaxRounds:   chat.DefaultMaxRounds,
			SessionTTL:  chat.DefaultSessionTTL,
			MaxSessions: chat.DefaultMaxSessions,
		},
		Sync: SyncConfig{
			AgentServiceURL: agentURL,
			FixturesDir:     "./fixtures",
			Timeout:         30 * time.Second,
		},
	}
}
