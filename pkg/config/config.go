package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigPath is read when present; every field can also come from the environment.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for the blueprint service.
// Environment variables always override YAML values for fields that support both.
// Secrets (database password, LLM key, signing secret) only come from the environment.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"PORT" env-default:"3000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"`

	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Agents   AgentsConfig   `yaml:"agents"`
	Auth     AuthConfig     `yaml:"auth"`
}

// DatabaseConfig selects and configures the session store.
type DatabaseConfig struct {
	Type           string `yaml:"type" env:"DB_TYPE" env-default:"postgres"` // postgres | sqlite
	URL            string `yaml:"-" env:"DATABASE_URL"`                        // Overrides the assembled PostgreSQL string
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"blueprint"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"blueprint"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"5"`
	SQLitePath     string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"blueprint.db"`
}

// LLMConfig describes the generative provider behind every agent stage.
type LLMConfig struct {
	Provider  string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"` // openai | anthropic
	BaseURL   string `yaml:"base_url" env:"LLM_BASE_URL"` // Empty uses the provider default
	Model     string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	APIKey    string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	MaxTokens int    `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"2048"`
}

// AgentsConfig bounds each stage invocation.
type AgentsConfig struct {
	Timeout          time.Duration `yaml:"timeout" env:"AGENT_TIMEOUT" env-default:"60s"`
	MaxRetries       int           `yaml:"max_retries" env:"AGENT_MAX_RETRIES" env-default:"2"`
	BreakerThreshold int           `yaml:"breaker_threshold" env:"AGENT_BREAKER_THRESHOLD" env-default:"5"`
	BreakerReset     time.Duration `yaml:"breaker_reset" env:"AGENT_BREAKER_RESET" env-default:"30s"`
}

// AuthConfig holds token settings.
type AuthConfig struct {
	// EnableVerification requires a valid token on session and agent routes
	// and checks that the token subject owns the session.
	EnableVerification bool          `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"false"`
	JWTSecret          string        `yaml:"-" env:"JWT_SECRET"` // Secret - not in YAML
	TokenTTL           time.Duration `yaml:"token_ttl" env:"AUTH_TOKEN_TTL" env-default:"1h"`
	// BaseURL is the public URL of the service. Its scheme decides whether
	// the token cookie is Secure.
	BaseURL      string `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:3000"`
	CookieDomain string `yaml:"cookie_domain" env:"COOKIE_DOMAIN"`
}

// Load reads configuration from config.yaml (when it exists) with environment
// variable overrides. The version parameter is set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile(DefaultConfigPath, version)
}

// LoadFile is Load with an explicit YAML path. A missing file is not an error.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	c.Database.Type = strings.ToLower(strings.TrimSpace(c.Database.Type))
	switch c.Database.Type {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.type must be postgres or sqlite, got %q", c.Database.Type)
	}

	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.LLM.Provider)
	}

	if c.Agents.Timeout <= 0 {
		return fmt.Errorf("agents.timeout must be positive")
	}
	if c.Agents.MaxRetries < 0 {
		return fmt.Errorf("agents.max_retries must not be negative")
	}

	if c.Auth.EnableVerification && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when auth.enable_verification is true")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}

	return nil
}

// DefaultOpenAIEndpoint is used when the openai provider has no base URL.
const DefaultOpenAIEndpoint = "https://api.openai.com/v1"

// Endpoint returns the provider base URL. An empty result means the
// provider SDK default.
func (c *LLMConfig) Endpoint() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Provider == "openai" {
		return DefaultOpenAIEndpoint
	}
	return ""
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.BindAddr + ":" + c.Port
}

// ConnectionString returns a PostgreSQL connection string.
// DATABASE_URL wins over the individual fields when set.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	return (&url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}).String()
}
