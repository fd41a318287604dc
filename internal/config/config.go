// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreDriverSQLite = "sqlite"
	StoreDriverJSON   = "json"
)

// Upper bounds on the record store retry budget.
const (
	MaxRetryAttempts = 10
	MaxRetryDelay    = time.Minute
)

// Config holds all application configuration.
type Config struct {
	Port           string
	AllowedOrigins []string
	StoreDriver    string // "sqlite" (default) or "json"
	DBPath         string
	LeadsFile      string
	SettingsPath   string
	LLM            LLMConfig
	CRM            CRMConfig
	Webhook        WebhookConfig
	Session        SessionConfig
	Auth           AuthConfig
}

// LLMConfig controls the extraction model call.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// CRMConfig controls the record store retry policy.
type CRMConfig struct {
	RetryAttempts int
	RetryDelay    time.Duration
	FailureRate   float64 // simulated fault probability, 0 disables
}

// WebhookConfig controls inbound message handling.
type WebhookConfig struct {
	RateLimit        int // requests per hour, informational only
	MessageMaxLength int
	EnableRetry      bool
}

// SessionConfig controls session expiry and log retention.
type SessionConfig struct {
	Timeout       time.Duration
	SweepInterval time.Duration // 0 disables the background sweep
	UserLogLimit  int
}

// AuthConfig controls bearer token issuance and the seeded accounts.
type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	AdminPassword string
	UserPassword  string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8000"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", StoreDriverSQLite)),
		DBPath:         getEnv("DB_PATH", "./data/leads.db"),
		LeadsFile:      getEnv("LEADS_FILE", "./data/crm.json"),
		SettingsPath:   getEnv("SETTINGS_PATH", "./data/business_config.json"),
		LLM: LLMConfig{
			APIKey:      getEnv("GROQ_API_KEY", ""),
			BaseURL:     getEnv("LLM_BASE_URL", "https://api.groq.com/openai/v1"),
			Model:       getEnv("LLM_MODEL", "llama3-70b-8192"),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.2),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 200),
			Timeout:     getEnvDuration("LLM_TIMEOUT", 30*time.Second),
		},
		CRM: CRMConfig{
			RetryAttempts: getEnvInt("CRM_RETRY_ATTEMPTS", 3),
			RetryDelay:    getEnvDuration("CRM_RETRY_DELAY", time.Second),
			FailureRate:   getEnvFloat("CRM_FAILURE_RATE", 0),
		},
		Webhook: WebhookConfig{
			RateLimit:        getEnvInt("WEBHOOK_RATE_LIMIT", 100),
			MessageMaxLength: getEnvInt("MESSAGE_MAX_LENGTH", 10000),
			EnableRetry:      getEnvBool("WEBHOOK_ENABLE_RETRY", true),
		},
		Session: SessionConfig{
			Timeout:       getEnvDuration("SESSION_TIMEOUT", 24*time.Hour),
			SweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", 0),
			UserLogLimit:  getEnvInt("USER_LOG_LIMIT", 100),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET_KEY", "your-secret-key-change-in-production"),
			TokenTTL:      getEnvDuration("ACCESS_TOKEN_TTL", 30*time.Minute),
			AdminPassword: getEnv("ADMIN_PASSWORD", "admin123"),
			UserPassword:  getEnv("USER_PASSWORD", "user123"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
//
//nolint:gocyclo // Flat list of independent checks.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.StoreDriver {
	case StoreDriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case StoreDriverJSON:
		if c.LeadsFile == "" {
			return fmt.Errorf("LEADS_FILE cannot be empty")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverSQLite, StoreDriverJSON, c.StoreDriver)
	}
	if c.SettingsPath == "" {
		return fmt.Errorf("SETTINGS_PATH cannot be empty")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("GROQ_API_KEY is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM_MODEL cannot be empty")
	}
	// A zero temperature is dropped from the request and the provider default applies.
	if c.LLM.Temperature <= 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be within (0, 2]")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be > 0")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be > 0")
	}
	if c.CRM.RetryAttempts < 0 || c.CRM.RetryAttempts > MaxRetryAttempts {
		return fmt.Errorf("CRM_RETRY_ATTEMPTS must be within [0, %d]", MaxRetryAttempts)
	}
	if c.CRM.RetryDelay < 0 || c.CRM.RetryDelay > MaxRetryDelay {
		return fmt.Errorf("CRM_RETRY_DELAY must be within [0, %s]", MaxRetryDelay)
	}
	if c.CRM.FailureRate < 0 || c.CRM.FailureRate > 1 {
		return fmt.Errorf("CRM_FAILURE_RATE must be within [0, 1]")
	}
	if c.Webhook.MessageMaxLength <= 0 {
		return fmt.Errorf("MESSAGE_MAX_LENGTH must be > 0")
	}
	if c.Session.Timeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT must be > 0")
	}
	if c.Session.SweepInterval < 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be >= 0")
	}
	if c.Session.UserLogLimit <= 0 {
		return fmt.Errorf("USER_LOG_LIMIT must be > 0")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY cannot be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go duration strings ("1500ms") or plain seconds ("30").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
