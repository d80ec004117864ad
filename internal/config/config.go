// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable Load reads.
const EnvPrefix = "ISSUETRIAGE"

// Predictor kinds accepted by ISSUETRIAGE_PREDICTOR.
const (
	PredictorNone      = "none"
	PredictorHTTP      = "http"
	PredictorAnthropic = "anthropic"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	GitHubToken string
	// User is the login owning the data for CLI commands and API requests
	// without an explicit user.
	User       string
	ListenAddr string
	DBPath     string
	// SecretKey is the AES-256 key for stored credentials; nil when unset.
	SecretKey []byte

	Predictor       string
	PredictorURL    string
	AnthropicAPIKey string
	AnthropicModel  string
	CategoriesFile  string

	// WebhookSecret verifies GitHub webhook signatures. Empty disables the
	// webhook endpoint.
	WebhookSecret string

	OTelEnabled bool
	OTelStdout  bool
}

// HasSecretKey reports whether stored credentials can be encrypted.
func (c *Config) HasSecretKey() bool {
	return len(c.SecretKey) > 0
}

// Load reads configuration from ISSUETRIAGE_* environment variables and
// returns a validated Config. ISSUETRIAGE_GITHUB_TOKEN is optional: it is the
// fallback for users who have not stored their own token.
// Optional variables with defaults: ISSUETRIAGE_USER (local),
// ISSUETRIAGE_LISTEN_ADDR (127.0.0.1:8080), ISSUETRIAGE_DB_PATH (issuetriage.db),
// ISSUETRIAGE_PREDICTOR (none).
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("user", "local")
	v.SetDefault("listen_addr", "127.0.0.1:8080")
	v.SetDefault("db_path", "issuetriage.db")
	v.SetDefault("predictor", PredictorNone)
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_stdout", false)

	cfg := &Config{
		GitHubToken:     strings.TrimSpace(v.GetString("github_token")),
		User:            strings.TrimSpace(v.GetString("user")),
		ListenAddr:      v.GetString("listen_addr"),
		DBPath:          v.GetString("db_path"),
		Predictor:       strings.ToLower(strings.TrimSpace(v.GetString("predictor"))),
		PredictorURL:    strings.TrimSpace(v.GetString("predictor_url")),
		AnthropicAPIKey: strings.TrimSpace(v.GetString("anthropic_api_key")),
		AnthropicModel:  strings.TrimSpace(v.GetString("anthropic_model")),
		CategoriesFile:  strings.TrimSpace(v.GetString("categories_file")),
		WebhookSecret:   v.GetString("webhook_secret"),
	}

	var err error
	if cfg.OTelEnabled, err = parseBool(v, "otel_enabled"); err != nil {
		return nil, err
	}
	if cfg.OTelStdout, err = parseBool(v, "otel_stdout"); err != nil {
		return nil, err
	}

	if cfg.User == "" {
		return nil, fmt.Errorf("%s_USER must not be empty", EnvPrefix)
	}

	if raw := strings.TrimSpace(v.GetString("secret_key")); raw != "" {
		key, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("%s_SECRET_KEY is not valid hex: %w", EnvPrefix, err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("%s_SECRET_KEY must be 64 hex characters (32 bytes), got %d bytes", EnvPrefix, len(key))
		}
		cfg.SecretKey = key
	}

	switch cfg.Predictor {
	case PredictorNone:
	case PredictorHTTP:
		if cfg.PredictorURL == "" {
			return nil, fmt.Errorf("%s_PREDICTOR_URL is required when %s_PREDICTOR=http", EnvPrefix, EnvPrefix)
		}
	case PredictorAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("%s_ANTHROPIC_API_KEY is required when %s_PREDICTOR=anthropic", EnvPrefix, EnvPrefix)
		}
	default:
		return nil, fmt.Errorf("%s_PREDICTOR has invalid value %q (want none, http or anthropic)", EnvPrefix, cfg.Predictor)
	}

	return cfg, nil
}

// parseBool reads a boolean key, rejecting values viper would silently
// treat as false.
func parseBool(v *viper.Viper, key string) (bool, error) {
	raw := strings.TrimSpace(v.GetString(key))
	switch strings.ToLower(raw) {
	case "", "false", "0", "no":
		return false, nil
	case "true", "1", "yes":
		return true, nil
	default:
		return false, fmt.Errorf("%s_%s has invalid boolean %q", EnvPrefix, strings.ToUpper(key), raw)
	}
}
