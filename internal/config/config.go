// Package config holds the service configuration. Values come from an
// optional YAML file, then environment overrides, then defaults. Nothing
// reads the environment at import time; callers pass a lookup function.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Sheets  SheetsConfig  `yaml:"sheets"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Webhook WebhookConfig `yaml:"webhook"`
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the completion provider and the analysis passes.
type LLMConfig struct {
	Provider     string  `yaml:"provider"` // openai, anthropic, google
	Model        string  `yaml:"model"`
	OpenAIKey    string  `yaml:"openai_api_key"`
	AnthropicKey string  `yaml:"anthropic_api_key"`
	GoogleKey    string  `yaml:"google_api_key"`
	Passes       int     `yaml:"passes"`
	Parallel     int     `yaml:"parallel"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
	Timeout      string  `yaml:"timeout"`
}

// SheetsConfig configures the tabular store.
type SheetsConfig struct {
	SpreadsheetID string `yaml:"spreadsheet_id"`
	// Credentials is the service-account JSON, raw or base64 encoded.
	Credentials     string `yaml:"credentials"`
	CredentialsFile string `yaml:"credentials_file"`
	// StartColumn is the first analysis column, e.g. "V".
	StartColumn string `yaml:"start_column"`
	Stars       bool   `yaml:"stars"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	AllowOrigin []string `yaml:"allow_origin"`
}

// StorageConfig locates the on-disk state.
type StorageConfig struct {
	ClientsFile string `yaml:"clients_file"`
	ArchivePath string `yaml:"archive_path"` // empty disables the archive
}

// WebhookConfig configures result forwarding.
type WebhookConfig struct {
	URL     string `yaml:"url"` // empty disables forwarding
	Timeout string `yaml:"timeout"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Passes:      3,
			Parallel:    3,
			MaxTokens:   4000,
			Temperature: 0,
			Timeout:     "120s",
		},
		Sheets: SheetsConfig{
			StartColumn: "V",
			Stars:       true,
		},
		Server: ServerConfig{
			Addr:        ":8080",
			AllowOrigin: []string{"*"},
		},
		Storage: StorageConfig{
			ClientsFile: "clients.yaml",
		},
		Webhook: WebhookConfig{
			Timeout: "10s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path (if non-empty) over the defaults and then applies the
// environment overrides found through getenv. A missing file is an error
// only when path was given explicitly.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if getenv != nil {
		cfg.applyEnv(getenv)
	}
	return cfg, nil
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.LLM.Provider, "SIFT_PROVIDER")
	set(&c.LLM.Model, "SIFT_MODEL")
	set(&c.LLM.OpenAIKey, "OPENAI_API_KEY")
	set(&c.LLM.AnthropicKey, "ANTHROPIC_API_KEY")
	set(&c.LLM.GoogleKey, "GOOGLE_API_KEY")
	set(&c.Sheets.SpreadsheetID, "SIFT_SPREADSHEET_ID")
	set(&c.Sheets.Credentials, "GOOGLE_APPLICATION_CREDENTIALS_JSON")
	set(&c.Storage.ClientsFile, "SIFT_CLIENTS_FILE")
	set(&c.Storage.ArchivePath, "SIFT_ARCHIVE")
	set(&c.Webhook.URL, "SIFT_WEBHOOK_URL")
	set(&c.Logging.Level, "SIFT_LOG_LEVEL")
	if port := strings.TrimSpace(getenv("PORT")); port != "" {
		c.Server.Addr = ":" + port
	}
}

// APIKey returns the key for the configured provider.
func (c LLMConfig) APIKey() string {
	switch strings.ToLower(c.Provider) {
	case "anthropic":
		return c.AnthropicKey
	case "google":
		return c.GoogleKey
	default:
		return c.OpenAIKey
	}
}

// LLMTimeout returns the per-batch completion timeout.
func (c Config) LLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// WebhookTimeout returns the webhook request timeout.
func (c Config) WebhookTimeout() time.Duration {
	return parseDuration(c.Webhook.Timeout, 10*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Validate reports every invalid value, joined.
func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "anthropic", "google":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q: want openai, anthropic or google", c.LLM.Provider))
	}
	if c.LLM.Passes < 1 {
		errs = append(errs, fmt.Errorf("llm.passes %d: must be at least 1", c.LLM.Passes))
	}
	if c.LLM.Parallel < 1 {
		errs = append(errs, fmt.Errorf("llm.parallel %d: must be at least 1", c.LLM.Parallel))
	}
	if c.LLM.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("llm.max_tokens %d: must be positive", c.LLM.MaxTokens))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %s: must be within [0, 2]", strconv.FormatFloat(c.LLM.Temperature, 'g', -1, 64)))
	}
	if c.LLM.Timeout != "" {
		if _, err := time.ParseDuration(c.LLM.Timeout); err != nil {
			errs = append(errs, fmt.Errorf("llm.timeout: %w", err))
		}
	}
	if !isColumn(c.Sheets.StartColumn) {
		errs = append(errs, fmt.Errorf("sheets.start_column %q: want column letters", c.Sheets.StartColumn))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q: want json or text", c.Logging.Format))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: %w", errors.Join(errs...))
}

func isColumn(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}
