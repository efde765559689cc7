// Package config loads tabloop settings from a YAML file and TABLOOP_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "tabloop.yaml"

// Model providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderScript = "script"
)

// Ledger backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full configuration.
type Config struct {
	Model   ModelConfig   `yaml:"model"`
	Loop    LoopConfig    `yaml:"loop"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
}

type ModelConfig struct {
	Provider string `yaml:"provider"`
	Name     string `yaml:"name"`
	BaseURL  string `yaml:"base_url"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv     string `yaml:"api_key_env"`
	RatePerMinute int    `yaml:"rate_per_minute"`
	// Script is the YAML response file of the script provider.
	Script string `yaml:"script"`
}

// APIKey resolves the key from the environment.
func (m ModelConfig) APIKey() string {
	if m.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(m.APIKeyEnv)
}

type LoopConfig struct {
	MaxIterations  int `yaml:"max_iterations"`
	MaxTokens      int `yaml:"max_tokens"`
	ForceMaxTokens int `yaml:"force_max_tokens"`
	PreviewRows    int `yaml:"preview_rows"`
}

type SandboxConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type LedgerConfig struct {
	Backend    string        `yaml:"backend"`
	RedisAddr  string        `yaml:"redis_addr"`
	SQLitePath string        `yaml:"sqlite_path"`
	Prefix     string        `yaml:"prefix"`
	TTL        time.Duration `yaml:"ttl"`
	// EncryptionKeyEnv names the environment variable holding a base64
	// AES-256 key. Entries are encrypted at rest when it is set.
	EncryptionKeyEnv string `yaml:"encryption_key_env"`
	// Redact masks personal data in stored questions and answers.
	Redact bool `yaml:"redact"`
	// RedactPatterns replaces the built-in redaction patterns.
	RedactPatterns []string `yaml:"redact_patterns"`
}

// EncryptionKey resolves the key from the environment.
func (l LedgerConfig) EncryptionKey() string {
	if l.EncryptionKeyEnv == "" {
		return ""
	}
	return os.Getenv(l.EncryptionKeyEnv)
}

type ServerConfig struct {
	Addr    string `yaml:"addr"`
	Metrics bool   `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model: ModelConfig{
			Provider:  ProviderOpenAI,
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Loop: LoopConfig{
			MaxIterations:  10,
			MaxTokens:      3072,
			ForceMaxTokens: 4096,
			PreviewRows:    20,
		},
		Sandbox: SandboxConfig{Timeout: 10 * time.Second},
		Ledger: LedgerConfig{
			Backend:    BackendMemory,
			RedisAddr:  "localhost:6379",
			SQLitePath: "tabloop.db",
			Prefix:     "tabloop:ledger:",
		},
		Server: ServerConfig{Addr: ":8080", Metrics: true},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// applyEnv maps TABLOOP_* variables onto fields.
func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"TABLOOP_MODEL_PROVIDER": &c.Model.Provider,
		"TABLOOP_MODEL":          &c.Model.Name,
		"TABLOOP_MODEL_BASE_URL": &c.Model.BaseURL,
		"TABLOOP_MODEL_SCRIPT":   &c.Model.Script,
		"TABLOOP_LEDGER_BACKEND": &c.Ledger.Backend,
		"TABLOOP_REDIS_ADDR":     &c.Ledger.RedisAddr,
		"TABLOOP_SQLITE_PATH":    &c.Ledger.SQLitePath,
		"TABLOOP_ADDR":           &c.Server.Addr,
		"TABLOOP_LOG_LEVEL":      &c.Log.Level,
		"TABLOOP_LOG_FORMAT":     &c.Log.Format,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"TABLOOP_MAX_ITERATIONS":   &c.Loop.MaxIterations,
		"TABLOOP_MAX_TOKENS":       &c.Loop.MaxTokens,
		"TABLOOP_FORCE_MAX_TOKENS": &c.Loop.ForceMaxTokens,
		"TABLOOP_PREVIEW_ROWS":     &c.Loop.PreviewRows,
		"TABLOOP_RATE_PER_MINUTE":  &c.Model.RatePerMinute,
	}
	for name, dst := range ints {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, name, v)
		}
		*dst = n
	}

	if v := os.Getenv("TABLOOP_SANDBOX_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: TABLOOP_SANDBOX_TIMEOUT=%q: %v", ErrInvalid, v, err)
		}
		c.Sandbox.Timeout = d
	}
	return nil
}

// Validate rejects non-positive budgets and unknown providers or backends.
func (c Config) Validate() error {
	var errs []error
	for _, b := range []struct {
		key string
		val int
	}{
		{"loop.max_iterations", c.Loop.MaxIterations},
		{"loop.max_tokens", c.Loop.MaxTokens},
		{"loop.force_max_tokens", c.Loop.ForceMaxTokens},
		{"loop.preview_rows", c.Loop.PreviewRows},
	} {
		if b.val <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, b.key, b.val))
		}
	}
	if c.Sandbox.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: sandbox.timeout must be positive", ErrInvalid))
	}
	if c.Model.RatePerMinute < 0 {
		errs = append(errs, fmt.Errorf("%w: model.rate_per_minute must not be negative", ErrInvalid))
	}

	switch c.Model.Provider {
	case ProviderOpenAI, ProviderGemini:
	case ProviderScript:
		if c.Model.Script == "" {
			errs = append(errs, fmt.Errorf("%w: model.script is required for the script provider", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown model.provider %q", ErrInvalid, c.Model.Provider))
	}

	switch c.Ledger.Backend {
	case BackendMemory, BackendRedis, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown ledger.backend %q", ErrInvalid, c.Ledger.Backend))
	}
	return errors.Join(errs...)
}
