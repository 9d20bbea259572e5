// Package config loads and validates the agent's YAML configuration file,
// covering the planner backend, browser launch, UI cache, approval policy,
// and recovery tuning.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"pilot/internal/logging"
)

// OllamaConfig configures the local Ollama planner backend.
type OllamaConfig struct {
	BaseURL    string  `yaml:"base_url"`
	Model      string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSec int     `yaml:"timeout_seconds"`
	MaxRetries int     `yaml:"max_retries"`
}

// ProviderConfig configures a hosted chat-completion planner backend.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// OracleConfig selects and configures the Planner Oracle backend.
type OracleConfig struct {
	Provider  string         `yaml:"provider"` // ollama, zai, anthropic, openai
	Ollama    OllamaConfig   `yaml:"ollama"`
	ZAI       ProviderConfig `yaml:"zai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`
}

// BrowserConfig configures the browser automation session.
type BrowserConfig struct {
	Headless            bool   `yaml:"headless"`
	TimeoutMs           int    `yaml:"timeout_ms"`
	ViewportWidth       int    `yaml:"viewport_width"`
	ViewportHeight      int    `yaml:"viewport_height"`
	UserAgent           string `yaml:"user_agent"`
	DisableImages       bool   `yaml:"disable_images"`
	DisableJavaScript   bool   `yaml:"disable_javascript"`
	DebuggerURL         string `yaml:"debugger_url"`
}

// CacheConfig configures the UI cache.
type CacheConfig struct {
	Enabled                bool   `yaml:"enabled"`
	CacheFile              string `yaml:"cache_file"`
	MaxEntries             int    `yaml:"max_entries"`
	MaxAgeHours            int    `yaml:"max_age_hours"`
	ValidateHash           bool   `yaml:"validate_hash"`
	AutoInvalidateOnError  bool   `yaml:"auto_invalidate_on_error"`
}

// SecurityConfig configures approval policy and credential storage.
type SecurityConfig struct {
	RequireApproval  bool     `yaml:"require_approval"`
	CredentialsFile  string   `yaml:"credentials_file"`
	RiskyActions     []string `yaml:"risky_actions"`
}

// RecoveryConfig configures the self-healing recovery loop.
type RecoveryConfig struct {
	MaxSelfHealAttempts    int     `yaml:"max_self_heal_attempts"`
	RetryDelaySeconds      float64 `yaml:"retry_delay_seconds"`
	RecoverOnTimeout       bool    `yaml:"recover_on_timeout"`
	RecoverOnSelectorError bool    `yaml:"recover_on_selector_error"`
	RecoverOnNetworkError  bool    `yaml:"recover_on_network_error"`
	ForceFreshUI           bool    `yaml:"force_fresh_ui"`
	InvalidateCacheOnError bool    `yaml:"invalidate_cache_on_error"`
}

// LoggingConfig mirrors internal/logging's own sidecar file so a single
// top-level config file can also carry logging settings when desired.
type LoggingConfig struct {
	Level      string          `yaml:"level"`
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
}

// Config is the complete agent configuration.
type Config struct {
	Oracle   OracleConfig   `yaml:"oracle"`
	Browser  BrowserConfig  `yaml:"browser"`
	Cache    CacheConfig    `yaml:"cache"`
	Security SecurityConfig `yaml:"security"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// defaultRiskyActions is the authoritative set of five actions that require
// approval. make_payment is carried as a recognized constant for site
// plugins that opt into a sixth risky action, but is not in the default set.
var defaultRiskyActions = []string{
	"submit_form",
	"proceed_to_checkout",
	"auto_login",
	"delete",
	"confirm_purchase",
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Oracle: OracleConfig{
			Provider: "ollama",
			Ollama: OllamaConfig{
				BaseURL:     "http://localhost:11434",
				Model:       "qwen2.5-coder:7b",
				Temperature: 0.1,
				TimeoutSec:  120,
				MaxRetries:  3,
			},
		},
		Browser: BrowserConfig{
			Headless:      false,
			TimeoutMs:     30000,
			ViewportWidth: 1920,
			ViewportHeight: 1080,
			UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Cache: CacheConfig{
			Enabled:               true,
			CacheFile:             "ui_cache.json",
			MaxEntries:            100,
			MaxAgeHours:           24,
			ValidateHash:          true,
			AutoInvalidateOnError: true,
		},
		Security: SecurityConfig{
			RequireApproval: true,
			CredentialsFile: "credentials.json",
			RiskyActions:    append([]string(nil), defaultRiskyActions...),
		},
		Recovery: RecoveryConfig{
			MaxSelfHealAttempts:    2,
			RetryDelaySeconds:      1.0,
			RecoverOnTimeout:       true,
			RecoverOnSelectorError: true,
			RecoverOnNetworkError:  true,
			ForceFreshUI:           true,
			InvalidateCacheOnError: true,
		},
	}
}

// Load reads a YAML config file, falling back to defaults if it is absent.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		logging.Boot("no config path given, using defaults")
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	logging.BootDebug("loading config from: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Boot("config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		logging.BootError("failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		logging.BootError("failed to parse config file %s: %v", path, err)
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Security.RiskyActions) == 0 {
		cfg.Security.RiskyActions = append([]string(nil), defaultRiskyActions...)
	}

	cfg.applyEnvOverrides()
	logging.Boot("config loaded: oracle_provider=%s model=%s", cfg.Oracle.Provider, cfg.Oracle.Ollama.Model)
	return cfg, nil
}

// Save writes the configuration to path as YAML, creating parent dirs. It
// writes to a sibling temp file and renames over path, matching the atomic
// write pattern internal/cache and internal/credentials use for their own
// persisted files.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets environment variables override the oracle API keys
// without requiring a config file edit, matching the provider-detection
// convention used elsewhere in this codebase.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.Oracle.Anthropic.APIKey = key
		if c.Oracle.Provider == "" {
			c.Oracle.Provider = "anthropic"
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Oracle.OpenAI.APIKey = key
		if c.Oracle.Provider == "" {
			c.Oracle.Provider = "openai"
		}
	}
	if key := os.Getenv("ZAI_API_KEY"); key != "" {
		c.Oracle.ZAI.APIKey = key
		if c.Oracle.Provider == "" {
			c.Oracle.Provider = "zai"
		}
	}
	if url := os.Getenv("OLLAMA_BASE_URL"); url != "" {
		c.Oracle.Ollama.BaseURL = url
	}
}

// OllamaTimeout returns the configured Ollama request timeout.
func (c *Config) OllamaTimeout() time.Duration {
	if c.Oracle.Ollama.TimeoutSec <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.Oracle.Ollama.TimeoutSec) * time.Second
}

// BrowserTimeout returns the configured default browser action timeout.
func (c *Config) BrowserTimeout() time.Duration {
	if c.Browser.TimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Browser.TimeoutMs) * time.Millisecond
}

// MaxAge returns the cache's max entry age as a duration.
func (c *Config) MaxAge() time.Duration {
	if c.Cache.MaxAgeHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Cache.MaxAgeHours) * time.Hour
}

// RetryDelay returns the recovery loop's retry delay as a duration.
func (c *Config) RetryDelay() time.Duration {
	if c.Recovery.RetryDelaySeconds <= 0 {
		return time.Second
	}
	return time.Duration(c.Recovery.RetryDelaySeconds * float64(time.Second))
}

// IsRiskyAction reports whether action is in the configured risky set.
func (c *Config) IsRiskyAction(action string) bool {
	for _, a := range c.Security.RiskyActions {
		if a == action {
			return true
		}
	}
	return false
}

// Validate sanity-checks the configuration, matching the teacher's
// fail-fast convention for ranges that would otherwise silently misbehave.
func (c *Config) Validate() error {
	if c.Recovery.MaxSelfHealAttempts < 0 {
		return fmt.Errorf("recovery.max_self_heal_attempts must be >= 0")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be > 0")
	}
	switch c.Oracle.Provider {
	case "ollama", "zai", "anthropic", "openai", "":
	default:
		return fmt.Errorf("oracle.provider %q is not a recognized backend", c.Oracle.Provider)
	}
	return nil
}
