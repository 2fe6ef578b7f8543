package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultProvider talks to any OpenAI-compatible endpoint.
	DefaultProvider = "openai"
	// DefaultModelName is used when MODEL_NAME is unset.
	DefaultModelName = "qwen2.5:7b-instruct"

	// ToolPolicyFailOpen lets a stage continue without a failed tool's result.
	ToolPolicyFailOpen = "fail-open"
	// ToolPolicyFailClosed aborts the stage when a tool invocation fails.
	ToolPolicyFailClosed = "fail-closed"

	defaultMaxToolRounds    = 5
	defaultMaxTokens        = 4096
	defaultSearchMaxResults = 5
	defaultMaxRetries       = 2
	configDirName           = ".studyplan"
)

// Providers lists the model providers the adapter factory understands.
var Providers = []string{"openai", "deepseek", "ollama", "anthropic", "google", "mock"}

// Config holds the application configuration. It is built once at startup
// and passed explicitly to everything that needs it.
type Config struct {
	Provider    string
	ModelName   string
	APIKey      string
	BaseURL     string
	Temperature *float64
	MaxTokens   int

	MaxToolRounds int
	ToolPolicy    string

	SearchAPIKey     string
	SearchBaseURL    string
	SearchMaxResults int

	LogLevel  string
	LogFormat string

	Retry        RetryConfig
	Pricing      PricingConfig
	MaxBudgetUSD float64
	ConfigDir    string
}

// RetryConfig defines retry and backoff behavior for transient provider
// errors. MaxRetries of 0 disables retries.
type RetryConfig struct {
	MaxRetries    int
	BaseBackoffMs int
	MaxBackoffMs  int
}

// RetryFileConfig holds retry settings from file. An absent max_retries
// keeps the default; an explicit 0 turns retries off.
type RetryFileConfig struct {
	MaxRetries    *int `yaml:"max_retries"`
	BaseBackoffMs int  `yaml:"base_backoff_ms"`
	MaxBackoffMs  int  `yaml:"max_backoff_ms"`
}

// FileConfig represents the structure of ~/.studyplan/config.yaml.
// API keys are read from the environment only.
type FileConfig struct {
	Model  ModelFileConfig  `yaml:"model"`
	Search SearchFileConfig `yaml:"search"`
	Tools  ToolsFileConfig  `yaml:"tools"`
	Retry  RetryFileConfig  `yaml:"retry"`
	Log    LogFileConfig    `yaml:"log"`
	Budget BudgetFileConfig `yaml:"budget"`
}

// ModelFileConfig holds model settings from file.
type ModelFileConfig struct {
	Provider    string   `yaml:"provider"`
	Name        string   `yaml:"name"`
	BaseURL     string   `yaml:"base_url"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

// SearchFileConfig holds web search settings from file.
type SearchFileConfig struct {
	BaseURL    string `yaml:"base_url"`
	MaxResults int    `yaml:"max_results"`
}

// ToolsFileConfig holds tool invocation settings from file.
type ToolsFileConfig struct {
	FailurePolicy string `yaml:"failure_policy"`
	MaxRounds     int    `yaml:"max_rounds"`
}

// BudgetFileConfig holds cost estimation settings from file.
type BudgetFileConfig struct {
	MaxUSD  float64       `yaml:"max_usd"`
	Pricing PricingConfig `yaml:"pricing"`
}

// LogFileConfig holds logging settings from file.
type LogFileConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigurationError reports a missing or invalid setting found at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Load reads configuration from .env files, ~/.studyplan/config.yaml and
// environment variables. Environment variables take precedence over the file.
func Load() (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	if err := loadDotEnv(configDir); err != nil {
		return nil, err
	}

	fileConfig, err := loadFileConfig(filepath.Join(configDir, "config.yaml"), false)
	if err != nil {
		return nil, err
	}
	return build(fileConfig, configDir)
}

// LoadFile loads config with a specific YAML file. The file must exist.
func LoadFile(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Dir(path)); err != nil {
		return nil, err
	}

	fileConfig, err := loadFileConfig(path, true)
	if err != nil {
		return nil, err
	}
	return build(fileConfig, filepath.Dir(path))
}

func build(file *FileConfig, configDir string) (*Config, error) {
	cfg := &Config{
		Provider:         strings.ToLower(getEnvOrDefault("MODEL_PROVIDER", file.Model.Provider)),
		ModelName:        getEnvOrDefault("MODEL_NAME", file.Model.Name),
		APIKey:           os.Getenv("API_KEY"),
		BaseURL:          getEnvOrDefault("BASE_URL", file.Model.BaseURL),
		Temperature:      file.Model.Temperature,
		MaxTokens:        file.Model.MaxTokens,
		MaxToolRounds:    file.Tools.MaxRounds,
		ToolPolicy:       strings.ToLower(getEnvOrDefault("TOOL_FAILURE_POLICY", file.Tools.FailurePolicy)),
		SearchAPIKey:     os.Getenv("TAVILY_API_KEY"),
		SearchBaseURL:    getEnvOrDefault("SEARCH_BASE_URL", file.Search.BaseURL),
		SearchMaxResults: file.Search.MaxResults,
		LogLevel:         getEnvOrDefault("LOG_LEVEL", file.Log.Level),
		LogFormat:        getEnvOrDefault("LOG_FORMAT", file.Log.Format),
		Pricing:          file.Budget.Pricing,
		MaxBudgetUSD:     file.Budget.MaxUSD,
		ConfigDir:        configDir,
	}

	cfg.Retry = RetryConfig{
		MaxRetries:    defaultMaxRetries,
		BaseBackoffMs: file.Retry.BaseBackoffMs,
		MaxBackoffMs:  file.Retry.MaxBackoffMs,
	}
	if file.Retry.MaxRetries != nil {
		cfg.Retry.MaxRetries = *file.Retry.MaxRetries
	}

	if raw := os.Getenv("MODEL_TEMPERATURE"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &ConfigurationError{Field: "MODEL_TEMPERATURE", Reason: fmt.Sprintf("not a number: %q", raw)}
		}
		cfg.Temperature = &t
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Provider == "" {
		cfg.Provider = DefaultProvider
	}
	if cfg.ModelName == "" {
		cfg.ModelName = DefaultModelName
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.MaxToolRounds == 0 {
		cfg.MaxToolRounds = defaultMaxToolRounds
	}
	if cfg.ToolPolicy == "" {
		cfg.ToolPolicy = ToolPolicyFailOpen
	}
	if cfg.SearchMaxResults == 0 {
		cfg.SearchMaxResults = defaultSearchMaxResults
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.Retry.BaseBackoffMs == 0 {
		cfg.Retry.BaseBackoffMs = 200
	}
	if cfg.Retry.MaxBackoffMs == 0 {
		cfg.Retry.MaxBackoffMs = 2000
	}
	if cfg.Retry.MaxBackoffMs < cfg.Retry.BaseBackoffMs {
		cfg.Retry.MaxBackoffMs = cfg.Retry.BaseBackoffMs
	}
}

// Validate checks the configuration for errors. It returns a
// *ConfigurationError describing the first problem found.
func (c *Config) Validate() error {
	if !knownProvider(c.Provider) {
		return &ConfigurationError{
			Field:  "MODEL_PROVIDER",
			Reason: fmt.Sprintf("unknown provider %q (want one of %s)", c.Provider, strings.Join(Providers, ", ")),
		}
	}
	if c.ModelName == "" {
		return &ConfigurationError{Field: "MODEL_NAME", Reason: "model name is required"}
	}
	if c.RequiresAPIKey() && c.APIKey == "" {
		return &ConfigurationError{Field: "API_KEY", Reason: fmt.Sprintf("%s provider requires an API key", c.Provider)}
	}
	if err := validateURL("BASE_URL", c.BaseURL); err != nil {
		return err
	}
	if err := validateURL("SEARCH_BASE_URL", c.SearchBaseURL); err != nil {
		return err
	}
	switch c.ToolPolicy {
	case ToolPolicyFailOpen, ToolPolicyFailClosed:
	default:
		return &ConfigurationError{
			Field:  "TOOL_FAILURE_POLICY",
			Reason: fmt.Sprintf("unknown policy %q (want %s or %s)", c.ToolPolicy, ToolPolicyFailOpen, ToolPolicyFailClosed),
		}
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return &ConfigurationError{Field: "temperature", Reason: "must be between 0 and 2"}
	}
	if c.MaxTokens < 0 || c.MaxToolRounds < 0 || c.SearchMaxResults < 0 {
		return &ConfigurationError{Field: "limits", Reason: "max tokens, tool rounds and search results must not be negative"}
	}
	if c.MaxBudgetUSD < 0 {
		return &ConfigurationError{Field: "budget", Reason: "max_usd must not be negative"}
	}
	if c.Retry.MaxRetries < 0 || c.Retry.BaseBackoffMs < 0 {
		return &ConfigurationError{Field: "retry", Reason: "retry settings must not be negative"}
	}
	return nil
}

// RequiresAPIKey reports whether the configured provider needs a credential.
// A plain OpenAI provider pointed at a custom BASE_URL is assumed to be a
// self-hosted compatible server.
func (c *Config) RequiresAPIKey() bool {
	switch c.Provider {
	case "ollama", "mock":
		return false
	case "openai":
		return c.BaseURL == ""
	default:
		return true
	}
}

// HasSearch returns true if a web search backend is configured.
func (c *Config) HasSearch() bool {
	return c.SearchAPIKey != ""
}

func knownProvider(name string) bool {
	for _, p := range Providers {
		if p == name {
			return true
		}
	}
	return false
}

func validateURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("not an absolute URL: %q", raw)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	return nil
}

// loadFileConfig reads the config file. A missing file yields an empty config
// unless required is set.
func loadFileConfig(path string, required bool) (*FileConfig, error) {
	cfg := &FileConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		if !required && os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigurationError{Field: path, Reason: err.Error()}
	}
	return cfg, nil
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configDirName), nil
}
