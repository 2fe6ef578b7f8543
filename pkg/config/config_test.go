package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

var envVars = []string{
	"MODEL_PROVIDER", "MODEL_NAME", "API_KEY", "BASE_URL", "MODEL_TEMPERATURE",
	"TAVILY_API_KEY", "SEARCH_BASE_URL", "TOOL_FAILURE_POLICY", "LOG_LEVEL", "LOG_FORMAT",
}

func TestConfigDefaults(t *testing.T) {
	setHomeEnv(t, t.TempDir())
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider != DefaultProvider || cfg.ModelName != DefaultModelName {
		t.Fatalf("unexpected model defaults: %s/%s", cfg.Provider, cfg.ModelName)
	}
	if cfg.ToolPolicy != ToolPolicyFailOpen {
		t.Fatalf("expected fail-open default, got %s", cfg.ToolPolicy)
	}
	if cfg.Retry.MaxRetries != 2 || cfg.Retry.BaseBackoffMs != 200 || cfg.Retry.MaxBackoffMs != 2000 {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.MaxToolRounds != 5 || cfg.SearchMaxResults != 5 {
		t.Fatalf("unexpected limits: rounds=%d results=%d", cfg.MaxToolRounds, cfg.SearchMaxResults)
	}

	err = cfg.Validate()
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "API_KEY" {
		t.Fatalf("expected missing API key error, got %v", err)
	}
}

func TestConfigUsesEnv(t *testing.T) {
	setHomeEnv(t, t.TempDir())
	clearEnv(t)

	t.Setenv("MODEL_PROVIDER", "Anthropic")
	t.Setenv("MODEL_NAME", "claude-sonnet-4-20250514")
	t.Setenv("API_KEY", "env-key")
	t.Setenv("MODEL_TEMPERATURE", "0.3")
	t.Setenv("TAVILY_API_KEY", "tvly-key")
	t.Setenv("TOOL_FAILURE_POLICY", "FAIL-CLOSED")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider != "anthropic" || cfg.ModelName != "claude-sonnet-4-20250514" || cfg.APIKey != "env-key" {
		t.Fatalf("expected env values, got %+v", cfg)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.3 {
		t.Fatalf("expected temperature 0.3")
	}
	if !cfg.HasSearch() {
		t.Fatalf("expected search to be configured")
	}
	if cfg.ToolPolicy != ToolPolicyFailClosed {
		t.Fatalf("expected fail-closed, got %s", cfg.ToolPolicy)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestConfigEnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)
	clearEnv(t)

	configDir := filepath.Join(home, configDirName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	data := []byte("model:\n  provider: ollama\n  name: file-model\n  base_url: http://localhost:11434/v1\n" +
		"tools:\n  failure_policy: fail-closed\n  max_rounds: 3\nretry:\n  max_retries: 4\n")
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("MODEL_NAME", "env-model")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider != "ollama" || cfg.BaseURL != "http://localhost:11434/v1" {
		t.Fatalf("expected file values, got %s %s", cfg.Provider, cfg.BaseURL)
	}
	if cfg.ModelName != "env-model" {
		t.Fatalf("expected env model to win, got %s", cfg.ModelName)
	}
	if cfg.ToolPolicy != ToolPolicyFailClosed || cfg.MaxToolRounds != 3 || cfg.Retry.MaxRetries != 4 {
		t.Fatalf("unexpected file-derived settings: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("ollama needs no key: %v", err)
	}
}

func TestConfigFileCanDisableRetries(t *testing.T) {
	setHomeEnv(t, t.TempDir())
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("retry:\n  max_retries: 0\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Retry.MaxRetries != 0 {
		t.Fatalf("expected retries disabled, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.BaseBackoffMs != 200 {
		t.Fatalf("expected default backoff, got %d", cfg.Retry.BaseBackoffMs)
	}
}

func TestConfigLoadsDotEnv(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)
	clearEnv(t)
	unsetEnv(t, "API_KEY")

	if err := os.WriteFile(filepath.Join(home, ".env"), []byte("API_KEY=dotenv-key\n"), 0600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey != "dotenv-key" {
		t.Fatalf("expected key from .env, got %q", cfg.APIKey)
	}
}

func TestConfigDirDotEnvWinsOverHome(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)
	clearEnv(t)
	unsetEnv(t, "API_KEY")
	unsetEnv(t, "MODEL_NAME")

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("API_KEY=dir-key\n"), 0600); err != nil {
		t.Fatalf("write dir .env: %v", err)
	}
	if err := os.WriteFile(filepath.Join(home, ".env"), []byte("API_KEY=home-key\nMODEL_NAME=home-model\n"), 0600); err != nil {
		t.Fatalf("write home .env: %v", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("model:\n  provider: openai\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey != "dir-key" {
		t.Fatalf("expected key from config dir, got %q", cfg.APIKey)
	}
	if cfg.ModelName != "home-model" {
		t.Fatalf("expected model from home .env, got %q", cfg.ModelName)
	}
}

func TestConfigRejectsMalformedDotEnv(t *testing.T) {
	setHomeEnv(t, t.TempDir())
	clearEnv(t)

	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("BAD-NAME=1\n"), 0600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := LoadFile(path)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if cfgErr.Field != envPath {
		t.Fatalf("expected error for %s, got %s", envPath, cfgErr.Field)
	}
}

func TestLoadFileRequiresFile(t *testing.T) {
	setHomeEnv(t, t.TempDir())
	clearEnv(t)

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadRejectsBadTemperature(t *testing.T) {
	setHomeEnv(t, t.TempDir())
	clearEnv(t)
	t.Setenv("MODEL_TEMPERATURE", "warm")

	_, err := Load()
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{Provider: "openai", ModelName: "gpt", APIKey: "k"}
		applyDefaults(cfg)
		return cfg
	}
	hot := 3.0

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown provider", mutate: func(c *Config) { c.Provider = "bard" }, field: "MODEL_PROVIDER"},
		{name: "openai compatible endpoint without key", mutate: func(c *Config) { c.APIKey = ""; c.BaseURL = "http://localhost:8080/v1" }},
		{name: "anthropic without key", mutate: func(c *Config) { c.Provider = "anthropic"; c.APIKey = "" }, field: "API_KEY"},
		{name: "relative base url", mutate: func(c *Config) { c.BaseURL = "/v1" }, field: "BASE_URL"},
		{name: "ftp base url", mutate: func(c *Config) { c.BaseURL = "ftp://host/v1" }, field: "BASE_URL"},
		{name: "bad search url", mutate: func(c *Config) { c.SearchBaseURL = "nope" }, field: "SEARCH_BASE_URL"},
		{name: "bad tool policy", mutate: func(c *Config) { c.ToolPolicy = "ignore" }, field: "TOOL_FAILURE_POLICY"},
		{name: "temperature out of range", mutate: func(c *Config) { c.Temperature = &hot }, field: "temperature"},
		{name: "negative retries", mutate: func(c *Config) { c.Retry.MaxRetries = -1 }, field: "retry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Fatalf("expected field %s, got %s", tt.field, cfgErr.Field)
			}
		})
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envVars {
		t.Setenv(name, "")
	}
}

func unsetEnv(t *testing.T, name string) {
	t.Helper()
	t.Setenv(name, "")
	if err := os.Unsetenv(name); err != nil {
		t.Fatalf("unsetenv %s: %v", name, err)
	}
}

func setHomeEnv(t *testing.T, home string) {
	t.Helper()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
}
