package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// ModelAliases maps short names such as "quality" to concrete models and
// records which models each provider serves.
type ModelAliases struct {
	Aliases   map[string]string   `yaml:"aliases"`
	Providers map[string][]string `yaml:"providers"`
}

// LoadAliases reads model aliases from a YAML file.
func LoadAliases(path string) (*ModelAliases, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var aliases ModelAliases
	if err := yaml.Unmarshal(data, &aliases); err != nil {
		return nil, &ConfigurationError{Field: path, Reason: err.Error()}
	}
	if aliases.Aliases == nil {
		aliases.Aliases = make(map[string]string)
	}
	if aliases.Providers == nil {
		aliases.Providers = make(map[string][]string)
	}
	return &aliases, nil
}

// LoadAliasesFromDir loads models.yaml from dir, falling back to
// DefaultAliases when the file does not exist.
func LoadAliasesFromDir(dir string) (*ModelAliases, error) {
	path := filepath.Join(dir, "models.yaml")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return DefaultAliases(), nil
		}
		return nil, err
	}
	return LoadAliases(path)
}

// Resolve returns the canonical model name for an alias.
// Names that are not aliases are returned unchanged.
func (a *ModelAliases) Resolve(modelOrAlias string) string {
	if a == nil || a.Aliases == nil {
		return modelOrAlias
	}
	if canonical, ok := a.Aliases[modelOrAlias]; ok {
		return canonical
	}
	return modelOrAlias
}

// IsAlias returns true if the given string is a known alias.
func (a *ModelAliases) IsAlias(name string) bool {
	if a == nil || a.Aliases == nil {
		return false
	}
	_, ok := a.Aliases[name]
	return ok
}

// ValidateModel checks that a provider lists the model. Providers without a
// model list accept anything, since local servers host arbitrary models.
func (a *ModelAliases) ValidateModel(provider, model string) error {
	if a == nil || a.Providers == nil {
		return nil
	}
	models, ok := a.Providers[provider]
	if !ok || len(models) == 0 {
		return nil
	}
	for _, m := range models {
		if m == model {
			return nil
		}
	}
	return fmt.Errorf("model %q not in %s provider list", model, provider)
}

// ListAliases returns the alias names in sorted order.
func (a *ModelAliases) ListAliases() []string {
	if a == nil {
		return nil
	}
	names := make([]string, 0, len(a.Aliases))
	for name := range a.Aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProviderModels returns the models listed for a provider.
func (a *ModelAliases) ProviderModels(provider string) []string {
	if a == nil || a.Providers == nil {
		return nil
	}
	return a.Providers[provider]
}

// ProviderForModel returns the provider that lists model, or "" when no
// provider claims it.
func (a *ModelAliases) ProviderForModel(model string) string {
	if a == nil || a.Providers == nil {
		return ""
	}
	providers := make([]string, 0, len(a.Providers))
	for p := range a.Providers {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	for _, provider := range providers {
		for _, m := range a.Providers[provider] {
			if m == model {
				return provider
			}
		}
	}
	return ""
}

// ApplyModel resolves modelOrAlias and stores the result on cfg. When the
// resolved model belongs to a known provider the provider is switched too,
// unless keepProvider is set.
func (a *ModelAliases) ApplyModel(cfg *Config, modelOrAlias string, keepProvider bool) {
	if cfg == nil || modelOrAlias == "" {
		return
	}
	model := a.Resolve(modelOrAlias)
	cfg.ModelName = model
	if keepProvider {
		return
	}
	if provider := a.ProviderForModel(model); provider != "" {
		cfg.Provider = provider
	}
}

// DefaultAliases returns the built-in aliases.
func DefaultAliases() *ModelAliases {
	return &ModelAliases{
		Aliases: map[string]string{
			"local":    DefaultModelName,
			"fast":     "gpt-4o-mini",
			"quality":  "claude-sonnet-4-20250514",
			"research": "gemini-2.0-flash",
			"cheap":    "deepseek-chat",
			"reason":   "deepseek-reasoner",
		},
		Providers: map[string][]string{
			"ollama":    {DefaultModelName, "llama3.1:8b"},
			"openai":    {"gpt-4o", "gpt-4o-mini"},
			"anthropic": {"claude-sonnet-4-20250514", "claude-opus-4-20250514"},
			"google":    {"gemini-2.0-flash", "gemini-2.5-pro"},
			"deepseek":  {"deepseek-chat", "deepseek-reasoner"},
		},
	}
}
