package config

// PricingConfig maps provider -> model -> pricing. A "default" model entry
// applies to any model of that provider without its own entry.
type PricingConfig map[string]map[string]ModelPricing

// ModelPricing defines per-1k token pricing.
type ModelPricing struct {
	PromptPer1K     float64 `yaml:"prompt_per_1k,omitempty"`
	CompletionPer1K float64 `yaml:"completion_per_1k,omitempty"`
}

// Lookup returns the pricing entry for provider and model.
func (p PricingConfig) Lookup(provider, model string) (ModelPricing, bool) {
	if p == nil {
		return ModelPricing{}, false
	}
	byModel, ok := p[provider]
	if !ok {
		return ModelPricing{}, false
	}
	if entry, ok := byModel[model]; ok {
		return entry, true
	}
	if entry, ok := byModel["default"]; ok {
		return entry, true
	}
	return ModelPricing{}, false
}

// Estimate returns the estimated USD cost of a call with the given token
// counts. ok is false when no pricing entry applies.
func (p PricingConfig) Estimate(provider, model string, promptTokens, completionTokens int64) (amount float64, ok bool) {
	entry, ok := p.Lookup(provider, model)
	if !ok {
		return 0, false
	}
	amount = (float64(promptTokens)/1000.0)*entry.PromptPer1K +
		(float64(completionTokens)/1000.0)*entry.CompletionPer1K
	return amount, true
}
