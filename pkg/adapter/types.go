package adapter

import "github.com/SirMichaelJacob/Study-Plan-Agent/pkg/artifact"

// Usage captures normalized token usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the sum of two usages. A missing total is derived from its parts.
func (u Usage) Add(o Usage) Usage {
	u, o = u.normalize(), o.normalize()
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

func (u Usage) normalize() Usage {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

// Cost captures normalized cost estimates.
type Cost struct {
	Currency     string  `json:"currency"`
	Amount       float64 `json:"amount"`
	IsEstimate   bool    `json:"is_estimate"`
	PricingModel string  `json:"pricing_model,omitempty"`
}

// CallReport captures completion call metadata for the run record.
type CallReport struct {
	Stage     string `json:"stage"`
	Adapter   string `json:"adapter"`
	Model     string `json:"model"`
	Usage     Usage  `json:"usage"`
	Cost      Cost   `json:"cost"`
	Retries   int    `json:"retries"`
	ToolCalls int    `json:"tool_calls"`
	Error     string `json:"error,omitempty"`
}

// Response wraps an adapter output with usage data. Usage sums every model
// call made for the request, including tool rounds.
type Response struct {
	Artifact  *artifact.Artifact
	Usage     Usage
	ToolCalls int
	Retries   int
}
