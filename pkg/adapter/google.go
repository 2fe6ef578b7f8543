package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/artifact"
	"google.golang.org/genai"
)

// GoogleAdapter implements the Adapter interface for Gemini models.
type GoogleAdapter struct {
	client *genai.Client
}

// NewGoogleAdapter creates a new Google Gemini adapter. baseURL is optional.
func NewGoogleAdapter(ctx context.Context, apiKey, baseURL string) (*GoogleAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &GoogleAdapter{client: client}, nil
}

// Name returns the adapter identifier.
func (a *GoogleAdapter) Name() string {
	return "google"
}

// Models returns the list of supported Gemini models.
func (a *GoogleAdapter) Models() []string {
	return []string{
		"gemini-2.0-flash",
		"gemini-2.5-pro",
	}
}

// Complete sends the request to GenerateContent, answering function calls
// with function responses until the model replies in text.
func (a *GoogleAdapter) Complete(ctx context.Context, req *Request) (*Response, error) {
	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{MaxOutputTokens: int32(req.maxTokens())}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}
	if req.toolsEnabled() {
		decls := make([]*genai.FunctionDeclaration, len(req.Tools))
		for i, spec := range req.Tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:                 spec.Name,
				Description:          spec.Description,
				ParametersJsonSchema: objectSchema(spec.Parameters),
			}
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp := &Response{}
	for round := 0; ; round++ {
		offerTools := len(cfg.Tools) > 0 && round < req.MaxToolRounds
		if len(cfg.Tools) > 0 && !offerTools {
			cfg.ToolConfig = &genai.ToolConfig{
				FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeNone},
			}
		}

		result, err := a.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
		if err != nil {
			return nil, unavailable(a.Name(), req.Model, googleStatus(err), err)
		}
		if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
			return nil, unavailable(a.Name(), req.Model, 0, fmt.Errorf("no candidates returned"))
		}
		if u := result.UsageMetadata; u != nil {
			resp.Usage = resp.Usage.Add(Usage{
				PromptTokens:     int(u.PromptTokenCount),
				CompletionTokens: int(u.CandidatesTokenCount),
				TotalTokens:      int(u.TotalTokenCount),
			})
		}

		fcs := result.FunctionCalls()
		if !offerTools || len(fcs) == 0 {
			var text strings.Builder
			for _, part := range result.Candidates[0].Content.Parts {
				text.WriteString(part.Text)
			}
			resp.Artifact = artifact.New(text.String(), a.Name(), req.Model, req.Prompt)
			return resp, nil
		}

		calls := make([]ToolCall, len(fcs))
		for i, fc := range fcs {
			args, err := json.Marshal(fc.Args)
			if err != nil {
				return nil, fmt.Errorf("encode %s arguments: %w", fc.Name, err)
			}
			calls[i] = ToolCall{ID: fc.ID, Name: fc.Name, Arguments: string(args)}
		}
		results, err := runToolCalls(ctx, req.Invoke, calls)
		if err != nil {
			return nil, err
		}
		resp.ToolCalls += len(calls)

		parts := make([]*genai.Part, len(calls))
		for i, call := range calls {
			parts[i] = genai.NewPartFromFunctionResponse(call.Name, map[string]any{"output": results[i]})
		}
		contents = append(contents, result.Candidates[0].Content, genai.NewContentFromParts(parts, genai.RoleUser))
	}
}

func googleStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
