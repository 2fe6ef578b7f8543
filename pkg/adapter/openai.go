package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/artifact"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const (
	// DeepSeekBaseURL is the OpenAI-compatible DeepSeek endpoint.
	DeepSeekBaseURL = "https://api.deepseek.com/v1"
	// OllamaBaseURL is the default local Ollama endpoint.
	OllamaBaseURL = "http://localhost:11434/v1"
)

// OpenAIAdapter implements the Adapter interface for OpenAI and any
// OpenAI-compatible chat completions endpoint.
type OpenAIAdapter struct {
	client    openai.Client
	name      string
	models    []string
	// publicAPI is set when no base URL overrides the OpenAI endpoint.
	publicAPI bool
}

// NewOpenAIAdapter creates a new OpenAI adapter. baseURL may be empty to use
// the public OpenAI API, in which case apiKey is required.
func NewOpenAIAdapter(apiKey, baseURL string) (*OpenAIAdapter, error) {
	if apiKey == "" && baseURL == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	return newOpenAICompatible("openai", apiKey, baseURL,
		[]string{"gpt-4o", "gpt-4o-mini"}), nil
}

// NewDeepSeekAdapter creates an adapter for DeepSeek's OpenAI-compatible API.
func NewDeepSeekAdapter(apiKey, baseURL string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepseek API key is required")
	}
	if baseURL == "" {
		baseURL = DeepSeekBaseURL
	}
	return newOpenAICompatible("deepseek", apiKey, baseURL,
		[]string{"deepseek-chat", "deepseek-reasoner"}), nil
}

// NewOllamaAdapter creates an adapter for a local Ollama server.
func NewOllamaAdapter(baseURL string) *OpenAIAdapter {
	if baseURL == "" {
		baseURL = OllamaBaseURL
	}
	// Ollama ignores the key but the client always sends one.
	return newOpenAICompatible("ollama", "ollama", baseURL,
		[]string{"qwen2.5:7b-instruct", "llama3.1:8b"})
}

func newOpenAICompatible(name, apiKey, baseURL string, models []string) *OpenAIAdapter {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAdapter{
		client:    openai.NewClient(opts...),
		name:      name,
		models:    models,
		publicAPI: baseURL == "",
	}
}

// Name returns the adapter identifier.
func (a *OpenAIAdapter) Name() string {
	return a.name
}

// Models returns the list of known models for this endpoint.
func (a *OpenAIAdapter) Models() []string {
	return a.models
}

// Complete sends the request as a chat completion, running function-call
// rounds until the model answers in text.
func (a *OpenAIAdapter) Complete(ctx context.Context, req *Request) (*Response, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	var tools []openai.ChatCompletionToolParam
	if req.toolsEnabled() {
		for _, spec := range req.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        spec.Name,
					Description: openai.String(spec.Description),
					Parameters:  shared.FunctionParameters(objectSchema(spec.Parameters)),
				},
			})
		}
	}

	resp := &Response{}
	for round := 0; ; round++ {
		params := a.params(req, messages)
		offerTools := len(tools) > 0 && round < req.MaxToolRounds
		if len(tools) > 0 {
			params.Tools = tools
			if !offerTools {
				params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("none")}
			}
		}

		completion, err := a.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, unavailable(a.name, req.Model, openAIStatus(err), err)
		}
		if len(completion.Choices) == 0 {
			return nil, unavailable(a.name, req.Model, 0, fmt.Errorf("no choices returned"))
		}
		resp.Usage = resp.Usage.Add(Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		})

		msg := completion.Choices[0].Message
		if !offerTools || len(msg.ToolCalls) == 0 {
			resp.Artifact = artifact.New(msg.Content, a.name, req.Model, req.Prompt)
			return resp, nil
		}

		calls := make([]ToolCall, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			calls[i] = ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
		}
		results, err := runToolCalls(ctx, req.Invoke, calls)
		if err != nil {
			return nil, err
		}
		resp.ToolCalls += len(calls)

		messages = append(messages, msg.ToParam())
		for i, call := range calls {
			messages = append(messages, openai.ToolMessage(results[i], call.ID))
		}
	}
}

func (a *OpenAIAdapter) params(req *Request, messages []openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	// Compatible servers only understand the older max_tokens field.
	if a.publicAPI {
		params.MaxCompletionTokens = openai.Int(req.maxTokens())
	} else {
		params.MaxTokens = openai.Int(req.maxTokens())
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	return params
}

func openAIStatus(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
