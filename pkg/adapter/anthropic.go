package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/artifact"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicAdapter implements the Adapter interface for Claude models.
type AnthropicAdapter struct {
	client anthropic.Client
}

// NewAnthropicAdapter creates a new Anthropic adapter. baseURL is optional.
func NewAnthropicAdapter(apiKey, baseURL string) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicAdapter{client: anthropic.NewClient(opts...)}, nil
}

// Name returns the adapter identifier.
func (a *AnthropicAdapter) Name() string {
	return "anthropic"
}

// Models returns the list of supported Claude models.
func (a *AnthropicAdapter) Models() []string {
	return []string{
		"claude-sonnet-4-20250514",
		"claude-opus-4-20250514",
	}
}

// Complete sends the request to the Messages API, answering tool_use blocks
// with tool_result blocks until the model stops for another reason.
func (a *AnthropicAdapter) Complete(ctx context.Context, req *Request) (*Response, error) {
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
	}

	var tools []anthropic.ToolUnionParam
	if req.toolsEnabled() {
		for _, spec := range req.Tools {
			props, required := schemaParts(spec.Parameters)
			tool := anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
				Properties: props,
				Required:   required,
			}, spec.Name)
			tool.OfTool.Description = anthropic.String(spec.Description)
			tools = append(tools, tool)
		}
	}

	resp := &Response{}
	for round := 0; ; round++ {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(req.Model),
			MaxTokens: req.maxTokens(),
			Messages:  messages,
		}
		if req.System != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.System}}
		}
		if req.Temperature != nil {
			params.Temperature = anthropic.Float(*req.Temperature)
		}
		offerTools := len(tools) > 0 && round < req.MaxToolRounds
		if len(tools) > 0 {
			// Tool blocks in the history require the definitions to be sent.
			params.Tools = tools
			if !offerTools {
				params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
			}
		}

		msg, err := a.client.Messages.New(ctx, params)
		if err != nil {
			return nil, unavailable(a.Name(), req.Model, anthropicStatus(err), err)
		}
		resp.Usage = resp.Usage.Add(Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
		})

		var text strings.Builder
		var calls []ToolCall
		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				text.WriteString(block.Text)
			case "tool_use":
				calls = append(calls, ToolCall{ID: block.ID, Name: block.Name, Arguments: string(block.Input)})
			}
		}

		if !offerTools || msg.StopReason != anthropic.StopReasonToolUse || len(calls) == 0 {
			resp.Artifact = artifact.New(text.String(), a.Name(), req.Model, req.Prompt)
			return resp, nil
		}

		results, err := runToolCalls(ctx, req.Invoke, calls)
		if err != nil {
			return nil, err
		}
		resp.ToolCalls += len(calls)

		blocks := make([]anthropic.ContentBlockParamUnion, len(calls))
		for i, call := range calls {
			blocks[i] = anthropic.NewToolResultBlock(call.ID, results[i], false)
		}
		messages = append(messages, msg.ToParam(), anthropic.NewUserMessage(blocks...))
	}
}

func anthropicStatus(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
