// Package anthropic adapts the Anthropic Claude Messages API to model.Client.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/distrihq/distri/model"
)

// MessagesClient is the subset of the Anthropic SDK client this adapter
// calls. *sdk.MessageService satisfies it; tests may substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Client implements model.Client on top of Anthropic Claude Messages.
type Client struct {
	msg          MessagesClient
	defaultModel string
}

// New builds an Anthropic-backed client. defaultModel is used when a
// request's Settings.Model is empty.
func New(msg MessagesClient, defaultModel string) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	return &Client{msg: msg, defaultModel: defaultModel}, nil
}

// NewFromAPIKey constructs a client from a raw API key using the SDK's
// default HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, defaultModel)
}

func (c *Client) Complete(ctx context.Context, messages []model.Message, settings model.Settings) (*model.Response, error) {
	params, err := c.prepareRequest(messages, settings)
	if err != nil {
		return nil, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		return nil, translateError(err)
	}
	return translateResponse(msg), nil
}

func (c *Client) Stream(ctx context.Context, messages []model.Message, settings model.Settings) (model.Streamer, error) {
	params, err := c.prepareRequest(messages, settings)
	if err != nil {
		return nil, err
	}
	stream := c.msg.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, translateError(err)
	}
	return newStreamer(ctx, stream), nil
}

func (c *Client) prepareRequest(messages []model.Message, settings model.Settings) (*sdk.MessageNewParams, error) {
	if len(messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	modelID := settings.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	msgs, system, err := encodeMessages(messages)
	if err != nil {
		return nil, err
	}
	maxTokens := settings.MaxTokens
	if maxTokens <= 0 {
		return nil, errors.New("anthropic: max_tokens must be positive")
	}
	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(modelID),
	}
	if len(system) > 0 {
		params.System = system
	}
	if settings.Temperature > 0 {
		params.Temperature = sdk.Float(float64(settings.Temperature))
	}
	if len(settings.Tools) > 0 {
		tools, err := encodeTools(settings.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	return &params, nil
}

func encodeMessages(msgs []model.Message) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	system := make([]sdk.TextBlockParam, 0, len(msgs))

	for _, m := range msgs {
		if m.Role == model.RoleSystem {
			for _, p := range m.Parts {
				if v, ok := p.(model.TextPart); ok && v.Text != "" {
					system = append(system, sdk.TextBlockParam{Text: v.Text})
				}
			}
			continue
		}

		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch v := part.(type) {
			case model.TextPart:
				if v.Text != "" {
					blocks = append(blocks, sdk.NewTextBlock(v.Text))
				}
			case model.ToolCallPart:
				var input any
				if len(v.Input) > 0 {
					_ = json.Unmarshal(v.Input, &input)
				}
				blocks = append(blocks, sdk.NewToolUseBlock(v.ToolCallID, input, v.ToolName))
			case model.ToolResultPart:
				blocks = append(blocks, encodeToolResult(v))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role { //nolint:exhaustive
		case model.RoleUser:
			conversation = append(conversation, sdk.NewUserMessage(blocks...))
		case model.RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func encodeToolResult(v model.ToolResultPart) sdk.ContentBlockParamUnion {
	var sb []byte
	for _, p := range v.Parts {
		if t, ok := p.(model.TextPart); ok {
			sb = append(sb, []byte(t.Text)...)
		}
	}
	return sdk.NewToolResultBlock(v.ToolCallID, string(sb), false)
}

func encodeTools(defs []model.ToolDefinition) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		schema, err := toolInputSchema(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", def.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(schema, def.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func toolInputSchema(schema any) (sdk.ToolInputSchemaParam, error) {
	if schema == nil {
		return sdk.ToolInputSchemaParam{}, nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

func translateError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		kind := model.ProviderErrorKindUnknown
		retryable := false
		switch apiErr.StatusCode {
		case 401, 403:
			kind = model.ProviderErrorKindAuth
		case 429:
			kind = model.ProviderErrorKindRateLimited
			retryable = true
		case 400, 422:
			kind = model.ProviderErrorKindInvalidRequest
		case 500, 502, 503, 504:
			kind = model.ProviderErrorKindUnavailable
			retryable = true
		}
		return model.NewProviderError("anthropic", "messages.new", apiErr.StatusCode, kind, "", apiErr.Error(), apiErr.RequestID, retryable, err)
	}
	return model.NewProviderError("anthropic", "messages.new", 0, model.ProviderErrorKindUnknown, "", err.Error(), "", false, err)
}

func translateResponse(msg *sdk.Message) *model.Response {
	resp := &model.Response{}
	var parts []model.Part
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text == "" {
				continue
			}
			parts = append(parts, model.TextPart{Text: block.Text})
		case "tool_use":
			tc := model.ToolCallPart{ToolCallID: block.ID, ToolName: block.Name, Input: block.Input}
			parts = append(parts, tc)
			resp.ToolCalls = append(resp.ToolCalls, tc)
		}
	}
	resp.Message = model.Message{Role: model.RoleAssistant, Parts: parts}
	if u := msg.Usage; u.InputTokens != 0 || u.OutputTokens != 0 {
		resp.Usage = model.TokenUsage{
			InputTokens:      int(u.InputTokens),
			OutputTokens:     int(u.OutputTokens),
			TotalTokens:      int(u.InputTokens + u.OutputTokens),
			CacheReadTokens:  int(u.CacheReadInputTokens),
			CacheWriteTokens: int(u.CacheCreationInputTokens),
		}
	}
	resp.StopReason = string(msg.StopReason)
	return resp
}
