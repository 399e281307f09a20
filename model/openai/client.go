// Package openai adapts the OpenAI Chat Completions API to model.Client.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/distrihq/distri/model"
)

// ChatClient is the subset of the OpenAI SDK client this adapter calls.
type ChatClient interface {
	New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
}

// Client implements model.Client via the OpenAI Chat Completions API.
// Streaming is not implemented: OpenAI's SSE chunk shape does not map
// cleanly onto this adapter's Chunk type, so Stream returns
// model.ErrStreamingUnsupported for every request.
type Client struct {
	chat         ChatClient
	defaultModel string
}

// New builds an OpenAI-backed client. defaultModel is used when a request's
// Settings.Model is empty.
func New(chat ChatClient, defaultModel string) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if strings.TrimSpace(defaultModel) == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{chat: chat, defaultModel: defaultModel}, nil
}

// NewFromAPIKey constructs a client using the SDK's default HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Chat.Completions, defaultModel)
}

func (c *Client) Complete(ctx context.Context, messages []model.Message, settings model.Settings) (*model.Response, error) {
	params, err := c.prepareRequest(messages, settings)
	if err != nil {
		return nil, err
	}
	resp, err := c.chat.New(ctx, *params)
	if err != nil {
		return nil, translateError(err)
	}
	return translateResponse(resp), nil
}

// Stream reports that this adapter does not support streaming.
func (c *Client) Stream(context.Context, []model.Message, model.Settings) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func (c *Client) prepareRequest(messages []model.Message, settings model.Settings) (*sdk.ChatCompletionNewParams, error) {
	if len(messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := settings.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	encoded, err := encodeMessages(messages)
	if err != nil {
		return nil, err
	}
	params := &sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(modelID),
		Messages: encoded,
	}
	if settings.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(settings.MaxTokens))
	}
	if settings.Temperature > 0 {
		params.Temperature = sdk.Float(float64(settings.Temperature))
	}
	if len(settings.Tools) > 0 {
		params.Tools = encodeTools(settings.Tools)
	}
	return params, nil
}

func encodeMessages(msgs []model.Message) ([]sdk.ChatCompletionMessageParamUnion, error) {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		text := textOf(m.Parts)
		switch m.Role {
		case model.RoleSystem:
			out = append(out, sdk.SystemMessage(text))
		case model.RoleUser:
			out = append(out, sdk.UserMessage(text))
		case model.RoleAssistant:
			asst := sdk.ChatCompletionAssistantMessageParam{}
			if text != "" {
				asst.Content.OfString = sdk.String(text)
			}
			for _, p := range m.Parts {
				if tc, ok := p.(model.ToolCallPart); ok {
					asst.ToolCalls = append(asst.ToolCalls, sdk.ChatCompletionMessageToolCallParam{
						ID:   tc.ToolCallID,
						Type: "function",
						Function: sdk.ChatCompletionMessageToolCallFunctionParam{
							Name:      tc.ToolName,
							Arguments: string(tc.Input),
						},
					})
				}
			}
			out = append(out, sdk.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case model.RoleTool:
			out = append(out, sdk.ToolMessage(text, m.ToolCallID))
		default:
			return nil, errors.New("openai: unsupported message role " + string(m.Role))
		}
	}
	return out, nil
}

func textOf(parts []model.Part) string {
	var sb strings.Builder
	for _, p := range parts {
		if t, ok := p.(model.TextPart); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

func encodeTools(defs []model.ToolDefinition) []sdk.ChatCompletionToolParam {
	out := make([]sdk.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		var params shared.FunctionParameters
		if data, err := json.Marshal(def.InputSchema); err == nil {
			_ = json.Unmarshal(data, &params)
		}
		out = append(out, sdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        def.Name,
				Description: sdk.String(def.Description),
				Parameters:  params,
			},
		})
	}
	return out
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
		return model.NewProviderError("openai", "chat.completions.new", apiErr.StatusCode, kind, "", apiErr.Error(), apiErr.RequestID, retryable, err)
	}
	return model.NewProviderError("openai", "chat.completions.new", 0, model.ProviderErrorKindUnknown, "", err.Error(), "", false, err)
}

func translateResponse(resp *sdk.ChatCompletion) *model.Response {
	out := &model.Response{Message: model.Message{Role: model.RoleAssistant}}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	if choice.Message.Content != "" {
		out.Message.Parts = append(out.Message.Parts, model.TextPart{Text: choice.Message.Content})
	}
	for _, call := range choice.Message.ToolCalls {
		tc := model.ToolCallPart{
			ToolCallID: call.ID,
			ToolName:   call.Function.Name,
			Input:      json.RawMessage(call.Function.Arguments),
		}
		out.Message.Parts = append(out.Message.Parts, tc)
		out.ToolCalls = append(out.ToolCalls, tc)
	}
	out.Usage = model.TokenUsage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
	}
	out.StopReason = string(choice.FinishReason)
	return out
}
