// Package bedrock adapts the AWS Bedrock Converse API to model.Client.
package bedrock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/distrihq/distri/model"
)

// RuntimeClient is the subset of *bedrockruntime.Client this adapter calls.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Client implements model.Client on top of AWS Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
}

// New builds a Bedrock-backed client. defaultModel is used when a request's
// Settings.Model is empty.
func New(runtime RuntimeClient, defaultModel string) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("bedrock: default model is required")
	}
	return &Client{runtime: runtime, defaultModel: defaultModel}, nil
}

func (c *Client) Complete(ctx context.Context, messages []model.Message, settings model.Settings) (*model.Response, error) {
	parts, err := c.prepareRequest(messages, settings)
	if err != nil {
		return nil, err
	}
	input := &bedrockruntime.ConverseInput{ModelId: aws.String(parts.modelID), Messages: parts.messages}
	if len(parts.system) > 0 {
		input.System = parts.system
	}
	if parts.toolConfig != nil {
		input.ToolConfig = parts.toolConfig
	}
	if cfg := inferenceConfig(settings); cfg != nil {
		input.InferenceConfig = cfg
	}
	output, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return nil, translateError(err)
	}
	return translateResponse(output, parts.sanToCanon)
}

func (c *Client) Stream(ctx context.Context, messages []model.Message, settings model.Settings) (model.Streamer, error) {
	parts, err := c.prepareRequest(messages, settings)
	if err != nil {
		return nil, err
	}
	input := &bedrockruntime.ConverseStreamInput{ModelId: aws.String(parts.modelID), Messages: parts.messages}
	if len(parts.system) > 0 {
		input.System = parts.system
	}
	if parts.toolConfig != nil {
		input.ToolConfig = parts.toolConfig
	}
	if cfg := inferenceConfig(settings); cfg != nil {
		input.InferenceConfig = cfg
	}
	out, err := c.runtime.ConverseStream(ctx, input)
	if err != nil {
		return nil, translateError(err)
	}
	stream := out.GetStream()
	if stream == nil {
		return nil, errors.New("bedrock: stream output missing event stream")
	}
	return newStreamer(ctx, stream, parts.sanToCanon), nil
}

type requestParts struct {
	modelID    string
	messages   []brtypes.Message
	system     []brtypes.SystemContentBlock
	toolConfig *brtypes.ToolConfiguration
	canonToSan map[string]string
	sanToCanon map[string]string
}

func (c *Client) prepareRequest(messages []model.Message, settings model.Settings) (*requestParts, error) {
	if len(messages) == 0 {
		return nil, errors.New("bedrock: messages are required")
	}
	modelID := settings.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	toolConfig, canonToSan, sanToCanon, err := encodeTools(settings.Tools)
	if err != nil {
		return nil, err
	}
	msgs, system, err := encodeMessages(messages, canonToSan)
	if err != nil {
		return nil, err
	}
	return &requestParts{modelID: modelID, messages: msgs, system: system, toolConfig: toolConfig, canonToSan: canonToSan, sanToCanon: sanToCanon}, nil
}

func inferenceConfig(settings model.Settings) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	if settings.MaxTokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(settings.MaxTokens)) //nolint:gosec
	}
	if settings.Temperature > 0 {
		cfg.Temperature = aws.Float32(settings.Temperature)
	}
	if cfg.MaxTokens == nil && cfg.Temperature == nil {
		return nil
	}
	return &cfg
}

func encodeMessages(msgs []model.Message, nameMap map[string]string) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	conversation := make([]brtypes.Message, 0, len(msgs))
	system := make([]brtypes.SystemContentBlock, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == model.RoleSystem {
			for _, p := range m.Parts {
				if v, ok := p.(model.TextPart); ok && v.Text != "" {
					system = append(system, &brtypes.SystemContentBlockMemberText{Value: v.Text})
				}
			}
			continue
		}
		blocks := make([]brtypes.ContentBlock, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch v := part.(type) {
			case model.TextPart:
				if v.Text != "" {
					blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: v.Text})
				}
			case model.ToolCallPart:
				tb := brtypes.ToolUseBlock{ToolUseId: aws.String(v.ToolCallID)}
				if sanitized, ok := nameMap[v.ToolName]; ok {
					tb.Name = aws.String(sanitized)
				} else {
					tb.Name = aws.String(v.ToolName)
				}
				tb.Input = toDocument(v.Input)
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: tb})
			case model.ToolResultPart:
				tr := brtypes.ToolResultBlock{ToolUseId: aws.String(v.ToolCallID)}
				var sb strings.Builder
				for _, rp := range v.Parts {
					if t, ok := rp.(model.TextPart); ok {
						sb.WriteString(t.Text)
					}
				}
				tr.Content = []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: sb.String()}}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{Value: tr})
			}
		}
		if len(blocks) == 0 {
			continue
		}
		role := brtypes.ConversationRoleUser
		if m.Role == model.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		conversation = append(conversation, brtypes.Message{Role: role, Content: blocks})
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("bedrock: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func encodeTools(defs []model.ToolDefinition) (*brtypes.ToolConfiguration, map[string]string, map[string]string, error) {
	if len(defs) == 0 {
		return nil, nil, nil, nil
	}
	toolList := make([]brtypes.Tool, 0, len(defs))
	canonToSan := make(map[string]string, len(defs))
	sanToCanon := make(map[string]string, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		sanitized := sanitizeToolName(def.Name)
		canonToSan[def.Name] = sanitized
		sanToCanon[sanitized] = def.Name
		spec := brtypes.ToolSpecification{
			Name:        aws.String(sanitized),
			Description: aws.String(def.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: toDocument(def.InputSchema)},
		}
		toolList = append(toolList, &brtypes.ToolMemberToolSpec{Value: spec})
	}
	if len(toolList) == 0 {
		return nil, nil, nil, nil
	}
	return &brtypes.ToolConfiguration{Tools: toolList}, canonToSan, sanToCanon, nil
}

// sanitizeToolName maps a canonical tool identifier to Bedrock's allowed
// charset [a-zA-Z0-9_-]+, truncating with a stable hash suffix past 64 chars.
func sanitizeToolName(in string) string {
	const maxLen = 64
	out := make([]rune, 0, len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	sanitized := string(out)
	if len(sanitized) <= maxLen {
		return sanitized
	}
	sum := sha256.Sum256([]byte(in))
	suffix := hex.EncodeToString(sum[:])[:8]
	return sanitized[:maxLen-9] + "_" + suffix
}

func toDocument(schema any) document.Interface {
	if schema == nil {
		v := any(map[string]any{"type": "object"})
		return document.NewLazyDocument(&v)
	}
	switch raw := schema.(type) {
	case json.RawMessage:
		var decoded any
		if len(raw) == 0 {
			decoded = map[string]any{"type": "object"}
		} else if err := json.Unmarshal(raw, &decoded); err != nil {
			decoded = map[string]any{"type": "object"}
		}
		return document.NewLazyDocument(&decoded)
	default:
		v := any(schema)
		return document.NewLazyDocument(&v)
	}
}

func decodeDocument(doc document.Interface) json.RawMessage {
	if doc == nil {
		return nil
	}
	data, err := doc.MarshalSmithyDocument()
	if err != nil || len(data) == 0 {
		return nil
	}
	return json.RawMessage(data)
}

func translateError(err error) error {
	kind := model.ProviderErrorKindUnknown
	retryable := false
	var apiErr smithy.APIError
	code := ""
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
		switch code {
		case "ThrottlingException", "TooManyRequestsException":
			kind = model.ProviderErrorKindRateLimited
			retryable = true
		case "AccessDeniedException", "UnauthorizedException":
			kind = model.ProviderErrorKindAuth
		case "ValidationException":
			kind = model.ProviderErrorKindInvalidRequest
		case "ServiceUnavailableException", "InternalServerException":
			kind = model.ProviderErrorKindUnavailable
			retryable = true
		}
	}
	status := 0
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
		if status == 429 {
			kind = model.ProviderErrorKindRateLimited
			retryable = true
		}
	}
	return model.NewProviderError("bedrock", "converse", status, kind, code, err.Error(), "", retryable, err)
}

func translateResponse(output *bedrockruntime.ConverseOutput, nameMap map[string]string) (*model.Response, error) {
	if output == nil {
		return nil, errors.New("bedrock: response is nil")
	}
	resp := &model.Response{Message: model.Message{Role: model.RoleAssistant}}
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			switch v := block.(type) {
			case *brtypes.ContentBlockMemberText:
				if v.Value == "" {
					continue
				}
				resp.Message.Parts = append(resp.Message.Parts, model.TextPart{Text: v.Value})
			case *brtypes.ContentBlockMemberToolUse:
				name := ""
				if v.Value.Name != nil {
					if canonical, ok := nameMap[*v.Value.Name]; ok {
						name = canonical
					} else {
						name = *v.Value.Name
					}
				}
				var id string
				if v.Value.ToolUseId != nil {
					id = *v.Value.ToolUseId
				}
				tc := model.ToolCallPart{ToolCallID: id, ToolName: name, Input: decodeDocument(v.Value.Input)}
				resp.Message.Parts = append(resp.Message.Parts, tc)
				resp.ToolCalls = append(resp.ToolCalls, tc)
			}
		}
	}
	if usage := output.Usage; usage != nil {
		resp.Usage = model.TokenUsage{
			InputTokens:  int(ptrValue(usage.InputTokens)),
			OutputTokens: int(ptrValue(usage.OutputTokens)),
			TotalTokens:  int(ptrValue(usage.TotalTokens)),
		}
	}
	resp.StopReason = string(output.StopReason)
	return resp, nil
}

func ptrValue[T ~int32 | ~int64](ptr *T) T {
	if ptr == nil {
		return 0
	}
	return *ptr
}

