// Anthropic Provider implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for Anthropic Messages API
// - Stop reason normalization
// - Beta opt-in for server-side tools

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// advancedToolUseBeta unlocks server-side tools (code execution) on the
// Messages API. Requests go through the beta service so capability tags
// reach the serving API instead of being dropped client-side.
const advancedToolUseBeta = anthropic.AnthropicBeta("advanced-tool-use-2025-11-20")

// AnthropicProvider implements the Provider interface for Anthropic Claude.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey, model string, maxTokens uint32, temperature float32) *AnthropicProvider {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &AnthropicProvider{
		client:      client,
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: float64(temperature),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Model returns the current model.
func (p *AnthropicProvider) Model() string {
	return p.model
}

// Chat sends a chat completion request.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithTools(ctx, messages, nil)
}

// ChatWithTools sends a chat completion request with tool definitions.
func (p *AnthropicProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	anthropicMessages, systemPrompt := convertToAnthropicMessages(messages)

	params := anthropic.BetaMessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		Messages:    anthropicMessages,
		Temperature: anthropic.Float(p.temperature),
		Betas:       []anthropic.AnthropicBeta{advancedToolUseBeta},
	}

	if len(tools) > 0 {
		params.Tools = convertToAnthropicTools(tools)
	}

	if systemPrompt != "" {
		params.System = []anthropic.BetaTextBlockParam{
			{Text: systemPrompt},
		}
	}

	message, err := p.client.Beta.Messages.New(ctx, params)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}

	var texts []string
	var toolCalls []ToolCall
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.BetaTextBlock:
			texts = append(texts, variant.Text)
		case anthropic.BetaToolUseBlock:
			// Get raw JSON input from the ToolUseBlock
			inputJSON, _ := json.Marshal(variant.Input)
			toolCalls = append(toolCalls, ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: inputJSON,
			})
		}
	}

	var usage *TokenUsage
	if message.Usage.InputTokens > 0 || message.Usage.OutputTokens > 0 {
		usage = &TokenUsage{
			PromptTokens:     uint32(message.Usage.InputTokens),
			CompletionTokens: uint32(message.Usage.OutputTokens),
			TotalTokens:      uint32(message.Usage.InputTokens + message.Usage.OutputTokens),
		}
	}

	raw := string(message.StopReason)
	return LLMResponse{
		Content:       strings.Join(texts, "\n"),
		ToolCalls:     toolCalls,
		StopReason:    normalizeStopReason(raw),
		RawStopReason: raw,
		Usage:         usage,
	}, nil
}

// normalizeStopReason maps a provider stop reason string onto the shared
// end_turn / tool_use / other classification.
func normalizeStopReason(raw string) StopReason {
	switch raw {
	case "end_turn", "stop", "STOP":
		return StopEndTurn
	case "tool_use", "tool_calls":
		return StopToolUse
	default:
		return StopOther
	}
}

// convertToAnthropicMessages handles text, tool calls, and tool responses.
// Extracts the system message and returns it separately.
func convertToAnthropicMessages(messages []ChatMessage) ([]anthropic.BetaMessageParam, string) {
	var anthropicMessages []anthropic.BetaMessageParam
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			systemPrompt = msg.Content
		case "user":
			anthropicMessages = append(anthropicMessages, anthropic.NewBetaUserMessage(
				anthropic.NewBetaTextBlock(msg.Content),
			))
		case "assistant":
			content := anthropic.BetaMessageParam{
				Role: anthropic.BetaMessageParamRoleAssistant,
			}
			if msg.Content != "" {
				content.Content = append(content.Content, anthropic.NewBetaTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]interface{}
				_ = json.Unmarshal(tc.Arguments, &input)
				content.Content = append(content.Content, anthropic.NewBetaToolUseBlock(tc.ID, input, tc.Name))
			}
			anthropicMessages = append(anthropicMessages, content)
		case "tool":
			block := anthropic.NewBetaToolResultBlock(msg.ToolCallID)
			block.OfToolResult.IsError = anthropic.Bool(msg.IsError)
			block.OfToolResult.Content = []anthropic.BetaToolResultBlockParamContentUnion{
				{OfText: &anthropic.BetaTextBlockParam{Text: msg.Content}},
			}
			anthropicMessages = append(anthropicMessages, anthropic.NewBetaUserMessage(block))
		}
	}

	return anthropicMessages, systemPrompt
}

// convertToAnthropicTools converts tool definitions to Anthropic format.
// The code execution capability tag is sent as the corresponding
// server-side tool; unrecognized capability tags are omitted.
func convertToAnthropicTools(tools []ToolDefinition) []anthropic.BetaToolUnionParam {
	var result []anthropic.BetaToolUnionParam
	for _, t := range tools {
		switch t.Type {
		case "":
			properties, _ := t.Parameters["properties"].(map[string]interface{})
			required := requiredFields(t.Parameters)

			toolParam := anthropic.BetaToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.BetaToolInputSchemaParam{
					Properties: properties,
					Required:   required,
				},
			}
			result = append(result, anthropic.BetaToolUnionParam{OfTool: &toolParam})
		case codeExecutionToolType:
			result = append(result, anthropic.BetaToolUnionParam{
				OfCodeExecutionTool20250825: &anthropic.BetaCodeExecutionTool20250825Param{},
			})
		}
	}
	return result
}

// requiredFields reads the schema's required list, which may arrive as
// []string or as []interface{} after a JSON round-trip.
func requiredFields(parameters map[string]interface{}) []string {
	switch v := parameters["required"].(type) {
	case []string:
		return v
	case []interface{}:
		var required []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				required = append(required, s)
			}
		}
		return required
	default:
		return nil
	}
}

// Verify AnthropicProvider implements Provider
var _ Provider = (*AnthropicProvider)(nil)
