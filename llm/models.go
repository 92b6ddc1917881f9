// Package llm provides shared data models for LLM providers.
package llm

import "encoding/json"

// ChatMessage represents a chat message with role and content.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // For assistant messages with tool calls
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool result messages
	IsError    bool       `json:"is_error,omitempty"`     // Marks a tool result as a failure
}

// ToolCall represents a tool call from the LLM.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition defines a tool that the LLM can call.
//
// Type is empty for ordinary schema-described tools. A non-empty Type marks
// a server-side capability (e.g. code execution) that the model-serving API
// handles itself; providers that cannot express the capability omit it from
// the wire request, and it is never dispatched to a tool provider.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
	Type        string                 `json:"type,omitempty"`
}

// CodeExecutionToolName is the built-in capability handled by the serving API.
const CodeExecutionToolName = "code_execution"

const codeExecutionToolType = "code_execution_20250825"

// CodeExecutionTool returns the built-in code execution capability tag.
func CodeExecutionTool() ToolDefinition {
	return ToolDefinition{
		Name: CodeExecutionToolName,
		Type: codeExecutionToolType,
	}
}

// SystemMessage creates a system message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    "system",
		Content: content,
	}
}

// UserMessage creates a user message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    "user",
		Content: content,
	}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    "assistant",
		Content: content,
	}
}

// ToolResultMessage creates a tool result message for the given call id.
func ToolResultMessage(toolCallID, content string, isError bool) ChatMessage {
	return ChatMessage{
		Role:       "tool",
		Content:    content,
		ToolCallID: toolCallID,
		IsError:    isError,
	}
}

// StopReason classifies why the model stopped generating.
type StopReason string

const (
	// StopEndTurn means the model produced a final answer.
	StopEndTurn StopReason = "end_turn"
	// StopToolUse means the model is requesting tool calls.
	StopToolUse StopReason = "tool_use"
	// StopOther covers every other provider-specific stop reason.
	StopOther StopReason = "other"
)

// LLMResponse represents a response from an LLM provider.
type LLMResponse struct {
	Content       string     // Plain-text segments, newline-joined
	ToolCalls     []ToolCall // Tool calls requested by the LLM
	StopReason    StopReason
	RawStopReason string // Provider's stop reason verbatim
	Usage         *TokenUsage
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}
