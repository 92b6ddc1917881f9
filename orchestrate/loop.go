// Package orchestrate runs the agentic tool-use loop.
//
// The loop alternates between LLM turns and tool execution until the model
// stops requesting tools or the iteration budget runs out. Tool execution is
// delegated to a ToolExecutor; the loop itself knows nothing about MCP
// servers or tool routing.
//
// Information Hiding:
// - Stop reason handling hidden
// - Capability tag merging hidden
// - Tool failure conversion hidden
package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/richinex/marionette/llm"
)

// DefaultMaxIterations bounds how many LLM turns one Run may take.
const DefaultMaxIterations = 50

// ToolExecutor runs one named tool call and returns its text result.
// A returned error marks the result as a failure; it never aborts the loop.
type ToolExecutor func(ctx context.Context, name string, args json.RawMessage) (string, error)

// Outcome is the result of one loop run.
type Outcome struct {
	// Response is the last LLM response received.
	Response llm.LLMResponse
	// Messages is the full conversation including everything the loop appended.
	Messages []llm.ChatMessage
	// Iterations is the number of LLM turns taken.
	Iterations int
	// Exhausted is true when the model was still requesting tools as the
	// iteration budget ran out. The pending tool calls were not executed.
	Exhausted bool
}

// Text returns the final assistant text.
func (o Outcome) Text() string {
	return o.Response.Content
}

// Loop drives tool-use conversations against a single provider.
type Loop struct {
	provider      llm.Provider
	executor      ToolExecutor
	maxIterations int
}

// NewLoop creates a loop with the default iteration budget.
func NewLoop(provider llm.Provider, executor ToolExecutor) *Loop {
	return &Loop{
		provider:      provider,
		executor:      executor,
		maxIterations: DefaultMaxIterations,
	}
}

// WithMaxIterations sets the iteration budget. Values below 1 are ignored.
func (l *Loop) WithMaxIterations(n int) *Loop {
	if n >= 1 {
		l.maxIterations = n
	}
	return l
}

// Run executes the loop starting from the given conversation. The code
// execution capability tag is always offered to the model alongside the
// caller's tools; its calls are handled by the serving API and never reach
// the executor.
func (l *Loop) Run(ctx context.Context, messages []llm.ChatMessage, tools []llm.ToolDefinition) (Outcome, error) {
	merged := mergeCapabilities(tools)

	conversation := make([]llm.ChatMessage, len(messages))
	copy(conversation, messages)

	iterations := 0
	for {
		iterations++

		resp, err := l.provider.ChatWithTools(ctx, conversation, merged)
		if err != nil {
			return Outcome{Messages: conversation, Iterations: iterations}, fmt.Errorf("llm turn %d: %w", iterations, err)
		}

		conversation = append(conversation, llm.ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if resp.StopReason != llm.StopToolUse || len(resp.ToolCalls) == 0 {
			return Outcome{
				Response:   resp,
				Messages:   conversation,
				Iterations: iterations,
			}, nil
		}

		if iterations >= l.maxIterations {
			// Out of turns with tools still pending. The pending calls are
			// deliberately not executed; the caller can tell this apart from
			// a normal completion and decide what to do with the transcript.
			return Outcome{
				Response:   resp,
				Messages:   conversation,
				Iterations: iterations,
				Exhausted:  true,
			}, nil
		}

		for _, call := range resp.ToolCalls {
			if call.Name == llm.CodeExecutionToolName {
				// Executed server-side by the model API; there is nothing
				// to dispatch and no result to report.
				continue
			}

			result, err := l.executor(ctx, call.Name, call.Arguments)
			if err != nil {
				conversation = append(conversation,
					llm.ToolResultMessage(call.ID, fmt.Sprintf("Error executing %s: %v", call.Name, err), true))
				continue
			}
			conversation = append(conversation, llm.ToolResultMessage(call.ID, result, false))
		}
	}
}

// mergeCapabilities prepends the code execution tag unless the caller
// already supplied it.
func mergeCapabilities(tools []llm.ToolDefinition) []llm.ToolDefinition {
	for _, tool := range tools {
		if tool.Name == llm.CodeExecutionToolName {
			out := make([]llm.ToolDefinition, len(tools))
			copy(out, tools)
			return out
		}
	}

	out := make([]llm.ToolDefinition, 0, len(tools)+1)
	out = append(out, llm.CodeExecutionTool())
	out = append(out, tools...)
	return out
}
