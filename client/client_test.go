package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/richinex/marionette/llm"
	"github.com/richinex/marionette/mcp"
)

// fakeServer is an in-memory toolServer.
type fakeServer struct {
	name   string
	tools  []mcp.ToolInfo
	calls  []string
	result mcp.ToolResult
	closed bool
}

func (f *fakeServer) Name() string                      { return f.name }
func (f *fakeServer) Connect(ctx context.Context) error { return nil }
func (f *fakeServer) Tools() []mcp.ToolInfo             { return f.tools }
func (f *fakeServer) Close() error                      { f.closed = true; return nil }

func (f *fakeServer) CallTool(ctx context.Context, name string, arguments json.RawMessage) (mcp.ToolResult, error) {
	f.calls = append(f.calls, name)
	if f.result.Content != nil {
		return f.result, nil
	}
	return mcp.ToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: "result from " + f.name}}}, nil
}

var _ toolServer = (*fakeServer)(nil)

// scriptedProvider replays canned responses.
type scriptedProvider struct {
	script []llm.LLMResponse
	calls  int
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-model" }

func (p *scriptedProvider) Chat(ctx context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	return p.ChatWithTools(ctx, messages, nil)
}

func (p *scriptedProvider) ChatWithTools(ctx context.Context, messages []llm.ChatMessage, tools []llm.ToolDefinition) (llm.LLMResponse, error) {
	if p.calls >= len(p.script) {
		return llm.LLMResponse{}, errors.New("script exhausted")
	}
	resp := p.script[p.calls]
	p.calls++
	return resp, nil
}

func newTestClient(warnings *[]string) *Client {
	c := New(&scriptedProvider{}, &mcp.Config{MCPServers: map[string]mcp.ServerConfig{}})
	c.warnf = func(format string, args ...interface{}) {
		*warnings = append(*warnings, fmt.Sprintf(format, args...))
	}
	return c
}

func schema(raw string) json.RawMessage { return json.RawMessage(raw) }

func TestRoutingDispatchesToOwningServer(t *testing.T) {
	var warnings []string
	c := newTestClient(&warnings)

	fetch := &fakeServer{name: "fetch", tools: []mcp.ToolInfo{{Name: "fetch_url", InputSchema: schema(`{"type":"object"}`)}}}
	browser := &fakeServer{name: "browser", tools: []mcp.ToolInfo{{Name: "browser_click", InputSchema: schema(`{"type":"object"}`)}}}
	c.registerServer(fetch)
	c.registerServer(browser)

	result, err := c.executeTool(context.Background(), "browser_click", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("executeTool: %v", err)
	}
	if result != "result from browser" {
		t.Errorf("result = %q", result)
	}
	if len(fetch.calls) != 0 || len(browser.calls) != 1 {
		t.Errorf("calls: fetch=%v browser=%v", fetch.calls, browser.calls)
	}
}

func TestRoutingCollisionLastWinsWithWarning(t *testing.T) {
	var warnings []string
	c := newTestClient(&warnings)

	first := &fakeServer{name: "alpha", tools: []mcp.ToolInfo{{Name: "shared_tool"}}}
	second := &fakeServer{name: "beta", tools: []mcp.ToolInfo{{Name: "shared_tool"}}}
	c.registerServer(first)
	c.registerServer(second)

	if _, err := c.executeTool(context.Background(), "shared_tool", nil); err != nil {
		t.Fatalf("executeTool: %v", err)
	}
	if len(second.calls) != 1 || len(first.calls) != 0 {
		t.Error("later-registered server should own the colliding tool")
	}

	if len(warnings) != 1 {
		t.Fatalf("warnings = %v", warnings)
	}
	if !strings.Contains(warnings[0], "alpha") || !strings.Contains(warnings[0], "beta") {
		t.Errorf("warning should name both servers: %q", warnings[0])
	}
	if !strings.Contains(warnings[0], "shared_tool") {
		t.Errorf("warning should name the tool: %q", warnings[0])
	}
}

func TestUnknownToolError(t *testing.T) {
	var warnings []string
	c := newTestClient(&warnings)

	_, err := c.executeTool(context.Background(), "never_registered", nil)
	var unknown *UnknownToolError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want UnknownToolError", err)
	}
	if unknown.Tool != "never_registered" {
		t.Errorf("Tool = %q", unknown.Tool)
	}
}

func TestErrorFlaggedToolResultBecomesError(t *testing.T) {
	var warnings []string
	c := newTestClient(&warnings)

	c.registerServer(&fakeServer{
		name:  "fetch",
		tools: []mcp.ToolInfo{{Name: "fetch_url"}},
		result: mcp.ToolResult{
			Content: []mcp.ContentBlock{{Type: "text", Text: "Error: no such page"}},
			IsError: true,
		},
	})

	_, err := c.executeTool(context.Background(), "fetch_url", nil)
	if err == nil || !strings.Contains(err.Error(), "no such page") {
		t.Errorf("err = %v", err)
	}
}

func TestRunRequiresTools(t *testing.T) {
	var warnings []string
	c := newTestClient(&warnings)

	if _, err := c.Run(context.Background(), "hello", RunOptions{}); err == nil {
		t.Error("Run without loaded tools should fail")
	}
}

func TestRunDispatchesThroughLoop(t *testing.T) {
	var warnings []string
	c := newTestClient(&warnings)
	c.provider = &scriptedProvider{script: []llm.LLMResponse{
		{
			StopReason: llm.StopToolUse,
			ToolCalls:  []llm.ToolCall{{ID: "c1", Name: "fetch_url", Arguments: json.RawMessage(`{"url":"https://example.com"}`)}},
		},
		{Content: "all done", StopReason: llm.StopEndTurn},
	}}

	fetch := &fakeServer{name: "fetch", tools: []mcp.ToolInfo{{Name: "fetch_url", InputSchema: schema(`{"type":"object"}`)}}}
	c.registerServer(fetch)

	outcome, err := c.Run(context.Background(), "fetch the page", RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Text() != "all done" {
		t.Errorf("Text() = %q", outcome.Text())
	}
	if len(fetch.calls) != 1 {
		t.Errorf("fetch calls = %v", fetch.calls)
	}
}

func TestRunFiltersToolSet(t *testing.T) {
	var warnings []string
	c := newTestClient(&warnings)
	c.registerServer(&fakeServer{name: "fetch", tools: []mcp.ToolInfo{
		{Name: "fetch_url", InputSchema: schema(`{"type":"object"}`)},
		{Name: "create_session", InputSchema: schema(`{"type":"object"}`)},
	}})

	defs := c.toolDefinitions([]string{"fetch_url"})
	if len(defs) != 1 || defs[0].Name != "fetch_url" {
		t.Errorf("defs = %+v", defs)
	}
}

func TestLoadServersMissingName(t *testing.T) {
	var warnings []string
	c := newTestClient(&warnings)

	err := c.LoadServers(context.Background(), []string{"absent"})
	if err == nil || !strings.Contains(err.Error(), "absent") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadServersSkipsRemoteEntries(t *testing.T) {
	var warnings []string
	c := newTestClient(&warnings)
	c.config = &mcp.Config{MCPServers: map[string]mcp.ServerConfig{
		"remote": {URL: "https://mcp.example.com/sse"},
	}}

	if err := c.LoadServers(context.Background(), nil); err != nil {
		t.Fatalf("LoadServers: %v", err)
	}
	if len(c.servers) != 0 {
		t.Errorf("remote entry should not be connected: %v", c.servers)
	}
}

func TestCloseClearsRouting(t *testing.T) {
	var warnings []string
	c := newTestClient(&warnings)

	server := &fakeServer{name: "fetch", tools: []mcp.ToolInfo{{Name: "fetch_url"}}}
	c.registerServer(server)

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !server.closed {
		t.Error("server not closed")
	}
	if len(c.routes) != 0 || len(c.servers) != 0 {
		t.Error("routing table not cleared")
	}
	// Idempotent.
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
