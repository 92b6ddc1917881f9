package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

// handshakeServer answers the three handshake methods and tools/call.
func handshakeServer(tools []ToolInfo) func(req rpcRequest) interface{} {
	return func(req rpcRequest) interface{} {
		switch req.Method {
		case "initialize":
			return rpcResponse{JSONRPC: "2.0", ID: req.ID,
				Result: json.RawMessage(`{"protocolVersion":"2024-11-05","serverInfo":{"name":"fake"}}`)}
		case "notifications/initialized":
			return nil
		case "tools/list":
			payload, _ := json.Marshal(map[string]interface{}{"tools": tools})
			return rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: payload}
		case "tools/call":
			return rpcResponse{JSONRPC: "2.0", ID: req.ID,
				Result: json.RawMessage(`{"content":[{"type":"text","text":"first"},{"type":"text","text":"second"}]}`)}
		default:
			return rpcResponse{JSONRPC: "2.0", ID: req.ID,
				Error: &rpcError{Code: -32601, Message: "method not found"}}
		}
	}
}

func connectedTestClient(t *testing.T, tools []ToolInfo) *Client {
	t.Helper()
	c := NewClient("test", ServerConfig{Command: "unused"})
	c.rpc = newTestStream(t, handshakeServer(tools))
	if err := c.handshake(context.Background()); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	c.live = true
	return c
}

func TestConnectNonexistentCommand(t *testing.T) {
	c := NewClient("broken", ServerConfig{Command: "/nonexistent/mcp-server-binary"})
	err := c.Connect(context.Background())

	var connectErr *ConnectError
	if !errors.As(err, &connectErr) {
		t.Fatalf("err = %v, want ConnectError", err)
	}
	if connectErr.Server != "broken" {
		t.Errorf("Server = %q", connectErr.Server)
	}
}

func TestConnectIdempotent(t *testing.T) {
	c := NewClient("live", ServerConfig{Command: "/nonexistent/mcp-server-binary"})
	c.live = true

	// Already live: must not spawn anything, must not fail.
	if err := c.Connect(context.Background()); err != nil {
		t.Errorf("Connect on live client: %v", err)
	}
}

func TestHandshakePopulatesTools(t *testing.T) {
	c := connectedTestClient(t, []ToolInfo{
		{Name: "zeta_tool", Description: "last"},
		{Name: "fetch_url", Description: "first"},
	})

	tools := c.Tools()
	if len(tools) != 2 {
		t.Fatalf("len(tools) = %d", len(tools))
	}
	if tools[0].Name != "fetch_url" || tools[1].Name != "zeta_tool" {
		t.Errorf("tools not sorted by name: %q, %q", tools[0].Name, tools[1].Name)
	}

	if _, ok := c.Tool("fetch_url"); !ok {
		t.Error("Tool lookup failed")
	}
	if _, ok := c.Tool("absent"); ok {
		t.Error("Tool lookup for unknown name should miss")
	}
}

func TestCallTool(t *testing.T) {
	c := connectedTestClient(t, nil)

	result, err := c.CallTool(context.Background(), "fetch_url", json.RawMessage(`{"url":"https://example.com"}`))
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result.IsError {
		t.Error("IsError should be false")
	}
	if got := result.Text(); got != "first\nsecond" {
		t.Errorf("Text() = %q", got)
	}
}

func TestCallBeforeConnect(t *testing.T) {
	c := NewClient("cold", ServerConfig{Command: "unused"})
	_, err := c.Call(context.Background(), "tools/list", nil)
	if !errors.Is(err, ErrConnectionLost) {
		t.Errorf("err = %v, want ErrConnectionLost", err)
	}
}

func TestToolResultTextSerializesNonText(t *testing.T) {
	var result ToolResult
	wire := `{"content": [
		{"type": "image", "data": "iVBOR", "mimeType": "image/png"},
		{"type": "text", "text": "caption"}
	]}`
	if err := json.Unmarshal([]byte(wire), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got := result.Text()
	want := `{"type": "image", "data": "iVBOR", "mimeType": "image/png"}` + "\ncaption"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestToolResultTextLiteralBlocks(t *testing.T) {
	result := ToolResult{Content: []ContentBlock{
		{Type: "image"},
		{Type: "text", Text: "kept"},
	}}
	if got := result.Text(); got != `{"type":"image"}`+"\nkept" {
		t.Errorf("Text() = %q", got)
	}
}
