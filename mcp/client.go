// Package mcp provides a Model Context Protocol (MCP) client.
//
// MCP is a protocol for communication between AI models and tool providers.
// This package provides a client that connects to MCP servers and executes
// tools through line-delimited JSON-RPC 2.0 over stdin/stdout.
//
// Information Hiding:
// - Process management hidden
// - JSON-RPC framing and id tracking hidden
// - Handshake sequence hidden

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"
)

// protocolVersion is the MCP revision this client speaks.
const protocolVersion = "2024-11-05"

// closeGrace is how long Close waits for a server to exit after a
// termination request before killing it.
const closeGrace = 5 * time.Second

// ToolInfo describes a tool available on an MCP server.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ContentBlock is one content element of a tool result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	raw json.RawMessage
}

// UnmarshalJSON keeps the wire form of the block alongside the decoded
// fields, so non-text block types survive into Text verbatim.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	type plain ContentBlock
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = ContentBlock(p)
	b.raw = append(json.RawMessage(nil), data...)
	return nil
}

// ToolResult is the outcome of a tools/call invocation.
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// Text returns the result's content as one string: text blocks verbatim,
// every other block type JSON-serialized, newline-joined.
func (r ToolResult) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, block := range r.Content {
		switch {
		case block.Type == "text":
			parts = append(parts, block.Text)
		case len(block.raw) > 0:
			parts = append(parts, string(block.raw))
		default:
			if data, err := json.Marshal(block); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// Client manages one MCP server process and its discovered tools.
//
// One in-flight request at a time: the underlying stream serializes calls,
// so there is no pipelining and no id-based demultiplexing. The client
// exclusively owns its child process and terminates it on Close.
type Client struct {
	name    string
	command string
	args    []string
	env     map[string]string

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	rpc   *stream
	tools map[string]ToolInfo
	live  bool
}

// NewClient creates a client for the named server. The process is not
// started until Connect.
func NewClient(name string, cfg ServerConfig) *Client {
	return &Client{
		name:    name,
		command: cfg.Command,
		args:    cfg.Args,
		env:     cfg.Env,
	}
}

// Name returns the server's display name.
func (c *Client) Name() string {
	return c.name
}

// Connect spawns the server process and performs the MCP handshake:
// an initialize request, an initialized notification, then a tools/list
// request that populates the tool registry. Calling Connect on a live
// connection is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.live {
		return nil
	}

	cmd := exec.Command(c.command, c.args...)
	cmd.Env = overlayEnv(c.env)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &ConnectError{Server: c.name, Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return &ConnectError{Server: c.name, Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return &ConnectError{Server: c.name, Err: fmt.Errorf("start process: %w", err)}
	}

	c.cmd = cmd
	c.stdin = stdin
	c.rpc = newStream(stdin, stdout)

	if err := c.handshake(ctx); err != nil {
		c.teardownLocked()
		return &ConnectError{Server: c.name, Err: err}
	}

	c.live = true
	return nil
}

func (c *Client) handshake(ctx context.Context) error {
	_, err := c.rpc.call(ctx, "initialize", map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "marionette",
			"version": "0.1.0",
		},
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	if err := c.rpc.notify(ctx, "notifications/initialized", map[string]interface{}{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}

	result, err := c.rpc.call(ctx, "tools/list", map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("tools/list: %w", err)
	}

	var listed struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(result, &listed); err != nil {
		return fmt.Errorf("parse tools list: %w", err)
	}

	// Replace the registry wholesale; never merge across connects.
	tools := make(map[string]ToolInfo, len(listed.Tools))
	for _, tool := range listed.Tools {
		tools[tool.Name] = tool
	}
	c.tools = tools

	return nil
}

// Tools returns the discovered tools sorted by name.
func (c *Client) Tools() []ToolInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]ToolInfo, 0, len(c.tools))
	for _, tool := range c.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Tool looks up a discovered tool by name.
func (c *Client) Tool(name string) (ToolInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tool, ok := c.tools[name]
	return tool, ok
}

// Call sends a raw JSON-RPC request to the server.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	rpc, err := c.liveStream()
	if err != nil {
		return nil, err
	}
	return rpc.call(ctx, method, params)
}

// Notify sends a JSON-RPC notification to the server.
func (c *Client) Notify(ctx context.Context, method string, params interface{}) error {
	rpc, err := c.liveStream()
	if err != nil {
		return err
	}
	return rpc.notify(ctx, method, params)
}

// CallTool invokes a named tool with JSON arguments and parses the result.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (ToolResult, error) {
	if len(arguments) == 0 {
		arguments = json.RawMessage(`{}`)
	}

	raw, err := c.Call(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": arguments,
	})
	if err != nil {
		return ToolResult{}, err
	}

	var result ToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return ToolResult{}, fmt.Errorf("parse tool result: %w", err)
	}
	return result, nil
}

func (c *Client) liveStream() (*stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.live {
		return nil, fmt.Errorf("server %s not connected: %w", c.name, ErrConnectionLost)
	}
	return c.rpc, nil
}

// Close requests graceful termination, waits up to the grace period, then
// kills the process. Safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownLocked()
	return nil
}

func (c *Client) teardownLocked() {
	c.live = false
	c.tools = nil

	if c.stdin != nil {
		c.stdin.Close()
		c.stdin = nil
	}

	if c.cmd == nil || c.cmd.Process == nil {
		c.cmd = nil
		return
	}

	proc := c.cmd.Process
	done := make(chan struct{})
	go func() {
		_ = c.cmd.Wait()
		close(done)
	}()

	_ = proc.Signal(syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(closeGrace):
		_ = proc.Kill()
		<-done
	}

	c.cmd = nil
	c.rpc = nil
}

// overlayEnv merges the overlay onto the current environment.
func overlayEnv(overlay map[string]string) []string {
	if len(overlay) == 0 {
		return os.Environ()
	}
	env := os.Environ()
	for key, value := range overlay {
		env = append(env, key+"="+value)
	}
	return env
}
