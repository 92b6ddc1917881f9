// Package client is the high-level facade tying MCP servers, the tool
// routing table, and the agentic loop together.
//
// Information Hiding:
// - Server lifecycle and config resolution hidden
// - Tool name -> server routing hidden
// - Loop construction hidden behind Run
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/richinex/marionette/llm"
	"github.com/richinex/marionette/mcp"
	"github.com/richinex/marionette/orchestrate"
	"github.com/richinex/marionette/storage"
)

// UnknownToolError means a tool name has no server in the routing table.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Tool)
}

// toolServer is the slice of mcp.Client the facade needs. Tests substitute
// in-memory fakes.
type toolServer interface {
	Name() string
	Connect(ctx context.Context) error
	Tools() []mcp.ToolInfo
	CallTool(ctx context.Context, name string, arguments json.RawMessage) (mcp.ToolResult, error)
	Close() error
}

var _ toolServer = (*mcp.Client)(nil)

// RunOptions tune a single Run call.
type RunOptions struct {
	// Tools restricts the tool set offered to the model; nil offers every
	// loaded tool.
	Tools []string
	// System is an optional system prompt.
	System string
	// MaxIterations overrides the client's iteration budget when positive.
	MaxIterations int
	// SessionID, when set together with a store, saves the transcript.
	SessionID string
}

// Client orchestrates LLM conversations over tools loaded from MCP servers.
type Client struct {
	provider llm.Provider
	config   *mcp.Config

	servers map[string]toolServer
	routes  map[string]string // tool name -> server name

	maxIterations int
	store         *storage.Store
	warnf         func(format string, args ...interface{})
}

// New creates a facade over the given provider and server config.
func New(provider llm.Provider, config *mcp.Config) *Client {
	return &Client{
		provider:      provider,
		config:        config,
		servers:       make(map[string]toolServer),
		routes:        make(map[string]string),
		maxIterations: orchestrate.DefaultMaxIterations,
		warnf: func(format string, args ...interface{}) {
			fmt.Fprintf(os.Stderr, format, args...)
		},
	}
}

// WithMaxIterations sets the default iteration budget for Run.
func (c *Client) WithMaxIterations(n int) *Client {
	if n >= 1 {
		c.maxIterations = n
	}
	return c
}

// WithStore enables transcript persistence for runs that carry a session id.
func (c *Client) WithStore(store *storage.Store) *Client {
	c.store = store
	return c
}

// LoadServers connects the named servers from config and merges their tools
// into the routing table. nil loads every configured server. A name missing
// from the config is an error; a server that fails to connect is skipped
// with a warning and does not abort the others.
func (c *Client) LoadServers(ctx context.Context, names []string) error {
	if names == nil {
		for name := range c.config.MCPServers {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	for _, name := range names {
		cfg, ok := c.config.MCPServers[name]
		if !ok {
			return fmt.Errorf("MCP server %q not found in config", name)
		}
		if !cfg.Stdio() {
			// Remote servers are not launched by this client.
			continue
		}

		server := mcp.NewClient(name, cfg)
		if err := server.Connect(ctx); err != nil {
			c.warnf("Warning: failed to connect MCP server %s: %v\n", name, err)
			continue
		}
		c.registerServer(server)
	}
	return nil
}

// registerServer merges a connected server's tools into the routing table.
// On a name collision the later server wins and both sides are named in a
// warning.
func (c *Client) registerServer(server toolServer) {
	name := server.Name()
	c.servers[name] = server

	for _, tool := range server.Tools() {
		if previous, taken := c.routes[tool.Name]; taken && previous != name {
			c.warnf("Warning: tool %s from server %s overrides server %s\n", tool.Name, name, previous)
		}
		c.routes[tool.Name] = name
	}
}

// Run sends a prompt through the agentic loop over the loaded tools and
// returns the loop outcome. The caller can distinguish budget exhaustion
// from a normal completion via Outcome.Exhausted.
func (c *Client) Run(ctx context.Context, prompt string, opts RunOptions) (orchestrate.Outcome, error) {
	tools := c.toolDefinitions(opts.Tools)
	if len(tools) == 0 {
		return orchestrate.Outcome{}, fmt.Errorf("no tools available: call LoadServers first")
	}

	budget := c.maxIterations
	if opts.MaxIterations > 0 {
		budget = opts.MaxIterations
	}
	loop := orchestrate.NewLoop(c.provider, c.executeTool).WithMaxIterations(budget)

	var messages []llm.ChatMessage
	if opts.System != "" {
		messages = append(messages, llm.SystemMessage(opts.System))
	}
	messages = append(messages, llm.UserMessage(prompt))

	outcome, err := loop.Run(ctx, messages, tools)
	if err != nil {
		return outcome, err
	}

	if c.store != nil && opts.SessionID != "" {
		if saveErr := c.store.SaveTranscript(ctx, opts.SessionID, outcome.Messages); saveErr != nil {
			c.warnf("Warning: failed to save transcript: %v\n", saveErr)
		}
	}
	return outcome, nil
}

// ScrapeURLs fetches a batch of URLs through the fetch_url tool, optionally
// asking the model for a combined summary instead of raw content.
func (c *Client) ScrapeURLs(ctx context.Context, urls []string, summarize bool) (orchestrate.Outcome, error) {
	var list strings.Builder
	for _, url := range urls {
		fmt.Fprintf(&list, "- %s\n", url)
	}

	var prompt string
	if summarize {
		prompt = fmt.Sprintf(`Fetch content from these URLs and provide a summary:
%s
For each URL, use fetch_url to get the content, then extract key information.
After fetching all URLs, provide a structured summary comparing the content.
Only return the final summary, not the raw content.`, list.String())
	} else {
		prompt = fmt.Sprintf(`Fetch content from these URLs:
%s
For each URL, use fetch_url to get the content.
Return the key content from each page.`, list.String())
	}

	return c.Run(ctx, prompt, RunOptions{Tools: []string{"fetch_url"}})
}

// browserTools are the tool names a browser-automation MCP server exposes.
var browserTools = []string{
	"browser_navigate",
	"browser_snapshot",
	"browser_click",
	"browser_type",
	"browser_hover",
	"browser_press_key",
	"browser_select_option",
	"browser_wait",
	"browser_go_back",
	"browser_go_forward",
}

// BrowserPipeline runs natural-language browser automation over whichever
// browser tools are currently loaded.
func (c *Client) BrowserPipeline(ctx context.Context, instructions, initialURL string) (orchestrate.Outcome, error) {
	var prompt string
	if initialURL != "" {
		prompt = fmt.Sprintf(`Navigate to %s and then:
%s

Use the browser tools (browser_navigate, browser_snapshot, browser_click, browser_type, etc.)
to accomplish this task. Return only the final results.`, initialURL, instructions)
	} else {
		prompt = fmt.Sprintf(`%s

Use the browser tools to accomplish this task. Return only the final results.`, instructions)
	}

	var available []string
	for _, name := range browserTools {
		if _, ok := c.routes[name]; ok {
			available = append(available, name)
		}
	}

	return c.Run(ctx, prompt, RunOptions{Tools: available})
}

// ToolNames returns every routed tool name, sorted, with its server.
func (c *Client) ToolNames() map[string]string {
	out := make(map[string]string, len(c.routes))
	for tool, server := range c.routes {
		out[tool] = server
	}
	return out
}

// executeTool routes one loop-issued tool call to its MCP server.
func (c *Client) executeTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	serverName, ok := c.routes[name]
	if !ok {
		return "", &UnknownToolError{Tool: name}
	}
	server, ok := c.servers[serverName]
	if !ok {
		return "", fmt.Errorf("MCP server %q not connected", serverName)
	}

	result, err := server.CallTool(ctx, name, args)
	if err != nil {
		return "", err
	}
	if result.IsError {
		return "", fmt.Errorf("%s", result.Text())
	}
	return result.Text(), nil
}

// toolDefinitions converts routed MCP tool schemas into LLM tool
// definitions, optionally filtered to the given names.
func (c *Client) toolDefinitions(filter []string) []llm.ToolDefinition {
	var wanted map[string]bool
	if filter != nil {
		wanted = make(map[string]bool, len(filter))
		for _, name := range filter {
			wanted[name] = true
		}
	}

	names := make([]string, 0, len(c.routes))
	for name := range c.routes {
		if wanted == nil || wanted[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var defs []llm.ToolDefinition
	for _, name := range names {
		server := c.servers[c.routes[name]]
		if server == nil {
			continue
		}
		info, ok := toolInfoOf(server, name)
		if !ok {
			continue
		}

		parameters := map[string]interface{}{"type": "object"}
		if len(info.InputSchema) > 0 {
			var schema map[string]interface{}
			if err := json.Unmarshal(info.InputSchema, &schema); err == nil {
				parameters = schema
			}
		}

		defs = append(defs, llm.ToolDefinition{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  parameters,
		})
	}
	return defs
}

func toolInfoOf(server toolServer, name string) (mcp.ToolInfo, bool) {
	for _, tool := range server.Tools() {
		if tool.Name == name {
			return tool, true
		}
	}
	return mcp.ToolInfo{}, false
}

// Close shuts down every connected server and clears the routing table.
// Safe to call multiple times.
func (c *Client) Close() error {
	var firstErr error
	for _, server := range c.servers {
		if err := server.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.servers = make(map[string]toolServer)
	c.routes = make(map[string]string)
	return firstErr
}
