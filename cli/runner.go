// Command execution for CLI commands.
//
// Information Hiding:
// - Provider and settings construction hidden
// - Facade setup and teardown hidden
// - Output formatting hidden

package cli

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/richinex/marionette/client"
	"github.com/richinex/marionette/config"
	"github.com/richinex/marionette/llm"
	"github.com/richinex/marionette/mcp"
	"github.com/richinex/marionette/orchestrate"
	"github.com/richinex/marionette/storage"
)

// defaultDBPath is the unified database path for transcripts and archives.
const defaultDBPath = ".marionette/marionette.db"

// Options holds CLI execution options.
type Options struct {
	Provider   string
	MaxIter    int
	Verbose    bool
	ConfigPath string
	Servers    []string
	SessionID  string
	DBPath     string
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{
		MaxIter: 50,
		DBPath:  defaultDBPath,
	}
}

// Run sends a single prompt through the agentic loop over the configured
// MCP servers.
func Run(ctx context.Context, prompt, system string, opts Options) error {
	c, cleanup, err := setupClient(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	if opts.Verbose {
		printLoadedTools(c)
	}

	outcome, err := c.Run(ctx, prompt, client.RunOptions{
		System:        system,
		MaxIterations: opts.MaxIter,
		SessionID:     opts.SessionID,
	})
	if err != nil {
		return err
	}

	return printOutcome(outcome, opts)
}

// Scrape fetches the given URLs through the fetch_url tool.
func Scrape(ctx context.Context, urls []string, summarize bool, opts Options) error {
	c, cleanup, err := setupClient(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	outcome, err := c.ScrapeURLs(ctx, urls, summarize)
	if err != nil {
		return err
	}

	return printOutcome(outcome, opts)
}

// Browse runs natural-language browser automation.
func Browse(ctx context.Context, instructions, initialURL string, opts Options) error {
	c, cleanup, err := setupClient(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	outcome, err := c.BrowserPipeline(ctx, instructions, initialURL)
	if err != nil {
		return err
	}

	return printOutcome(outcome, opts)
}

// ListTools connects the configured servers and prints every routed tool.
func ListTools(ctx context.Context, opts Options) error {
	c, cleanup, err := setupClient(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	printLoadedTools(c)
	return nil
}

// setupClient builds a facade with the provider and servers from options.
// The returned cleanup closes every connection and must run on all paths.
func setupClient(ctx context.Context, opts Options) (*client.Client, func(), error) {
	provider, err := createProvider(opts.Provider)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := mcp.LoadLayeredConfig(opts.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load MCP config: %w", err)
	}
	if len(cfg.MCPServers) == 0 {
		return nil, nil, fmt.Errorf("no MCP servers configured: create .mcp.json or pass --config")
	}

	c := client.New(provider, cfg)
	if opts.MaxIter > 0 {
		c = c.WithMaxIterations(opts.MaxIter)
	}

	var store *storage.Store
	if opts.SessionID != "" {
		store, err = storage.Open(opts.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		c = c.WithStore(store)
	}

	names := opts.Servers
	if len(names) == 0 {
		names = nil // all configured servers
	}
	if err := c.LoadServers(ctx, names); err != nil {
		c.Close()
		if store != nil {
			store.Close()
		}
		return nil, nil, err
	}

	cleanup := func() {
		c.Close()
		if store != nil {
			store.Close()
		}
	}
	return c, cleanup, nil
}

func createProvider(providerName string) (llm.Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("--provider is required for this command")
	}

	providerType, err := llm.ParseProviderType(providerName)
	if err != nil {
		return nil, err
	}

	settings, err := config.New(providerName)
	if err != nil {
		return nil, err
	}

	apiKey, err := config.APIKeyFor(providerName)
	if err != nil {
		return nil, err
	}

	return providerType.
		Model(settings.LLM.Model).
		MaxTokens(settings.LLM.MaxTokens).
		Temperature(float32(settings.LLM.Temperature)).
		APIKey(apiKey)
}

func printLoadedTools(c *client.Client) {
	routes := c.ToolNames()
	names := make([]string, 0, len(routes))
	for name := range routes {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("Loaded %d tools:\n", len(names))
	for _, name := range names {
		fmt.Printf("  %s (%s)\n", name, routes[name])
	}
	fmt.Println()
}

func printOutcome(outcome orchestrate.Outcome, opts Options) error {
	if opts.Verbose {
		fmt.Printf("(%d iterations)\n\n", outcome.Iterations)
	}

	fmt.Printf("%s\n", outcome.Text())

	if outcome.Exhausted {
		fmt.Fprintf(os.Stderr, "Warning: iteration budget exhausted with tool calls still pending\n")
		return fmt.Errorf("reached max iterations without completing")
	}
	return nil
}
