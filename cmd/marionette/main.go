// Package main provides the marionette CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/richinex/marionette/cli"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	provider   string
	maxIter    int
	verbose    bool
	configPath string
	servers    []string
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "marionette",
		Short: "LLM tool-use loops over MCP servers",
		Long: `A CLI for driving LLM agents against MCP (Model Context Protocol) servers.

Servers are configured in .mcp.json (current directory or home), or with
--config. Each run connects the configured servers, merges their tools, and
drives an agentic loop until the model stops requesting tools.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().IntVarP(&maxIter, "max-iter", "m", 50, "Maximum tool-use iterations")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to MCP config file")
	rootCmd.PersistentFlags().StringSliceVar(&servers, "server", nil, "MCP server(s) to load (default: all configured)")

	// Add commands
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(browseCmd())
	rootCmd.AddCommand(toolsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func baseOptions() cli.Options {
	opts := cli.DefaultOptions()
	opts.Provider = provider
	opts.MaxIter = maxIter
	opts.Verbose = verbose
	opts.ConfigPath = configPath
	opts.Servers = servers
	return opts
}

func runCmd() *cobra.Command {
	var system string
	var sessionID string
	var dbPath string

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run a prompt through the agentic loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := baseOptions()
			opts.SessionID = sessionID
			if dbPath != "" {
				opts.DBPath = dbPath
			}
			return cli.Run(context.Background(), args[0], system, opts)
		},
	}

	cmd.Flags().StringVarP(&system, "system", "s", "", "System prompt")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID for transcript persistence")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database path for storage")

	return cmd
}

func scrapeCmd() *cobra.Command {
	var summarize bool

	cmd := &cobra.Command{
		Use:   "scrape [url]...",
		Short: "Fetch one or more URLs through the fetch_url tool",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Scrape(context.Background(), args, summarize, baseOptions())
		},
	}

	cmd.Flags().BoolVar(&summarize, "summarize", true, "Summarize fetched content instead of returning it raw")

	return cmd
}

func browseCmd() *cobra.Command {
	var initialURL string

	cmd := &cobra.Command{
		Use:   "browse [instructions]",
		Short: "Run natural-language browser automation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Browse(context.Background(), args[0], initialURL, baseOptions())
		},
	}

	cmd.Flags().StringVar(&initialURL, "url", "", "URL to navigate to first")

	return cmd
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List tools exposed by the configured MCP servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListTools(context.Background(), baseOptions())
		},
	}
}
