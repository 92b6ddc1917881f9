// Package main provides the fetchtool MCP server entry point.
//
// fetchtool serves the fetch_url / create_session / destroy_session tools
// over stdio, backed by a FlareSolverr endpoint. It is meant to be launched
// by an MCP client, e.g. from .mcp.json:
//
//	{
//	  "mcpServers": {
//	    "fetch": {"command": "fetchtool", "args": ["--solver-url", "http://localhost:8191/v1"]}
//	  }
//	}
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/richinex/marionette/fetch"
	"github.com/richinex/marionette/storage"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	var solverURL string
	var archivePath string

	rootCmd := &cobra.Command{
		Use:   "fetchtool",
		Short: "MCP server for fetching pages through FlareSolverr",
		RunE: func(cmd *cobra.Command, args []string) error {
			service := fetch.NewService(fetch.NewSolverClient(solverURL))

			if archivePath != "" {
				store, err := storage.Open(archivePath)
				if err != nil {
					return fmt.Errorf("failed to open archive: %w", err)
				}
				defer store.Close()
				service = service.WithArchive(store)
			}

			server := fetch.NewServer(service)
			return server.Serve(context.Background(), os.Stdin, os.Stdout)
		},
	}

	rootCmd.Flags().StringVar(&solverURL, "solver-url", envOr("FLARESOLVERR_URL", fetch.DefaultSolverURL), "FlareSolverr API endpoint")
	rootCmd.Flags().StringVar(&archivePath, "archive", "", "SQLite path for archiving extracted documents")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
