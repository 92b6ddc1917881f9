// MCP server configuration file support.
//
// Supports Anthropic-style MCP configuration format:
//
//	{
//	  "mcpServers": {
//	    "fetch": {
//	      "command": "fetchtool",
//	      "args": ["--solver-url", "${FLARESOLVERR_URL}"]
//	    },
//	    "filesystem": {
//	      "command": "npx",
//	      "args": ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]
//	    }
//	  }
//	}
//
// A flat map without the "mcpServers" wrapper is also accepted. Values may
// reference environment variables as ${VAR} or $VAR; references to unset
// variables expand to the empty string.
package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Config represents the MCP configuration file format.
type Config struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// ServerConfig represents a single MCP server configuration. Entries with a
// URL instead of a command describe remote servers, which this client does
// not launch.
type ServerConfig struct {
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
}

// Stdio reports whether the entry describes a local stdio server.
func (s ServerConfig) Stdio() bool {
	return s.Command != ""
}

var envVarPattern = regexp.MustCompile(`\$\{(\w+)\}|\$(\w+)`)

// expandEnv substitutes ${VAR} and $VAR references with environment values.
func expandEnv(value string) string {
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)
		if name[1] != "" {
			return os.Getenv(name[1])
		}
		return os.Getenv(name[2])
	})
}

func (s ServerConfig) expanded() ServerConfig {
	out := ServerConfig{
		Command: expandEnv(s.Command),
		URL:     expandEnv(s.URL),
	}
	if s.Args != nil {
		out.Args = make([]string, len(s.Args))
		for i, arg := range s.Args {
			out.Args[i] = expandEnv(arg)
		}
	}
	if s.Env != nil {
		out.Env = make(map[string]string, len(s.Env))
		for key, value := range s.Env {
			out.Env[key] = expandEnv(value)
		}
	}
	return out
}

// LoadConfig loads MCP configuration from a JSON file. Both the wrapped
// {"mcpServers": {...}} format and a flat server map are accepted, and
// environment references in all string fields are expanded.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.MCPServers == nil {
		var flat map[string]ServerConfig
		if err := json.Unmarshal(data, &flat); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		config.MCPServers = flat
	}

	for name, server := range config.MCPServers {
		config.MCPServers[name] = server.expanded()
	}

	return &config, nil
}

// LoadLayeredConfig merges MCP configuration from the standard locations:
// ~/.mcp.json, then ./.mcp.json, then the explicit path if given. Later
// files override earlier ones per server name. Missing files are skipped;
// an explicit path that fails to load is an error.
func LoadLayeredConfig(explicit string) (*Config, error) {
	merged := &Config{MCPServers: map[string]ServerConfig{}}

	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".mcp.json"))
	}
	paths = append(paths, ".mcp.json")

	for _, path := range paths {
		config, err := LoadConfig(path)
		if err != nil {
			continue
		}
		for name, server := range config.MCPServers {
			merged.MCPServers[name] = server
		}
	}

	if explicit != "" {
		config, err := LoadConfig(explicit)
		if err != nil {
			return nil, err
		}
		for name, server := range config.MCPServers {
			merged.MCPServers[name] = server
		}
	}

	return merged, nil
}
