// Package fetch implements a FlareSolverr-backed page fetching tool
// provider with readability extraction, per-session caching, and token
// pagination. It exposes the tools over stdio JSON-RPC so any MCP client
// can launch it as a server.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultSolverURL is the standard local FlareSolverr endpoint.
const DefaultSolverURL = "http://localhost:8191/v1"

// sessionTimeout bounds session create/destroy requests.
const sessionTimeout = 30 * time.Second

// Solution is the solved-challenge payload of a request.get command.
type Solution struct {
	URL       string          `json:"url"`
	Status    int             `json:"status"`
	Response  string          `json:"response"`
	UserAgent string          `json:"userAgent"`
	Cookies   json.RawMessage `json:"cookies"`
}

type solverResponse struct {
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Session  string   `json:"session"`
	Solution Solution `json:"solution"`
}

// SolverClient talks to a FlareSolverr HTTP API.
type SolverClient struct {
	apiURL string
	http   *http.Client
}

// NewSolverClient creates a client for the given endpoint. An empty URL
// selects the default local endpoint.
func NewSolverClient(apiURL string) *SolverClient {
	if apiURL == "" {
		apiURL = DefaultSolverURL
	}
	return &SolverClient{
		apiURL: apiURL,
		http:   &http.Client{},
	}
}

func (c *SolverClient) post(ctx context.Context, timeout time.Duration, cmd map[string]interface{}) (solverResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(cmd)
	if err != nil {
		return solverResponse{}, fmt.Errorf("marshal solver command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return solverResponse{}, fmt.Errorf("build solver request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return solverResponse{}, fmt.Errorf("solver request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return solverResponse{}, fmt.Errorf("solver returned HTTP %d", resp.StatusCode)
	}

	var parsed solverResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return solverResponse{}, fmt.Errorf("decode solver response: %w", err)
	}
	return parsed, nil
}

// CreateSession creates a persistent browser session with the given id.
func (c *SolverClient) CreateSession(ctx context.Context, sessionID string) error {
	resp, err := c.post(ctx, sessionTimeout, map[string]interface{}{
		"cmd":     "sessions.create",
		"session": sessionID,
	})
	if err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("failed to create session: %s", resp.Message)
	}
	return nil
}

// DestroySession destroys a persistent session.
func (c *SolverClient) DestroySession(ctx context.Context, sessionID string) error {
	resp, err := c.post(ctx, sessionTimeout, map[string]interface{}{
		"cmd":     "sessions.destroy",
		"session": sessionID,
	})
	if err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("failed to destroy session: %s", resp.Message)
	}
	return nil
}

// Get fetches a URL through the solver, letting it hold the page open for
// up to maxTimeout milliseconds. The HTTP timeout leaves the solver 10
// extra seconds on top of its own budget.
func (c *SolverClient) Get(ctx context.Context, url, sessionID string, maxTimeout int) (Solution, error) {
	timeout := time.Duration(maxTimeout)*time.Millisecond + 10*time.Second

	resp, err := c.post(ctx, timeout, map[string]interface{}{
		"cmd":        "request.get",
		"url":        url,
		"maxTimeout": maxTimeout,
		"session":    sessionID,
	})
	if err != nil {
		return Solution{}, err
	}
	if resp.Status != "ok" {
		return Solution{}, fmt.Errorf("failed to solve challenge: %s", resp.Message)
	}
	return resp.Solution, nil
}
