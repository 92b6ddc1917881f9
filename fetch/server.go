package fetch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/richinex/marionette/mcp"
)

// JSON-RPC error codes used by the server loop.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// maxLineBytes bounds one incoming request line.
const maxLineBytes = 10 * 1024 * 1024

type serverRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type serverResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *serverError    `json:"error,omitempty"`
}

type serverError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server exposes a Service as an MCP stdio server.
type Server struct {
	service *Service
}

// NewServer wraps a service in the stdio protocol loop.
func NewServer(service *Service) *Server {
	return &Server{service: service}
}

// Serve reads newline-delimited JSON-RPC requests from r and writes one
// response line per request to w. Notifications are consumed silently.
// Returns when r is exhausted or the context is done.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req serverRequest
		if err := json.Unmarshal(line, &req); err != nil {
			if err := writeResponse(w, serverResponse{
				JSONRPC: "2.0",
				ID:      json.RawMessage("null"),
				Error:   &serverError{Code: codeParseError, Message: "parse error"},
			}); err != nil {
				return err
			}
			continue
		}

		resp, reply := s.handle(ctx, req)
		if !reply {
			continue
		}
		if err := writeResponse(w, resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// handle dispatches one request. The second return is false for
// notifications, which get no response line.
func (s *Server) handle(ctx context.Context, req serverRequest) (serverResponse, bool) {
	notification := len(req.ID) == 0

	switch req.Method {
	case "initialize":
		return serverResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"protocolVersion": "2024-11-05",
				"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
				"serverInfo": map[string]interface{}{
					"name":    "fetchtool",
					"version": "0.1.0",
				},
			},
		}, !notification

	case "notifications/initialized":
		return serverResponse{}, false

	case "tools/list":
		return serverResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{"tools": toolCatalog()},
		}, !notification

	case "tools/call":
		if notification {
			return serverResponse{}, false
		}
		var params struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return serverResponse{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error:   &serverError{Code: codeInvalidParams, Message: "invalid params"},
			}, true
		}
		return serverResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  s.callTool(ctx, params.Name, params.Arguments),
		}, true

	default:
		if notification {
			return serverResponse{}, false
		}
		return serverResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &serverError{Code: codeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)},
		}, true
	}
}

// callTool runs one tool. Failures become error-flagged text content, not
// protocol errors; the model sees them and can recover.
func (s *Server) callTool(ctx context.Context, name string, arguments json.RawMessage) mcp.ToolResult {
	text, err := s.dispatch(ctx, name, arguments)
	if err != nil {
		return mcp.ToolResult{
			Content: []mcp.ContentBlock{{Type: "text", Text: fmt.Sprintf("Error: %v", err)}},
			IsError: true,
		}
	}
	return mcp.ToolResult{
		Content: []mcp.ContentBlock{{Type: "text", Text: text}},
	}
}

func (s *Server) dispatch(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	switch name {
	case "fetch_url":
		req := DefaultFetchRequest()
		if len(arguments) > 0 {
			if err := json.Unmarshal(arguments, &req); err != nil {
				return "", fmt.Errorf("bad fetch_url arguments: %w", err)
			}
		}
		if req.URL == "" && req.ContinuationToken == "" {
			return "", fmt.Errorf("url is required")
		}

		result, err := s.service.Fetch(ctx, req)
		if err != nil {
			return "", err
		}
		return formatResult(result, req.ReturnFormat)

	case "create_session":
		id, err := s.service.CreateSession(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Session created: %s", id), nil

	case "destroy_session":
		destroyed, err := s.service.DestroySession(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Session destroyed: %t", destroyed), nil

	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// formatResult renders a fetch result per the requested return_format.
func formatResult(result FetchResult, format string) (string, error) {
	switch format {
	case "content_only":
		if result.Content != "" {
			return result.Content, nil
		}
		return result.HTML, nil

	case "metadata":
		stripped := result
		stripped.Content = ""
		stripped.ContentHTML = ""
		stripped.HTML = ""
		payload, err := json.MarshalIndent(stripped, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal metadata: %w", err)
		}
		return string(payload), nil

	default: // auto, full_html
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal result: %w", err)
		}
		return string(payload), nil
	}
}

func writeResponse(w io.Writer, resp serverResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if _, err := w.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// toolCatalog describes the server's tools for tools/list.
func toolCatalog() []mcp.ToolInfo {
	return []mcp.ToolInfo{
		{
			Name:        "fetch_url",
			Description: "Fetch URL content bypassing Cloudflare protection. Returns extracted content with pagination metadata.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"url": {"type": "string", "description": "The URL to fetch"},
					"max_timeout": {"type": "integer", "description": "Maximum timeout in milliseconds (default: 60000)", "default": 60000},
					"extract_content": {"type": "boolean", "description": "Extract main content only, removing navigation/ads/scripts (default: true)", "default": true},
					"max_tokens": {"type": "integer", "description": "Maximum tokens per page (default: 20000)", "default": 20000},
					"return_format": {"type": "string", "enum": ["auto", "content_only", "full_html", "metadata"], "description": "Response format (default: auto)", "default": "auto"},
					"page": {"type": "integer", "description": "Page number to retrieve (default: 1)", "default": 1},
					"continuation_token": {"type": "string", "description": "Continuation token from previous response for next page"},
					"cache_content": {"type": "boolean", "description": "Cache content for pagination (default: true)", "default": true}
				},
				"required": ["url"]
			}`),
		},
		{
			Name:        "create_session",
			Description: "Create a persistent browser session to reuse cookies across requests.",
			InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
		},
		{
			Name:        "destroy_session",
			Description: "Destroy the current browser session and its cached content.",
			InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
		},
	}
}
