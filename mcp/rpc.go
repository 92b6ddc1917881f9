package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// rpcRequest is a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// rpcNotification is a request without an id; no response is expected.
type rpcNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is the error member of a JSON-RPC response.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// stream speaks line-delimited JSON-RPC 2.0 over a writer/reader pair.
//
// Calls are strictly single-flight: the mutex serializes them, and a second
// call is never issued before the prior response line has been read. Request
// ids are monotonic from 1, and the echoed id is verified against the id
// just sent; a mismatch means the streams have desynchronized and the
// connection is unusable.
type stream struct {
	mu     sync.Mutex
	w      io.Writer
	r      *bufio.Reader
	nextID int64
}

func newStream(w io.Writer, r io.Reader) *stream {
	return &stream{
		w: w,
		r: bufio.NewReader(r),
	}
}

// call sends one request and blocks reading its response line. The read has
// no deadline of its own; a hung server blocks until its stream closes.
func (s *stream) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.nextID++
	id := s.nextID

	if err := s.writeLine(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}); err != nil {
		return nil, err
	}

	line, err := s.r.ReadBytes('\n')
	if err != nil {
		if len(line) == 0 || err == io.EOF {
			return nil, fmt.Errorf("reading response to %s: %w", method, ErrConnectionLost)
		}
		return nil, fmt.Errorf("reading response to %s: %v: %w", method, err, ErrConnectionLost)
	}

	var resp rpcResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("malformed response to %s: %v: %w", method, err, ErrConnectionLost)
	}

	if resp.ID != id {
		return nil, fmt.Errorf("response id %d does not match request id %d: %w", resp.ID, id, ErrConnectionLost)
	}

	if resp.Error != nil {
		return nil, &ProtocolError{Code: resp.Error.Code, Message: resp.Error.Message}
	}

	if resp.Result == nil {
		return json.RawMessage(`{}`), nil
	}
	return resp.Result, nil
}

// notify sends one notification; no response is read.
func (s *stream) notify(ctx context.Context, method string, params interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	return s.writeLine(rpcNotification{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	})
}

func (s *stream) writeLine(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	if _, err := s.w.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}
