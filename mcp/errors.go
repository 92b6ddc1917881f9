package mcp

import (
	"errors"
	"fmt"
)

// ErrConnectionLost marks a transport whose output stream closed or
// desynchronized mid-call. Fatal to that connection; there is no
// automatic reconnect.
var ErrConnectionLost = errors.New("connection lost")

// ConnectError means a server process failed to start or its handshake
// failed. Fatal to that server's connection; other servers are unaffected.
type ConnectError struct {
	Server string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Server, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ProtocolError carries a JSON-RPC error returned by the server. The
// server process stays up; the call simply failed.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
