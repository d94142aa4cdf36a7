// Package bridge exposes the command router over a loopback TCP listener
// speaking newline-delimited JSON-RPC 2.0.
//
// Each connection carries an unbounded sequence of frames. Frames are
// parsed independently: a malformed line or unknown method produces a
// structured error response and the connection stays open. Frames without
// an id are notifications and never receive a response.
package bridge

import "encoding/json"

// ProtocolVersion is the protocol revision reported by the handshake.
const ProtocolVersion = "2024-11-05"

// ServerName identifies this server in the handshake.
const ServerName = "terminal-hook"

// ServerVersion is reported alongside the server name.
const ServerVersion = "1.0.0"

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is an incoming JSON-RPC frame. A nil ID marks a notification:
// the frame is processed but never answered. The distinction is carried
// per message by the presence of the id field, never inferred from the
// method name.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the frame expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response is an outgoing JSON-RPC frame.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a failed response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// newResult builds a success response for the given request id.
func newResult(id json.RawMessage, result any) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
}

// newError builds an error response for the given request id.
func newError(id json.RawMessage, code int, message string) *Response {
	if id == nil {
		id = json.RawMessage("null")
	}
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

// InitializeResult is the capability-negotiation handshake payload.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}

// ServerInfo identifies the server to clients.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// CallParams are the parameters of a tools/call frame.
type CallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}
