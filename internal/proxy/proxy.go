// Package proxy translates a stdio client into one-shot connections
// against the protocol bridge. Each inbound request gets its own TCP
// connection: the frame is written, the first line that parses as a
// complete response frame is returned, and the connection closes. No
// connection is reused; no multiplexing occurs at this layer.
package proxy

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rodgomesc/terminal-hook/internal/bridge"
	"github.com/rodgomesc/terminal-hook/internal/errors"
	"github.com/rodgomesc/terminal-hook/internal/logging"
)

// defaultTimeout bounds the wait for a bridge response.
const defaultTimeout = 5 * time.Second

// maxFrameBytes bounds a single frame line in either direction.
const maxFrameBytes = 1 << 20

// Proxy forwards newline-delimited frames between a client stream and the
// bridge. Every fault is converted into a structured error response on
// the client stream; the proxy itself never fails a request unhandled.
type Proxy struct {
	bridgeAddr string
	timeout    time.Duration
	logger     *logging.Logger
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithTimeout sets the bounded wait for a bridge response.
// A zero or negative value is replaced with the default (5s).
func WithTimeout(d time.Duration) Option {
	return func(p *Proxy) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets the logger for the proxy.
func WithLogger(logger *logging.Logger) Option {
	return func(p *Proxy) {
		if logger != nil {
			p.logger = logger.WithComponent("proxy")
		}
	}
}

// New creates a Proxy that forwards to the bridge at bridgeAddr.
func New(bridgeAddr string, opts ...Option) *Proxy {
	p := &Proxy{
		bridgeAddr: bridgeAddr,
		timeout:    defaultTimeout,
		logger:     logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run pumps frames from in to the bridge until in reaches EOF. Responses
// and structured failures are written to out, one frame per line. Nothing
// other than protocol frames is ever written to out.
func (p *Proxy) Run(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp, err := p.Forward(line)
		if err != nil {
			resp = p.failureFrame(line, err)
		}
		if resp == nil {
			continue // notification: nothing to report
		}
		if _, err := out.Write(append(resp, '\n')); err != nil {
			return fmt.Errorf("proxy write: %w", err)
		}
	}
	return scanner.Err()
}

// Forward sends one frame over a fresh connection and returns the first
// line that parses as a complete response frame. Forward returns a nil
// response for notifications, which are written without waiting.
//
// Faults are classified: a refused connection wraps ErrBridgeUnavailable
// with an actionable hint, and an expired wait becomes a TimeoutError.
func (p *Proxy) Forward(frame []byte) ([]byte, error) {
	conn, err := net.DialTimeout("tcp", p.bridgeAddr, p.timeout)
	if err != nil {
		p.logger.Warn("dial failed", "addr", p.bridgeAddr, "error", err)
		cause := fmt.Errorf("%w: %w", errors.ErrBridgeUnavailable, err)
		return nil, errors.NewTransportError("connect to bridge", cause).
			WithHint("the bridge is likely not running")
	}
	defer conn.Close()

	deadline := time.Now().Add(p.timeout)
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(append(frame, '\n')); err != nil {
		return nil, errors.NewTransportError("send request", err)
	}

	if isNotification(frame) {
		return nil, nil
	}

	// Buffer until a full line arrives; a response fragmented across
	// transport reads must still be framed correctly.
	reader := bufio.NewReaderSize(conn, 64*1024)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return nil, errors.NewTimeoutError("bridge response", p.timeout)
			}
			return nil, errors.NewTransportError("read response", err)
		}
		if isResponseFrame(line) {
			return trimNewline(line), nil
		}
		// Skip lines that are not well-formed response frames and keep
		// waiting for one until the deadline expires.
		p.logger.Debug("skipping unparseable line from bridge")
	}
}

// failureFrame builds a structured error response for a request the proxy
// could not complete, echoing the request id when one is present.
func (p *Proxy) failureFrame(request []byte, cause error) []byte {
	var req bridge.Request
	_ = json.Unmarshal(request, &req)

	resp := bridge.Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Error: &bridge.RPCError{
			Code:    bridge.CodeInternalError,
			Message: cause.Error(),
		},
	}
	if resp.ID == nil {
		resp.ID = json.RawMessage("null")
	}

	data, err := json.Marshal(resp)
	if err != nil {
		// A plain error object can always be marshaled.
		data = []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"proxy failure"}}`)
	}
	return data
}

// isNotification reports whether the outbound frame carries no id and
// therefore expects no response.
func isNotification(frame []byte) bool {
	var req bridge.Request
	if err := json.Unmarshal(frame, &req); err != nil {
		// Unparseable input is still forwarded; the bridge answers it
		// with a parse error carrying a null id.
		return false
	}
	return req.IsNotification()
}

// isResponseFrame reports whether a line is a well-formed response frame.
func isResponseFrame(line []byte) bool {
	var resp struct {
		JSONRPC string          `json:"jsonrpc"`
		Result  json.RawMessage `json:"result"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return false
	}
	return len(resp.Result) > 0 || len(resp.Error) > 0
}

// trimNewline strips the trailing line terminator from a frame.
func trimNewline(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
