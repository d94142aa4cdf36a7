package bridge

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/rodgomesc/terminal-hook/internal/errors"
	"github.com/rodgomesc/terminal-hook/internal/logging"
	"github.com/rodgomesc/terminal-hook/internal/router"
	"github.com/rodgomesc/terminal-hook/internal/util"
)

// maxFrameBytes bounds a single request line. Larger frames produce a
// parse error rather than unbounded buffering.
const maxFrameBytes = 1 << 20

// Server is the persistent protocol bridge: a loopback TCP listener that
// parses newline-delimited frames and dispatches them to the router.
//
// Many connections may be open at once, but operation dispatch is
// serialized across all of them: no two operations run concurrently, and
// one connection's frames can only interleave with another's at frame
// boundaries. There is no cancellation of an in-flight operation.
type Server struct {
	addr   string
	router *router.Router
	logger *logging.Logger

	listener net.Listener
	wg       sync.WaitGroup

	dispatchMu sync.Mutex // serializes dispatch across connections

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger.WithComponent("bridge")
		}
	}
}

// New creates a Server that will listen on addr ("host:port"). The router
// must be non-nil.
func New(addr string, rt *router.Router, opts ...Option) *Server {
	if rt == nil {
		panic("bridge: router must not be nil")
	}

	s := &Server{
		addr:   addr,
		router: rt,
		logger: logging.NopLogger(),
		conns:  make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listener and begins accepting connections. The listener
// stays bound until Close.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("bridge listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.logger.Info("bridge listening", "addr", ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close shuts the listener and all open connections down, then waits for
// connection handlers to drain. Safe to call once Start has returned.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.wg.Wait()
	return err
}

// acceptLoop accepts connections until the listener closes.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn runs one connection's frame loop. Each complete line is
// dispatched synchronously and answered (unless it is a notification)
// before the next line on this connection is read. A peer disconnect or
// transport error ends only this connection; the session registry and
// other connections are unaffected.
func (s *Server) handleConn(conn net.Conn) {
	logger := s.logger.WithConnection(conn.RemoteAddr().String())
	logger.Debug("connection opened")

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
		s.wg.Done()
		logger.Debug("connection closed")
	}()

	reader := bufio.NewReaderSize(conn, 64*1024)

	for {
		line, err := readFrameLine(reader)
		if errors.Is(err, errFrameTooLong) {
			logger.Debug("oversized frame discarded")
			resp := newError(nil, CodeParseError,
				fmt.Sprintf("parse error: frame exceeds %d bytes", maxFrameBytes))
			if werr := writeFrame(conn, resp); werr != nil {
				logger.Warn("write failed", "error", werr)
				return
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("read ended", "error", err)
			}
			return
		}
		if len(line) == 0 {
			continue
		}

		resp := s.handleFrame(line, logger)
		if resp == nil {
			continue // notification
		}
		if err := writeFrame(conn, resp); err != nil {
			logger.Warn("write failed", "error", err)
			return
		}
	}
}

// errFrameTooLong marks a line that exceeded maxFrameBytes. The line is
// fully consumed so the next read starts at a frame boundary.
var errFrameTooLong = errors.New("frame too long")

// readFrameLine reads one newline-terminated line, without the newline.
// A line over maxFrameBytes is discarded through its terminating newline
// and reported as errFrameTooLong, leaving the stream usable.
func readFrameLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		switch {
		case err == nil:
			line = bytes.TrimRight(line, "\r\n")
			if len(line) > maxFrameBytes {
				return nil, errFrameTooLong
			}
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			if len(line) > maxFrameBytes {
				if derr := discardLine(r); derr != nil {
					return nil, derr
				}
				return nil, errFrameTooLong
			}
		default:
			return nil, err
		}
	}
}

// discardLine consumes input through the next newline.
func discardLine(r *bufio.Reader) error {
	for {
		_, err := r.ReadSlice('\n')
		if err == nil {
			return nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

// writeFrame encodes a response as one newline-terminated line.
func writeFrame(conn net.Conn, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = conn.Write(append(data, '\n'))
	return err
}

// handleFrame parses and dispatches a single frame. It returns nil for
// notifications and a response for everything else, including garbage
// input: a line that is not a well-formed frame yields a parse error
// without closing the connection.
func (s *Server) handleFrame(line []byte, logger *logging.Logger) *Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		logger.Debug("unparseable frame", "error", err,
			"frame", util.TruncateString(string(line), 120))
		return newError(nil, CodeParseError, fmt.Sprintf("parse error: %v", err))
	}
	if req.Method == "" {
		return newError(req.ID, CodeInvalidRequest, "missing method")
	}

	resp := s.dispatch(&req, logger)
	if req.IsNotification() {
		return nil
	}
	return resp
}

// dispatch routes a frame to its method handler. Dispatch is serialized
// process-wide, so operations observe the session registry one at a time.
func (s *Server) dispatch(req *Request, logger *logging.Logger) *Response {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	logger.Debug("dispatch", "method", req.Method)

	switch req.Method {
	case "initialize":
		return newResult(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities: map[string]any{
				"tools": map[string]any{},
			},
			ServerInfo: ServerInfo{Name: ServerName, Version: ServerVersion},
		})

	case "ping":
		return newResult(req.ID, map[string]any{})

	case "tools/list":
		return newResult(req.ID, map[string]any{
			"tools": s.router.Operations(),
		})

	case "tools/call":
		return s.callOperation(req)

	case "resources/list":
		// Declared for client compatibility; this system serves none.
		return newResult(req.ID, map[string]any{"resources": []any{}})

	case "prompts/list":
		return newResult(req.ID, map[string]any{"prompts": []any{}})

	default:
		return newError(req.ID, CodeMethodNotFound,
			fmt.Sprintf("method not found: %s", req.Method))
	}
}

// callOperation decodes tools/call parameters and delegates to the router.
// Validation and lookup failures come back as result payloads; an unknown
// operation name or an internal fault becomes a protocol-level error.
func (s *Server) callOperation(req *Request) *Response {
	var params CallParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return newError(req.ID, CodeInvalidParams,
				fmt.Sprintf("invalid params: %v", err))
		}
	}
	if params.Name == "" {
		return newError(req.ID, CodeInvalidParams, "missing operation name")
	}

	result, err := s.router.Dispatch(params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, router.ErrUnknownOperation) {
			return newError(req.ID, CodeInvalidParams, err.Error())
		}
		return newError(req.ID, CodeInternalError, err.Error())
	}
	return newResult(req.ID, result)
}
