package bridge

import (
	"bufio"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rodgomesc/terminal-hook/internal/capture"
	"github.com/rodgomesc/terminal-hook/internal/errors"
	"github.com/rodgomesc/terminal-hook/internal/event"
	"github.com/rodgomesc/terminal-hook/internal/router"
)

// testBridge starts a server on an ephemeral loopback port and returns it
// with its capture service.
func testBridge(t *testing.T) (*Server, *capture.Service) {
	t.Helper()

	bus := event.NewBus()
	svc := capture.NewService(bus)
	t.Cleanup(svc.Close)

	srv := New("127.0.0.1:0", router.New(svc))
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	return srv, svc
}

// testConn wraps a client connection with line-oriented send/receive.
type testConn struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dialBridge(t *testing.T, srv *Server) *testConn {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &testConn{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

// send writes one raw line to the bridge.
func (c *testConn) send(line string) {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("write failed: %v", err)
	}
}

// recv reads one response line and decodes it.
func (c *testConn) recv() map[string]any {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.reader.ReadString('\n')
	if err != nil {
		c.t.Fatalf("read failed: %v", err)
	}
	var resp map[string]any
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		c.t.Fatalf("response is not valid JSON: %v (%q)", err, line)
	}
	return resp
}

// call sends a request and returns the decoded response.
func (c *testConn) call(id int, method string, params any) map[string]any {
	c.t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "id": id, "method": method}
	if params != nil {
		req["params"] = params
	}
	data, err := json.Marshal(req)
	if err != nil {
		c.t.Fatalf("marshal failed: %v", err)
	}
	c.send(string(data))
	return c.recv()
}

func errorCode(t *testing.T, resp map[string]any) int {
	t.Helper()
	errObj, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected an error response, got %v", resp)
	}
	return int(errObj["code"].(float64))
}

func TestServer_Initialize(t *testing.T) {
	srv, _ := testBridge(t)
	c := dialBridge(t, srv)

	resp := c.call(1, "initialize", map[string]any{"protocolVersion": ProtocolVersion})

	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected a result, got %v", resp)
	}
	if result["protocolVersion"] != ProtocolVersion {
		t.Errorf("expected protocol version %q, got %v", ProtocolVersion, result["protocolVersion"])
	}
	info := result["serverInfo"].(map[string]any)
	if info["name"] != ServerName {
		t.Errorf("expected server name %q, got %v", ServerName, info["name"])
	}
	if _, ok := result["capabilities"]; !ok {
		t.Error("handshake must declare capabilities")
	}
}

func TestServer_Ping(t *testing.T) {
	srv, _ := testBridge(t)
	c := dialBridge(t, srv)

	resp := c.call(1, "ping", nil)
	if _, ok := resp["result"]; !ok {
		t.Errorf("ping should return an empty result, got %v", resp)
	}
	if resp["id"] != float64(1) {
		t.Errorf("response id should echo the request, got %v", resp["id"])
	}
}

func TestServer_ToolsList(t *testing.T) {
	srv, _ := testBridge(t)
	c := dialBridge(t, srv)

	resp := c.call(1, "tools/list", nil)
	result := resp["result"].(map[string]any)
	tools := result["tools"].([]any)
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}

	first := tools[0].(map[string]any)
	if first["name"] != router.OpListSessions {
		t.Errorf("expected %s first, got %v", router.OpListSessions, first["name"])
	}
	if _, ok := first["inputSchema"]; !ok {
		t.Error("tools must declare input schemas")
	}
}

func TestServer_AuxiliaryListsAreEmpty(t *testing.T) {
	srv, _ := testBridge(t)
	c := dialBridge(t, srv)

	resp := c.call(1, "resources/list", nil)
	result := resp["result"].(map[string]any)
	if got := result["resources"].([]any); len(got) != 0 {
		t.Errorf("expected empty resources, got %v", got)
	}

	resp = c.call(2, "prompts/list", nil)
	result = resp["result"].(map[string]any)
	if got := result["prompts"].([]any); len(got) != 0 {
		t.Errorf("expected empty prompts, got %v", got)
	}
}

func TestServer_CallListSessions(t *testing.T) {
	srv, svc := testBridge(t)
	c := dialBridge(t, srv)

	svc.RegisterSession("h1", "build-shell", nil)
	svc.AppendData("h1", []byte("compiling\n"))

	resp := c.call(1, "tools/call", map[string]any{"name": router.OpListSessions})
	result := resp["result"].(map[string]any)
	if result["success"] != true {
		t.Fatalf("expected success, got %v", result)
	}
	if result["count"] != float64(1) {
		t.Errorf("expected count 1, got %v", result["count"])
	}
	sessions := result["sessions"].([]any)
	entry := sessions[0].(map[string]any)
	if entry["name"] != "build-shell" {
		t.Errorf("expected build-shell, got %v", entry["name"])
	}
	if entry["bufferLines"] != float64(1) {
		t.Errorf("expected 1 buffered line, got %v", entry["bufferLines"])
	}
}

func TestServer_CallGetOutput(t *testing.T) {
	srv, svc := testBridge(t)
	c := dialBridge(t, srv)

	svc.RegisterSession("h1", "api", nil)
	svc.AppendData("h1", []byte("\x1b[32mready\x1b[0m\n"))

	resp := c.call(1, "tools/call", map[string]any{
		"name":      router.OpGetOutput,
		"arguments": map[string]any{"query": "api"},
	})
	result := resp["result"].(map[string]any)
	if result["success"] != true {
		t.Fatalf("expected success, got %v", result)
	}
	if result["output"] != "ready" {
		t.Errorf("expected normalized output, got %v", result["output"])
	}
	if result["linesReturned"] != float64(1) {
		t.Errorf("expected 1 line, got %v", result["linesReturned"])
	}
}

func TestServer_CallGetOutputNotFound(t *testing.T) {
	srv, _ := testBridge(t)
	c := dialBridge(t, srv)

	resp := c.call(1, "tools/call", map[string]any{
		"name":      router.OpGetOutput,
		"arguments": map[string]any{"query": "nothing"},
	})

	// Lookup failure is a result payload, not a protocol error.
	result := resp["result"].(map[string]any)
	if result["success"] != false {
		t.Fatalf("expected success=false, got %v", result)
	}
	if !strings.Contains(result["error"].(string), "not found") {
		t.Errorf("error should mention not found, got %v", result["error"])
	}
}

func TestServer_CallUnknownOperation(t *testing.T) {
	srv, _ := testBridge(t)
	c := dialBridge(t, srv)

	resp := c.call(1, "tools/call", map[string]any{"name": "format-disk"})
	if code := errorCode(t, resp); code != CodeInvalidParams {
		t.Errorf("expected %d, got %d", CodeInvalidParams, code)
	}
}

func TestServer_MethodNotFoundKeepsConnectionAlive(t *testing.T) {
	srv, _ := testBridge(t)
	c := dialBridge(t, srv)

	resp := c.call(1, "unknown", nil)
	if code := errorCode(t, resp); code != CodeMethodNotFound {
		t.Errorf("expected %d, got %d", CodeMethodNotFound, code)
	}
	if resp["id"] != float64(1) {
		t.Errorf("error must echo the request id, got %v", resp["id"])
	}

	// The same connection still answers a subsequent valid request.
	resp = c.call(2, "ping", nil)
	if _, ok := resp["result"]; !ok {
		t.Errorf("connection should survive a method-not-found error, got %v", resp)
	}
}

func TestServer_ParseErrorKeepsConnectionAlive(t *testing.T) {
	srv, _ := testBridge(t)
	c := dialBridge(t, srv)

	c.send(`{this is not json`)
	resp := c.recv()
	if code := errorCode(t, resp); code != CodeParseError {
		t.Errorf("expected %d, got %d", CodeParseError, code)
	}

	resp = c.call(1, "ping", nil)
	if _, ok := resp["result"]; !ok {
		t.Errorf("connection should survive garbage input, got %v", resp)
	}
}

func TestServer_OversizedFrameKeepsConnectionAlive(t *testing.T) {
	srv, _ := testBridge(t)
	c := dialBridge(t, srv)

	// One line well past the frame limit, terminated so the stream has a
	// recoverable boundary.
	c.send(`{"jsonrpc":"2.0","id":9,"method":"ping","pad":"` +
		strings.Repeat("x", maxFrameBytes+1024) + `"}`)
	resp := c.recv()
	if code := errorCode(t, resp); code != CodeParseError {
		t.Errorf("expected %d for an oversized frame, got %d", CodeParseError, code)
	}
	if resp["id"] != nil {
		t.Errorf("oversized frame cannot be attributed to a request id, got %v", resp["id"])
	}

	resp = c.call(1, "ping", nil)
	if _, ok := resp["result"]; !ok {
		t.Errorf("connection should survive an oversized frame, got %v", resp)
	}
}

func TestReadFrameLine(t *testing.T) {
	t.Run("boundary line passes", func(t *testing.T) {
		payload := strings.Repeat("a", maxFrameBytes)
		r := bufio.NewReaderSize(strings.NewReader(payload+"\nnext\n"), 64*1024)

		line, err := readFrameLine(r)
		if err != nil {
			t.Fatalf("line at the limit should be readable: %v", err)
		}
		if len(line) != maxFrameBytes {
			t.Errorf("line length = %d, want %d", len(line), maxFrameBytes)
		}

		line, err = readFrameLine(r)
		if err != nil || string(line) != "next" {
			t.Errorf("following line = %q (%v), want %q", line, err, "next")
		}
	})

	t.Run("oversized line consumed through newline", func(t *testing.T) {
		payload := strings.Repeat("a", maxFrameBytes+1)
		r := bufio.NewReaderSize(strings.NewReader(payload+"\nnext\n"), 64*1024)

		if _, err := readFrameLine(r); !errors.Is(err, errFrameTooLong) {
			t.Fatalf("expected errFrameTooLong, got %v", err)
		}

		line, err := readFrameLine(r)
		if err != nil || string(line) != "next" {
			t.Errorf("stream should resume at the next frame, got %q (%v)", line, err)
		}
	})
}

func TestServer_MissingMethod(t *testing.T) {
	srv, _ := testBridge(t)
	c := dialBridge(t, srv)

	c.send(`{"jsonrpc":"2.0","id":7}`)
	resp := c.recv()
	if code := errorCode(t, resp); code != CodeInvalidRequest {
		t.Errorf("expected %d, got %d", CodeInvalidRequest, code)
	}
}

func TestServer_NotificationGetsNoResponse(t *testing.T) {
	srv, _ := testBridge(t)
	c := dialBridge(t, srv)

	// A frame without an id is a notification: processed, never answered.
	c.send(`{"jsonrpc":"2.0","method":"ping"}`)
	resp := c.call(1, "ping", nil)

	// The first (and only) response must belong to the identified request.
	if resp["id"] != float64(1) {
		t.Errorf("notification must not be answered; got response id %v", resp["id"])
	}
}

func TestServer_MultipleConnections(t *testing.T) {
	srv, svc := testBridge(t)

	svc.RegisterSession("h1", "shared", nil)

	c1 := dialBridge(t, srv)
	c2 := dialBridge(t, srv)

	// A fault on one connection leaves the other untouched.
	c1.send(`garbage`)
	_ = c1.recv()

	resp := c2.call(1, "tools/call", map[string]any{"name": router.OpListSessions})
	result := resp["result"].(map[string]any)
	if result["count"] != float64(1) {
		t.Errorf("second connection should see the registry, got %v", result)
	}
}

func TestServer_CloseReleasesListener(t *testing.T) {
	bus := event.NewBus()
	svc := capture.NewService(bus)
	defer svc.Close()

	srv := New("127.0.0.1:0", router.New(svc))
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	addr := srv.Addr().String()

	if err := srv.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// The port is released: a fresh listener can bind it.
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("port not released after Close: %v", err)
	}
	_ = ln.Close()
}
