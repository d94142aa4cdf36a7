// Package internal contains integration tests that verify the packages
// work together: host signals flowing over the event bus into the capture
// service, and queries travelling the full proxy to bridge to router path.
package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rodgomesc/terminal-hook/internal/bridge"
	"github.com/rodgomesc/terminal-hook/internal/capture"
	"github.com/rodgomesc/terminal-hook/internal/event"
	"github.com/rodgomesc/terminal-hook/internal/proxy"
	"github.com/rodgomesc/terminal-hook/internal/router"
)

// startStack wires a full server stack on an ephemeral port and returns
// the bus for publishing host signals and the bridge address for clients.
func startStack(t *testing.T) (*event.Bus, string) {
	t.Helper()

	bus := event.NewBus()
	service := capture.NewService(bus, capture.WithCapacity(100))
	t.Cleanup(service.Close)

	rt := router.New(service)
	server := bridge.New("127.0.0.1:0", rt)
	if err := server.Start(); err != nil {
		t.Fatalf("failed to start bridge: %v", err)
	}
	t.Cleanup(func() { _ = server.Close() })

	return bus, server.Addr().String()
}

func callFrame(t *testing.T, id int, operation string, arguments map[string]any) []byte {
	t.Helper()
	frame, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      operation,
			"arguments": arguments,
		},
	})
	if err != nil {
		t.Fatalf("failed to build frame: %v", err)
	}
	return frame
}

func TestEndToEndCaptureAndQuery(t *testing.T) {
	bus, addr := startStack(t)

	bus.Publish(event.NewTerminalOpenedEvent("term-1", "build-runner",
		func(ctx context.Context) (int, error) { return 4242, nil }))
	bus.Publish(event.NewTerminalDataEvent("term-1",
		[]byte("\x1b[32mcompiling module\x1b[0m\r\ntests passed\r\n")))

	// PID resolution is asynchronous; give it a moment to land.
	deadline := time.Now().Add(2 * time.Second)
	p := proxy.New(addr, proxy.WithTimeout(2*time.Second))

	var listResp struct {
		Result router.ListSessionsResult `json:"result"`
	}
	for {
		raw, err := p.Forward(callFrame(t, 1, router.OpListSessions, nil))
		if err != nil {
			t.Fatalf("list-sessions failed: %v", err)
		}
		if err := json.Unmarshal(raw, &listResp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if listResp.Result.Count == 1 && listResp.Result.Sessions[0].ProcessID != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never reached expected state: %+v", listResp.Result)
		}
		time.Sleep(10 * time.Millisecond)
	}

	s := listResp.Result.Sessions[0]
	if s.Name != "build-runner" {
		t.Errorf("session name = %q, want %q", s.Name, "build-runner")
	}
	if *s.ProcessID != 4242 {
		t.Errorf("pid = %d, want 4242", *s.ProcessID)
	}
	if s.BufferLines != 2 {
		t.Errorf("buffered lines = %d, want 2", s.BufferLines)
	}

	raw, err := p.Forward(callFrame(t, 2, router.OpGetOutput, map[string]any{"query": "build"}))
	if err != nil {
		t.Fatalf("get-output failed: %v", err)
	}
	var outResp struct {
		Result router.GetOutputResult `json:"result"`
	}
	if err := json.Unmarshal(raw, &outResp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !outResp.Result.Success {
		t.Fatalf("get-output did not succeed: %s", raw)
	}
	if outResp.Result.Output != "compiling module\ntests passed" {
		t.Errorf("output = %q, escapes should be stripped", outResp.Result.Output)
	}
}

func TestEndToEndSessionClose(t *testing.T) {
	bus, addr := startStack(t)

	bus.Publish(event.NewTerminalOpenedEvent("term-1", "short-lived", nil))
	bus.Publish(event.NewTerminalClosedEvent("term-1"))

	p := proxy.New(addr, proxy.WithTimeout(2*time.Second))
	raw, err := p.Forward(callFrame(t, 1, router.OpGetOutput, map[string]any{"query": "short-lived"}))
	if err != nil {
		t.Fatalf("get-output failed: %v", err)
	}

	var resp struct {
		Result router.FailureResult `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Result.Success {
		t.Error("expected lookup failure for a closed session")
	}
	if len(resp.Result.AvailableSessions) != 0 {
		t.Errorf("closed session still listed: %v", resp.Result.AvailableSessions)
	}
}

func TestEndToEndProxyRunStream(t *testing.T) {
	bus, addr := startStack(t)

	bus.Publish(event.NewTerminalOpenedEvent("term-1", "stream-test", nil))
	bus.Publish(event.NewTerminalDataEvent("term-1", []byte("line one\nline two\n")))

	var in bytes.Buffer
	in.Write(callFrame(t, 1, router.OpListSessions, nil))
	in.WriteByte('\n')
	in.Write(callFrame(t, 2, router.OpGetOutput, map[string]any{"query": "stream-test", "maxLines": 1}))
	in.WriteByte('\n')

	var out bytes.Buffer
	p := proxy.New(addr, proxy.WithTimeout(2*time.Second))
	if err := p.Run(&in, &out); err != nil {
		t.Fatalf("proxy run failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 response frames, got %d: %q", len(lines), out.String())
	}

	var second struct {
		ID     int                    `json:"id"`
		Result router.GetOutputResult `json:"result"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("failed to decode second response: %v", err)
	}
	if second.ID != 2 {
		t.Errorf("response id = %d, want 2", second.ID)
	}
	if second.Result.Output != "line two" {
		t.Errorf("maxLines=1 should return the newest line, got %q", second.Result.Output)
	}
}
