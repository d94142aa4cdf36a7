// Package host provides a local terminal host that feeds the capture
// service through the event bus.
//
// In production the host environment lives outside this process and is
// known only by the three signals it emits: opened, closed, and data
// written. Host is a self-contained stand-in for development and
// integration testing: it spawns shell processes under PTYs, publishes
// opened on start, streams PTY reads as data events, and publishes closed
// when a process exits or the host shuts down.
package host

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"

	"github.com/rodgomesc/terminal-hook/internal/event"
	"github.com/rodgomesc/terminal-hook/internal/logging"
)

// Host owns a set of PTY-backed shell processes and publishes their
// lifecycle and output on the event bus.
type Host struct {
	bus    *event.Bus
	logger *logging.Logger
	shell  string

	mu        sync.Mutex
	terminals map[string]*terminal
	nextID    int
	closed    bool

	wg sync.WaitGroup
}

// terminal is one running PTY-backed process.
type terminal struct {
	handle string
	cmd    *exec.Cmd
	ptmx   *os.File
}

// Option configures a Host.
type Option func(*Host)

// WithShell overrides the shell command spawned for each terminal.
// The default comes from $SHELL, falling back to /bin/sh.
func WithShell(shell string) Option {
	return func(h *Host) {
		if shell != "" {
			h.shell = shell
		}
	}
}

// WithLogger sets the logger for the host.
func WithLogger(logger *logging.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger.WithComponent("host")
		}
	}
}

// New creates a Host publishing on the given bus. The bus must be non-nil.
func New(bus *event.Bus, opts ...Option) *Host {
	if bus == nil {
		panic("host: event bus must not be nil")
	}

	h := &Host{
		bus:       bus,
		logger:    logging.NopLogger(),
		shell:     defaultShell(),
		terminals: make(map[string]*terminal),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// defaultShell picks the user's shell, falling back to /bin/sh.
func defaultShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/sh"
}

// Open spawns one shell under a PTY, publishes the opened signal, and
// starts streaming its output as data events. The returned handle
// identifies the terminal in subsequent signals.
func (h *Host) Open(displayName string) (string, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", fmt.Errorf("host is closed")
	}
	h.nextID++
	handle := fmt.Sprintf("pty-%d", h.nextID)
	h.mu.Unlock()

	cmd := exec.Command(h.shell)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return "", fmt.Errorf("start shell %q: %w", h.shell, err)
	}

	term := &terminal{handle: handle, cmd: cmd, ptmx: ptmx}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = ptmx.Close()
		_ = cmd.Process.Kill()
		return "", fmt.Errorf("host is closed")
	}
	h.terminals[handle] = term
	h.mu.Unlock()

	pid := cmd.Process.Pid
	h.bus.Publish(event.NewTerminalOpenedEvent(handle, displayName,
		func(ctx context.Context) (int, error) { return pid, nil }))
	h.logger.Info("terminal opened", "handle", handle, "pid", pid)

	h.wg.Add(1)
	go h.stream(term)

	return handle, nil
}

// Write sends input to the terminal's PTY, as if typed by a user.
func (h *Host) Write(handle string, data []byte) error {
	h.mu.Lock()
	term, ok := h.terminals[handle]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown terminal %q", handle)
	}
	_, err := term.ptmx.Write(data)
	return err
}

// CloseTerminal tears one terminal down and publishes the closed signal.
// Unknown handles are a no-op.
func (h *Host) CloseTerminal(handle string) {
	h.mu.Lock()
	term, ok := h.terminals[handle]
	if ok {
		delete(h.terminals, handle)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	h.teardown(term)
}

// Close tears all terminals down and waits for their readers to finish.
func (h *Host) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	terms := make([]*terminal, 0, len(h.terminals))
	for _, term := range h.terminals {
		terms = append(terms, term)
	}
	h.terminals = make(map[string]*terminal)
	h.mu.Unlock()

	for _, term := range terms {
		h.teardown(term)
	}
	h.wg.Wait()
}

// teardown kills one terminal process and publishes the closed signal.
func (h *Host) teardown(term *terminal) {
	_ = term.ptmx.Close()
	if term.cmd.Process != nil {
		_ = term.cmd.Process.Kill()
	}
	_ = term.cmd.Wait()
	h.bus.Publish(event.NewTerminalClosedEvent(term.handle))
	h.logger.Info("terminal closed", "handle", term.handle)
}

// stream copies PTY output into data events until the PTY closes.
// When the process exits on its own, the terminal is torn down and the
// closed signal published.
func (h *Host) stream(term *terminal) {
	defer h.wg.Done()

	buf := make([]byte, 32*1024)
	for {
		n, err := term.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			h.bus.Publish(event.NewTerminalDataEvent(term.handle, chunk))
		}
		if err != nil {
			if err != io.EOF {
				h.logger.Debug("pty read ended", "handle", term.handle, "error", err)
			}
			break
		}
	}

	// Self-initiated exit: remove the terminal if it is still registered.
	h.mu.Lock()
	_, registered := h.terminals[term.handle]
	if registered {
		delete(h.terminals, term.handle)
	}
	h.mu.Unlock()
	if registered {
		h.teardown(term)
	}
}
