package capture

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rodgomesc/terminal-hook/internal/event"
	"github.com/rodgomesc/terminal-hook/internal/logging"
)

// defaultBufferLines is the per-session line capacity when none is configured.
const defaultBufferLines = 1000

// defaultPIDResolveTimeout bounds the asynchronous process-id resolution.
const defaultPIDResolveTimeout = 5 * time.Second

// Service owns the session registry. It subscribes to the host terminal
// signals (opened, closed, data) on the event bus at construction and
// releases those subscriptions exactly once on Close.
//
// All session mutation is serialized by an internal mutex: a read always
// observes the registry as of the most recently completed write. The host
// terminal handle is used only as a lookup key into a side table; the
// Service never participates in the host's disposal of the handle.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*Session // session ID → session
	byHandle map[string]string   // host handle → session ID (non-owning)
	order    []string            // session IDs in registration order

	capacity   int
	pidTimeout time.Duration
	logger     *logging.Logger

	subs      []*event.Subscription
	closeOnce sync.Once
	closed    bool

	resolvers sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithCapacity sets the per-session line buffer capacity.
// A zero or negative value is replaced with the default (1000).
func WithCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithPIDResolveTimeout bounds how long the asynchronous process-id
// resolution may run after a terminal opens.
func WithPIDResolveTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pidTimeout = d
		}
	}
}

// WithLogger sets the logger for the service.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger.WithComponent("capture")
		}
	}
}

// NewService creates a Service and subscribes it to the terminal signals
// on the given bus. The bus must be non-nil; passing nil panics early to
// surface wiring bugs immediately.
func NewService(bus *event.Bus, opts ...Option) *Service {
	if bus == nil {
		panic("capture: event bus must not be nil")
	}

	s := &Service{
		sessions:   make(map[string]*Session),
		byHandle:   make(map[string]string),
		capacity:   defaultBufferLines,
		pidTimeout: defaultPIDResolveTimeout,
		logger:     logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.subs = []*event.Subscription{
		bus.Subscribe(event.TypeTerminalOpened, s.handleOpened),
		bus.Subscribe(event.TypeTerminalData, s.handleData),
		bus.Subscribe(event.TypeTerminalClosed, s.handleClosed),
	}

	return s
}

// Close releases the bus subscriptions and waits for in-flight process-id
// resolutions to finish. Safe to call multiple times; every subscription
// is released exactly once even if construction only partially completed.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		for _, sub := range s.subs {
			sub.Release()
		}

		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.resolvers.Wait()
	})
}

// handleOpened creates a session for a newly opened terminal.
func (s *Service) handleOpened(e event.Event) {
	opened := e.(event.TerminalOpenedEvent)
	s.RegisterSession(opened.Handle, opened.DisplayName, opened.ResolvePID)
}

// handleData appends a raw chunk to the session owning the handle.
func (s *Service) handleData(e event.Event) {
	data := e.(event.TerminalDataEvent)
	s.AppendData(data.Handle, data.Data)
}

// handleClosed destroys the session owning the handle.
func (s *Service) handleClosed(e event.Event) {
	closed := e.(event.TerminalClosedEvent)
	s.UnregisterSession(closed.Handle)
}

// RegisterSession creates a session for the handle. If the handle is
// already mapped the call is a no-op: a session's identity is stable for
// its whole lifetime and never reassigned.
//
// When resolvePID is non-nil, resolution runs on its own goroutine and
// updates the session in place when it completes; the process ID may
// therefore arrive after registration.
func (s *Service) RegisterSession(handle, displayName string, resolvePID event.PIDResolver) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, exists := s.byHandle[handle]; exists {
		s.mu.Unlock()
		return
	}

	now := time.Now()
	sess := &Session{
		id:           uuid.NewString(),
		name:         displayName,
		buffer:       NewLineBuffer(s.capacity),
		created:      now,
		lastActivity: now,
	}
	s.sessions[sess.id] = sess
	s.byHandle[handle] = sess.id
	s.order = append(s.order, sess.id)
	s.mu.Unlock()

	s.logger.Info("session registered", "session_id", sess.id, "name", displayName)

	if resolvePID != nil {
		s.resolvers.Add(1)
		go s.resolvePID(sess.id, resolvePID)
	}
}

// resolvePID runs the asynchronous process-id resolution and stores the
// result if the session still exists when it completes.
func (s *Service) resolvePID(sessionID string, resolve event.PIDResolver) {
	defer s.resolvers.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.pidTimeout)
	defer cancel()

	pid, err := resolve(ctx)
	if err != nil {
		s.logger.Debug("pid resolution failed", "session_id", sessionID, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.pid = pid
	}
}

// UnregisterSession removes the session associated with the handle
// immediately and unconditionally. Unknown handles are a no-op.
func (s *Service) UnregisterSession(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHandle[handle]
	if !ok {
		return
	}
	delete(s.byHandle, handle)
	delete(s.sessions, id)
	for i, sid := range s.order {
		if sid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// AppendData normalizes a raw chunk and appends the surviving lines to the
// session's buffer, evicting the oldest lines beyond capacity and updating
// the last-activity timestamp. Unmapped handles are a no-op: data can
// legitimately arrive after close or for terminals that were never
// registered.
func (s *Service) AppendData(handle string, raw []byte) {
	lines := Normalize(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHandle[handle]
	if !ok {
		return
	}
	sess := s.sessions[id]
	if len(lines) > 0 {
		sess.buffer.Append(lines...)
	}
	sess.lastActivity = time.Now()
}

// ListSessions returns a snapshot of all sessions in registration order.
func (s *Service) ListSessions() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id].summary())
	}
	return out
}

// ResolveSession finds a session by query: an exact identifier match wins;
// otherwise the first session (in registration order) whose display name
// contains the query case-insensitively. When several names share the
// substring the earliest registration wins, which can surprise callers;
// disambiguate with the full session ID.
func (s *Service) ResolveSession(query string) (Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.resolveLocked(query)
	if !ok {
		return Summary{}, false
	}
	return sess.summary(), true
}

// resolveLocked implements resolution; the caller must hold the lock.
func (s *Service) resolveLocked(query string) (*Session, bool) {
	if sess, ok := s.sessions[query]; ok {
		return sess, true
	}
	q := strings.ToLower(query)
	for _, id := range s.order {
		sess := s.sessions[id]
		if strings.Contains(strings.ToLower(sess.name), q) {
			return sess, true
		}
	}
	return nil, false
}

// Buffer resolves a session and returns its last maxLines lines, oldest
// first. A maxLines of zero or less returns the whole buffer.
func (s *Service) Buffer(query string, maxLines int) ([]string, Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, found := s.resolveLocked(query)
	if !found {
		return nil, Summary{}, false
	}
	return sess.buffer.Last(maxLines), sess.summary(), true
}

// ClearBuffer resolves a session and truncates its buffer to empty.
// It reports whether a session was found.
func (s *Service) ClearBuffer(query string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.resolveLocked(query)
	if !ok {
		return false
	}
	sess.buffer.Reset()
	return true
}

// Stats resolves a session and returns its buffer statistics.
func (s *Service) Stats(query string) (Stats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.resolveLocked(query)
	if !ok {
		return Stats{}, false
	}
	return sess.stats(), true
}
