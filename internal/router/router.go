// Package router exposes the fixed operation set backed by the capture
// service. Operations carry declared input schemas, and every invocation
// is wrapped so internal faults surface as structured results rather than
// escaping to the caller.
package router

import (
	"fmt"
	"strings"
	"time"

	"github.com/rodgomesc/terminal-hook/internal/capture"
	"github.com/rodgomesc/terminal-hook/internal/errors"
	"github.com/rodgomesc/terminal-hook/internal/logging"
)

// Operation names exposed by the router.
const (
	OpListSessions = "list-sessions"
	OpGetOutput    = "get-output"
)

// defaultOutputLines is how many lines get-output returns when the caller
// does not pass maxLines.
const defaultOutputLines = 100

// unnamedPlaceholder stands in for sessions the host opened without a
// display name.
const unnamedPlaceholder = "(unnamed)"

// ErrUnknownOperation indicates a Dispatch call with an unrecognized
// operation name.
var ErrUnknownOperation = errors.New("unknown operation")

// Operation describes one invocable operation and its input schema.
type Operation struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// SessionSummary is the per-session entry in a list-sessions result.
type SessionSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ProcessID    *int   `json:"processId"`
	BufferLines  int    `json:"bufferLines"`
	LastActivity string `json:"lastActivity"`
}

// ListSessionsResult is the payload of a successful list-sessions call.
type ListSessionsResult struct {
	Success  bool             `json:"success"`
	Count    int              `json:"count"`
	Sessions []SessionSummary `json:"sessions"`
}

// GetOutputResult is the payload of a successful get-output call.
type GetOutputResult struct {
	Success       bool   `json:"success"`
	Session       string `json:"session"`
	Output        string `json:"output"`
	LinesReturned int    `json:"linesReturned"`
}

// FailureResult is the payload returned for validation and lookup
// failures. It is a result, not a protocol error, so clients can render
// it directly.
type FailureResult struct {
	Success           bool     `json:"success"`
	Error             string   `json:"error"`
	AvailableSessions []string `json:"availableSessions,omitempty"`
}

// Router dispatches the declared operations against a capture service.
type Router struct {
	service            *capture.Service
	defaultOutputLines int
	logger             *logging.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithDefaultOutputLines overrides the default line count for get-output.
func WithDefaultOutputLines(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.defaultOutputLines = n
		}
	}
}

// WithLogger sets the logger for the router.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger.WithComponent("router")
		}
	}
}

// New creates a Router backed by the given capture service.
// The service must be non-nil.
func New(service *capture.Service, opts ...Option) *Router {
	if service == nil {
		panic("router: capture service must not be nil")
	}

	r := &Router{
		service:            service,
		defaultOutputLines: defaultOutputLines,
		logger:             logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Operations returns the declared operation set with input schemas.
func (r *Router) Operations() []Operation {
	return []Operation{
		{
			Name:        OpListSessions,
			Description: "List all tracked terminal sessions with their buffer state.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        OpGetOutput,
			Description: "Get recent output lines from a terminal session, found by ID or name substring.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Session ID or case-insensitive name substring.",
					},
					"maxLines": map[string]any{
						"type":        "integer",
						"description": fmt.Sprintf("Maximum number of lines to return (default %d).", defaultOutputLines),
						"default":     defaultOutputLines,
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

// Dispatch invokes the named operation with the given arguments.
//
// Validation and lookup failures are returned as FailureResult payloads
// with a nil error. The error return is reserved for an unrecognized
// operation name (ErrUnknownOperation) and for internal faults, which are
// recovered and wrapped so they never escape as panics.
func (r *Router) Dispatch(name string, args map[string]any) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("operation panicked", "operation", name, "panic", rec)
			result = nil
			err = fmt.Errorf("operation %q failed: %v", name, rec)
		}
	}()

	switch name {
	case OpListSessions:
		return r.listSessions(), nil
	case OpGetOutput:
		return r.getOutput(args), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
}

// listSessions builds the list-sessions result.
func (r *Router) listSessions() ListSessionsResult {
	sessions := r.service.ListSessions()

	out := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		name := s.Name
		if name == "" {
			name = unnamedPlaceholder
		}
		var pid *int
		if s.PID != 0 {
			p := s.PID
			pid = &p
		}
		out = append(out, SessionSummary{
			ID:           s.ID,
			Name:         name,
			ProcessID:    pid,
			BufferLines:  s.BufferLines,
			LastActivity: s.LastActivity.Format(time.RFC3339),
		})
	}

	return ListSessionsResult{
		Success:  true,
		Count:    len(out),
		Sessions: out,
	}
}

// getOutput builds the get-output result: a success payload with the
// joined buffer text, or a failure payload carrying the available session
// set so clients can recover.
func (r *Router) getOutput(args map[string]any) any {
	query, ok := stringArg(args, "query")
	if !ok || query == "" {
		return r.failure(errors.NewValidationError("query", "query parameter is required"), nil)
	}

	maxLines := r.defaultOutputLines
	if n, ok := intArg(args, "maxLines"); ok {
		maxLines = n
	}

	lines, sum, found := r.service.Buffer(query, maxLines)
	if !found {
		return r.failure(errors.NewNotFoundError("session", query), r.availableSessions())
	}

	label := sum.Name
	if label == "" {
		label = sum.ID
	}

	return GetOutputResult{
		Success:       true,
		Session:       label,
		Output:        strings.Join(lines, "\n"),
		LinesReturned: len(lines),
	}
}

// semanticError is an error whose boundary message is separable from its
// cause chain.
type semanticError interface {
	error
	Message() string
}

// failure logs a semantic error and converts it into the payload clients
// receive. The payload carries the boundary message only; the full chain,
// which classifies under errors.Is, stays in the log.
func (r *Router) failure(err semanticError, available []string) FailureResult {
	r.logger.Debug("operation failed", "error", err.Error())
	return FailureResult{
		Success:           false,
		Error:             err.Message(),
		AvailableSessions: available,
	}
}

// availableSessions returns the current session set by name, falling back
// to the ID for unnamed sessions.
func (r *Router) availableSessions() []string {
	sessions := r.service.ListSessions()
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		if s.Name != "" {
			out = append(out, s.Name)
		} else {
			out = append(out, s.ID)
		}
	}
	return out
}

// stringArg extracts a string argument.
func stringArg(args map[string]any, key string) (string, bool) {
	if args == nil {
		return "", false
	}
	v, ok := args[key].(string)
	return v, ok
}

// intArg extracts an integer argument, accepting the float64 that
// encoding/json produces for JSON numbers.
func intArg(args map[string]any, key string) (int, bool) {
	if args == nil {
		return 0, false
	}
	switch v := args[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
