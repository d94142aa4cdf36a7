// Package event defines the host terminal signals and the bus that carries
// them. The host environment that owns the actual terminals publishes
// opened/closed/data events; the capture service subscribes to them without
// either side depending on the other directly.
package event

import (
	"context"
	"time"
)

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "terminal.opened").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// Event type identifiers for the host terminal signals.
const (
	TypeTerminalOpened = "terminal.opened"
	TypeTerminalClosed = "terminal.closed"
	TypeTerminalData   = "terminal.data"
)

// PIDResolver resolves the OS process ID behind a terminal handle.
// Resolution may complete long after the terminal opens; implementations
// should honor the context's deadline.
type PIDResolver func(ctx context.Context) (int, error)

// TerminalOpenedEvent is published when the host opens a terminal.
// The handle is owned by the host; subscribers must treat it as an opaque
// lookup key and never extend its lifetime.
type TerminalOpenedEvent struct {
	baseEvent
	Handle      string      // Host-assigned terminal handle
	DisplayName string      // Human-readable terminal name (may be empty)
	ResolvePID  PIDResolver // Optional; nil when the host cannot report a PID
}

// NewTerminalOpenedEvent creates a TerminalOpenedEvent.
func NewTerminalOpenedEvent(handle, displayName string, resolvePID PIDResolver) TerminalOpenedEvent {
	return TerminalOpenedEvent{
		baseEvent:   newBaseEvent(TypeTerminalOpened),
		Handle:      handle,
		DisplayName: displayName,
		ResolvePID:  resolvePID,
	}
}

// TerminalClosedEvent is published when the host disposes a terminal.
type TerminalClosedEvent struct {
	baseEvent
	Handle string
}

// NewTerminalClosedEvent creates a TerminalClosedEvent.
func NewTerminalClosedEvent(handle string) TerminalClosedEvent {
	return TerminalClosedEvent{
		baseEvent: newBaseEvent(TypeTerminalClosed),
		Handle:    handle,
	}
}

// TerminalDataEvent is published for every chunk the host writes to a
// terminal. Data is the raw byte stream including escape sequences.
type TerminalDataEvent struct {
	baseEvent
	Handle string
	Data   []byte
}

// NewTerminalDataEvent creates a TerminalDataEvent.
func NewTerminalDataEvent(handle string, data []byte) TerminalDataEvent {
	return TerminalDataEvent{
		baseEvent: newBaseEvent(TypeTerminalData),
		Handle:    handle,
		Data:      data,
	}
}
