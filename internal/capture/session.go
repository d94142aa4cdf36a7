package capture

import "time"

// Session tracks one live terminal instance: its identity, display name,
// optional process ID, and a bounded buffer of normalized output lines.
//
// The Service exclusively owns all Session records; callers only ever see
// Summary snapshots.
type Session struct {
	id           string
	name         string
	pid          int // 0 until the asynchronous resolution completes
	buffer       *LineBuffer
	created      time.Time
	lastActivity time.Time
}

// Summary is an immutable snapshot of a session's metadata, safe to hand
// out to callers.
type Summary struct {
	ID           string
	Name         string
	PID          int
	BufferLines  int
	Created      time.Time
	LastActivity time.Time
}

// Stats describes the current state of a session's buffer.
type Stats struct {
	Lines        int
	Bytes        int
	Created      time.Time
	LastActivity time.Time
}

// summary builds a Summary snapshot of the session.
func (s *Session) summary() Summary {
	return Summary{
		ID:           s.id,
		Name:         s.name,
		PID:          s.pid,
		BufferLines:  s.buffer.Len(),
		Created:      s.created,
		LastActivity: s.lastActivity,
	}
}

// stats builds a Stats snapshot of the session.
func (s *Session) stats() Stats {
	return Stats{
		Lines:        s.buffer.Len(),
		Bytes:        s.buffer.ByteSize(),
		Created:      s.created,
		LastActivity: s.lastActivity,
	}
}
