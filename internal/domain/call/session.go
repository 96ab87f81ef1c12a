package call

import (
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/lifeline-core/internal/domain/trigger"
)

// Session is one in-flight emergency call, owned exclusively by the
// orchestrator for its lifetime. At most one session exists at a time.
type Session struct {
	// ID uniquely identifies the session.
	ID string
	// Destination is the dialed number.
	Destination string
	// Severity is the emergency tier the call was initiated with.
	Severity trigger.Severity
	// CreatedAt is when the call was initiated.
	CreatedAt time.Time
	// ChannelName is the delivery channel the call went through,
	// empty until channel selection completes.
	ChannelName string
	// Handle is the remote session handle returned by the channel.
	Handle string
	// Context is the best-effort context snapshot collected for the call.
	Context *trigger.Snapshot
	// EndedAt is when the session reached a terminal state.
	EndedAt time.Time
	// FailureReason is the human-readable terminal error, if any.
	FailureReason string
}

// NewSession creates a session for the given destination and severity.
func NewSession(destination string, severity trigger.Severity, now time.Time) *Session {
	return &Session{
		ID:          uuid.NewString(),
		Destination: destination,
		Severity:    severity,
		CreatedAt:   now,
	}
}

// Duration returns how long the session lasted, zero while it is active.
func (s *Session) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return 0
	}

	return s.EndedAt.Sub(s.CreatedAt)
}

// Record converts the finished session into its persisted form.
func (s *Session) Record() *Record {
	return &Record{
		SessionID:     s.ID,
		Destination:   s.Destination,
		Severity:      s.Severity,
		ChannelName:   s.ChannelName,
		StartedAt:     s.CreatedAt,
		EndedAt:       s.EndedAt,
		Duration:      s.Duration(),
		FailureReason: s.FailureReason,
	}
}

// Record is the persisted trace of a finished call session.
type Record struct {
	// SessionID is the originating session identifier.
	SessionID string
	// Destination is the dialed number.
	Destination string
	// Severity is the emergency tier of the call.
	Severity trigger.Severity
	// ChannelName is the delivery channel used, empty if none connected.
	ChannelName string
	// StartedAt and EndedAt bound the session lifetime.
	StartedAt time.Time
	EndedAt   time.Time
	// Duration is the session length.
	Duration time.Duration
	// FailureReason is the terminal error, empty for a clean call.
	FailureReason string
}
