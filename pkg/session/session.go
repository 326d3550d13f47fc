// Package session provides the generic lifecycle manager for multi-party
// ceremonies: a state machine over a protocol-specific payload with
// timeouts, participant tracking, partial-failure bookkeeping and cleanup.
package session

import (
	"time"

	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// Phase names a lifecycle state.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseActive       Phase = "active"
	PhaseTerminating  Phase = "terminating"
	PhaseCompleted    Phase = "completed"
)

// Outcome discriminates terminal results.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeTimeout Outcome = "timeout"
)

// PartialResults captures what a failed session still accomplished.
type PartialResults struct {
	OperationsCompleted       int                    `json:"operations_completed"`
	BytesTransferred          int                    `json:"bytes_transferred"`
	CompletedParticipants     []identifiers.DeviceId `json:"completed_participants,omitempty"`
	LastSuccessfulOperation   string                 `json:"last_successful_operation,omitempty"`
}

// Result is the terminal record of a session.
type Result struct {
	Outcome          Outcome                `json:"outcome"`
	Duration         time.Duration          `json:"duration"`
	OperationsCount  int                    `json:"operations_count"`
	BytesTransferred int                    `json:"bytes_transferred"`
	Participants     []identifiers.DeviceId `json:"participants,omitempty"`
	Metadata         map[string]string      `json:"metadata,omitempty"`
	Err              string                 `json:"error,omitempty"`
	Partial          *PartialResults        `json:"partial,omitempty"`
	LastKnownState   string                 `json:"last_known_state,omitempty"`
}

// IsSuccess reports whether the session completed successfully.
func (r Result) IsSuccess() bool { return r.Outcome == OutcomeSuccess }

// State is a session's current lifecycle state. The protocol payload T is
// only meaningful in the active phase.
type State[T any] struct {
	Phase           Phase                  `json:"phase"`
	Participants    []identifiers.DeviceId `json:"participants"`
	CreatedAt       time.Time              `json:"created_at"`
	StartedAt       time.Time              `json:"started_at,omitempty"`
	TimeoutAt       time.Time              `json:"timeout_at"`
	CleanupDeadline time.Time              `json:"cleanup_deadline,omitempty"`
	Protocol        T                      `json:"protocol,omitempty"`
	Result          *Result                `json:"result,omitempty"`
}

// IsTerminal reports whether the session has completed.
func (s *State[T]) IsTerminal() bool { return s.Phase == PhaseCompleted }

// IsActive reports whether the session carries live protocol state.
func (s *State[T]) IsActive() bool { return s.Phase == PhaseActive }

// IsTimedOut reports whether the session deadline has passed at now.
func (s *State[T]) IsTimedOut(now time.Time) bool {
	switch s.Phase {
	case PhaseInitializing, PhaseActive:
		return !now.Before(s.TimeoutAt)
	case PhaseTerminating:
		return !now.Before(s.CleanupDeadline)
	}
	return false
}

// Config bounds the manager.
type Config struct {
	Timeout               time.Duration
	MaxParticipants       int
	MaxConcurrentSessions int
	CleanupWindow         time.Duration
}

// DefaultConfig mirrors the deployed defaults: five-minute ceremonies, ten
// participants, twenty concurrent sessions, one-minute cleanup.
func DefaultConfig() Config {
	return Config{
		Timeout:               5 * time.Minute,
		MaxParticipants:       10,
		MaxConcurrentSessions: 20,
		CleanupWindow:         time.Minute,
	}
}
