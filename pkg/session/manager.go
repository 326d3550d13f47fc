package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/hxrts/aura-sub001/pkg/aerr"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// Manager coordinates sessions generic over a protocol state T. Callers
// supply the clock explicitly (a time.Time per call), so deterministic
// modes drive it from the virtual clock. The caller is responsible for
// invoking CleanupStaleSessions periodically.
type Manager[T any] struct {
	mu       sync.Mutex
	config   Config
	sessions map[identifiers.SessionId]*State[T]

	completed uint64
	failed    uint64
	timedOut  uint64

	totalDuration   time.Duration
	totalOperations int
}

// NewManager builds a manager with the given config.
func NewManager[T any](config Config) *Manager[T] {
	return &Manager[T]{
		config:   config,
		sessions: make(map[identifiers.SessionId]*State[T]),
	}
}

// CreateSession registers a new session in the initializing phase. Rejects
// when the participant list exceeds the cap or the concurrent-session limit
// is reached.
func (m *Manager[T]) CreateSession(participants []identifiers.DeviceId, now time.Time) (identifiers.SessionId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(participants) > m.config.MaxParticipants {
		return identifiers.SessionId{}, aerr.ResourceExhausted(
			"participants %d exceeds limit %d", len(participants), m.config.MaxParticipants)
	}
	active := 0
	for _, s := range m.sessions {
		if !s.IsTerminal() {
			active++
		}
	}
	if active >= m.config.MaxConcurrentSessions {
		return identifiers.SessionId{}, aerr.ResourceExhausted(
			"concurrent sessions at limit %d", m.config.MaxConcurrentSessions)
	}

	id := identifiers.NewSessionId()
	m.sessions[id] = &State[T]{
		Phase:        PhaseInitializing,
		Participants: append([]identifiers.DeviceId(nil), participants...),
		CreatedAt:    now,
		TimeoutAt:    now.Add(m.config.Timeout),
	}
	return id, nil
}

// ActivateSession moves an initializing session into the active phase with
// its protocol state.
func (m *Manager[T]) ActivateSession(id identifiers.SessionId, protocol T, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return aerr.InvalidStateTransition("session %s not found", id)
	}
	if s.Phase != PhaseInitializing {
		return aerr.InvalidStateTransition("activate from %s", s.Phase)
	}
	if s.IsTimedOut(now) {
		return aerr.Timeout("session %s timed out before activation", id)
	}
	s.Phase = PhaseActive
	s.StartedAt = now
	s.Protocol = protocol
	return nil
}

// UpdateSession replaces the protocol state of an active session.
func (m *Manager[T]) UpdateSession(id identifiers.SessionId, protocol T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return aerr.InvalidStateTransition("session %s not found", id)
	}
	if s.Phase != PhaseActive {
		return aerr.InvalidStateTransition("update from %s", s.Phase)
	}
	s.Protocol = protocol
	return nil
}

// CompleteSession finishes a session successfully.
func (m *Manager[T]) CompleteSession(id identifiers.SessionId, opsCount, bytes int, metadata map[string]string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return aerr.InvalidStateTransition("session %s not found", id)
	}
	if s.Phase != PhaseActive {
		return aerr.InvalidStateTransition("complete from %s", s.Phase)
	}
	result := Result{
		Outcome:          OutcomeSuccess,
		Duration:         now.Sub(s.CreatedAt),
		OperationsCount:  opsCount,
		BytesTransferred: bytes,
		Participants:     s.Participants,
		Metadata:         metadata,
	}
	m.finishLocked(s, result, now)
	return nil
}

// FailSession finishes a session with an error and optional partial
// results.
func (m *Manager[T]) FailSession(id identifiers.SessionId, cause error, partial *PartialResults, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return aerr.InvalidStateTransition("session %s not found", id)
	}
	if s.IsTerminal() {
		return aerr.InvalidStateTransition("fail from %s", s.Phase)
	}
	result := Result{
		Outcome:  OutcomeFailure,
		Duration: now.Sub(s.CreatedAt),
		Err:      fmt.Sprintf("%v", cause),
		Partial:  partial,
	}
	if partial != nil {
		result.OperationsCount = partial.OperationsCompleted
		result.BytesTransferred = partial.BytesTransferred
	}
	m.finishLocked(s, result, now)
	return nil
}

// TimeoutSession forces a session to time out now.
func (m *Manager[T]) TimeoutSession(id identifiers.SessionId, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return aerr.InvalidStateTransition("session %s not found", id)
	}
	if s.IsTerminal() {
		return aerr.InvalidStateTransition("timeout from %s", s.Phase)
	}
	m.timeoutLocked(s, now)
	return nil
}

func (m *Manager[T]) timeoutLocked(s *State[T], now time.Time) {
	result := Result{
		Outcome:        OutcomeTimeout,
		Duration:       now.Sub(s.CreatedAt),
		LastKnownState: string(s.Phase),
	}
	m.finishLocked(s, result, now)
}

func (m *Manager[T]) finishLocked(s *State[T], result Result, now time.Time) {
	s.Phase = PhaseCompleted
	s.Result = &result
	s.CleanupDeadline = now.Add(m.config.CleanupWindow)

	switch result.Outcome {
	case OutcomeSuccess:
		m.completed++
	case OutcomeFailure:
		m.failed++
	case OutcomeTimeout:
		m.timedOut++
	}
	m.totalDuration += result.Duration
	m.totalOperations += result.OperationsCount
}

// GetSession returns a copy of the session state.
func (m *Manager[T]) GetSession(id identifiers.SessionId) (State[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return State[T]{}, false
	}
	return *s, true
}

// GetProtocolState returns the protocol payload of an active session.
func (m *Manager[T]) GetProtocolState(id identifiers.SessionId) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	s, ok := m.sessions[id]
	if !ok || s.Phase != PhaseActive {
		return zero, false
	}
	return s.Protocol, true
}

// CountActiveSessions counts non-terminal sessions.
func (m *Manager[T]) CountActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if !s.IsTerminal() {
			n++
		}
	}
	return n
}

// CountSessions returns the total sessions currently tracked.
func (m *Manager[T]) CountSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CleanupStaleSessions times out expired non-terminal sessions and removes
// terminal sessions past their cleanup deadline. Idempotent; returns how
// many sessions changed or left the table.
func (m *Manager[T]) CleanupStaleSessions(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	touched := 0
	for id, s := range m.sessions {
		if s.IsTerminal() {
			if !now.Before(s.CleanupDeadline) {
				delete(m.sessions, id)
				touched++
			}
			continue
		}
		if s.IsTimedOut(now) {
			m.timeoutLocked(s, now)
			touched++
		}
	}
	return touched
}

// Statistics summarizes terminal outcomes across the window.
type Statistics struct {
	Active          int           `json:"active"`
	Completed       uint64        `json:"completed"`
	Failed          uint64        `json:"failed"`
	TimedOut        uint64        `json:"timed_out"`
	SuccessRate     float64       `json:"success_rate"`
	AverageDuration time.Duration `json:"average_duration"`
	TotalOperations int           `json:"total_operations"`
}

// Statistics returns the manager's counters.
func (m *Manager[T]) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := 0
	for _, s := range m.sessions {
		if !s.IsTerminal() {
			active++
		}
	}
	terminal := m.completed + m.failed + m.timedOut
	stats := Statistics{
		Active:          active,
		Completed:       m.completed,
		Failed:          m.failed,
		TimedOut:        m.timedOut,
		TotalOperations: m.totalOperations,
	}
	if terminal > 0 {
		stats.SuccessRate = float64(m.completed) / float64(terminal)
		stats.AverageDuration = m.totalDuration / time.Duration(terminal)
	}
	return stats
}
