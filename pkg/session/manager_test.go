package session_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura-sub001/pkg/aerr"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
	"github.com/hxrts/aura-sub001/pkg/session"
)

type signingState struct {
	Round int `json:"round"`
}

func participants(n int) []identifiers.DeviceId {
	out := make([]identifiers.DeviceId, n)
	for i := range out {
		out[i] = identifiers.DeviceIdFromSeed(50, uint32(i))
	}
	return out
}

func TestCreateActivateComplete(t *testing.T) {
	m := session.NewManager[signingState](session.DefaultConfig())
	now := time.Unix(1000, 0)

	id, err := m.CreateSession(participants(3), now)
	require.NoError(t, err)

	require.NoError(t, m.ActivateSession(id, signingState{Round: 1}, now.Add(time.Second)))

	state, ok := m.GetProtocolState(id)
	require.True(t, ok)
	assert.Equal(t, 1, state.Round)

	require.NoError(t, m.UpdateSession(id, signingState{Round: 2}))

	done := now.Add(3 * time.Second)
	require.NoError(t, m.CompleteSession(id, 10, 2048, map[string]string{"ceremony": "signing"}, done))

	s, ok := m.GetSession(id)
	require.True(t, ok)
	assert.True(t, s.IsTerminal())
	assert.True(t, s.Result.IsSuccess())
	assert.Equal(t, 3*time.Second, s.Result.Duration)
	assert.Equal(t, 10, s.Result.OperationsCount)
}

func TestInvalidTransitionsLeaveStateUnchanged(t *testing.T) {
	m := session.NewManager[signingState](session.DefaultConfig())
	now := time.Unix(1000, 0)

	id, err := m.CreateSession(participants(2), now)
	require.NoError(t, err)

	// Update before activation is invalid.
	err = m.UpdateSession(id, signingState{Round: 1})
	assert.True(t, aerr.IsCode(err, aerr.CodeInvalidStateTransition))

	require.NoError(t, m.ActivateSession(id, signingState{Round: 1}, now))

	// Double activation is invalid.
	err = m.ActivateSession(id, signingState{Round: 9}, now)
	assert.True(t, aerr.IsCode(err, aerr.CodeInvalidStateTransition))

	require.NoError(t, m.CompleteSession(id, 1, 0, nil, now.Add(time.Second)))

	// No transition leaves a terminal state.
	err = m.CompleteSession(id, 1, 0, nil, now.Add(2*time.Second))
	assert.True(t, aerr.IsCode(err, aerr.CodeInvalidStateTransition))
	err = m.FailSession(id, errors.New("late"), nil, now.Add(2*time.Second))
	assert.True(t, aerr.IsCode(err, aerr.CodeInvalidStateTransition))
	err = m.TimeoutSession(id, now.Add(2*time.Second))
	assert.True(t, aerr.IsCode(err, aerr.CodeInvalidStateTransition))

	s, _ := m.GetSession(id)
	assert.Equal(t, session.OutcomeSuccess, s.Result.Outcome)
}

func TestFailSessionRecordsPartials(t *testing.T) {
	m := session.NewManager[signingState](session.DefaultConfig())
	now := time.Unix(1000, 0)

	id, err := m.CreateSession(participants(2), now)
	require.NoError(t, err)
	require.NoError(t, m.ActivateSession(id, signingState{}, now))

	partial := &session.PartialResults{
		OperationsCompleted:     4,
		BytesTransferred:        512,
		LastSuccessfulOperation: "round2",
	}
	require.NoError(t, m.FailSession(id, errors.New("participant lost"), partial, now.Add(time.Second)))

	s, _ := m.GetSession(id)
	assert.Equal(t, session.OutcomeFailure, s.Result.Outcome)
	assert.Equal(t, 4, s.Result.OperationsCount)
	assert.Contains(t, s.Result.Err, "participant lost")
}

func TestParticipantAndConcurrencyCaps(t *testing.T) {
	config := session.DefaultConfig()
	config.MaxParticipants = 2
	config.MaxConcurrentSessions = 1
	m := session.NewManager[signingState](config)
	now := time.Unix(1000, 0)

	_, err := m.CreateSession(participants(3), now)
	assert.True(t, aerr.IsCode(err, aerr.CodeResourceExhausted))

	_, err = m.CreateSession(participants(1), now)
	require.NoError(t, err)

	_, err = m.CreateSession(participants(1), now)
	assert.True(t, aerr.IsCode(err, aerr.CodeResourceExhausted))
}

// Session-timeout scenario: an unactivated session with a 100ms deadline is
// moved to a timed-out terminal state by cleanup after 150ms.
func TestCleanupTimesOutStaleSessions(t *testing.T) {
	config := session.DefaultConfig()
	config.Timeout = 100 * time.Millisecond
	m := session.NewManager[signingState](config)
	now := time.Unix(1000, 0)

	id, err := m.CreateSession(participants(1), now)
	require.NoError(t, err)

	later := now.Add(150 * time.Millisecond)
	touched := m.CleanupStaleSessions(later)
	assert.Equal(t, 1, touched)

	s, ok := m.GetSession(id)
	require.True(t, ok)
	assert.True(t, s.IsTerminal())
	assert.Equal(t, session.OutcomeTimeout, s.Result.Outcome)
	assert.GreaterOrEqual(t, s.Result.Duration, 150*time.Millisecond)

	// Idempotent: a second pass changes nothing until the cleanup window.
	assert.Equal(t, 0, m.CleanupStaleSessions(later))

	// Past the cleanup window the terminal session is removed.
	assert.Equal(t, 1, m.CleanupStaleSessions(later.Add(config.CleanupWindow)))
	_, ok = m.GetSession(id)
	assert.False(t, ok)
}

func TestActivateAfterTimeoutRejected(t *testing.T) {
	config := session.DefaultConfig()
	config.Timeout = 50 * time.Millisecond
	m := session.NewManager[signingState](config)
	now := time.Unix(1000, 0)

	id, err := m.CreateSession(participants(1), now)
	require.NoError(t, err)

	err = m.ActivateSession(id, signingState{}, now.Add(100*time.Millisecond))
	assert.True(t, aerr.IsCode(err, aerr.CodeTimeout))
}

func TestStatistics(t *testing.T) {
	m := session.NewManager[signingState](session.DefaultConfig())
	now := time.Unix(1000, 0)

	for i := 0; i < 3; i++ {
		id, err := m.CreateSession(participants(1), now)
		require.NoError(t, err)
		require.NoError(t, m.ActivateSession(id, signingState{}, now))
		switch i {
		case 0, 1:
			require.NoError(t, m.CompleteSession(id, 5, 0, nil, now.Add(2*time.Second)))
		default:
			require.NoError(t, m.FailSession(id, errors.New("x"), nil, now.Add(4*time.Second)))
		}
	}

	stats := m.Statistics()
	assert.Equal(t, uint64(2), stats.Completed)
	assert.Equal(t, uint64(1), stats.Failed)
	assert.InDelta(t, 2.0/3.0, stats.SuccessRate, 1e-9)
	assert.Equal(t, 10, stats.TotalOperations)
	assert.Equal(t, 0, stats.Active)

	// count_active + count_terminal == |sessions|
	assert.Equal(t, m.CountSessions(), stats.Active+int(stats.Completed+stats.Failed+stats.TimedOut))
}
