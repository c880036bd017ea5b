package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitStateCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to CommitState
		expected bool
	}{
		{StateStart, StateDebited, true},
		{StateStart, StateEnrolled, false},
		{StateDebited, StateTransactionLogged, true},
		{StateDebited, StateAborted, true},
		{StateTransactionLogged, StateEnrolled, true},
		{StateTransactionLogged, StateAborted, true},
		{StateEnrolled, StateSlotDecremented, true},
		{StateEnrolled, StateAborted, false},
		{StateSlotDecremented, StateDone, true},
		{StateSlotDecremented, StateAborted, false},
		{StateDone, StateStart, false},
		{StateAborted, StateDebited, false},
		{CommitState("BOGUS"), StateDone, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestCommitStateIsTerminal(t *testing.T) {
	assert.True(t, StateDone.IsTerminal())
	assert.True(t, StateAborted.IsTerminal())
	assert.False(t, StateEnrolled.IsTerminal())
}

func TestCommitMachine(t *testing.T) {
	m := newCommitMachine()
	require.NoError(t, m.transition(StateDebited))
	require.NoError(t, m.transition(StateTransactionLogged))

	err := m.transition(StateDone)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.Equal(t, StateTransactionLogged, m.state)

	assert.True(t, m.reached(StateDebited))
	assert.False(t, m.reached(StateEnrolled))

	require.NoError(t, m.transition(StateAborted))
	assert.Equal(t, []CommitState{StateStart, StateDebited, StateTransactionLogged, StateAborted}, m.history)
}
