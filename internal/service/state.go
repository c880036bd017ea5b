package service

import (
	"errors"
	"fmt"
)

// CommitState is a stage of the registration commit sequence.
type CommitState string

const (
	StateStart             CommitState = "START"
	StateDebited           CommitState = "DEBITED"
	StateTransactionLogged CommitState = "TRANSACTION_LOGGED"
	StateEnrolled          CommitState = "ENROLLED"
	StateSlotDecremented   CommitState = "SLOT_DECREMENTED"
	StateDone              CommitState = "DONE"
	StateAborted           CommitState = "ABORTED"
)

// ErrInvalidStateTransition is returned when a commit skips or repeats a step.
var ErrInvalidStateTransition = errors.New("invalid state transition")

// Only the binding prefix may abort. Once enrolled, the registration stands.
// Enrollment takes the capacity itself, so SLOT_DECREMENTED follows it
// without another write.
var validTransitions = map[CommitState][]CommitState{
	StateStart:             {StateDebited, StateAborted},
	StateDebited:           {StateTransactionLogged, StateAborted},
	StateTransactionLogged: {StateEnrolled, StateAborted},
	StateEnrolled:          {StateSlotDecremented},
	StateSlotDecremented:   {StateDone},
	StateDone:              {},
	StateAborted:           {},
}

// IsTerminal returns true if no further transition is possible.
func (s CommitState) IsTerminal() bool {
	return s == StateDone || s == StateAborted
}

// CanTransitionTo returns true if transition to the target state is allowed.
func (s CommitState) CanTransitionTo(target CommitState) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// commitMachine tracks the current state and the path taken to reach it.
type commitMachine struct {
	state   CommitState
	history []CommitState
}

func newCommitMachine() *commitMachine {
	return &commitMachine{state: StateStart, history: []CommitState{StateStart}}
}

func (m *commitMachine) transition(to CommitState) error {
	if !m.state.CanTransitionTo(to) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStateTransition, m.state, to)
	}
	m.state = to
	m.history = append(m.history, to)
	return nil
}

// reached reports whether s was passed through on the way to the current state.
func (m *commitMachine) reached(s CommitState) bool {
	for _, h := range m.history {
		if h == s {
			return true
		}
	}
	return false
}
