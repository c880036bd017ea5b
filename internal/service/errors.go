package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned when the request payload is malformed.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrIdentityMismatch is returned when the caller acts for another account.
	ErrIdentityMismatch = errors.New("user id mismatch with authenticated user")

	ErrTournamentNotFound = errors.New("tournament not found")
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrUserNotFound       = errors.New("user not found")

	ErrInvalidAmount       = errors.New("invalid amount")
	ErrTournamentStarted   = errors.New("tournament already started")
	ErrInsufficientSlots   = errors.New("insufficient slots")
	ErrAlreadyRegistered   = errors.New("already registered")
	ErrInsufficientBalance = errors.New("insufficient balance")

	ErrAlreadyFollowing = errors.New("already following")
	ErrSelfFollow       = errors.New("cannot follow yourself")
)

// RejectError carries a caller-facing explanation alongside a sentinel.
type RejectError struct {
	Kind    error
	Message string
}

func (e *RejectError) Error() string {
	return e.Kind.Error() + ": " + e.Message
}

func (e *RejectError) Unwrap() error {
	return e.Kind
}

func reject(kind error, format string, args ...any) error {
	return &RejectError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Detail returns the caller-facing explanation attached to err, if any.
func Detail(err error) string {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Message
	}
	return ""
}

// StepError reports a binding registration step that failed. Earlier steps
// have already been compensated when it is returned.
type StepError struct {
	Step CommitState
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("registration step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
