// Package model defines the core domain types for the tournament backend.
package model

import (
	"encoding/json"
	"time"
)

// Format is the team format a tournament is played in.
type Format string

const (
	FormatSolo  Format = "solo"
	FormatDuo   Format = "duo"
	FormatSquad Format = "squad"
)

// GroupSize returns how many players share one capacity unit.
// Unknown formats count every player as a unit of their own.
func (f Format) GroupSize() int {
	switch f {
	case FormatDuo:
		return 2
	case FormatSquad:
		return 4
	default:
		return 1
	}
}

// RequiredUnits returns ceil(teamSize / GroupSize()), never less than 1.
func (f Format) RequiredUnits(teamSize int) int {
	if teamSize < 1 {
		teamSize = 1
	}
	g := f.GroupSize()
	return (teamSize + g - 1) / g
}

// Tournament is a scheduled competition with a fixed number of slots.
type Tournament struct {
	ID         string    `json:"id"`
	Name       string    `json:"tournament_name"`
	Format     Format    `json:"type"`
	TotalSlots int       `json:"totalslots"`
	SlotsLeft  int       `json:"slotsleft"`
	EntryFee   int64     `json:"entryfee"`
	StartsAt   time.Time `json:"tournament_datetime"`
}

// HasStarted reports whether registration is closed at the given instant.
func (t *Tournament) HasStarted(now time.Time) bool {
	return !now.Before(t.StartsAt)
}

// Wallet holds an account's spendable balance in integer currency units.
type Wallet struct {
	ID               string `json:"id"`
	UserID           string `json:"user_id"`
	Balance          int64  `json:"balance"`
	AllowWithdrawals bool   `json:"allow_withdrawals"`
	AllowDeposits    bool   `json:"allow_deposits"`
}

// BalanceChange is the before/after pair produced by an atomic wallet update.
type BalanceChange struct {
	OldBalance int64
	NewBalance int64
}

// TransactionTypeTournamentFee tags the ledger row written for an entry fee.
const TransactionTypeTournamentFee = "TOURNAMENT_FEE_PAY"

// Transaction is an append-only ledger row.
type Transaction struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	WalletID     string    `json:"wallet_id"`
	Amount       int64     `json:"amount"`
	Type         string    `json:"transaction_type"`
	TournamentID *string   `json:"related_tournament_id,omitempty"`
	OldBalance   int64     `json:"old_balance"`
	NewBalance   int64     `json:"new_balance"`
	CreatedAt    time.Time `json:"created_at"`
}

// TeamMembers maps co-member identifiers to free-form metadata.
type TeamMembers map[string]json.RawMessage

// Participant is a roster entry. At most one exists per (tournament, participant).
type Participant struct {
	ID            string      `json:"id"`
	TournamentID  string      `json:"tournament_id"`
	ParticipantID string      `json:"participant_id"`
	TeamMembers   TeamMembers `json:"team_members"`
	TeamName      *string     `json:"team_name"`
	FeePaid       int64       `json:"fee_paid"`
	TransactionID string      `json:"transaction_id"`
	SlotNumber    int         `json:"slot_number"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Profile is the subset of account data the backend reads or maintains.
type Profile struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	Email             string `json:"email"`
	TournamentsPlayed int    `json:"tournaments_played"`
}

// Follow links a follower to the account they follow.
type Follow struct {
	ID          string    `json:"id"`
	FollowerID  string    `json:"follower_id"`
	FollowingID string    `json:"following_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// ─── Requests / responses ────────────────────────────────────────────────────

// ParticipateRequest is the payload for registering in a tournament.
type ParticipateRequest struct {
	Amount        int64       `json:"amount"`
	UserID        string      `json:"user_id"`
	TournamentID  string      `json:"tournament_id"`
	ParticipantID string      `json:"participant_id"`
	TeamMembers   TeamMembers `json:"team_members"`
	TeamName      *string     `json:"team_name"`
}

// TeamSize counts the registrant plus every listed co-member.
func (r *ParticipateRequest) TeamSize() int {
	return len(r.TeamMembers) + 1
}

// Registration is the committed outcome of a successful registration.
type Registration struct {
	ParticipantID    string  `json:"participant_id"`
	TournamentID     string  `json:"tournament_id"`
	TransactionID    string  `json:"transaction_id"`
	FeePaid          int64   `json:"fee_paid"`
	TeamName         *string `json:"team_name"`
	SlotNumber       int     `json:"slot_number"`
	SlotsRemaining   int     `json:"slots_remaining"`
	NewWalletBalance int64   `json:"new_wallet_balance"`
}

// FollowRequest is the payload for following another account.
type FollowRequest struct {
	UserID     string `json:"user_id"`
	FolloweeID string `json:"followee_id"`
}

// FollowResult is returned after a follow is created.
type FollowResult struct {
	FollowID          string    `json:"follow_id"`
	FollowerID        string    `json:"follower_id"`
	FollowingID       string    `json:"following_id"`
	FollowingUsername string    `json:"following_username"`
	CreatedAt         time.Time `json:"created_at"`
}

// SuccessResponse is the standard JSON envelope for successful calls.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}
