// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"

	"github.com/glenn-app/glenn-backend/internal/model"
)

// TournamentStore reads tournaments.
type TournamentStore interface {
	GetByID(ctx context.Context, id string) (*model.Tournament, error)
}

// WalletStore reads wallets and applies atomic balance changes.
type WalletStore interface {
	GetByUserID(ctx context.Context, userID string) (*model.Wallet, error)
	Debit(ctx context.Context, walletID string, amount int64) (model.BalanceChange, error)
	Credit(ctx context.Context, walletID string, amount int64) (model.BalanceChange, error)
}

// TransactionStore appends ledger records.
type TransactionStore interface {
	Create(ctx context.Context, tx *model.Transaction) error
	Delete(ctx context.Context, id string) error
}

// ParticipantStore maintains tournament rosters. Enroll takes units of
// remaining capacity together with the entry and returns what is left.
type ParticipantStore interface {
	Exists(ctx context.Context, tournamentID, participantID string) (bool, error)
	Enroll(ctx context.Context, p *model.Participant, units int) (int, error)
}

// ProfileStore reads profiles and maintains their denormalized counters.
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*model.Profile, error)
	IncrementTournamentsPlayed(ctx context.Context, id string) error
}

// FollowStore persists follower links.
type FollowStore interface {
	Exists(ctx context.Context, followerID, followingID string) (bool, error)
	Create(ctx context.Context, f *model.Follow) error
}

// NotificationLister reads notification history.
type NotificationLister interface {
	List(ctx context.Context, userID string, f model.NotificationFilter) (*model.NotificationPage, error)
}

// Notifier records a notification and schedules its delivery. It never
// reports failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, n model.NewNotification)
}
