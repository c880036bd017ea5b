package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/glenn-app/glenn-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WalletRepository handles persistence for wallets.
type WalletRepository struct {
	db *pgxpool.Pool
}

// NewWalletRepository constructs a WalletRepository.
func NewWalletRepository(db *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetByUserID returns the wallet owned by userID or ErrNotFound.
func (r *WalletRepository) GetByUserID(ctx context.Context, userID string) (*model.Wallet, error) {
	var w model.Wallet
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, balance, allow_withdrawals, allow_deposits
		 FROM wallets WHERE user_id = $1`,
		userID,
	).Scan(&w.ID, &w.UserID, &w.Balance, &w.AllowWithdrawals, &w.AllowDeposits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return &w, nil
}

// Debit subtracts amount only if the balance covers it. The check and the
// write are one statement, so two concurrent debits can never both pass on
// the same funds. ErrConflict means the balance was too low.
func (r *WalletRepository) Debit(ctx context.Context, walletID string, amount int64) (model.BalanceChange, error) {
	var c model.BalanceChange
	err := r.db.QueryRow(ctx,
		`UPDATE wallets
		 SET balance = balance - $2
		 WHERE id = $1 AND balance >= $2
		 RETURNING balance + $2, balance`,
		walletID, amount,
	).Scan(&c.OldBalance, &c.NewBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c, ErrConflict
		}
		return c, fmt.Errorf("debit wallet: %w", err)
	}
	return c, nil
}

// Credit adds amount back to the wallet.
func (r *WalletRepository) Credit(ctx context.Context, walletID string, amount int64) (model.BalanceChange, error) {
	var c model.BalanceChange
	err := r.db.QueryRow(ctx,
		`UPDATE wallets
		 SET balance = balance + $2
		 WHERE id = $1
		 RETURNING balance - $2, balance`,
		walletID, amount,
	).Scan(&c.OldBalance, &c.NewBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c, ErrNotFound
		}
		return c, fmt.Errorf("credit wallet: %w", err)
	}
	return c, nil
}
