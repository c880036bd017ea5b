package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/glenn-app/glenn-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TransactionRepository handles persistence for ledger transactions.
type TransactionRepository struct {
	db *pgxpool.Pool
}

// NewTransactionRepository constructs a TransactionRepository.
func NewTransactionRepository(db *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create appends a transaction record, filling in ID and CreatedAt when unset.
func (r *TransactionRepository) Create(ctx context.Context, tx *model.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO transactions
		   (id, user_id, wallet_id, amount, transaction_type, related_tournament_id,
		    old_balance, new_balance, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tx.ID, tx.UserID, tx.WalletID, tx.Amount, tx.Type, tx.TournamentID,
		tx.OldBalance, tx.NewBalance, tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// Delete removes a transaction record. It is only used to undo a
// registration that failed before enrollment.
func (r *TransactionRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
