package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/glenn-app/glenn-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TournamentRepository handles persistence for tournaments.
type TournamentRepository struct {
	db *pgxpool.Pool
}

// NewTournamentRepository constructs a TournamentRepository.
func NewTournamentRepository(db *pgxpool.Pool) *TournamentRepository {
	return &TournamentRepository{db: db}
}

// GetByID returns a single tournament or ErrNotFound.
func (r *TournamentRepository) GetByID(ctx context.Context, id string) (*model.Tournament, error) {
	var t model.Tournament
	err := r.db.QueryRow(ctx,
		`SELECT id, tournament_name, type, totalslots, slotsleft, entryfee, tournament_datetime
		 FROM tournaments WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Name, &t.Format, &t.TotalSlots, &t.SlotsLeft, &t.EntryFee, &t.StartsAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || invalidInput(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get tournament: %w", err)
	}
	return &t, nil
}
