package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/glenn-app/glenn-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileRepository reads and maintains account profile data.
type ProfileRepository struct {
	db *pgxpool.Pool
}

// NewProfileRepository constructs a ProfileRepository.
func NewProfileRepository(db *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByID returns a profile or ErrNotFound.
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	var p model.Profile
	err := r.db.QueryRow(ctx,
		`SELECT id, username, email, tournmentsplayed
		 FROM sensitive_userdata WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Username, &p.Email, &p.TournamentsPlayed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// IncrementTournamentsPlayed bumps the denormalized tournaments-played counter.
func (r *ProfileRepository) IncrementTournamentsPlayed(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE sensitive_userdata SET tournmentsplayed = tournmentsplayed + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("increment tournaments played: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
