package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/glenn-app/glenn-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FollowRepository handles persistence for follower links.
type FollowRepository struct {
	db *pgxpool.Pool
}

// NewFollowRepository constructs a FollowRepository.
func NewFollowRepository(db *pgxpool.Pool) *FollowRepository {
	return &FollowRepository{db: db}
}

// Exists reports whether followerID already follows followingID.
func (r *FollowRepository) Exists(ctx context.Context, followerID, followingID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM followers WHERE follower_id = $1 AND following_id = $2
		 )`,
		followerID, followingID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check follow: %w", err)
	}
	return exists, nil
}

// Create inserts a follow link. ErrDuplicate means it already exists.
func (r *FollowRepository) Create(ctx context.Context, f *model.Follow) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO followers (id, follower_id, following_id, created_at)
		 VALUES ($1, $2, $3, $4)`,
		f.ID, f.FollowerID, f.FollowingID, f.CreatedAt,
	)
	if err != nil {
		if uniqueViolationOn(err, "") {
			return ErrDuplicate
		}
		return fmt.Errorf("insert follow: %w", err)
	}
	return nil
}
