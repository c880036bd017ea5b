package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/glenn-app/glenn-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeviceRepository reads push registrations.
type DeviceRepository struct {
	db *pgxpool.Pool
}

// NewDeviceRepository constructs a DeviceRepository.
func NewDeviceRepository(db *pgxpool.Pool) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// GetDevice returns the push registration for userID or ErrNotFound.
func (r *DeviceRepository) GetDevice(ctx context.Context, userID string) (*model.Device, error) {
	d := model.Device{UserID: userID}
	var playerID *string
	err := r.db.QueryRow(ctx,
		`SELECT onesignal_player_id, is_notifications_enabled
		 FROM notifications WHERE user_id = $1`,
		userID,
	).Scan(&playerID, &d.NotificationsEnabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get device: %w", err)
	}
	if playerID != nil {
		d.PlayerID = *playerID
	}
	return &d, nil
}
