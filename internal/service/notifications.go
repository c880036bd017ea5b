package service

import (
	"context"
	"fmt"

	"github.com/glenn-app/glenn-backend/internal/model"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 100
)

// NotificationService serves a user's notification history.
type NotificationService struct {
	store NotificationLister
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(store NotificationLister) *NotificationService {
	return &NotificationService{store: store}
}

// List returns one page of userID's notifications. Limit is clamped to
// [1, 100] with 50 used when unset; negative offsets become 0.
func (s *NotificationService) List(ctx context.Context, userID string, f model.NotificationFilter) (*model.NotificationPage, error) {
	if userID == "" {
		return nil, ErrIdentityMismatch
	}
	switch {
	case f.Limit <= 0:
		f.Limit = defaultNotificationLimit
	case f.Limit > maxNotificationLimit:
		f.Limit = maxNotificationLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	page, err := s.store.List(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return page, nil
}
