package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glenn-app/glenn-backend/internal/logger"
	"github.com/glenn-app/glenn-backend/internal/model"
	"github.com/glenn-app/glenn-backend/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FollowService lets accounts follow each other.
type FollowService struct {
	profiles ProfileStore
	follows  FollowStore
	notifier Notifier
	log      *logger.Logger
}

// NewFollowService constructs a FollowService with its dependencies.
func NewFollowService(profiles ProfileStore, follows FollowStore, notifier Notifier, log *logger.Logger) *FollowService {
	return &FollowService{profiles: profiles, follows: follows, notifier: notifier, log: log.Named("follow")}
}

// Follow makes callerID follow req.FolloweeID and notifies the followee.
func (s *FollowService) Follow(ctx context.Context, callerID string, req model.FollowRequest) (*model.FollowResult, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.FolloweeID = strings.TrimSpace(req.FolloweeID)
	if req.UserID == "" || req.FolloweeID == "" {
		return nil, reject(ErrInvalidRequest, "both user_id and followee_id are required")
	}
	if callerID != req.UserID {
		return nil, ErrIdentityMismatch
	}
	if uuid.Validate(req.UserID) != nil || uuid.Validate(req.FolloweeID) != nil {
		return nil, reject(ErrInvalidRequest, "invalid user ID format")
	}
	if req.UserID == req.FolloweeID {
		return nil, reject(ErrSelfFollow, "you cannot follow yourself")
	}

	follower, err := s.lookup(ctx, req.UserID, "follower user does not exist")
	if err != nil {
		return nil, err
	}
	followee, err := s.lookup(ctx, req.FolloweeID, "user to follow does not exist")
	if err != nil {
		return nil, err
	}

	exists, err := s.follows.Exists(ctx, req.UserID, req.FolloweeID)
	if err != nil {
		return nil, fmt.Errorf("check follow: %w", err)
	}
	if exists {
		return nil, reject(ErrAlreadyFollowing, "you are already following this user")
	}

	f := &model.Follow{FollowerID: req.UserID, FollowingID: req.FolloweeID}
	if err := s.follows.Create(ctx, f); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, reject(ErrAlreadyFollowing, "you are already following this user")
		}
		return nil, fmt.Errorf("create follow: %w", err)
	}

	s.log.WithContext(ctx).Info("follow created",
		zap.String("follower_id", f.FollowerID),
		zap.String("following_id", f.FollowingID),
	)

	s.notifier.Notify(context.WithoutCancel(ctx), model.NewNotification{
		UserID:  followee.ID,
		Type:    model.NotificationNewFollower,
		Title:   "New Follower! 🎉",
		Message: "@" + follower.Username + " started following you",
		Data: map[string]any{
			"follower_id":       follower.ID,
			"follower_username": follower.Username,
			"follow_id":         f.ID,
		},
	})

	return &model.FollowResult{
		FollowID:          f.ID,
		FollowerID:        f.FollowerID,
		FollowingID:       f.FollowingID,
		FollowingUsername: followee.Username,
		CreatedAt:         f.CreatedAt,
	}, nil
}

func (s *FollowService) lookup(ctx context.Context, id, missing string) (*model.Profile, error) {
	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, reject(ErrUserNotFound, "%s", missing)
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}
