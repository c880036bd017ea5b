package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glenn-app/glenn-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const notificationColumns = `id, user_id, type, title, message, data, is_read, sent, delivery_attempts, created_at`

// NotificationRepository handles persistence for user notifications.
type NotificationRepository struct {
	db *pgxpool.Pool
}

// NewNotificationRepository constructs a NotificationRepository.
func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts an unsent notification, filling in ID and CreatedAt when unset.
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	data := n.Data
	if len(data) == 0 {
		data = []byte("{}")
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO user_notifications
		   (id, user_id, type, title, message, data, is_read, sent, delivery_attempts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE, FALSE, 0, $7)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, []byte(data), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// MarkSent flips the sent flag after a confirmed delivery.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE user_notifications SET sent = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordAttempt increments delivery_attempts and returns the new count.
func (r *NotificationRepository) RecordAttempt(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.db.QueryRow(ctx,
		`UPDATE user_notifications
		 SET delivery_attempts = delivery_attempts + 1
		 WHERE id = $1
		 RETURNING delivery_attempts`,
		id,
	).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("record delivery attempt: %w", err)
	}
	return attempts, nil
}

// ListUndelivered returns unsent notifications created before olderThan that
// still have delivery attempts left, oldest first. Recipients without a
// deliverable device are skipped so they cannot starve the batch.
func (r *NotificationRepository) ListUndelivered(ctx context.Context, maxAttempts int, olderThan time.Time, limit int) ([]model.Notification, error) {
	rows, err := r.db.Query(ctx,
		`SELECT n.id, n.user_id, n.type, n.title, n.message, n.data, n.is_read, n.sent,
		        n.delivery_attempts, n.created_at
		 FROM user_notifications n
		 JOIN notifications d ON d.user_id = n.user_id
		 WHERE n.sent = FALSE
		   AND n.delivery_attempts < $1
		   AND n.created_at < $2
		   AND d.is_notifications_enabled
		   AND COALESCE(d.onesignal_player_id, '') <> ''
		 ORDER BY n.created_at ASC
		 LIMIT $3`,
		maxAttempts, olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list undelivered notifications: %w", err)
	}
	return scanNotifications(rows)
}

// List returns one page of a user's notifications, newest first, along with
// the filtered total and the overall unread count.
func (r *NotificationRepository) List(ctx context.Context, userID string, f model.NotificationFilter) (*model.NotificationPage, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}
	if f.UnreadOnly {
		where = append(where, "is_read = FALSE")
	}
	if f.Type != "" {
		args = append(args, f.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	page := &model.NotificationPage{Limit: f.Limit, Offset: f.Offset}

	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_notifications WHERE `+cond, args...,
	).Scan(&page.TotalCount); err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}

	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_notifications WHERE user_id = $1 AND is_read = FALSE`, userID,
	).Scan(&page.UnreadCount); err != nil {
		return nil, fmt.Errorf("count unread notifications: %w", err)
	}

	listArgs := append(append([]any{}, args...), f.Limit, f.Offset)
	rows, err := r.db.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM user_notifications WHERE %s
		 ORDER BY created_at DESC
		 LIMIT $%d OFFSET $%d`, notificationColumns, cond, len(args)+1, len(args)+2),
		listArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	page.Notifications, err = scanNotifications(rows)
	if err != nil {
		return nil, err
	}
	if page.Notifications == nil {
		page.Notifications = []model.Notification{}
	}
	return page, nil
}

func scanNotifications(rows pgx.Rows) ([]model.Notification, error) {
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Data,
			&n.IsRead, &n.Sent, &n.DeliveryAttempts, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
