package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classcover/classcover-api/internal/models"
)

// NotificationRepository records every email dispatch attempt.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs a NotificationRepository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification row.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, recipient_id, job_id, kind, subject, sent_at, error, created_at)
		VALUES (:id, :recipient_id, :job_id, :kind, :subject, :sent_at, :error, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// MarkSent stamps a successful dispatch.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	const query = `UPDATE notifications SET sent_at = $2, error = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, sentAt); err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

// MarkFailed records the dispatch error.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id, reason string) error {
	const query = `UPDATE notifications SET error = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, reason); err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	return nil
}

// ListForRecipient returns a user's notifications, newest first.
func (r *NotificationRepository) ListForRecipient(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	const query = `SELECT id, recipient_id, job_id, kind, subject, sent_at, error, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, recipientID, limit); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}
