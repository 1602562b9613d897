package models

import "time"

// NotificationKind classifies the lifecycle event that produced a
// notification.
type NotificationKind string

const (
	NotifyJobRequested NotificationKind = "job_requested"
	NotifyJobAccepted  NotificationKind = "job_accepted"
	NotifyJobDeclined  NotificationKind = "job_declined"
	NotifyJobReleased  NotificationKind = "job_released"
)

// Notification records an email dispatched (or attempted) to a user.
type Notification struct {
	ID          string           `db:"id" json:"id"`
	RecipientID string           `db:"recipient_id" json:"recipient_id"`
	JobID       *string          `db:"job_id" json:"job_id,omitempty"`
	Kind        NotificationKind `db:"kind" json:"kind"`
	Subject     string           `db:"subject" json:"subject"`
	SentAt      *time.Time       `db:"sent_at" json:"sent_at,omitempty"`
	Error       *string          `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}
