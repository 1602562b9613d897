package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classcover/classcover-api/internal/models"
	appErrors "github.com/classcover/classcover-api/pkg/errors"
	"github.com/classcover/classcover-api/pkg/mail"
	"github.com/classcover/classcover-api/pkg/tasks"
)

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	ListForRecipient(ctx context.Context, recipientID string, limit int) ([]models.Notification, error)
}

type notificationProfileRepository interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
}

type notificationJobRepository interface {
	FindByID(ctx context.Context, id string) (*models.Job, error)
}

// jobEventTask is the payload carried on the background queue.
type jobEventTask struct {
	Job         models.Job
	Kind        models.NotificationKind
	RecipientID string
}

const taskTypeJobEvent = "job_event"

// NotificationService composes and delivers lifecycle emails. The explicit
// notify endpoint sends inline and surfaces delivery failures to the caller;
// transition side effects ride the task queue instead.
type NotificationService struct {
	repo      notificationRepository
	profiles  notificationProfileRepository
	jobs      notificationJobRepository
	mailer    mail.Mailer
	queue     *tasks.Queue
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	appOrigin string
}

// NewNotificationService constructs a NotificationService. Call Queue and
// Start the returned queue before serving traffic.
func NewNotificationService(repo notificationRepository, profiles notificationProfileRepository, jobs notificationJobRepository, mailer mail.Mailer, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, appOrigin string, queueCfg tasks.QueueConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	s := &NotificationService{
		repo:      repo,
		profiles:  profiles,
		jobs:      jobs,
		mailer:    mailer,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		appOrigin: appOrigin,
	}
	queueCfg.Logger = logger
	s.queue = tasks.NewQueue("notifications", s.handleTask, queueCfg)
	return s
}

// Queue exposes the backing task queue for lifecycle management.
func (s *NotificationService) Queue() *tasks.Queue {
	return s.queue
}

// JobEvent enqueues a lifecycle email. Delivery failures are retried by the
// queue and recorded on the notification row; the caller is never blocked.
func (s *NotificationService) JobEvent(job *models.Job, kind models.NotificationKind, recipientID string) {
	if job == nil || recipientID == "" {
		return
	}
	task := tasks.Task{
		ID:      uuid.NewString(),
		Type:    taskTypeJobEvent,
		Payload: jobEventTask{Job: *job, Kind: kind, RecipientID: recipientID},
	}
	if err := s.queue.Enqueue(task); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// NotifyJobRequest handles the explicit notify endpoint: the principal who
// owns the job asks the API to email the targeted teacher. Unlike JobEvent
// this path is synchronous, so a provider failure surfaces as a 500.
func (s *NotificationService) NotifyJobRequest(ctx context.Context, actor *models.JWTClaims, payload models.NotifyJobRequestPayload) error {
	if err := s.validator.Struct(payload); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "teacherId and job.id are required")
	}

	job, err := s.jobs.FindByID(ctx, payload.Job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "job not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job")
	}
	if job.CreatedBy != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the job creator can notify teachers about it")
	}

	teacher, err := s.profiles.FindByID(ctx, payload.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher profile")
	}

	if s.mailer == nil {
		return appErrors.Clone(appErrors.ErrMailNotConfigured, "")
	}

	record, msg := s.compose(job, models.NotifyJobRequested, teacher)
	if err := s.repo.Create(ctx, record); err != nil {
		s.logger.Warn("failed to record notification", zap.String("job_id", job.ID), zap.Error(err))
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		s.metrics.RecordEmail(models.NotifyJobRequested, false)
		if markErr := s.repo.MarkFailed(ctx, record.ID, err.Error()); markErr != nil {
			s.logger.Warn("failed to mark notification failed", zap.Error(markErr))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send notification email")
	}

	s.metrics.RecordEmail(models.NotifyJobRequested, true)
	if err := s.repo.MarkSent(ctx, record.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to mark notification sent", zap.Error(err))
	}
	return nil
}

// ListForUser returns a user's recent notifications.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	notifications, err := s.repo.ListForRecipient(ctx, userID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

func (s *NotificationService) handleTask(ctx context.Context, task tasks.Task) error {
	payload, ok := task.Payload.(jobEventTask)
	if !ok {
		s.logger.Error("unexpected task payload", zap.String("task_id", task.ID), zap.String("type", task.Type))
		return nil
	}

	recipient, err := s.profiles.FindByID(ctx, payload.RecipientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("notification recipient has no profile", zap.String("recipient_id", payload.RecipientID))
			return nil
		}
		return fmt.Errorf("load recipient profile: %w", err)
	}

	record, msg := s.compose(&payload.Job, payload.Kind, recipient)
	// First attempt creates the row; retries reuse it via the task ID.
	record.ID = task.ID
	if task.Attempt == 0 {
		if err := s.repo.Create(ctx, record); err != nil {
			s.logger.Warn("failed to record notification", zap.String("job_id", payload.Job.ID), zap.Error(err))
		}
	}

	if s.mailer == nil {
		s.metrics.RecordEmail(payload.Kind, false)
		if err := s.repo.MarkFailed(ctx, record.ID, "mail backend not configured"); err != nil {
			s.logger.Warn("failed to mark notification failed", zap.Error(err))
		}
		return nil
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		s.metrics.RecordEmail(payload.Kind, false)
		if markErr := s.repo.MarkFailed(ctx, record.ID, err.Error()); markErr != nil {
			s.logger.Warn("failed to mark notification failed", zap.Error(markErr))
		}
		return fmt.Errorf("send %s email: %w", payload.Kind, err)
	}

	s.metrics.RecordEmail(payload.Kind, true)
	if err := s.repo.MarkSent(ctx, record.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to mark notification sent", zap.Error(err))
	}
	return nil
}

func (s *NotificationService) compose(job *models.Job, kind models.NotificationKind, recipient *models.Profile) (*models.Notification, mail.Message) {
	dates := job.StartDate.String()
	if !job.SingleDay() {
		dates = fmt.Sprintf("%s to %s", job.StartDate, job.EndDate)
	}
	school := ""
	if job.School != nil {
		school = *job.School
	}

	var subject, lead string
	switch kind {
	case models.NotifyJobRequested:
		subject = fmt.Sprintf("Booking request: %s", job.Title)
		lead = "You have been requested for a substitute booking."
	case models.NotifyJobAccepted:
		subject = fmt.Sprintf("Booking accepted: %s", job.Title)
		lead = "Your booking has been accepted."
	case models.NotifyJobDeclined:
		subject = fmt.Sprintf("Booking declined: %s", job.Title)
		lead = "Your booking request was declined."
	case models.NotifyJobReleased:
		subject = fmt.Sprintf("Booking released: %s", job.Title)
		lead = "A previously accepted booking has been released back to the open pool."
	default:
		subject = fmt.Sprintf("Booking update: %s", job.Title)
		lead = "There is an update on a booking."
	}

	link := fmt.Sprintf("%s/jobs/%s", s.appOrigin, job.ID)
	name := recipient.Email
	if recipient.FullName != nil && *recipient.FullName != "" {
		name = *recipient.FullName
	}

	html := fmt.Sprintf("<p>%s</p><p><strong>%s</strong><br>%s<br>%s</p><p><a href=%q>View booking</a></p>", lead, job.Title, school, dates, link)
	text := fmt.Sprintf("%s\n\n%s\n%s\n%s\n\nView booking: %s", lead, job.Title, school, dates, link)

	record := &models.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipient.ID,
		JobID:       &job.ID,
		Kind:        kind,
		Subject:     subject,
	}
	msg := mail.Message{
		ToName:    name,
		ToAddress: recipient.Email,
		Subject:   subject,
		HTML:      html,
		Text:      text,
	}
	return record, msg
}
