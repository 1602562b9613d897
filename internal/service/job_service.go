package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classcover/classcover-api/internal/models"
	appErrors "github.com/classcover/classcover-api/pkg/errors"
)

type jobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	FindByID(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, filter models.JobFilter) ([]models.Job, int, error)
	UpdateFields(ctx context.Context, job *models.Job) (int64, error)
	Delete(ctx context.Context, id, createdBy string) (int64, error)
	RequestTeacher(ctx context.Context, id, createdBy, teacherID string) (int64, error)
	AcceptOpen(ctx context.Context, id, teacherID string, span []models.Date) (int64, error)
	AcceptRequested(ctx context.Context, id, teacherID string, span []models.Date) (int64, error)
	Decline(ctx context.Context, id, teacherID string) (int64, error)
	Release(ctx context.Context, id, teacherID string) (int64, error)
	Reopen(ctx context.Context, id, createdBy string) (int64, error)
	Cancel(ctx context.Context, id, createdBy string) (int64, error)
}

type jobProfileRepository interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
}

type jobAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// jobNotifier delivers lifecycle emails. Implementations must not block the
// request path; failures are recorded on the notification row, not returned.
type jobNotifier interface {
	JobEvent(job *models.Job, kind models.NotificationKind, recipientID string)
}

// JobListResult bundles a page of jobs with pagination metadata.
type JobListResult struct {
	Jobs       []models.Job      `json:"jobs"`
	Pagination models.Pagination `json:"pagination"`
}

// JobService implements the booking lifecycle. All transitions funnel through
// the guarded updates in the repository; this layer decides which guard
// applies, translates a zero-row result into the precise rejection, and fans
// out notifications, cache invalidation and audit records.
type JobService struct {
	repo      jobRepository
	profiles  jobProfileRepository
	audit     jobAuditRepository
	notifier  jobNotifier
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewJobService constructs a JobService.
func NewJobService(repo jobRepository, profiles jobProfileRepository, audit jobAuditRepository, notifier jobNotifier, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *JobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &JobService{
		repo:      repo,
		profiles:  profiles,
		audit:     audit,
		notifier:  notifier,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

const jobListCachePattern = "jobs:list:*"

// Create posts a new booking owned by the calling principal.
func (s *JobService) Create(ctx context.Context, actor *models.JWTClaims, req models.CreateJobRequest) (*models.Job, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid job payload")
	}
	if err := validateJobDates(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}

	job := &models.Job{
		Title:     strings.TrimSpace(req.Title),
		School:    req.School,
		Notes:     req.Notes,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Status:    models.JobOpen,
		CreatedBy: actor.UserID,
	}
	if req.RequestedTeacher != nil && *req.RequestedTeacher != "" {
		if err := s.ensureTeacher(ctx, *req.RequestedTeacher); err != nil {
			return nil, err
		}
		job.Status = models.JobRequested
		job.RequestedTeacher = req.RequestedTeacher
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create job")
	}

	s.invalidateListings(ctx)
	if job.RequestedTeacher != nil {
		s.notify(job, models.NotifyJobRequested, *job.RequestedTeacher)
	}
	return job, nil
}

// ensureTeacher verifies the target user exists and carries the teacher role.
func (s *JobService) ensureTeacher(ctx context.Context, teacherID string) error {
	teacher, err := s.profiles.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher profile")
	}
	if teacher.NormalizedRole() != models.RoleTeacher {
		return appErrors.Clone(appErrors.ErrValidation, "requested user is not a teacher")
	}
	return nil
}

// Get fetches a single booking.
func (s *JobService) Get(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job")
	}
	return job, nil
}

// List returns a filtered page of bookings. Pages of the shared pool listing
// are served from cache when enabled; every mutation invalidates the pattern.
func (s *JobService) List(ctx context.Context, filter models.JobFilter) (*JobListResult, error) {
	key := jobListCacheKey(filter)
	var cached JobListResult
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	jobs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list jobs")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	result := &JobListResult{
		Jobs:       jobs,
		Pagination: models.Pagination{Page: page, PageSize: size, TotalCount: total},
	}
	_ = s.cache.Set(ctx, key, result, 0)
	return result, nil
}

// Update edits a booking's descriptive fields and dates. Accepted bookings
// cannot be edited: their dates are mirrored into the holder's availability
// overrides, which an edit would leave stale.
func (s *JobService) Update(ctx context.Context, actor *models.JWTClaims, id string, req models.UpdateJobRequest) (*models.Job, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid job payload")
	}
	if err := validateJobDates(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.CreatedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the creator can edit this job")
	}
	if job.Status == models.JobAccepted {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "accepted jobs cannot be edited; ask the teacher to release first")
	}
	if job.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "cancelled jobs cannot be edited")
	}

	job.Title = strings.TrimSpace(req.Title)
	job.School = req.School
	job.Notes = req.Notes
	job.StartDate = req.StartDate
	job.EndDate = req.EndDate

	affected, err := s.repo.UpdateFields(ctx, job)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update job")
	}
	if affected == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found")
	}

	s.invalidateListings(ctx)
	return job, nil
}

// Delete removes a booking. Creator only, and never while a teacher holds it.
func (s *JobService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.CreatedBy != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the creator can delete this job")
	}
	if job.Status == models.JobAccepted {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "accepted jobs cannot be deleted; ask the teacher to release first")
	}

	affected, err := s.repo.Delete(ctx, id, actor.UserID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete job")
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "job not found")
	}

	s.invalidateListings(ctx)
	return nil
}

// Request targets an open booking at a specific teacher and emails them.
func (s *JobService) Request(ctx context.Context, actor *models.JWTClaims, id string, req models.RequestTeacherRequest) (*models.Job, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}

	if err := s.ensureTeacher(ctx, req.TeacherID); err != nil {
		return nil, err
	}

	affected, err := s.repo.RequestTeacher(ctx, id, actor.UserID, req.TeacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to request teacher")
	}
	if affected == 0 {
		s.metrics.RecordJobTransition(models.JobRequested, false)
		return nil, s.classifyRejection(ctx, id, actor, models.JobRequested)
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, actor, job, models.JobRequested)
	s.notify(job, models.NotifyJobRequested, req.TeacherID)
	return job, nil
}

// Accept claims a booking for the calling teacher. Open bookings are
// first-come first-served; requested bookings only accept the targeted
// teacher. The acceptance and the availability overrides for the covered days
// commit atomically.
func (s *JobService) Accept(ctx context.Context, actor *models.JWTClaims, id string) (*models.Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var affected int64
	switch job.Status {
	case models.JobOpen:
		affected, err = s.repo.AcceptOpen(ctx, id, actor.UserID, job.Span())
	case models.JobRequested:
		if job.RequestedTeacher == nil || *job.RequestedTeacher != actor.UserID {
			return nil, appErrors.Clone(appErrors.ErrNotRequested, "this job was requested from a different teacher")
		}
		affected, err = s.repo.AcceptRequested(ctx, id, actor.UserID, job.Span())
	case models.JobAccepted:
		return nil, appErrors.Clone(appErrors.ErrJobTaken, "job has already been accepted")
	default:
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot accept a %s job", job.Status))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to accept job")
	}
	if affected == 0 {
		s.metrics.RecordJobTransition(models.JobAccepted, false)
		return nil, s.classifyRejection(ctx, id, actor, models.JobAccepted)
	}

	job, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, actor, job, models.JobAccepted)
	s.notify(job, models.NotifyJobAccepted, job.CreatedBy)
	return job, nil
}

// Decline rejects a requested booking. The requested teacher stays on the
// record so the principal can see who declined; reopening clears it.
func (s *JobService) Decline(ctx context.Context, actor *models.JWTClaims, id string) (*models.Job, error) {
	affected, err := s.repo.Decline(ctx, id, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decline job")
	}
	if affected == 0 {
		s.metrics.RecordJobTransition(models.JobDeclined, false)
		return nil, s.classifyRejection(ctx, id, actor, models.JobDeclined)
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, actor, job, models.JobDeclined)
	s.notify(job, models.NotifyJobDeclined, job.CreatedBy)
	return job, nil
}

// Release returns an accepted booking to the open pool and removes the
// holder's availability overrides for it.
func (s *JobService) Release(ctx context.Context, actor *models.JWTClaims, id string) (*models.Job, error) {
	// Capture the principal before the update clears accepted_by.
	before, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	affected, err := s.repo.Release(ctx, id, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release job")
	}
	if affected == 0 {
		s.metrics.RecordJobTransition(models.JobOpen, false)
		return nil, s.classifyRejection(ctx, id, actor, models.JobOpen)
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, actor, job, models.JobOpen)
	s.notify(job, models.NotifyJobReleased, before.CreatedBy)
	return job, nil
}

// Reopen returns a declined booking to the open pool, clearing the requested
// teacher. Creator only.
func (s *JobService) Reopen(ctx context.Context, actor *models.JWTClaims, id string) (*models.Job, error) {
	affected, err := s.repo.Reopen(ctx, id, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reopen job")
	}
	if affected == 0 {
		s.metrics.RecordJobTransition(models.JobOpen, false)
		return nil, s.classifyRejection(ctx, id, actor, models.JobOpen)
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, actor, job, models.JobOpen)
	return job, nil
}

// Cancel withdraws an open or requested booking. Creator only.
func (s *JobService) Cancel(ctx context.Context, actor *models.JWTClaims, id string) (*models.Job, error) {
	affected, err := s.repo.Cancel(ctx, id, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel job")
	}
	if affected == 0 {
		s.metrics.RecordJobTransition(models.JobCancelled, false)
		return nil, s.classifyRejection(ctx, id, actor, models.JobCancelled)
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, actor, job, models.JobCancelled)
	return job, nil
}

// classifyRejection turns a zero-row guarded update into the precise error.
// The job is re-read once; its current state tells us which part of the guard
// failed.
func (s *JobService) classifyRejection(ctx context.Context, id string, actor *models.JWTClaims, to models.JobStatus) error {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "job not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job")
	}

	if to == models.JobAccepted && job.Status == models.JobAccepted {
		return appErrors.Clone(appErrors.ErrJobTaken, "job has already been accepted")
	}
	teacherMove := to == models.JobAccepted || to == models.JobDeclined
	if teacherMove && job.Status == models.JobRequested && job.RequestedTeacher != nil && *job.RequestedTeacher != actor.UserID {
		return appErrors.Clone(appErrors.ErrNotRequested, "this job was requested from a different teacher")
	}
	if !models.CanTransition(job.Status, to) {
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("job is %s and cannot move to %s", job.Status, to))
	}
	// The transition itself is legal, so the actor guard is what failed.
	return appErrors.Clone(appErrors.ErrForbidden, "you are not allowed to perform this transition")
}

func (s *JobService) afterTransition(ctx context.Context, actor *models.JWTClaims, job *models.Job, to models.JobStatus) {
	s.metrics.RecordJobTransition(to, true)
	s.invalidateListings(ctx)

	if s.audit != nil {
		payload := []byte(fmt.Sprintf(`{"status":%q}`, to))
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actor.UserID,
			Action:     models.AuditActionJobTransition,
			Resource:   "jobs",
			ResourceID: &job.ID,
			NewValues:  payload,
		}); err != nil {
			s.logger.Warn("failed to record job transition audit log", zap.Error(err))
		}
	}
}

func (s *JobService) notify(job *models.Job, kind models.NotificationKind, recipientID string) {
	if s.notifier == nil || recipientID == "" {
		return
	}
	s.notifier.JobEvent(job, kind, recipientID)
}

func (s *JobService) invalidateListings(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, jobListCachePattern); err != nil {
		s.logger.Warn("failed to invalidate job listings cache", zap.Error(err))
	}
}

func validateJobDates(start models.Date, end *models.Date) error {
	if start.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "start_date is required")
	}
	if end != nil && !end.IsZero() && end.Before(start) {
		return appErrors.Clone(appErrors.ErrValidation, "end_date must not precede start_date")
	}
	return nil
}

func jobListCacheKey(filter models.JobFilter) string {
	statuses := make([]string, 0, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses = append(statuses, string(st))
	}
	from, until := "", ""
	if filter.FromDate != nil {
		from = filter.FromDate.String()
	}
	if filter.UntilDate != nil {
		until = filter.UntilDate.String()
	}
	return fmt.Sprintf("jobs:list:%s:%s:%s:%s:%s:%s:%s:%d:%d:%s:%s",
		strings.Join(statuses, ","), filter.CreatedBy, filter.AcceptedBy, filter.RequestedTeacher,
		from, until, filter.Search, filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
}
