package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classcover/classcover-api/internal/models"
	appErrors "github.com/classcover/classcover-api/pkg/errors"
)

type availabilityRepository interface {
	ListWeek(ctx context.Context, userID string, effectiveFrom models.Date) ([]models.AvailabilityRow, error)
	UpsertWeek(ctx context.Context, rows []models.AvailabilityRow) error
	ListOverrides(ctx context.Context, teacherID string, from, until models.Date) ([]models.AvailabilityOverride, error)
}

// AvailabilityService manages teacher weekly patterns and exposes the
// per-date overrides written by the booking lifecycle.
type AvailabilityService struct {
	repo      availabilityRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAvailabilityService constructs an AvailabilityService.
func NewAvailabilityService(repo availabilityRepository, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AvailabilityService{repo: repo, validator: validate, logger: logger}
}

// GetWeek returns the teacher's pattern for the week containing weekOf.
// Weekdays with no stored row come back as unavailable.
func (s *AvailabilityService) GetWeek(ctx context.Context, userID string, weekOf models.Date) (*models.WeekAvailability, error) {
	if weekOf.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "week date is required")
	}
	anchor := models.WeekStart(weekOf)

	rows, err := s.repo.ListWeek(ctx, userID, anchor)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}

	byWeekday := make(map[int]bool, len(rows))
	for _, row := range rows {
		byWeekday[row.Weekday] = row.IsAvailable
	}

	days := make([]models.AvailabilityDay, 0, 5)
	for wd := 1; wd <= 5; wd++ {
		days = append(days, models.AvailabilityDay{Weekday: wd, IsAvailable: byWeekday[wd]})
	}

	return &models.WeekAvailability{UserID: userID, EffectiveFrom: anchor, Days: days}, nil
}

// SetWeek replaces the teacher's pattern for one week. The submission must
// cover each school day exactly once.
func (s *AvailabilityService) SetWeek(ctx context.Context, userID string, req models.SetAvailabilityRequest) (*models.WeekAvailability, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}

	seen := make(map[int]bool, 5)
	for _, day := range req.Days {
		if seen[day.Weekday] {
			return nil, appErrors.Clone(appErrors.ErrValidation, "each weekday may appear only once")
		}
		seen[day.Weekday] = true
	}

	anchor := models.WeekStart(req.EffectiveFrom)
	rows := make([]models.AvailabilityRow, 0, len(req.Days))
	for _, day := range req.Days {
		rows = append(rows, models.AvailabilityRow{
			UserID:        userID,
			Weekday:       day.Weekday,
			IsAvailable:   day.IsAvailable,
			EffectiveFrom: anchor,
		})
	}

	if err := s.repo.UpsertWeek(ctx, rows); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save availability")
	}

	return s.GetWeek(ctx, userID, anchor)
}

// ListOverrides returns the teacher's per-date exceptions within the window.
func (s *AvailabilityService) ListOverrides(ctx context.Context, userID string, from models.Date, until *models.Date) ([]models.AvailabilityOverride, error) {
	if from.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from date is required")
	}
	end := from
	if until != nil && !until.IsZero() {
		end = *until
	}
	if end.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "until must not precede from")
	}

	overrides, err := s.repo.ListOverrides(ctx, userID, from, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list overrides")
	}
	return overrides, nil
}
