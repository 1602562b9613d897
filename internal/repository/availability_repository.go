package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classcover/classcover-api/internal/models"
)

// AvailabilityRepository manages weekly availability rows and per-date
// overrides.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs an AvailabilityRepository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListWeek returns the availability rows for one user and week anchor,
// ordered by weekday.
func (r *AvailabilityRepository) ListWeek(ctx context.Context, userID string, effectiveFrom models.Date) ([]models.AvailabilityRow, error) {
	const query = `SELECT id, user_id, weekday, is_available, effective_from, updated_at
		FROM availability
		WHERE user_id = $1 AND effective_from = $2
		ORDER BY weekday ASC`
	var rows []models.AvailabilityRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, effectiveFrom); err != nil {
		return nil, fmt.Errorf("list availability week: %w", err)
	}
	return rows, nil
}

// UpsertWeek replaces the full set of weekday rows for a week anchor in one
// transaction, keyed on (user_id, weekday, effective_from).
func (r *AvailabilityRepository) UpsertWeek(ctx context.Context, rows []models.AvailabilityRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin availability tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO availability (id, user_id, weekday, is_available, effective_from, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, weekday, effective_from)
		DO UPDATE SET is_available = EXCLUDED.is_available, updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for _, row := range rows {
		id := row.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, query, id, row.UserID, row.Weekday, row.IsAvailable, row.EffectiveFrom, now); err != nil {
			return fmt.Errorf("upsert availability row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit availability tx: %w", err)
	}
	return nil
}

// ListOverrides returns a teacher's overrides within a date window.
func (r *AvailabilityRepository) ListOverrides(ctx context.Context, teacherID string, from, until models.Date) ([]models.AvailabilityOverride, error) {
	const query = `SELECT id, teacher_id, date, available, job_id, created_at
		FROM availability_overrides
		WHERE teacher_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date ASC`
	var overrides []models.AvailabilityOverride
	if err := r.db.SelectContext(ctx, &overrides, query, teacherID, from, until); err != nil {
		return nil, fmt.Errorf("list availability overrides: %w", err)
	}
	return overrides, nil
}
