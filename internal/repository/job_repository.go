package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classcover/classcover-api/internal/models"
)

const jobColumns = "id, title, school, notes, start_date, end_date, status, created_by, accepted_by, requested_teacher, created_at, updated_at"

// JobRepository manages persistence for booking jobs. Every transition is a
// single conditional UPDATE whose WHERE clause carries the lifecycle guard;
// callers must treat an affected-row count of zero as a failed guard, never
// as success.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository constructs a JobRepository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	const query = `INSERT INTO jobs (id, title, school, notes, start_date, end_date, status, created_by, accepted_by, requested_teacher, created_at, updated_at)
		VALUES (:id, :title, :school, :notes, :start_date, :end_date, :status, :created_by, :accepted_by, :requested_teacher, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// FindByID fetches a job by ID.
func (r *JobRepository) FindByID(ctx context.Context, id string) (*models.Job, error) {
	query := fmt.Sprintf("SELECT %s FROM jobs WHERE id = $1", jobColumns)
	var job models.Job
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns jobs matching filters along with total count.
func (r *JobRepository) List(ctx context.Context, filter models.JobFilter) ([]models.Job, int, error) {
	base := "FROM jobs WHERE 1=1"
	var conditions []string
	var args []interface{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, status)
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filter.CreatedBy != "" {
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)+1))
		args = append(args, filter.CreatedBy)
	}
	if filter.AcceptedBy != "" {
		conditions = append(conditions, fmt.Sprintf("accepted_by = $%d", len(args)+1))
		args = append(args, filter.AcceptedBy)
	}
	if filter.RequestedTeacher != "" {
		conditions = append(conditions, fmt.Sprintf("requested_teacher = $%d", len(args)+1))
		args = append(args, filter.RequestedTeacher)
	}
	if filter.FromDate != nil {
		conditions = append(conditions, fmt.Sprintf("start_date >= $%d", len(args)+1))
		args = append(args, *filter.FromDate)
	}
	if filter.UntilDate != nil {
		conditions = append(conditions, fmt.Sprintf("start_date <= $%d", len(args)+1))
		args = append(args, *filter.UntilDate)
	}
	if filter.Search != "" {
		search := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(COALESCE(school, '')) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, search)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"start_date": "start_date",
		"title":      "title",
		"status":     "status",
		"created_at": "created_at",
		"updated_at": "updated_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "start_date"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", jobColumns, base, column, order, size, offset)
	var jobs []models.Job
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	return jobs, total, nil
}

// UpdateFields modifies editable fields, guarded on ownership. Returns the
// number of rows touched.
func (r *JobRepository) UpdateFields(ctx context.Context, job *models.Job) (int64, error) {
	job.UpdatedAt = time.Now().UTC()
	const query = `UPDATE jobs
		SET title = :title, school = :school, notes = :notes, start_date = :start_date, end_date = :end_date, updated_at = :updated_at
		WHERE id = :id AND created_by = :created_by`
	res, err := r.db.NamedExecContext(ctx, query, job)
	if err != nil {
		return 0, fmt.Errorf("update job: %w", err)
	}
	return res.RowsAffected()
}

// Delete removes a job, guarded on ownership.
func (r *JobRepository) Delete(ctx context.Context, id, createdBy string) (int64, error) {
	const query = `DELETE FROM jobs WHERE id = $1 AND created_by = $2`
	res, err := r.db.ExecContext(ctx, query, id, createdBy)
	if err != nil {
		return 0, fmt.Errorf("delete job: %w", err)
	}
	return res.RowsAffected()
}

// RequestTeacher moves an open job to requested, targeting a teacher.
func (r *JobRepository) RequestTeacher(ctx context.Context, id, createdBy, teacherID string) (int64, error) {
	const query = `UPDATE jobs
		SET status = 'requested', requested_teacher = $3, updated_at = $4
		WHERE id = $1 AND created_by = $2 AND status = 'open'`
	res, err := r.db.ExecContext(ctx, query, id, createdBy, teacherID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("request teacher: %w", err)
	}
	return res.RowsAffected()
}

// AcceptOpen claims an open job for a teacher and writes the availability
// overrides for the job span in the same transaction. The guard requires the
// job to still be open and unclaimed, so two racing teachers cannot both
// succeed.
func (r *JobRepository) AcceptOpen(ctx context.Context, id, teacherID string, span []models.Date) (int64, error) {
	const query = `UPDATE jobs
		SET status = 'accepted', accepted_by = $2, updated_at = $3
		WHERE id = $1 AND status = 'open' AND accepted_by IS NULL`
	return r.acceptTx(ctx, query, id, teacherID, span)
}

// AcceptRequested claims a requested job; only the requested teacher matches
// the guard.
func (r *JobRepository) AcceptRequested(ctx context.Context, id, teacherID string, span []models.Date) (int64, error) {
	const query = `UPDATE jobs
		SET status = 'accepted', accepted_by = $2, updated_at = $3
		WHERE id = $1 AND status = 'requested' AND requested_teacher = $2`
	return r.acceptTx(ctx, query, id, teacherID, span)
}

func (r *JobRepository) acceptTx(ctx context.Context, query, id, teacherID string, span []models.Date) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin accept tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, query, id, teacherID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("accept job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("accept job rows: %w", err)
	}
	if affected == 0 {
		return 0, nil
	}

	const overrideQuery = `INSERT INTO availability_overrides (id, teacher_id, date, available, job_id, created_at)
		VALUES ($1, $2, $3, FALSE, $4, $5)
		ON CONFLICT (teacher_id, date) DO UPDATE SET available = FALSE, job_id = EXCLUDED.job_id`
	now := time.Now().UTC()
	for _, day := range span {
		if _, err := tx.ExecContext(ctx, overrideQuery, uuid.NewString(), teacherID, day, id, now); err != nil {
			return 0, fmt.Errorf("write availability override: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit accept tx: %w", err)
	}
	return affected, nil
}

// Decline rejects a requested job; only the requested teacher matches the
// guard. The requested_teacher column is retained so the principal can see
// who turned the booking down.
func (r *JobRepository) Decline(ctx context.Context, id, teacherID string) (int64, error) {
	const query = `UPDATE jobs
		SET status = 'declined', updated_at = $3
		WHERE id = $1 AND status = 'requested' AND requested_teacher = $2`
	res, err := r.db.ExecContext(ctx, query, id, teacherID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("decline job: %w", err)
	}
	return res.RowsAffected()
}

// Release returns an accepted job to the open pool and deletes the override
// rows written at acceptance, in one transaction. Only the current holder
// matches the guard.
func (r *JobRepository) Release(ctx context.Context, id, teacherID string) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin release tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `UPDATE jobs
		SET status = 'open', accepted_by = NULL, updated_at = $3
		WHERE id = $1 AND status = 'accepted' AND accepted_by = $2`
	res, err := tx.ExecContext(ctx, query, id, teacherID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("release job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("release job rows: %w", err)
	}
	if affected == 0 {
		return 0, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM availability_overrides WHERE job_id = $1 AND teacher_id = $2`, id, teacherID); err != nil {
		return 0, fmt.Errorf("clear availability overrides: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit release tx: %w", err)
	}
	return affected, nil
}

// Reopen returns a declined job to the open pool, clearing the requested
// teacher. Creator only.
func (r *JobRepository) Reopen(ctx context.Context, id, createdBy string) (int64, error) {
	const query = `UPDATE jobs
		SET status = 'open', requested_teacher = NULL, updated_at = $3
		WHERE id = $1 AND status = 'declined' AND created_by = $2`
	res, err := r.db.ExecContext(ctx, query, id, createdBy, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("reopen job: %w", err)
	}
	return res.RowsAffected()
}

// Cancel withdraws an open or requested job. Creator only; accepted jobs
// must be released by the holder first.
func (r *JobRepository) Cancel(ctx context.Context, id, createdBy string) (int64, error) {
	const query = `UPDATE jobs
		SET status = 'cancelled', updated_at = $3
		WHERE id = $1 AND status IN ('open', 'requested') AND created_by = $2`
	res, err := r.db.ExecContext(ctx, query, id, createdBy, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cancel job: %w", err)
	}
	return res.RowsAffected()
}
