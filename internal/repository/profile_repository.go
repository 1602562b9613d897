package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/classcover/classcover-api/internal/models"
)

const profileColumns = "id, email, full_name, avatar_url, role, phone_number, county, teaching_council_number, qualifications_url, school_name, school_address, created_at, updated_at"

// ProfileRepository manages persistence for marketplace profiles.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs a ProfileRepository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FindByID fetches a profile by its user ID.
func (r *ProfileRepository) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	query := fmt.Sprintf("SELECT %s FROM profiles WHERE id = $1", profileColumns)
	var profile models.Profile
	if err := r.db.GetContext(ctx, &profile, query, id); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Upsert lazily creates the profile row on first sign-in, setting the role,
// and refreshes email on subsequent logins.
func (r *ProfileRepository) Upsert(ctx context.Context, id, email string, role models.UserRole) error {
	const query = `INSERT INTO profiles (id, email, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, role = EXCLUDED.role, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, id, email, string(role), time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// Update persists the editable profile fields.
func (r *ProfileRepository) Update(ctx context.Context, profile *models.Profile) error {
	profile.UpdatedAt = time.Now().UTC()
	const query = `UPDATE profiles
		SET full_name = :full_name, avatar_url = :avatar_url,
			phone_number = :phone_number, county = :county,
			teaching_council_number = :teaching_council_number, qualifications_url = :qualifications_url,
			school_name = :school_name, school_address = :school_address,
			updated_at = :updated_at
		WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// List returns profiles matching the filter along with total count. Role
// comparison is normalized in SQL to tolerate free-text role values.
func (r *ProfileRepository) List(ctx context.Context, filter models.ProfileFilter) ([]models.Profile, int, error) {
	base := "FROM profiles WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Role != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(TRIM(role)) = $%d", len(args)+1))
		args = append(args, string(filter.Role))
	}
	if filter.County != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(COALESCE(county, '')) = $%d", len(args)+1))
		args = append(args, strings.ToLower(filter.County))
	}
	if filter.Search != "" {
		search := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(COALESCE(full_name, '')) LIKE $%d OR LOWER(email) LIKE $%d OR LOWER(COALESCE(teaching_council_number, '')) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, search)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY full_name ASC NULLS LAST LIMIT %d OFFSET %d", profileColumns, base, size, offset)
	var profiles []models.Profile
	if err := r.db.SelectContext(ctx, &profiles, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list profiles: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count profiles: %w", err)
	}

	return profiles, total, nil
}

// ListAvailableTeachers returns teacher profiles whose weekly pattern marks
// every weekday in [from, until] available (under the most recent
// effective_from at or before that week's Monday) and who have no blocking
// override inside the span. Weekend days in the span are ignored, matching
// the 1–5 weekday model.
func (r *ProfileRepository) ListAvailableTeachers(ctx context.Context, from, until models.Date) ([]models.Profile, error) {
	query := fmt.Sprintf(`SELECT %s FROM profiles p
		WHERE LOWER(TRIM(p.role)) = 'teacher'
		AND NOT EXISTS (
			SELECT 1 FROM generate_series($1::date, $2::date, interval '1 day') AS gs(day)
			WHERE EXTRACT(ISODOW FROM gs.day) BETWEEN 1 AND 5
			AND NOT COALESCE((
				SELECT a.is_available FROM availability a
				WHERE a.user_id = p.id
				AND a.weekday = EXTRACT(ISODOW FROM gs.day)::int
				AND a.effective_from <= date_trunc('week', gs.day)::date
				ORDER BY a.effective_from DESC
				LIMIT 1
			), FALSE)
		)
		AND NOT EXISTS (
			SELECT 1 FROM availability_overrides o
			WHERE o.teacher_id = p.id
			AND o.date BETWEEN $1::date AND $2::date
			AND o.available = FALSE
		)
		ORDER BY p.full_name ASC NULLS LAST`, profileColumns)

	var profiles []models.Profile
	if err := r.db.SelectContext(ctx, &profiles, query, from, until); err != nil {
		return nil, fmt.Errorf("list available teachers: %w", err)
	}
	return profiles, nil
}
