package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classcover/classcover-api/internal/models"
)

func newProfileRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func profileRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "full_name", "avatar_url", "role", "phone_number", "county", "teaching_council_number", "qualifications_url", "school_name", "school_address", "created_at", "updated_at"})
}

func TestProfileRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newProfileRepoMock(t)
	defer cleanup()
	repo := NewProfileRepository(db)

	mock.ExpectExec("INSERT INTO profiles").
		WithArgs("u1", "t@example.com", "teacher", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Upsert(context.Background(), "u1", "t@example.com", models.RoleTeacher))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepositoryListByRole(t *testing.T) {
	db, mock, cleanup := newProfileRepoMock(t)
	defer cleanup()
	repo := NewProfileRepository(db)

	rows := profileRows().
		AddRow("u1", "t@example.com", "Aoife Byrne", nil, "Teacher ", nil, "Dublin", "123456", nil, nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND LOWER(TRIM(role)) = $1")).
		WithArgs("teacher").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM profiles WHERE 1=1 AND LOWER(TRIM(role)) = $1")).
		WithArgs("teacher").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.ProfileFilter{Role: models.RoleTeacher})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, models.RoleTeacher, list[0].NormalizedRole())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepositoryListAvailableTeachers(t *testing.T) {
	db, mock, cleanup := newProfileRepoMock(t)
	defer cleanup()
	repo := NewProfileRepository(db)

	from := mustDate(t, "2026-09-07")
	until := mustDate(t, "2026-09-08")
	rows := profileRows().
		AddRow("u1", "t@example.com", "Aoife Byrne", nil, "teacher", nil, "Dublin", nil, nil, nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("LOWER(TRIM(p.role)) = 'teacher'")).
		WithArgs(from, until).
		WillReturnRows(rows)

	teachers, err := repo.ListAvailableTeachers(context.Background(), from, until)
	require.NoError(t, err)
	require.Len(t, teachers, 1)
	assert.Equal(t, "u1", teachers[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newProfileRepoMock(t)
	defer cleanup()
	repo := NewProfileRepository(db)

	mock.ExpectExec("UPDATE profiles").
		WillReturnResult(sqlmock.NewResult(0, 1))

	name := "Aoife Byrne"
	county := "Dublin"
	profile := &models.Profile{ID: "u1", Email: "t@example.com", Role: "teacher", FullName: &name, County: &county}
	require.NoError(t, repo.Update(context.Background(), profile))
	assert.False(t, profile.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
