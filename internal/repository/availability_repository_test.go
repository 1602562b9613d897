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

func newAvailabilityRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAvailabilityRepositoryListWeek(t *testing.T) {
	db, mock, cleanup := newAvailabilityRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	monday := mustDate(t, "2026-09-07")
	rows := sqlmock.NewRows([]string{"id", "user_id", "weekday", "is_available", "effective_from", "updated_at"}).
		AddRow("a1", "t1", 1, true, monday.Time, time.Now()).
		AddRow("a2", "t1", 2, false, monday.Time, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND effective_from = $2")).
		WithArgs("t1", monday).
		WillReturnRows(rows)

	list, err := repo.ListWeek(context.Background(), "t1", monday)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].Weekday)
	assert.False(t, list[1].IsAvailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryUpsertWeek(t *testing.T) {
	db, mock, cleanup := newAvailabilityRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	monday := mustDate(t, "2026-09-07")
	rows := []models.AvailabilityRow{
		{UserID: "t1", Weekday: 1, IsAvailable: true, EffectiveFrom: monday},
		{UserID: "t1", Weekday: 2, IsAvailable: false, EffectiveFrom: monday},
	}

	mock.ExpectBegin()
	for _, row := range rows {
		mock.ExpectExec("INSERT INTO availability").
			WithArgs(sqlmock.AnyArg(), row.UserID, row.Weekday, row.IsAvailable, row.EffectiveFrom, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	require.NoError(t, repo.UpsertWeek(context.Background(), rows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryUpsertWeekEmpty(t *testing.T) {
	db, mock, cleanup := newAvailabilityRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	require.NoError(t, repo.UpsertWeek(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryListOverrides(t *testing.T) {
	db, mock, cleanup := newAvailabilityRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	from := mustDate(t, "2026-09-07")
	until := mustDate(t, "2026-09-11")
	rows := sqlmock.NewRows([]string{"id", "teacher_id", "date", "available", "job_id", "created_at"}).
		AddRow("o1", "t1", from.Time, false, "j1", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("WHERE teacher_id = $1 AND date BETWEEN $2 AND $3")).
		WithArgs("t1", from, until).
		WillReturnRows(rows)

	overrides, err := repo.ListOverrides(context.Background(), "t1", from, until)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.False(t, overrides[0].Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}
