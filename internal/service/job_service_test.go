package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classcover/classcover-api/internal/models"
	appErrors "github.com/classcover/classcover-api/pkg/errors"
)

type mockJobRepo struct {
	jobs      map[string]*models.Job
	overrides map[string][]models.Date
}

func newMockJobRepo(jobs ...*models.Job) *mockJobRepo {
	m := &mockJobRepo{jobs: map[string]*models.Job{}, overrides: map[string][]models.Date{}}
	for _, job := range jobs {
		cp := *job
		m.jobs[job.ID] = &cp
	}
	return m
}

func (m *mockJobRepo) Create(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = "generated"
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *mockJobRepo) FindByID(ctx context.Context, id string) (*models.Job, error) {
	if job, ok := m.jobs[id]; ok {
		cp := *job
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockJobRepo) List(ctx context.Context, filter models.JobFilter) ([]models.Job, int, error) {
	out := make([]models.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, *job)
	}
	return out, len(out), nil
}

func (m *mockJobRepo) UpdateFields(ctx context.Context, job *models.Job) (int64, error) {
	stored, ok := m.jobs[job.ID]
	if !ok || stored.CreatedBy != job.CreatedBy {
		return 0, nil
	}
	stored.Title = job.Title
	stored.School = job.School
	stored.Notes = job.Notes
	stored.StartDate = job.StartDate
	stored.EndDate = job.EndDate
	return 1, nil
}

func (m *mockJobRepo) Delete(ctx context.Context, id, createdBy string) (int64, error) {
	stored, ok := m.jobs[id]
	if !ok || stored.CreatedBy != createdBy {
		return 0, nil
	}
	delete(m.jobs, id)
	return 1, nil
}

func (m *mockJobRepo) RequestTeacher(ctx context.Context, id, createdBy, teacherID string) (int64, error) {
	stored, ok := m.jobs[id]
	if !ok || stored.CreatedBy != createdBy || stored.Status != models.JobOpen {
		return 0, nil
	}
	stored.Status = models.JobRequested
	stored.RequestedTeacher = &teacherID
	return 1, nil
}

func (m *mockJobRepo) AcceptOpen(ctx context.Context, id, teacherID string, span []models.Date) (int64, error) {
	stored, ok := m.jobs[id]
	if !ok || stored.Status != models.JobOpen || stored.AcceptedBy != nil {
		return 0, nil
	}
	stored.Status = models.JobAccepted
	stored.AcceptedBy = &teacherID
	m.overrides[id] = span
	return 1, nil
}

func (m *mockJobRepo) AcceptRequested(ctx context.Context, id, teacherID string, span []models.Date) (int64, error) {
	stored, ok := m.jobs[id]
	if !ok || stored.Status != models.JobRequested || stored.RequestedTeacher == nil || *stored.RequestedTeacher != teacherID {
		return 0, nil
	}
	stored.Status = models.JobAccepted
	stored.AcceptedBy = &teacherID
	m.overrides[id] = span
	return 1, nil
}

func (m *mockJobRepo) Decline(ctx context.Context, id, teacherID string) (int64, error) {
	stored, ok := m.jobs[id]
	if !ok || stored.Status != models.JobRequested || stored.RequestedTeacher == nil || *stored.RequestedTeacher != teacherID {
		return 0, nil
	}
	stored.Status = models.JobDeclined
	return 1, nil
}

func (m *mockJobRepo) Release(ctx context.Context, id, teacherID string) (int64, error) {
	stored, ok := m.jobs[id]
	if !ok || stored.Status != models.JobAccepted || stored.AcceptedBy == nil || *stored.AcceptedBy != teacherID {
		return 0, nil
	}
	stored.Status = models.JobOpen
	stored.AcceptedBy = nil
	delete(m.overrides, id)
	return 1, nil
}

func (m *mockJobRepo) Reopen(ctx context.Context, id, createdBy string) (int64, error) {
	stored, ok := m.jobs[id]
	if !ok || stored.Status != models.JobDeclined || stored.CreatedBy != createdBy {
		return 0, nil
	}
	stored.Status = models.JobOpen
	stored.RequestedTeacher = nil
	return 1, nil
}

func (m *mockJobRepo) Cancel(ctx context.Context, id, createdBy string) (int64, error) {
	stored, ok := m.jobs[id]
	if !ok || stored.CreatedBy != createdBy {
		return 0, nil
	}
	if stored.Status != models.JobOpen && stored.Status != models.JobRequested {
		return 0, nil
	}
	stored.Status = models.JobCancelled
	return 1, nil
}

type mockProfileFinder struct {
	profiles map[string]*models.Profile
}

func (m *mockProfileFinder) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	if profile, ok := m.profiles[id]; ok {
		cp := *profile
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type mockAuditRepo struct {
	logs []*models.AuditLog
}

func (m *mockAuditRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

type notifiedEvent struct {
	jobID     string
	kind      models.NotificationKind
	recipient string
}

type mockNotifier struct {
	events []notifiedEvent
}

func (m *mockNotifier) JobEvent(job *models.Job, kind models.NotificationKind, recipientID string) {
	m.events = append(m.events, notifiedEvent{jobID: job.ID, kind: kind, recipient: recipientID})
}

func testDate(t *testing.T, value string) models.Date {
	t.Helper()
	d, err := models.ParseDate(value)
	require.NoError(t, err)
	return d
}

func principalClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RolePrincipal}
}

func teacherClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleTeacher}
}

func newJobServiceForTest(repo *mockJobRepo, profiles *mockProfileFinder, audit *mockAuditRepo, notifier *mockNotifier) *JobService {
	if profiles == nil {
		profiles = &mockProfileFinder{profiles: map[string]*models.Profile{}}
	}
	if audit == nil {
		audit = &mockAuditRepo{}
	}
	if notifier == nil {
		notifier = &mockNotifier{}
	}
	return NewJobService(repo, profiles, audit, notifier, nil, nil, validator.New(), zap.NewNop())
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	return appErrors.FromError(err).Code
}

func TestJobServiceCreate(t *testing.T) {
	repo := newMockJobRepo()
	svc := newJobServiceForTest(repo, nil, nil, nil)

	job, err := svc.Create(context.Background(), principalClaims("p1"), models.CreateJobRequest{
		Title:     "4th class cover",
		StartDate: testDate(t, "2026-09-07"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobOpen, job.Status)
	assert.Equal(t, "p1", job.CreatedBy)
}

func TestJobServiceCreateDirectRequest(t *testing.T) {
	repo := newMockJobRepo()
	profiles := &mockProfileFinder{profiles: map[string]*models.Profile{
		"t1": {ID: "t1", Email: "t1@example.com", Role: "teacher"},
	}}
	notifier := &mockNotifier{}
	svc := newJobServiceForTest(repo, profiles, nil, notifier)

	teacherID := "t1"
	job, err := svc.Create(context.Background(), principalClaims("p1"), models.CreateJobRequest{
		Title:            "cover",
		StartDate:        testDate(t, "2026-09-07"),
		RequestedTeacher: &teacherID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobRequested, job.Status)
	require.NotNil(t, job.RequestedTeacher)
	assert.Equal(t, "t1", *job.RequestedTeacher)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, models.NotifyJobRequested, notifier.events[0].kind)
}

func TestJobServiceCreateDirectRequestRejectsNonTeacher(t *testing.T) {
	profiles := &mockProfileFinder{profiles: map[string]*models.Profile{
		"p2": {ID: "p2", Email: "p2@example.com", Role: "principal"},
	}}
	svc := newJobServiceForTest(newMockJobRepo(), profiles, nil, nil)

	target := "p2"
	_, err := svc.Create(context.Background(), principalClaims("p1"), models.CreateJobRequest{
		Title:            "cover",
		StartDate:        testDate(t, "2026-09-07"),
		RequestedTeacher: &target,
	})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}

func TestJobServiceCreateRejectsReversedDates(t *testing.T) {
	svc := newJobServiceForTest(newMockJobRepo(), nil, nil, nil)

	end := testDate(t, "2026-09-01")
	_, err := svc.Create(context.Background(), principalClaims("p1"), models.CreateJobRequest{
		Title:     "cover",
		StartDate: testDate(t, "2026-09-07"),
		EndDate:   &end,
	})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}

func TestJobServiceRequestNotifiesTeacher(t *testing.T) {
	repo := newMockJobRepo(&models.Job{ID: "j1", Title: "cover", StartDate: testDate(t, "2026-09-07"), Status: models.JobOpen, CreatedBy: "p1"})
	profiles := &mockProfileFinder{profiles: map[string]*models.Profile{
		"t1": {ID: "t1", Email: "t1@example.com", Role: "teacher"},
	}}
	notifier := &mockNotifier{}
	svc := newJobServiceForTest(repo, profiles, nil, notifier)

	job, err := svc.Request(context.Background(), principalClaims("p1"), "j1", models.RequestTeacherRequest{TeacherID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, models.JobRequested, job.Status)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, models.NotifyJobRequested, notifier.events[0].kind)
	assert.Equal(t, "t1", notifier.events[0].recipient)
}

func TestJobServiceRequestRejectsNonTeacher(t *testing.T) {
	repo := newMockJobRepo(&models.Job{ID: "j1", Status: models.JobOpen, CreatedBy: "p1", StartDate: testDate(t, "2026-09-07")})
	profiles := &mockProfileFinder{profiles: map[string]*models.Profile{
		"p2": {ID: "p2", Email: "p2@example.com", Role: "principal"},
	}}
	svc := newJobServiceForTest(repo, profiles, nil, nil)

	_, err := svc.Request(context.Background(), principalClaims("p1"), "j1", models.RequestTeacherRequest{TeacherID: "p2"})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}

func TestJobServiceRequestAlreadyRequested(t *testing.T) {
	other := "t9"
	repo := newMockJobRepo(&models.Job{ID: "j1", Status: models.JobRequested, RequestedTeacher: &other, CreatedBy: "p1", StartDate: testDate(t, "2026-09-07")})
	profiles := &mockProfileFinder{profiles: map[string]*models.Profile{
		"t1": {ID: "t1", Email: "t1@example.com", Role: "teacher"},
	}}
	svc := newJobServiceForTest(repo, profiles, nil, nil)

	_, err := svc.Request(context.Background(), principalClaims("p1"), "j1", models.RequestTeacherRequest{TeacherID: "t1"})
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, errorCode(t, err))
}

func TestJobServiceAcceptOpen(t *testing.T) {
	repo := newMockJobRepo(&models.Job{ID: "j1", Status: models.JobOpen, CreatedBy: "p1", StartDate: testDate(t, "2026-09-07")})
	notifier := &mockNotifier{}
	audit := &mockAuditRepo{}
	svc := newJobServiceForTest(repo, nil, audit, notifier)

	job, err := svc.Accept(context.Background(), teacherClaims("t1"), "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobAccepted, job.Status)
	require.NotNil(t, job.AcceptedBy)
	assert.Equal(t, "t1", *job.AcceptedBy)
	assert.Len(t, repo.overrides["j1"], 1)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, "p1", notifier.events[0].recipient)
	assert.Len(t, audit.logs, 1)
}

func TestJobServiceAcceptLosesRace(t *testing.T) {
	holder := "t2"
	repo := newMockJobRepo(&models.Job{ID: "j1", Status: models.JobAccepted, AcceptedBy: &holder, CreatedBy: "p1", StartDate: testDate(t, "2026-09-07")})
	svc := newJobServiceForTest(repo, nil, nil, nil)

	_, err := svc.Accept(context.Background(), teacherClaims("t1"), "j1")
	assert.Equal(t, appErrors.ErrJobTaken.Code, errorCode(t, err))
}

func TestJobServiceAcceptRequestedWrongTeacher(t *testing.T) {
	target := "t1"
	repo := newMockJobRepo(&models.Job{ID: "j1", Status: models.JobRequested, RequestedTeacher: &target, CreatedBy: "p1", StartDate: testDate(t, "2026-09-07")})
	svc := newJobServiceForTest(repo, nil, nil, nil)

	_, err := svc.Accept(context.Background(), teacherClaims("t9"), "j1")
	assert.Equal(t, appErrors.ErrNotRequested.Code, errorCode(t, err))
}

func TestJobServiceAcceptRequestedTargetTeacher(t *testing.T) {
	target := "t1"
	repo := newMockJobRepo(&models.Job{ID: "j1", Status: models.JobRequested, RequestedTeacher: &target, CreatedBy: "p1", StartDate: testDate(t, "2026-09-07")})
	svc := newJobServiceForTest(repo, nil, nil, nil)

	job, err := svc.Accept(context.Background(), teacherClaims("t1"), "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobAccepted, job.Status)
}

func TestJobServiceDecline(t *testing.T) {
	target := "t1"
	repo := newMockJobRepo(&models.Job{ID: "j1", Status: models.JobRequested, RequestedTeacher: &target, CreatedBy: "p1", StartDate: testDate(t, "2026-09-07")})
	notifier := &mockNotifier{}
	svc := newJobServiceForTest(repo, nil, nil, notifier)

	job, err := svc.Decline(context.Background(), teacherClaims("t1"), "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobDeclined, job.Status)
	// The requested teacher stays on the record until the creator reopens.
	require.NotNil(t, job.RequestedTeacher)
	assert.Equal(t, "t1", *job.RequestedTeacher)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, models.NotifyJobDeclined, notifier.events[0].kind)
}

func TestJobServiceDeclineNotRequested(t *testing.T) {
	repo := newMockJobRepo(&models.Job{ID: "j1", Status: models.JobOpen, CreatedBy: "p1", StartDate: testDate(t, "2026-09-07")})
	svc := newJobServiceForTest(repo, nil, nil, nil)

	_, err := svc.Decline(context.Background(), teacherClaims("t1"), "j1")
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, errorCode(t, err))
}

func TestJobServiceReleaseReturnsJobToPool(t *testing.T) {
	holder := "t1"
	repo := newMockJobRepo(&models.Job{ID: "j1", Status: models.JobAccepted, AcceptedBy: &holder, CreatedBy: "p1", StartDate: testDate(t, "2026-09-07")})
	repo.overrides["j1"] = []models.Date{testDate(t, "2026-09-07")}
	notifier := &mockNotifier{}
	svc := newJobServiceForTest(repo, nil, nil, notifier)

	job, err := svc.Release(context.Background(), teacherClaims("t1"), "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobOpen, job.Status)
	assert.Nil(t, job.AcceptedBy)
	assert.Empty(t, repo.overrides["j1"])
	require.Len(t, notifier.events, 1)
	assert.Equal(t, models.NotifyJobReleased, notifier.events[0].kind)
	assert.Equal(t, "p1", notifier.events[0].recipient)
}

func TestJobServiceReleaseWrongHolder(t *testing.T) {
	holder := "t1"
	repo := newMockJobRepo(&models.Job{ID: "j1", Status: models.JobAccepted, AcceptedBy: &holder, CreatedBy: "p1", StartDate: testDate(t, "2026-09-07")})
	svc := newJobServiceForTest(repo, nil, nil, nil)

	_, err := svc.Release(context.Background(), teacherClaims("t9"), "j1")
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}

func TestJobServiceReopenDeclined(t *testing.T) {
	target := "t1"
	repo := newMockJobRepo(&models.Job{ID: "j1", Status: models.JobDeclined, RequestedTeacher: &target, CreatedBy: "p1", StartDate: testDate(t, "2026-09-07")})
	svc := newJobServiceForTest(repo, nil, nil, nil)

	job, err := svc.Reopen(context.Background(), principalClaims("p1"), "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobOpen, job.Status)
	assert.Nil(t, job.RequestedTeacher)
}

func TestJobServiceCancel(t *testing.T) {
	repo := newMockJobRepo(&models.Job{ID: "j1", Status: models.JobOpen, CreatedBy: "p1", StartDate: testDate(t, "2026-09-07")})
	svc := newJobServiceForTest(repo, nil, nil, nil)

	job, err := svc.Cancel(context.Background(), principalClaims("p1"), "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, job.Status)
}

func TestJobServiceUpdateForbiddenForNonOwner(t *testing.T) {
	repo := newMockJobRepo(&models.Job{ID: "j1", Status: models.JobOpen, CreatedBy: "p1", StartDate: testDate(t, "2026-09-07")})
	svc := newJobServiceForTest(repo, nil, nil, nil)

	_, err := svc.Update(context.Background(), principalClaims("p2"), "j1", models.UpdateJobRequest{
		Title:     "new title",
		StartDate: testDate(t, "2026-09-07"),
	})
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}

func TestJobServiceUpdateAcceptedRejected(t *testing.T) {
	holder := "t1"
	repo := newMockJobRepo(&models.Job{ID: "j1", Status: models.JobAccepted, AcceptedBy: &holder, CreatedBy: "p1", StartDate: testDate(t, "2026-09-07")})
	svc := newJobServiceForTest(repo, nil, nil, nil)

	_, err := svc.Update(context.Background(), principalClaims("p1"), "j1", models.UpdateJobRequest{
		Title:     "new title",
		StartDate: testDate(t, "2026-09-07"),
	})
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, errorCode(t, err))
}

func TestJobServiceGetNotFound(t *testing.T) {
	svc := newJobServiceForTest(newMockJobRepo(), nil, nil, nil)

	_, err := svc.Get(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}
