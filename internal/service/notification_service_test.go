package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classcover/classcover-api/internal/models"
	appErrors "github.com/classcover/classcover-api/pkg/errors"
	"github.com/classcover/classcover-api/pkg/mail"
	"github.com/classcover/classcover-api/pkg/tasks"
)

type mockNotificationRepo struct {
	mu      sync.Mutex
	created []*models.Notification
	sent    []string
	failed  map[string]string
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.created = append(m.created, &cp)
	return nil
}

func (m *mockNotificationRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, id)
	return nil
}

func (m *mockNotificationRepo) MarkFailed(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed == nil {
		m.failed = map[string]string{}
	}
	m.failed[id] = reason
	return nil
}

func (m *mockNotificationRepo) ListForRecipient(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.created {
		if n.RecipientID == recipientID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type failingMailer struct{}

func (failingMailer) Send(ctx context.Context, msg mail.Message) error {
	return errors.New("provider rejected message")
}

func newNotificationServiceForTest(repo *mockNotificationRepo, profiles *mockProfileFinder, jobs *mockJobRepo, mailer mail.Mailer) *NotificationService {
	return NewNotificationService(repo, profiles, jobs, mailer, nil, validator.New(), zap.NewNop(), "http://localhost:3000", tasks.QueueConfig{Workers: 1, BufferSize: 4})
}

func teacherProfile(id string) *models.Profile {
	name := "Test Teacher"
	return &models.Profile{ID: id, Email: id + "@example.com", FullName: &name, Role: "teacher"}
}

func TestNotifyJobRequestSendsEmail(t *testing.T) {
	job := &models.Job{ID: "j1", Title: "cover", StartDate: testDate(t, "2026-09-07"), Status: models.JobRequested, CreatedBy: "p1"}
	repo := &mockNotificationRepo{}
	profiles := &mockProfileFinder{profiles: map[string]*models.Profile{"t1": teacherProfile("t1")}}
	mailer := mail.NewConsoleMailer(zap.NewNop())
	svc := newNotificationServiceForTest(repo, profiles, newMockJobRepo(job), mailer)

	err := svc.NotifyJobRequest(context.Background(), principalClaims("p1"), models.NotifyJobRequestPayload{
		TeacherID: "t1",
		Job:       models.NotifyJobRef{ID: "j1"},
	})
	require.NoError(t, err)
	require.Len(t, mailer.Sent(), 1)
	assert.Equal(t, "t1@example.com", mailer.Sent()[0].ToAddress)
	require.Len(t, repo.created, 1)
	assert.Len(t, repo.sent, 1)
}

func TestNotifyJobRequestValidation(t *testing.T) {
	svc := newNotificationServiceForTest(&mockNotificationRepo{}, &mockProfileFinder{}, newMockJobRepo(), mail.NewConsoleMailer(zap.NewNop()))

	err := svc.NotifyJobRequest(context.Background(), principalClaims("p1"), models.NotifyJobRequestPayload{})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}

func TestNotifyJobRequestForbiddenForNonCreator(t *testing.T) {
	job := &models.Job{ID: "j1", Title: "cover", StartDate: testDate(t, "2026-09-07"), Status: models.JobRequested, CreatedBy: "p1"}
	profiles := &mockProfileFinder{profiles: map[string]*models.Profile{"t1": teacherProfile("t1")}}
	svc := newNotificationServiceForTest(&mockNotificationRepo{}, profiles, newMockJobRepo(job), mail.NewConsoleMailer(zap.NewNop()))

	err := svc.NotifyJobRequest(context.Background(), principalClaims("p2"), models.NotifyJobRequestPayload{
		TeacherID: "t1",
		Job:       models.NotifyJobRef{ID: "j1"},
	})
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}

func TestNotifyJobRequestUnknownJob(t *testing.T) {
	profiles := &mockProfileFinder{profiles: map[string]*models.Profile{"t1": teacherProfile("t1")}}
	svc := newNotificationServiceForTest(&mockNotificationRepo{}, profiles, newMockJobRepo(), mail.NewConsoleMailer(zap.NewNop()))

	err := svc.NotifyJobRequest(context.Background(), principalClaims("p1"), models.NotifyJobRequestPayload{
		TeacherID: "t1",
		Job:       models.NotifyJobRef{ID: "missing"},
	})
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}

func TestNotifyJobRequestUnknownTeacher(t *testing.T) {
	job := &models.Job{ID: "j1", Title: "cover", StartDate: testDate(t, "2026-09-07"), Status: models.JobRequested, CreatedBy: "p1"}
	svc := newNotificationServiceForTest(&mockNotificationRepo{}, &mockProfileFinder{profiles: map[string]*models.Profile{}}, newMockJobRepo(job), mail.NewConsoleMailer(zap.NewNop()))

	err := svc.NotifyJobRequest(context.Background(), principalClaims("p1"), models.NotifyJobRequestPayload{
		TeacherID: "ghost",
		Job:       models.NotifyJobRef{ID: "j1"},
	})
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}

func TestNotifyJobRequestProviderFailure(t *testing.T) {
	job := &models.Job{ID: "j1", Title: "cover", StartDate: testDate(t, "2026-09-07"), Status: models.JobRequested, CreatedBy: "p1"}
	repo := &mockNotificationRepo{}
	profiles := &mockProfileFinder{profiles: map[string]*models.Profile{"t1": teacherProfile("t1")}}
	svc := newNotificationServiceForTest(repo, profiles, newMockJobRepo(job), failingMailer{})

	err := svc.NotifyJobRequest(context.Background(), principalClaims("p1"), models.NotifyJobRequestPayload{
		TeacherID: "t1",
		Job:       models.NotifyJobRef{ID: "j1"},
	})
	assert.Equal(t, appErrors.ErrInternal.Code, errorCode(t, err))
	require.Len(t, repo.created, 1)
	assert.Contains(t, repo.failed[repo.created[0].ID], "provider rejected")
}

func TestJobEventDeliversThroughQueue(t *testing.T) {
	job := &models.Job{ID: "j1", Title: "cover", StartDate: testDate(t, "2026-09-07"), Status: models.JobAccepted, CreatedBy: "p1"}
	repo := &mockNotificationRepo{}
	profiles := &mockProfileFinder{profiles: map[string]*models.Profile{"p1": {ID: "p1", Email: "p1@example.com", Role: "principal"}}}
	mailer := mail.NewConsoleMailer(zap.NewNop())
	svc := newNotificationServiceForTest(repo, profiles, newMockJobRepo(job), mailer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Queue().Start(ctx)
	defer svc.Queue().Stop()

	svc.JobEvent(job, models.NotifyJobAccepted, "p1")

	assert.Eventually(t, func() bool {
		return repo.sentCount() == 1 && len(mailer.Sent()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
