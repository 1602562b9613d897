package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classcover/classcover-api/internal/middleware"
	"github.com/classcover/classcover-api/internal/models"
	"github.com/classcover/classcover-api/internal/service"
	appErrors "github.com/classcover/classcover-api/pkg/errors"
)

type jobServiceMock struct {
	createResp *models.Job
	createErr  error
	getResp    *models.Job
	getErr     error
	listResp   *service.JobListResult
	listErr    error
	acceptResp *models.Job
	acceptErr  error

	lastFilter  models.JobFilter
	lastActor   *models.JWTClaims
	lastJobID   string
	listCalled  bool
	acceptWoken bool
}

func (m *jobServiceMock) Create(ctx context.Context, actor *models.JWTClaims, req models.CreateJobRequest) (*models.Job, error) {
	m.lastActor = actor
	return m.createResp, m.createErr
}

func (m *jobServiceMock) Get(ctx context.Context, id string) (*models.Job, error) {
	m.lastJobID = id
	return m.getResp, m.getErr
}

func (m *jobServiceMock) List(ctx context.Context, filter models.JobFilter) (*service.JobListResult, error) {
	m.listCalled = true
	m.lastFilter = filter
	return m.listResp, m.listErr
}

func (m *jobServiceMock) Update(ctx context.Context, actor *models.JWTClaims, id string, req models.UpdateJobRequest) (*models.Job, error) {
	return nil, nil
}

func (m *jobServiceMock) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	return nil
}

func (m *jobServiceMock) Request(ctx context.Context, actor *models.JWTClaims, id string, req models.RequestTeacherRequest) (*models.Job, error) {
	return nil, nil
}

func (m *jobServiceMock) Accept(ctx context.Context, actor *models.JWTClaims, id string) (*models.Job, error) {
	m.acceptWoken = true
	m.lastActor = actor
	m.lastJobID = id
	return m.acceptResp, m.acceptErr
}

func (m *jobServiceMock) Decline(ctx context.Context, actor *models.JWTClaims, id string) (*models.Job, error) {
	return nil, nil
}

func (m *jobServiceMock) Release(ctx context.Context, actor *models.JWTClaims, id string) (*models.Job, error) {
	return nil, nil
}

func (m *jobServiceMock) Reopen(ctx context.Context, actor *models.JWTClaims, id string) (*models.Job, error) {
	return nil, nil
}

func (m *jobServiceMock) Cancel(ctx context.Context, actor *models.JWTClaims, id string) (*models.Job, error) {
	return nil, nil
}

func principalContext(w *httptest.ResponseRecorder) (*gin.Context, *models.JWTClaims) {
	c, _ := gin.CreateTestContext(w)
	claims := &models.JWTClaims{UserID: "p1", Role: models.RolePrincipal, Email: "p1@example.com"}
	c.Set(middleware.ContextUserKey, claims)
	return c, claims
}

func TestJobHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &jobServiceMock{
		createResp: &models.Job{ID: "job-1", Title: "4th class cover", Status: models.JobOpen},
	}
	handler := NewJobHandler(mockSvc)

	payload, _ := json.Marshal(models.CreateJobRequest{
		Title:     "4th class cover",
		StartDate: models.NewDate(2026, 9, 7),
	})
	w := httptest.NewRecorder()
	c, claims := principalContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, claims, mockSvc.lastActor)
}

func TestJobHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewJobHandler(&jobServiceMock{})

	w := httptest.NewRecorder()
	c, _ := principalContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(`{"title":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobHandlerListParsesFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &jobServiceMock{
		listResp: &service.JobListResult{
			Jobs:       []models.Job{{ID: "job-1"}},
			Pagination: models.Pagination{Page: 1, PageSize: 20, TotalCount: 1},
		},
	}
	handler := NewJobHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := principalContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/jobs?status=open,requested&from=2026-09-01&page=2&page_size=10", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.listCalled)
	assert.Equal(t, []models.JobStatus{models.JobOpen, models.JobRequested}, mockSvc.lastFilter.Statuses)
	require.NotNil(t, mockSvc.lastFilter.FromDate)
	assert.Equal(t, "2026-09-01", mockSvc.lastFilter.FromDate.String())
	assert.Equal(t, 2, mockSvc.lastFilter.Page)
	assert.Equal(t, 10, mockSvc.lastFilter.PageSize)
}

func TestJobHandlerListMineScopesToCreator(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &jobServiceMock{listResp: &service.JobListResult{}}
	handler := NewJobHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := principalContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/jobs?mine=true", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "p1", mockSvc.lastFilter.CreatedBy)
	assert.Empty(t, mockSvc.lastFilter.AcceptedBy)
}

func TestJobHandlerListRejectsUnknownStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewJobHandler(&jobServiceMock{})

	w := httptest.NewRecorder()
	c, _ := principalContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/jobs?status=bogus", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobHandlerAcceptConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &jobServiceMock{acceptErr: appErrors.ErrJobTaken}
	handler := NewJobHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	req, _ := http.NewRequest(http.MethodPost, "/jobs/job-1/accept", nil)
	c.Request = req

	handler.Accept(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.True(t, mockSvc.acceptWoken)
	assert.Equal(t, "job-1", mockSvc.lastJobID)

	var envelope struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrJobTaken.Code, envelope.Error.Code)
}

func TestJobHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewJobHandler(&jobServiceMock{getErr: appErrors.ErrNotFound})

	w := httptest.NewRecorder()
	c, _ := principalContext(w)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	req, _ := http.NewRequest(http.MethodGet, "/jobs/missing", nil)
	c.Request = req

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}
