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

	"github.com/classcover/classcover-api/internal/models"
	appErrors "github.com/classcover/classcover-api/pkg/errors"
)

type notificationServiceMock struct {
	notifyErr   error
	listResp    []models.Notification
	listErr     error
	lastPayload models.NotifyJobRequestPayload
	lastLimit   int
	notifyCalls int
}

func (m *notificationServiceMock) NotifyJobRequest(ctx context.Context, actor *models.JWTClaims, payload models.NotifyJobRequestPayload) error {
	m.notifyCalls++
	m.lastPayload = payload
	return m.notifyErr
}

func (m *notificationServiceMock) ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	m.lastLimit = limit
	return m.listResp, m.listErr
}

func TestNotificationHandlerNotifyJobRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &notificationServiceMock{}
	handler := NewNotificationHandler(mockSvc)

	payload, _ := json.Marshal(models.NotifyJobRequestPayload{
		TeacherID: "t1",
		Job:       models.NotifyJobRef{ID: "job-1"},
	})
	w := httptest.NewRecorder()
	c, _ := principalContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/notifications/job-request", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.NotifyJobRequest(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, mockSvc.notifyCalls)
	assert.Equal(t, "t1", mockSvc.lastPayload.TeacherID)

	var envelope struct {
		Data map[string]bool `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data["ok"])
}

func TestNotificationHandlerNotifyForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &notificationServiceMock{notifyErr: appErrors.ErrForbidden}
	handler := NewNotificationHandler(mockSvc)

	payload, _ := json.Marshal(models.NotifyJobRequestPayload{
		TeacherID: "t1",
		Job:       models.NotifyJobRef{ID: "job-1"},
	})
	w := httptest.NewRecorder()
	c, _ := principalContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/notifications/job-request", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.NotifyJobRequest(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestNotificationHandlerNotifyInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewNotificationHandler(&notificationServiceMock{})

	w := httptest.NewRecorder()
	c, _ := principalContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/notifications/job-request", bytes.NewBufferString(`{"teacherId":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.NotifyJobRequest(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotificationHandlerListMine(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &notificationServiceMock{
		listResp: []models.Notification{{ID: "n1", RecipientID: "p1"}},
	}
	handler := NewNotificationHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := principalContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/notifications?limit=5", nil)
	c.Request = req

	handler.ListMine(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, mockSvc.lastLimit)
}

func TestNotificationHandlerUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewNotificationHandler(&notificationServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/notifications", nil)
	c.Request = req

	handler.ListMine(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
