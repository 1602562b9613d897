package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/classcover/classcover-api/internal/models"
	appErrors "github.com/classcover/classcover-api/pkg/errors"
	"github.com/classcover/classcover-api/pkg/response"
)

type notificationService interface {
	NotifyJobRequest(ctx context.Context, actor *models.JWTClaims, payload models.NotifyJobRequestPayload) error
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
}

// NotificationHandler exposes notification endpoints.
type NotificationHandler struct {
	notificationService notificationService
}

// NewNotificationHandler constructs a NotificationHandler.
func NewNotificationHandler(notificationService notificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// NotifyJobRequest godoc
// @Summary Send a job request email to a teacher
// @Description Sends the request email inline. Only the job's creator may trigger it.
// @Tags notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.NotifyJobRequestPayload true "Teacher and job reference"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /notifications/job-request [post]
func (h *NotificationHandler) NotifyJobRequest(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var payload models.NotifyJobRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	if err := h.notificationService.NotifyJobRequest(c.Request.Context(), claims, payload); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"ok": true}, nil)
}

// ListMine godoc
// @Summary List the caller's notifications
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum entries to return"
// @Success 200 {object} response.Envelope{data=[]models.Notification}
// @Router /notifications [get]
func (h *NotificationHandler) ListMine(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	notifications, err := h.notificationService.ListForUser(c.Request.Context(), claims.UserID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, notifications, nil)
}
