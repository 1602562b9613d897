package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classcover/classcover-api/internal/models"
	appErrors "github.com/classcover/classcover-api/pkg/errors"
	"github.com/classcover/classcover-api/pkg/response"
)

type availabilityService interface {
	GetWeek(ctx context.Context, userID string, weekOf models.Date) (*models.WeekAvailability, error)
	SetWeek(ctx context.Context, userID string, req models.SetAvailabilityRequest) (*models.WeekAvailability, error)
	ListOverrides(ctx context.Context, userID string, from models.Date, until *models.Date) ([]models.AvailabilityOverride, error)
}

// AvailabilityHandler exposes weekly availability endpoints.
type AvailabilityHandler struct {
	availabilityService availabilityService
}

// NewAvailabilityHandler constructs an AvailabilityHandler.
func NewAvailabilityHandler(availabilityService availabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{availabilityService: availabilityService}
}

// GetMyWeek godoc
// @Summary Fetch the caller's weekly availability
// @Description Returns all five school days for the week containing week_of. Days never set default to unavailable.
// @Tags availability
// @Produce json
// @Security BearerAuth
// @Param week_of query string false "Any date inside the week (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope{data=models.WeekAvailability}
// @Router /availability/me [get]
func (h *AvailabilityHandler) GetMyWeek(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	weekOf, err := weekOfFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	week, err := h.availabilityService.GetWeek(c.Request.Context(), claims.UserID, weekOf)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, week, nil)
}

// SetMyWeek godoc
// @Summary Replace the caller's weekly availability
// @Description Accepts the five school days for one week. The effective date is snapped to that week's Monday.
// @Tags availability
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.SetAvailabilityRequest true "Week schedule"
// @Success 200 {object} response.Envelope{data=models.WeekAvailability}
// @Failure 400 {object} response.Envelope
// @Router /availability/me [put]
func (h *AvailabilityHandler) SetMyWeek(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req models.SetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	week, err := h.availabilityService.SetWeek(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, week, nil)
}

// GetTeacherWeek godoc
// @Summary Fetch a teacher's weekly availability
// @Tags availability
// @Produce json
// @Security BearerAuth
// @Param id path string true "Teacher ID"
// @Param week_of query string false "Any date inside the week (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope{data=models.WeekAvailability}
// @Router /availability/{id} [get]
func (h *AvailabilityHandler) GetTeacherWeek(c *gin.Context) {
	weekOf, err := weekOfFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	week, err := h.availabilityService.GetWeek(c.Request.Context(), c.Param("id"), weekOf)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, week, nil)
}

// MyOverrides godoc
// @Summary List the caller's booking overrides
// @Description Overrides are days blocked out by accepted jobs inside the given window.
// @Tags availability
// @Produce json
// @Security BearerAuth
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param until query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope{data=[]models.AvailabilityOverride}
// @Failure 400 {object} response.Envelope
// @Router /availability/me/overrides [get]
func (h *AvailabilityHandler) MyOverrides(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	from, err := models.ParseDate(c.Query("from"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid from date"))
		return
	}

	var until *models.Date
	if raw := c.Query("until"); raw != "" {
		parsed, err := models.ParseDate(raw)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid until date"))
			return
		}
		until = &parsed
	}

	overrides, err := h.availabilityService.ListOverrides(c.Request.Context(), claims.UserID, from, until)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, overrides, nil)
}

func weekOfFromQuery(c *gin.Context) (models.Date, error) {
	raw := c.Query("week_of")
	if raw == "" {
		now := time.Now().UTC()
		return models.NewDate(now.Year(), now.Month(), now.Day()), nil
	}
	weekOf, err := models.ParseDate(raw)
	if err != nil {
		return models.Date{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid week_of date")
	}
	return weekOf, nil
}
