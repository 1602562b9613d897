package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/classcover/classcover-api/internal/models"
	"github.com/classcover/classcover-api/internal/service"
	appErrors "github.com/classcover/classcover-api/pkg/errors"
	"github.com/classcover/classcover-api/pkg/response"
)

type jobService interface {
	Create(ctx context.Context, actor *models.JWTClaims, req models.CreateJobRequest) (*models.Job, error)
	Get(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, filter models.JobFilter) (*service.JobListResult, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, req models.UpdateJobRequest) (*models.Job, error)
	Delete(ctx context.Context, actor *models.JWTClaims, id string) error
	Request(ctx context.Context, actor *models.JWTClaims, id string, req models.RequestTeacherRequest) (*models.Job, error)
	Accept(ctx context.Context, actor *models.JWTClaims, id string) (*models.Job, error)
	Decline(ctx context.Context, actor *models.JWTClaims, id string) (*models.Job, error)
	Release(ctx context.Context, actor *models.JWTClaims, id string) (*models.Job, error)
	Reopen(ctx context.Context, actor *models.JWTClaims, id string) (*models.Job, error)
	Cancel(ctx context.Context, actor *models.JWTClaims, id string) (*models.Job, error)
}

// JobHandler exposes job lifecycle endpoints.
type JobHandler struct {
	jobService jobService
}

// NewJobHandler constructs a JobHandler.
func NewJobHandler(jobService jobService) *JobHandler {
	return &JobHandler{jobService: jobService}
}

// Create godoc
// @Summary Post a new job
// @Description Creates an open job owned by the calling principal.
// @Tags jobs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateJobRequest true "Job payload"
// @Success 201 {object} response.Envelope{data=models.Job}
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /jobs [post]
func (h *JobHandler) Create(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req models.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	job, err := h.jobService.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, job)
}

// Get godoc
// @Summary Fetch a job by ID
// @Tags jobs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope{data=models.Job}
// @Failure 404 {object} response.Envelope
// @Router /jobs/{id} [get]
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.jobService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, job, nil)
}

// List godoc
// @Summary List jobs
// @Description Filters by status, date window, and free text. Defaults to open jobs for teachers browsing the board.
// @Tags jobs
// @Produce json
// @Security BearerAuth
// @Param status query string false "Comma separated statuses"
// @Param mine query bool false "Restrict to jobs the caller created or holds"
// @Param requested query bool false "Restrict to jobs requested from the calling teacher"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param until query string false "End date (YYYY-MM-DD)"
// @Param search query string false "Free text search on title and school"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope{data=[]models.Job}
// @Router /jobs [get]
func (h *JobHandler) List(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	filter, err := jobFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	if c.Query("mine") == "true" {
		switch models.NormalizeRole(string(claims.Role)) {
		case models.RolePrincipal:
			filter.CreatedBy = claims.UserID
		case models.RoleTeacher:
			filter.AcceptedBy = claims.UserID
		}
	}
	if c.Query("requested") == "true" {
		filter.RequestedTeacher = claims.UserID
	}

	result, err := h.jobService.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result.Jobs, &result.Pagination)
}

// Update godoc
// @Summary Edit a job
// @Description Only the creator can edit, and only before the job is accepted.
// @Tags jobs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Param payload body models.UpdateJobRequest true "Fields to update"
// @Success 200 {object} response.Envelope{data=models.Job}
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /jobs/{id} [patch]
func (h *JobHandler) Update(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req models.UpdateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	job, err := h.jobService.Update(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, job, nil)
}

// Delete godoc
// @Summary Delete a job
// @Description Only the creator can delete, and not while the job is accepted.
// @Tags jobs
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 204 "No Content"
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /jobs/{id} [delete]
func (h *JobHandler) Delete(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.jobService.Delete(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Request godoc
// @Summary Request a specific teacher for an open job
// @Tags jobs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Param payload body models.RequestTeacherRequest true "Teacher to request"
// @Success 200 {object} response.Envelope{data=models.Job}
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /jobs/{id}/request [post]
func (h *JobHandler) Request(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req models.RequestTeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	job, err := h.jobService.Request(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, job, nil)
}

// Accept godoc
// @Summary Accept a job
// @Description Teachers accept an open job, or a job requested from them. First acceptance wins.
// @Tags jobs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope{data=models.Job}
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /jobs/{id}/accept [post]
func (h *JobHandler) Accept(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	job, err := h.jobService.Accept(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, job, nil)
}

// Decline godoc
// @Summary Decline a requested job
// @Tags jobs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope{data=models.Job}
// @Failure 403 {object} response.Envelope
// @Router /jobs/{id}/decline [post]
func (h *JobHandler) Decline(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	job, err := h.jobService.Decline(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, job, nil)
}

// Release godoc
// @Summary Release an accepted job
// @Description The holding teacher gives the job back. It reopens and availability overrides are cleared.
// @Tags jobs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope{data=models.Job}
// @Failure 403 {object} response.Envelope
// @Router /jobs/{id}/release [post]
func (h *JobHandler) Release(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	job, err := h.jobService.Release(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, job, nil)
}

// Reopen godoc
// @Summary Reopen a declined job
// @Tags jobs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope{data=models.Job}
// @Failure 403 {object} response.Envelope
// @Router /jobs/{id}/reopen [post]
func (h *JobHandler) Reopen(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	job, err := h.jobService.Reopen(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, job, nil)
}

// Cancel godoc
// @Summary Cancel a job
// @Tags jobs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope{data=models.Job}
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /jobs/{id}/cancel [post]
func (h *JobHandler) Cancel(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	job, err := h.jobService.Cancel(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, job, nil)
}

func jobFilterFromQuery(c *gin.Context) (models.JobFilter, error) {
	filter := models.JobFilter{
		Search:    strings.TrimSpace(c.Query("search")),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := models.JobStatus(strings.TrimSpace(strings.ToLower(part)))
			if !status.Valid() {
				return filter, appErrors.Clone(appErrors.ErrValidation, "unknown status "+string(status))
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	if raw := c.Query("from"); raw != "" {
		from, err := models.ParseDate(raw)
		if err != nil {
			return filter, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid from date")
		}
		filter.FromDate = &from
	}
	if raw := c.Query("until"); raw != "" {
		until, err := models.ParseDate(raw)
		if err != nil {
			return filter, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid until date")
		}
		filter.UntilDate = &until
	}

	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	return filter, nil
}
