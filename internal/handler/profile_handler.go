package handler

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/classcover/classcover-api/internal/models"
	"github.com/classcover/classcover-api/internal/service"
	appErrors "github.com/classcover/classcover-api/pkg/errors"
	"github.com/classcover/classcover-api/pkg/response"
	"github.com/classcover/classcover-api/pkg/storage"
)

// ProfileHandler exposes profile and teacher directory endpoints.
type ProfileHandler struct {
	profileService *service.ProfileService
	docs           *storage.LocalStorage
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(profileService *service.ProfileService, docs *storage.LocalStorage) *ProfileHandler {
	return &ProfileHandler{profileService: profileService, docs: docs}
}

// Me godoc
// @Summary Fetch the caller's profile
// @Tags profiles
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=models.Profile}
// @Router /profiles/me [get]
func (h *ProfileHandler) Me(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	profile, err := h.profileService.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, profile, nil)
}

// UpdateMe godoc
// @Summary Update the caller's profile
// @Description Teacher-only and principal-only fields are applied based on the caller's role.
// @Tags profiles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.UpdateProfileRequest true "Fields to update"
// @Success 200 {object} response.Envelope{data=models.Profile}
// @Failure 400 {object} response.Envelope
// @Router /profiles/me [patch]
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	profile, err := h.profileService.UpdateOwn(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, profile, nil)
}

// Get godoc
// @Summary Fetch a profile by ID
// @Tags profiles
// @Produce json
// @Security BearerAuth
// @Param id path string true "Profile ID"
// @Success 200 {object} response.Envelope{data=models.Profile}
// @Failure 404 {object} response.Envelope
// @Router /profiles/{id} [get]
func (h *ProfileHandler) Get(c *gin.Context) {
	profile, err := h.profileService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, profile, nil)
}

// ListTeachers godoc
// @Summary Browse the teacher directory
// @Tags teachers
// @Produce json
// @Security BearerAuth
// @Param county query string false "Filter by county"
// @Param search query string false "Free text search on name and county"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope{data=[]models.Profile}
// @Router /teachers [get]
func (h *ProfileHandler) ListTeachers(c *gin.Context) {
	filter := models.ProfileFilter{
		County: strings.TrimSpace(c.Query("county")),
		Search: strings.TrimSpace(c.Query("search")),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.profileService.ListTeachers(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result.Teachers, &result.Pagination)
}

// AvailableTeachers godoc
// @Summary List teachers available for a date window
// @Description Combines weekly schedules and booking overrides so only bookable teachers are returned.
// @Tags teachers
// @Produce json
// @Security BearerAuth
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param until query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope{data=[]models.Profile}
// @Failure 400 {object} response.Envelope
// @Router /teachers/available [get]
func (h *ProfileHandler) AvailableTeachers(c *gin.Context) {
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

	teachers, err := h.profileService.ListAvailableTeachers(c.Request.Context(), from, until)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, teachers, nil)
}

// UploadQualifications godoc
// @Summary Upload a qualifications document
// @Description Accepts a single PDF under the configured size limit. Replaces any previous upload.
// @Tags teachers
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Qualifications document"
// @Success 200 {object} response.Envelope{data=models.Profile}
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /teachers/me/qualifications [post]
func (h *ProfileHandler) UploadQualifications(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "file field is required"))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer f.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	profile, err := h.profileService.UploadQualifications(c.Request.Context(), claims, fileHeader.Filename, contentType, fileHeader.Size, f)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, profile, nil)
}

// QualificationsLink godoc
// @Summary Issue a signed download link for a teacher's qualifications
// @Tags teachers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /teachers/{id}/qualifications-link [get]
func (h *ProfileHandler) QualificationsLink(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	token, expiresAt, err := h.profileService.QualificationsDownloadToken(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt,
	}, nil)
}

// DownloadQualifications godoc
// @Summary Download a qualifications document by signed token
// @Tags teachers
// @Produce application/pdf
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /teachers/qualifications/{token} [get]
func (h *ProfileHandler) DownloadQualifications(c *gin.Context) {
	relPath, err := h.profileService.ParseDownloadToken(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}

	f, err := h.docs.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "document not found"))
		return
	}
	path := f.Name()
	f.Close()

	c.FileAttachment(path, filepath.Base(path))
}
