package handler

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/classcover/classcover-api/internal/service"
	appErrors "github.com/classcover/classcover-api/pkg/errors"
	"github.com/classcover/classcover-api/pkg/response"
)

// ExportHandler exposes booking export endpoints.
type ExportHandler struct {
	exportService *service.ExportService
}

// NewExportHandler constructs an ExportHandler.
func NewExportHandler(exportService *service.ExportService) *ExportHandler {
	return &ExportHandler{exportService: exportService}
}

// GenerateBookings godoc
// @Summary Export the caller's booking history
// @Description Renders bookings to CSV or PDF and returns a signed download link.
// @Tags exports
// @Produce json
// @Security BearerAuth
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {object} response.Envelope{data=service.ExportResult}
// @Failure 400 {object} response.Envelope
// @Router /exports/bookings [post]
func (h *ExportHandler) GenerateBookings(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	format := service.ExportFormat(c.DefaultQuery("format", string(service.ExportFormatCSV)))
	if format != service.ExportFormatCSV && format != service.ExportFormatPDF {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}

	filter, err := jobFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.exportService.GenerateBookings(c.Request.Context(), claims, filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download a generated export by signed token
// @Tags exports
// @Produce application/octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	f, err := h.exportService.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	path := f.Name()
	f.Close()

	c.FileAttachment(path, filepath.Base(path))
}
