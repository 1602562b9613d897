package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/classcover/classcover-api/internal/models"
	appErrors "github.com/classcover/classcover-api/pkg/errors"
	"github.com/classcover/classcover-api/pkg/export"
	"github.com/classcover/classcover-api/pkg/storage"
)

type exportFileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFormat names a supported output format.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string       `json:"-"`
	Token        string       `json:"token"`
	URL          string       `json:"url"`
	Format       ExportFormat `json:"format"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// ExportService renders a user's booking history to CSV or PDF and hands out
// signed download links.
type ExportService struct {
	jobs     jobRepository
	profiles jobProfileRepository
	storage  exportFileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(jobs jobRepository, profiles jobProfileRepository, files exportFileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		jobs:     jobs,
		profiles: profiles,
		storage:  files,
		csv:      csv,
		pdf:      pdf,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// GenerateBookings renders the caller's bookings. Principals get the jobs
// they created; teachers get the jobs they hold or were requested for.
func (s *ExportService) GenerateBookings(ctx context.Context, actor *models.JWTClaims, filter models.JobFilter, format ExportFormat) (*ExportResult, error) {
	switch actor.Role {
	case models.RolePrincipal:
		filter.CreatedBy = actor.UserID
	case models.RoleTeacher:
		filter.AcceptedBy = actor.UserID
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "unknown role")
	}
	filter.Page = 1
	filter.PageSize = 100

	dataset, title, err := s.buildBookingsDataset(ctx, filter)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %s", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := fmt.Sprintf("exports/%s/bookings_%s.%s", actor.UserID, time.Now().UTC().Format("20060102_150405"), format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(actor.UserID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// Open validates a download token and returns a handle to the stored file.
func (s *ExportService) Open(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export no longer available")
	}
	return file, nil
}

func (s *ExportService) buildBookingsDataset(ctx context.Context, filter models.JobFilter) (export.Dataset, string, error) {
	jobs, _, err := s.jobs.List(ctx, filter)
	if err != nil {
		return export.Dataset{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}

	emails := map[string]string{}
	lookup := func(id *string) string {
		if id == nil || *id == "" {
			return ""
		}
		if email, ok := emails[*id]; ok {
			return email
		}
		profile, err := s.profiles.FindByID(ctx, *id)
		if err != nil {
			emails[*id] = *id
			return *id
		}
		emails[*id] = profile.Email
		return profile.Email
	}

	rows := make([]map[string]string, 0, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		dates := job.StartDate.String()
		if !job.SingleDay() {
			dates = fmt.Sprintf("%s to %s", job.StartDate, job.EndDate)
		}
		school := ""
		if job.School != nil {
			school = *job.School
		}
		rows = append(rows, map[string]string{
			"Title":     job.Title,
			"School":    school,
			"Dates":     dates,
			"Status":    string(job.Status),
			"Teacher":   lookup(job.AcceptedBy),
			"Requested": lookup(job.RequestedTeacher),
			"Updated":   job.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}

	dataset := export.Dataset{
		Headers: []string{"Title", "School", "Dates", "Status", "Teacher", "Requested", "Updated"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Bookings %s", time.Now().UTC().Format("2006-01-02"))
	return dataset, title, nil
}
