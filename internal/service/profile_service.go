package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classcover/classcover-api/internal/models"
	appErrors "github.com/classcover/classcover-api/pkg/errors"
	"github.com/classcover/classcover-api/pkg/storage"
)

type profileRepository interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	Update(ctx context.Context, profile *models.Profile) error
	List(ctx context.Context, filter models.ProfileFilter) ([]models.Profile, int, error)
	ListAvailableTeachers(ctx context.Context, from, until models.Date) ([]models.Profile, error)
}

type documentStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Delete(filename string) error
}

// UploadPolicy constrains qualification document uploads.
type UploadPolicy struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// TeacherListResult bundles a directory page with pagination metadata.
type TeacherListResult struct {
	Teachers   []models.Profile  `json:"teachers"`
	Pagination models.Pagination `json:"pagination"`
}

// ProfileService manages marketplace profiles, the teacher directory, and
// qualification documents.
type ProfileService struct {
	repo      profileRepository
	storage   documentStorage
	signer    *storage.SignedURLSigner
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	policy    UploadPolicy
}

// NewProfileService constructs a ProfileService.
func NewProfileService(repo profileRepository, docs documentStorage, signer *storage.SignedURLSigner, cache *CacheService, validate *validator.Validate, logger *zap.Logger, policy UploadPolicy) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if policy.MaxFileSizeBytes <= 0 {
		policy.MaxFileSizeBytes = 10 << 20
	}
	if len(policy.AllowedMIMEs) == 0 {
		policy.AllowedMIMEs = []string{"application/pdf"}
	}
	return &ProfileService{repo: repo, storage: docs, signer: signer, cache: cache, validator: validate, logger: logger, policy: policy}
}

const teacherListCachePattern = "teachers:list:*"

// Get fetches a profile by user ID.
func (s *ProfileService) Get(ctx context.Context, id string) (*models.Profile, error) {
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return profile, nil
}

// UpdateOwn applies edits to the caller's profile. Only fields relevant to
// the caller's role are written; the rest are left untouched.
func (s *ProfileService) UpdateOwn(ctx context.Context, actor *models.JWTClaims, req models.UpdateProfileRequest) (*models.Profile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	profile, err := s.Get(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	if req.FullName != nil {
		profile.FullName = req.FullName
	}
	if req.AvatarURL != nil {
		profile.AvatarURL = req.AvatarURL
	}

	switch profile.NormalizedRole() {
	case models.RoleTeacher:
		if req.PhoneNumber != nil {
			profile.PhoneNumber = req.PhoneNumber
		}
		if req.County != nil {
			profile.County = req.County
		}
		if req.TeachingCouncilNumber != nil {
			profile.TeachingCouncilNumber = req.TeachingCouncilNumber
		}
	case models.RolePrincipal:
		if req.SchoolName != nil {
			profile.SchoolName = req.SchoolName
		}
		if req.SchoolAddress != nil {
			profile.SchoolAddress = req.SchoolAddress
		}
	}

	if err := s.repo.Update(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}

	s.invalidateDirectory(ctx)
	return profile, nil
}

// ListTeachers returns a page of the teacher directory.
func (s *ProfileService) ListTeachers(ctx context.Context, filter models.ProfileFilter) (*TeacherListResult, error) {
	filter.Role = models.RoleTeacher

	key := teacherListCacheKey(filter)
	var cached TeacherListResult
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	result := &TeacherListResult{
		Teachers:   teachers,
		Pagination: models.Pagination{Page: page, PageSize: size, TotalCount: total},
	}
	_ = s.cache.Set(ctx, key, result, 0)
	return result, nil
}

// ListAvailableTeachers returns teachers free on every school day in the
// span, per their weekly pattern and overrides.
func (s *ProfileService) ListAvailableTeachers(ctx context.Context, from models.Date, until *models.Date) ([]models.Profile, error) {
	if from.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from date is required")
	}
	end := from
	if until != nil && !until.IsZero() {
		end = *until
	}
	if end.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "until must not precede from")
	}

	teachers, err := s.repo.ListAvailableTeachers(ctx, from, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available teachers")
	}
	return teachers, nil
}

// UploadQualifications stores a teacher's qualification document and records
// its path on the profile. The previous document, if any, is removed.
func (s *ProfileService) UploadQualifications(ctx context.Context, actor *models.JWTClaims, filename, contentType string, size int64, r io.Reader) (*models.Profile, error) {
	profile, err := s.Get(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if profile.NormalizedRole() != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers can upload qualification documents")
	}

	if size > s.policy.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.policy.MaxFileSizeBytes))
	}
	if !s.mimeAllowed(contentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("content type %s is not allowed", contentType))
	}

	ext := strings.ToLower(filepath.Ext(filename))
	relPath := fmt.Sprintf("qualifications/%s/%s%s", actor.UserID, uuid.NewString(), ext)
	stored, err := s.storage.SaveStream(relPath, io.LimitReader(r, s.policy.MaxFileSizeBytes+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}

	previous := profile.QualificationsURL
	profile.QualificationsURL = &stored
	if err := s.repo.Update(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}

	if previous != nil && *previous != "" && *previous != stored {
		if err := s.storage.Delete(*previous); err != nil {
			s.logger.Warn("failed to remove previous qualification document", zap.String("path", *previous), zap.Error(err))
		}
	}

	return profile, nil
}

// QualificationsDownloadToken issues a short-lived signed token for the
// teacher's stored document. Principals may fetch tokens for any teacher;
// teachers only for themselves.
func (s *ProfileService) QualificationsDownloadToken(ctx context.Context, actor *models.JWTClaims, teacherID string) (string, time.Time, error) {
	if actor.Role != models.RolePrincipal && actor.UserID != teacherID {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrForbidden, "cannot access another teacher's documents")
	}

	profile, err := s.Get(ctx, teacherID)
	if err != nil {
		return "", time.Time{}, err
	}
	if profile.QualificationsURL == nil || *profile.QualificationsURL == "" {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "no qualification document on file")
	}

	token, expiresAt, err := s.signer.Generate(teacherID, *profile.QualificationsURL)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}
	return token, expiresAt, nil
}

// ParseDownloadToken validates a signed token and returns the stored path.
func (s *ProfileService) ParseDownloadToken(token string) (string, error) {
	_, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired download token")
	}
	return relPath, nil
}

func (s *ProfileService) mimeAllowed(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	for _, allowed := range s.policy.AllowedMIMEs {
		if ct == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func (s *ProfileService) invalidateDirectory(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, teacherListCachePattern); err != nil {
		s.logger.Warn("failed to invalidate teacher directory cache", zap.Error(err))
	}
}

func teacherListCacheKey(filter models.ProfileFilter) string {
	return fmt.Sprintf("teachers:list:%s:%s:%d:%d", filter.County, filter.Search, filter.Page, filter.PageSize)
}
