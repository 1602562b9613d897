package service

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classcover/classcover-api/internal/models"
	appErrors "github.com/classcover/classcover-api/pkg/errors"
	"github.com/classcover/classcover-api/pkg/storage"
)

type mockProfileRepo struct {
	profiles  map[string]*models.Profile
	available []models.Profile
}

func (m *mockProfileRepo) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	if profile, ok := m.profiles[id]; ok {
		cp := *profile
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockProfileRepo) Update(ctx context.Context, profile *models.Profile) error {
	cp := *profile
	m.profiles[profile.ID] = &cp
	return nil
}

func (m *mockProfileRepo) List(ctx context.Context, filter models.ProfileFilter) ([]models.Profile, int, error) {
	var out []models.Profile
	for _, profile := range m.profiles {
		if filter.Role != "" && profile.NormalizedRole() != filter.Role {
			continue
		}
		out = append(out, *profile)
	}
	return out, len(out), nil
}

func (m *mockProfileRepo) ListAvailableTeachers(ctx context.Context, from, until models.Date) ([]models.Profile, error) {
	return m.available, nil
}

type mockDocStorage struct {
	files   map[string][]byte
	deleted []string
}

func (m *mockDocStorage) SaveStream(filename string, r io.Reader) (string, error) {
	if m.files == nil {
		m.files = map[string][]byte{}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.files[filename] = data
	return filename, nil
}

func (m *mockDocStorage) Delete(filename string) error {
	m.deleted = append(m.deleted, filename)
	delete(m.files, filename)
	return nil
}

func newProfileServiceForTest(repo *mockProfileRepo, docs *mockDocStorage) *ProfileService {
	signer := storage.NewSignedURLSigner("test-secret", 0)
	return NewProfileService(repo, docs, signer, nil, validator.New(), zap.NewNop(), UploadPolicy{
		MaxFileSizeBytes: 1024,
		AllowedMIMEs:     []string{"application/pdf"},
	})
}

func TestProfileServiceUpdateOwnTeacherFields(t *testing.T) {
	repo := &mockProfileRepo{profiles: map[string]*models.Profile{
		"t1": {ID: "t1", Email: "t1@example.com", Role: "Teacher "},
	}}
	svc := newProfileServiceForTest(repo, &mockDocStorage{})

	county := "Cork"
	school := "should be ignored"
	updated, err := svc.UpdateOwn(context.Background(), teacherClaims("t1"), models.UpdateProfileRequest{
		County:     &county,
		SchoolName: &school,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.County)
	assert.Equal(t, "Cork", *updated.County)
	// Principal-only fields are not writable from a teacher profile.
	assert.Nil(t, updated.SchoolName)
}

func TestProfileServiceUpdateOwnPrincipalFields(t *testing.T) {
	repo := &mockProfileRepo{profiles: map[string]*models.Profile{
		"p1": {ID: "p1", Email: "p1@example.com", Role: "principal"},
	}}
	svc := newProfileServiceForTest(repo, &mockDocStorage{})

	school := "St. Mary's NS"
	county := "Cork"
	updated, err := svc.UpdateOwn(context.Background(), principalClaims("p1"), models.UpdateProfileRequest{
		SchoolName: &school,
		County:     &county,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.SchoolName)
	assert.Equal(t, "St. Mary's NS", *updated.SchoolName)
	assert.Nil(t, updated.County)
}

func TestProfileServiceUploadQualifications(t *testing.T) {
	repo := &mockProfileRepo{profiles: map[string]*models.Profile{
		"t1": {ID: "t1", Email: "t1@example.com", Role: "teacher"},
	}}
	docs := &mockDocStorage{}
	svc := newProfileServiceForTest(repo, docs)

	profile, err := svc.UploadQualifications(context.Background(), teacherClaims("t1"), "cert.pdf", "application/pdf", 100, strings.NewReader("pdf-bytes"))
	require.NoError(t, err)
	require.NotNil(t, profile.QualificationsURL)
	assert.Contains(t, *profile.QualificationsURL, "qualifications/t1/")
	assert.Len(t, docs.files, 1)
}

func TestProfileServiceUploadReplacesPrevious(t *testing.T) {
	previous := "qualifications/t1/old.pdf"
	repo := &mockProfileRepo{profiles: map[string]*models.Profile{
		"t1": {ID: "t1", Email: "t1@example.com", Role: "teacher", QualificationsURL: &previous},
	}}
	docs := &mockDocStorage{files: map[string][]byte{previous: []byte("old")}}
	svc := newProfileServiceForTest(repo, docs)

	_, err := svc.UploadQualifications(context.Background(), teacherClaims("t1"), "cert.pdf", "application/pdf", 100, strings.NewReader("new"))
	require.NoError(t, err)
	assert.Equal(t, []string{previous}, docs.deleted)
}

func TestProfileServiceUploadRejectsMIME(t *testing.T) {
	repo := &mockProfileRepo{profiles: map[string]*models.Profile{
		"t1": {ID: "t1", Email: "t1@example.com", Role: "teacher"},
	}}
	svc := newProfileServiceForTest(repo, &mockDocStorage{})

	_, err := svc.UploadQualifications(context.Background(), teacherClaims("t1"), "evil.exe", "application/octet-stream", 100, strings.NewReader("x"))
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}

func TestProfileServiceUploadRejectsOversize(t *testing.T) {
	repo := &mockProfileRepo{profiles: map[string]*models.Profile{
		"t1": {ID: "t1", Email: "t1@example.com", Role: "teacher"},
	}}
	svc := newProfileServiceForTest(repo, &mockDocStorage{})

	_, err := svc.UploadQualifications(context.Background(), teacherClaims("t1"), "cert.pdf", "application/pdf", 4096, strings.NewReader("x"))
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}

func TestProfileServiceUploadForbiddenForPrincipal(t *testing.T) {
	repo := &mockProfileRepo{profiles: map[string]*models.Profile{
		"p1": {ID: "p1", Email: "p1@example.com", Role: "principal"},
	}}
	svc := newProfileServiceForTest(repo, &mockDocStorage{})

	_, err := svc.UploadQualifications(context.Background(), principalClaims("p1"), "cert.pdf", "application/pdf", 100, strings.NewReader("x"))
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}

func TestProfileServiceDownloadTokenRoundTrip(t *testing.T) {
	path := "qualifications/t1/cert.pdf"
	repo := &mockProfileRepo{profiles: map[string]*models.Profile{
		"t1": {ID: "t1", Email: "t1@example.com", Role: "teacher", QualificationsURL: &path},
	}}
	svc := newProfileServiceForTest(repo, &mockDocStorage{})

	token, _, err := svc.QualificationsDownloadToken(context.Background(), principalClaims("p1"), "t1")
	require.NoError(t, err)

	relPath, err := svc.ParseDownloadToken(token)
	require.NoError(t, err)
	assert.Equal(t, path, relPath)
}

func TestProfileServiceDownloadTokenForbiddenForOtherTeacher(t *testing.T) {
	path := "qualifications/t1/cert.pdf"
	repo := &mockProfileRepo{profiles: map[string]*models.Profile{
		"t1": {ID: "t1", Email: "t1@example.com", Role: "teacher", QualificationsURL: &path},
	}}
	svc := newProfileServiceForTest(repo, &mockDocStorage{})

	_, _, err := svc.QualificationsDownloadToken(context.Background(), teacherClaims("t2"), "t1")
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}
