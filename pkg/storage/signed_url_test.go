package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, expiresAt, err := signer.Generate("teacher-1", "qualifications/teacher-1/cert.pdf")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	ownerID, relPath, _, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", ownerID)
	assert.Equal(t, "qualifications/teacher-1/cert.pdf", relPath)
}

func TestSignedURLRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, _, err := signer.Generate("teacher-1", "qualifications/teacher-1/cert.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token + "x")
	assert.Error(t, err)

	other := NewSignedURLSigner("other-secret", time.Minute)
	_, _, _, err = other.Parse(token)
	assert.Error(t, err)
}

func TestSignedURLExpires(t *testing.T) {
	signer := NewSignedURLSigner("secret", -time.Minute)

	token, _, err := signer.Generate("teacher-1", "qualifications/teacher-1/cert.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token)
	assert.Error(t, err)
}
