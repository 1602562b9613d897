package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/classcover/classcover-api/internal/middleware"
	"github.com/classcover/classcover-api/internal/models"
	appErrors "github.com/classcover/classcover-api/pkg/errors"
)

// claimsFromContext extracts the authenticated user's claims placed on the
// context by the JWT middleware.
func claimsFromContext(c *gin.Context) (*models.JWTClaims, error) {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil, appErrors.ErrUnauthorized
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil, appErrors.ErrUnauthorized
	}
	return claims, nil
}
