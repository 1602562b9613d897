package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classcover/classcover-api/internal/models"
)

// performGuarded runs a request through RequireRoles(principal) with the
// given claims injected the way the JWT middleware would.
func performGuarded(claims *models.JWTClaims) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/guarded", func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
	}, RequireRoles(models.RolePrincipal), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/guarded", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRequireRolesAllowsMatchingRole(t *testing.T) {
	w := performGuarded(&models.JWTClaims{UserID: "p1", Role: models.RolePrincipal})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRolesNormalizesClaimRole(t *testing.T) {
	w := performGuarded(&models.JWTClaims{UserID: "p1", Role: " Principal "})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRolesRejectsWrongRole(t *testing.T) {
	w := performGuarded(&models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRolesRejectsMissingClaims(t *testing.T) {
	w := performGuarded(nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
