package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarium/api/internal/config"
	"librarium/api/internal/models"
	"librarium/api/internal/security"
)

const testAccessSecret = "middleware-access-secret"

func testRouter(extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.AppConfig{
		Security: config.SecurityConfig{JWTAccessSecret: testAccessSecret},
	}

	router := gin.New()
	chain := append([]gin.HandlerFunc{Auth(cfg)}, extra...)
	router.GET("/protected", append(chain, func(c *gin.Context) {
		claims, _ := CurrentClaims(c)
		c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID})
	})...)
	return router
}

func doRequest(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAuthMissingHeader(t *testing.T) {
	router := testRouter()

	rec := doRequest(router, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_token")
}

func TestAuthMalformedHeader(t *testing.T) {
	router := testRouter()

	rec := doRequest(router, "Token abcdef")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_token")
}

func TestAuthInvalidToken(t *testing.T) {
	router := testRouter()

	rec := doRequest(router, "Bearer not.a.token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_token")
}

func TestAuthWrongSecret(t *testing.T) {
	router := testRouter()

	token, err := security.GenerateAccessToken("some-other-secret", "user-1", "session-1", "user", time.Minute)
	require.NoError(t, err)

	rec := doRequest(router, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthValidTokenPopulatesContext(t *testing.T) {
	router := testRouter()

	token, err := security.GenerateAccessToken(testAccessSecret, "user-1", "session-1", "user", time.Minute)
	require.NoError(t, err)

	rec := doRequest(router, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "user-1")
}

func TestRequireRolesAdmitsMatchingRole(t *testing.T) {
	router := testRouter(RequireRoles(models.UserRoleAdmin))

	token, err := security.GenerateAccessToken(testAccessSecret, "admin-1", "session-1", "admin", time.Minute)
	require.NoError(t, err)

	rec := doRequest(router, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRolesRejectsOtherRole(t *testing.T) {
	router := testRouter(RequireRoles(models.UserRoleAdmin))

	token, err := security.GenerateAccessToken(testAccessSecret, "user-1", "session-1", "user", time.Minute)
	require.NoError(t, err)

	rec := doRequest(router, "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRolesRejectsUnknownRole(t *testing.T) {
	router := testRouter(RequireRoles(models.UserRoleAdmin, models.UserRoleUser))

	// A token minted with a role outside the closed enum never matches, even
	// against a permissive role list.
	token, err := security.GenerateAccessToken(testAccessSecret, "user-1", "session-1", "superuser", time.Minute)
	require.NoError(t, err)

	rec := doRequest(router, "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
