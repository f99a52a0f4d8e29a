package auth

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTokenFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "api-tokens")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newAuthedRouter(t *testing.T) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)

	v, err := NewValidator()
	require.NoError(t, err)

	router := gin.New()
	router.Use(v.Middleware())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return router
}

func TestValidator_NoTokenFileIsPermissive(t *testing.T) {
	t.Setenv("API_TOKENS_FILE", "")
	router := newAuthedRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValidator_BearerToken(t *testing.T) {
	t.Setenv("API_TOKENS_FILE", writeTokenFile(t, "secret-token\n"))
	router := newAuthedRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValidator_XAPITokenHeader(t *testing.T) {
	t.Setenv("API_TOKENS_FILE", writeTokenFile(t, "one\ntwo\n"))
	router := newAuthedRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-API-Token", "two")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValidator_RejectsMissingToken(t *testing.T) {
	t.Setenv("API_TOKENS_FILE", writeTokenFile(t, "secret-token\n"))
	router := newAuthedRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestValidator_RejectsWrongToken(t *testing.T) {
	t.Setenv("API_TOKENS_FILE", writeTokenFile(t, "secret-token\n"))
	router := newAuthedRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestNewValidator_EmptyTokenFile(t *testing.T) {
	t.Setenv("API_TOKENS_FILE", writeTokenFile(t, "\n\n"))

	_, err := NewValidator()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contains no tokens")
}

func TestNewValidator_MissingTokenFile(t *testing.T) {
	t.Setenv("API_TOKENS_FILE", filepath.Join(t.TempDir(), "absent"))

	_, err := NewValidator()
	require.Error(t, err)
}
