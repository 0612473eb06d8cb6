package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func browserRouter(hsts bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(browserMiddleware(hsts)...)
	r.GET("/v1/export", func(c *gin.Context) {
		c.Header("Content-Disposition", `attachment; filename="x.csv"`)
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestBrowserMiddleware_Preflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "http://api.kampus.test/v1/export", nil)
	req.Header.Set("Origin", "http://app.kampus.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	w := httptest.NewRecorder()
	browserRouter(false).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "GET")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
}

func TestBrowserMiddleware_ExposesExportHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://api.kampus.test/v1/export", nil)
	req.Header.Set("Origin", "http://app.kampus.test")
	w := httptest.NewRecorder()
	browserRouter(true).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))

	w = httptest.NewRecorder()
	browserRouter(false).ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}
