package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *Router, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.Engine.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	r := NewRouter(nil)

	w := serve(r, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = serve(r, http.MethodHead, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyz(t *testing.T) {
	ok := func(context.Context) error { return nil }

	r := NewRouter(map[string]ReadinessCheck{"postgres": ok})
	w := serve(r, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, w.Code)

	r = NewRouter(map[string]ReadinessCheck{
		"postgres": ok,
		"mongo":    func(context.Context) error { return errors.New("no reachable servers") },
	})
	w = serve(r, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"dependency":"mongo"`)
	assert.Contains(t, w.Body.String(), "no reachable servers")
}

func TestMetrics(t *testing.T) {
	w := serve(NewRouter(nil), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
