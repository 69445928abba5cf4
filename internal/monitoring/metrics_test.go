package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(m *Monitor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(m.MetricsMiddleware())
	r.GET("/health", m.HealthHandler())
	r.GET("/ready", m.ReadinessHandler())
	r.GET("/live", m.LivenessHandler())
	r.GET("/metrics", m.MetricsHandler())
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusTeapot) })
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestHealthAndReadiness(t *testing.T) {
	m := New()
	var dbErr error
	m.RegisterHealthCheck("database", func(context.Context) error { return dbErr })
	m.RegisterHealthCheck("redis", func(context.Context) error { return nil })
	r := setupRouter(m)

	assert.Equal(t, http.StatusOK, get(r, "/health").Code)
	assert.Equal(t, http.StatusOK, get(r, "/ready").Code)

	dbErr = errors.New("connection refused")

	w := get(r, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Status string        `json:"status"`
		Checks []HealthCheck `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	require.Len(t, body.Checks, 2)
	assert.Equal(t, "database", body.Checks[0].Name)
	assert.Equal(t, "connection refused", body.Checks[0].Message)

	w = get(r, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"unavailable"`)

	assert.Equal(t, http.StatusOK, get(r, "/live").Code)
}

func TestMetricsCountRequests(t *testing.T) {
	m := New()
	m.RegisterStats("queues", func(context.Context) any { return map[string]int{"mail": 2} })
	r := setupRouter(m)

	get(r, "/live")
	get(r, "/boom")

	metrics := m.GetMetrics()
	assert.Equal(t, int64(2), metrics.RequestCount)
	assert.Equal(t, int64(1), metrics.ErrorCount)
	assert.Equal(t, int64(1), metrics.Endpoints["GET /boom"])
	assert.Zero(t, metrics.ActiveRequests)

	w := get(r, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"queues":{"mail":2}`)
}
