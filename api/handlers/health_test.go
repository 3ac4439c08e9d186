package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticCheck struct {
	name string
	err  error
}

func (c staticCheck) Name() string                { return c.name }
func (c staticCheck) Check(context.Context) error { return c.err }

func TestLiveness(t *testing.T) {
	h := NewHealthHandler("1.2.3", zap.NewNop())

	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "voiceflow", status.Service)
	assert.Equal(t, "1.2.3", status.Version)
}

func TestReadinessAllPass(t *testing.T) {
	h := NewHealthHandler("dev", zap.NewNop())
	h.RegisterCheck(staticCheck{name: "database"})
	h.RegisterCheck(staticCheck{name: "redis"})

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "pass", status.Checks["database"].Status)
	assert.Equal(t, "pass", status.Checks["redis"].Status)
}

func TestReadinessDegraded(t *testing.T) {
	h := NewHealthHandler("dev", zap.NewNop())
	h.RegisterCheck(staticCheck{name: "database"})
	h.RegisterCheck(staticCheck{name: "redis", err: errors.New("connection refused")})

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "fail", status.Checks["redis"].Status)
	assert.Contains(t, status.Checks["redis"].Message, "connection refused")
}
