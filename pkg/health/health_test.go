package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLivenessHandler(t *testing.T) {
	h := NewHandler()

	rec := httptest.NewRecorder()
	h.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusUp, resp.Status)
}

func TestReadinessHandler_AllUp(t *testing.T) {
	h := NewHandler()
	h.Register("postgres", func(ctx context.Context) error { return nil })

	rec := httptest.NewRecorder()
	h.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusUp, resp.Checks["postgres"].Status)
}

func TestReadinessHandler_OneDown(t *testing.T) {
	h := NewHandler()
	h.Register("postgres", func(ctx context.Context) error { return nil })
	h.Register("storage", func(ctx context.Context) error { return errors.New("unreachable") })

	rec := httptest.NewRecorder()
	h.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusDown, resp.Status)
	assert.Equal(t, "unreachable", resp.Checks["storage"].Error)
}
