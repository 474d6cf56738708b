package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("down") }

func TestChecker_Readiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		setup  func(c *Checker)
		want   Status
		status int
	}{
		{
			name:   "no checks",
			setup:  func(*Checker) {},
			want:   StatusHealthy,
			status: http.StatusOK,
		},
		{
			name: "all passing",
			setup: func(c *Checker) {
				c.Register("a", ok, Critical())
				c.Register("b", ok)
			},
			want:   StatusHealthy,
			status: http.StatusOK,
		},
		{
			name: "non-critical failure degrades",
			setup: func(c *Checker) {
				c.Register("a", ok, Critical())
				c.Register("b", failing)
			},
			want:   StatusDegraded,
			status: http.StatusOK,
		},
		{
			name: "critical failure",
			setup: func(c *Checker) {
				c.Register("a", failing, Critical())
				c.Register("b", failing)
			},
			want:   StatusUnhealthy,
			status: http.StatusServiceUnavailable,
		},
		{
			name: "draining",
			setup: func(c *Checker) {
				c.Register("a", ok)
				c.SetDraining(true)
			},
			want:   StatusDraining,
			status: http.StatusServiceUnavailable,
		},
		{
			name: "unregistered",
			setup: func(c *Checker) {
				c.Register("a", failing, Critical())
				c.Unregister("a")
			},
			want:   StatusHealthy,
			status: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewChecker("v1")
			tt.setup(c)

			rec := httptest.NewRecorder()
			c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.status, rec.Code)

			var resp ReadinessResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Status)
		})
	}
}

func TestChecker_CheckTimeout(t *testing.T) {
	t.Parallel()

	c := NewChecker("v1", WithTimeout(10*time.Millisecond))
	c.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, Critical())

	resp := c.Readiness(context.Background())
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Contains(t, resp.Checks["slow"].Error, "deadline exceeded")
}

func TestChecker_HealthAndLiveness(t *testing.T) {
	t.Parallel()

	c := NewChecker("v1.2.3")

	rec := httptest.NewRecorder()
	c.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.2.3", resp.Version)

	rec = httptest.NewRecorder()
	c.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
