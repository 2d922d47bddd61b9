package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Name() string { return s.name }

func (s stubChecker) Check(ctx context.Context) error { return s.err }

func TestCheckerRegistry_Check(t *testing.T) {
	registry := NewCheckerRegistry()
	registry.Register(stubChecker{name: "postgresql"})
	registry.Register(stubChecker{name: "redis", err: fmt.Errorf("connection refused")})

	h := registry.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, StatusHealthy, h.Checks["postgresql"].Status)
	assert.Equal(t, StatusUnhealthy, h.Checks["redis"].Status)
	assert.Equal(t, "connection refused", h.Checks["redis"].Message)
}

func TestCheckerRegistry_Handler(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus Status
	}{
		{name: "no checkers", wantCode: http.StatusOK, wantStatus: StatusHealthy},
		{
			name:       "all healthy",
			checkers:   []Checker{stubChecker{name: "mongodb"}},
			wantCode:   http.StatusOK,
			wantStatus: StatusHealthy,
		},
		{
			name:       "one down",
			checkers:   []Checker{stubChecker{name: "mongodb", err: fmt.Errorf("timeout")}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewCheckerRegistry()
			for _, c := range tt.checkers {
				registry.Register(c)
			}

			rec := httptest.NewRecorder()
			registry.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var body Health
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body.Status)
		})
	}
}
