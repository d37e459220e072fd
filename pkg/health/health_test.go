package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func up(context.Context) health.ComponentHealth {
	return health.ComponentHealth{Status: health.StatusUp}
}

func TestRunAggregates(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]health.Check
		want   health.Status
	}{
		{"all up", map[string]health.Check{"index": up, "redis": health.PingCheck(pinger{}, false)}, health.StatusUp},
		{"optional down", map[string]health.Check{"index": up, "redis": health.PingCheck(pinger{errors.New("refused")}, false)}, health.StatusDegraded},
		{"required down", map[string]health.Check{"index": up, "postgres": health.PingCheck(pinger{errors.New("refused")}, true)}, health.StatusDown},
		{"no checks", nil, health.StatusUp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := health.NewChecker()
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			report := c.Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Components, len(tt.checks))
		})
	}
}

func TestReadyHandler(t *testing.T) {
	c := health.NewChecker()
	c.Register("redis", health.PingCheck(pinger{errors.New("refused")}, false))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report health.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, health.StatusDegraded, report.Status)
	assert.Equal(t, "refused", report.Components["redis"].Message)

	c.Register("index", func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusDown, Message: "no index loaded"}
	})
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	health.NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}
