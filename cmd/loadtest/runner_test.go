package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeService(t *testing.T, searches *atomic.Int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/documents", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total":3,"offset":0,"documents":[` +
			`{"index":0,"docname":"a","title":"Maps"},` +
			`{"index":1,"docname":"b","title":"  Emissions   Data "},` +
			`{"index":2,"docname":"c","title":"maps"}]}`))
	})
	mux.HandleFunc("GET /api/v1/search", func(w http.ResponseWriter, r *http.Request) {
		searches.Add(1)
		hits := 1
		if r.URL.Query().Get("q") == "nothing" {
			hits = 0
		}
		w.Header().Set("X-Index-Fingerprint", "abc")
		_ = json.NewEncoder(w).Encode(map[string]any{"total_hits": hits})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestTitleQueries(t *testing.T) {
	var searches atomic.Int64
	srv := fakeService(t, &searches)

	r := NewRunner(Config{BaseURL: srv.URL, Concurrency: 1}, srv.Client())
	queries, err := r.TitleQueries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"maps", "emissions data"}, queries)
}

func TestRun(t *testing.T) {
	var searches atomic.Int64
	srv := fakeService(t, &searches)

	r := NewRunner(Config{
		BaseURL:     srv.URL,
		Concurrency: 3,
		Duration:    200 * time.Millisecond,
		Limit:       5,
		Queries:     []string{"maps", "nothing"},
	}, srv.Client())
	stats, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Positive(t, stats.Total())
	assert.Equal(t, stats.Total(), stats.success.Load())
	assert.Positive(t, stats.zeroResults.Load())
	assert.LessOrEqual(t, stats.Total(), searches.Load())

	var out bytes.Buffer
	require.NoError(t, stats.Report(&out, 200*time.Millisecond))
	assert.Contains(t, out.String(), "200: ")
	assert.NotContains(t, out.String(), "Index changed")
}

func TestRunRateLimited(t *testing.T) {
	var searches atomic.Int64
	srv := fakeService(t, &searches)

	r := NewRunner(Config{
		BaseURL:     srv.URL,
		Concurrency: 4,
		Duration:    300 * time.Millisecond,
		RPS:         10,
		Queries:     []string{"maps"},
	}, srv.Client())
	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	// A burst of 10 plus a few refills.
	assert.LessOrEqual(t, stats.Total(), int64(15))
}

func TestReportWithoutRequests(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, NewStats().Report(&out, time.Second))
}

func TestStatsRecord(t *testing.T) {
	s := NewStats()
	s.Record(time.Millisecond, 200, "f1", 3, nil)
	s.Record(time.Millisecond, 200, "f2", 0, nil)
	s.Record(time.Millisecond, 503, "", 0, nil)
	s.Record(0, 0, "", 0, assert.AnError)

	assert.Equal(t, int64(4), s.Total())
	assert.Equal(t, int64(2), s.success.Load())
	assert.Equal(t, int64(2), s.failed.Load())
	assert.Equal(t, int64(1), s.zeroResults.Load())

	var out bytes.Buffer
	require.NoError(t, s.Report(&out, time.Second))
	assert.Contains(t, out.String(), "503: 1")
	assert.Contains(t, out.String(), "2 fingerprints served")
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Equal(t, time.Duration(1), percentile(sorted, 0))
	assert.Zero(t, percentile(nil, 50))
}

func TestReadQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.txt")
	require.NoError(t, os.WriteFile(path, []byte("# warmup\nmaps\n\n  plot world  \n"), 0o644))
	queries, err := readQueries(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"maps", "plot world"}, queries)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing\n"), 0o644))
	_, err = readQueries(empty)
	assert.Error(t, err)
}
