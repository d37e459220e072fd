package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/holder"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
)

func loadBuild(t *testing.T) *indexstore.Build {
	t.Helper()
	data, err := os.ReadFile("../../searchindex/testdata/searchindex.js")
	require.NoError(t, err)
	idx, err := searchindex.Parse(data)
	require.NoError(t, err)
	b := indexstore.NewBuild("cam-chem", idx, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	b.Location = "file:testdata/searchindex.js"
	return b
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, pkgredis.ErrMiss
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key := range s.data {
		if ok, _ := path.Match(pattern, key); ok {
			delete(s.data, key)
			n++
		}
	}
	return n, nil
}

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.SearchEvent
}

func (r *recordingTracker) Track(e analytics.SearchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type stubReloader struct {
	h   *holder.Holder
	b   *indexstore.Build
	err error
}

func (r *stubReloader) Reload(context.Context) (*holder.Snapshot, bool, error) {
	if r.err != nil {
		return r.h.Current(), false, r.err
	}
	if r.h.Current().Fingerprint() == r.b.Fingerprint {
		return r.h.Current(), false, nil
	}
	r.h.Swap(r.b)
	return r.h.Current(), true, nil
}

type fixture struct {
	mux     *http.ServeMux
	holder  *holder.Holder
	agg     *analytics.Aggregator
	tracker *recordingTracker
	metrics *metrics.Metrics
	cache   *cache.QueryCache
}

func newFixture(t *testing.T, opts ...handler.Option) *fixture {
	t.Helper()
	f := &fixture{
		holder:  holder.New(),
		agg:     analytics.NewAggregator(),
		tracker: &recordingTracker{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.cache = cache.New(&memStore{data: make(map[string][]byte)}, time.Minute)
	f.holder.Swap(loadBuild(t))

	cfg := config.Default().Search
	cfg.MaxResults = 5
	all := append([]handler.Option{
		handler.WithCache(f.cache),
		handler.WithAnalytics(f.agg, f.tracker),
		handler.WithMetrics(f.metrics),
		handler.WithTracing(true),
	}, opts...)
	h := handler.New(f.holder, executor.New(), cfg, all...)
	f.mux = http.NewServeMux()
	h.Register(f.mux)
	return f
}

func (f *fixture) do(t *testing.T, method, target string, out any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec
}

func TestSearch(t *testing.T) {
	f := newFixture(t)

	var res executor.SearchResult
	rec := f.do(t, http.MethodGet, "/api/v1/search?q=maps", &res)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, f.holder.Current().Fingerprint(), rec.Header().Get(handler.FingerprintHeader))
	assert.Equal(t, 3, res.TotalHits)
	require.Len(t, res.Results, 3)
	assert.Equal(t, "examples/maps", res.Results[0].DocName)

	// Second request is served from the cache.
	f.do(t, http.MethodGet, "/api/v1/search?q=maps", nil)
	stats := f.cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.SearchQueriesTotal.WithLabelValues("hit")))
	assert.Equal(t, 2, testutil.CollectAndCount(f.metrics.SearchLatency))

	agg := f.agg.Stats()
	assert.Equal(t, int64(2), agg.TotalSearches)
	assert.Equal(t, int64(1), agg.CacheHits)
	require.Len(t, f.tracker.events, 2)
	assert.Equal(t, analytics.EventSearch, f.tracker.events[0].Type)
	assert.False(t, f.tracker.events[0].CacheHit)
	assert.True(t, f.tracker.events[1].CacheHit)
}

func TestSearchZeroResult(t *testing.T) {
	f := newFixture(t)

	var res executor.SearchResult
	rec := f.do(t, http.MethodGet, "/api/v1/search?q=zzzznothing", &res)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, res.TotalHits)
	assert.Empty(t, res.Results)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SearchQueriesTotal.WithLabelValues("zero_result")))
	require.Len(t, f.tracker.events, 1)
	assert.Equal(t, analytics.EventZeroResult, f.tracker.events[0].Type)
	assert.Equal(t, int64(1), f.agg.Stats().ZeroResultCount)
}

func TestSearchLimit(t *testing.T) {
	f := newFixture(t)

	var res executor.SearchResult
	f.do(t, http.MethodGet, "/api/v1/search?q=maps&limit=1", &res)
	assert.Equal(t, 3, res.TotalHits)
	assert.Len(t, res.Results, 1)

	// Limits above the configured maximum are clamped.
	f.do(t, http.MethodGet, "/api/v1/search?q=python+OR+maps+OR+plot&limit=500", &res)
	assert.LessOrEqual(t, len(res.Results), 5)
}

func TestSearchBadRequests(t *testing.T) {
	f := newFixture(t)

	tests := map[string]string{
		"missing query":  "/api/v1/search",
		"blank query":    "/api/v1/search?q=%20%20",
		"bad limit":      "/api/v1/search?q=maps&limit=ten",
		"negative limit": "/api/v1/search?q=maps&limit=-1",
	}
	for name, target := range tests {
		t.Run(name, func(t *testing.T) {
			var body map[string]string
			rec := f.do(t, http.MethodGet, target, &body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestNoIndexLoaded(t *testing.T) {
	h := handler.New(holder.New(), executor.New(), config.Default().Search)
	mux := http.NewServeMux()
	h.Register(mux)

	for _, target := range []string{"/api/v1/search?q=maps", "/api/v1/index", "/api/v1/documents", "/api/v1/terms/map"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}
}

func TestTerm(t *testing.T) {
	f := newFixture(t)

	var res handler.TermResponse
	rec := f.do(t, http.MethodGet, "/api/v1/terms/map", &res)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "map", res.Term)
	assert.NotEmpty(t, res.Documents)
	for _, d := range res.Documents {
		assert.NotEmpty(t, d.Name)
	}

	f.do(t, http.MethodGet, "/api/v1/terms/zzzznothing", &res)
	assert.Empty(t, res.Documents)
	assert.Empty(t, res.TitleDocuments)
}

func TestDocuments(t *testing.T) {
	f := newFixture(t)

	var page struct {
		Total     int                    `json:"total"`
		Offset    int                    `json:"offset"`
		Documents []searchindex.Document `json:"documents"`
	}
	f.do(t, http.MethodGet, "/api/v1/documents", &page)
	assert.Equal(t, 12, page.Total)
	assert.Len(t, page.Documents, 12)

	f.do(t, http.MethodGet, "/api/v1/documents?offset=10&limit=5", &page)
	assert.Equal(t, 10, page.Offset)
	require.Len(t, page.Documents, 2)
	assert.Equal(t, "index", page.Documents[1].Name)

	rec := f.do(t, http.MethodGet, "/api/v1/documents?offset=-3", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var doc searchindex.Document
	rec = f.do(t, http.MethodGet, "/api/v1/documents/1", &doc)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "examples/curtains", doc.Name)
	assert.Equal(t, "examples/curtains.rst", doc.Filename)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/documents/12", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/documents/one", nil).Code)
}

func TestIndexInfo(t *testing.T) {
	f := newFixture(t)

	var info handler.IndexInfo
	rec := f.do(t, http.MethodGet, "/api/v1/index", &info)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cam-chem", info.Project)
	assert.Equal(t, f.holder.Current().Fingerprint(), info.Fingerprint)
	assert.Equal(t, 12, info.Stats.Documents)
	assert.Equal(t, 56, info.EnvVersion["sphinx"])
	assert.Equal(t, "file:testdata/searchindex.js", info.Location)
}

func TestReload(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		f := newFixture(t)
		assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/api/v1/index/reload", nil).Code)
	})

	t.Run("swaps a new build", func(t *testing.T) {
		idx := searchindex.New()
		idx.DocNames = []string{"index"}
		idx.Titles = []string{"Home"}
		next := indexstore.NewBuild("cam-chem", idx, time.Now())

		r := &stubReloader{b: next}
		f := newFixture(t, handler.WithReloader(r))
		r.h = f.holder

		var body struct {
			Changed bool              `json:"changed"`
			Index   handler.IndexInfo `json:"index"`
		}
		rec := f.do(t, http.MethodPost, "/api/v1/index/reload", &body)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, body.Changed)
		assert.Equal(t, next.Fingerprint, body.Index.Fingerprint)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IndexReloadsTotal.WithLabelValues("api", "ok")))

		f.do(t, http.MethodPost, "/api/v1/index/reload", &body)
		assert.False(t, body.Changed)
	})

	t.Run("failure keeps the served index", func(t *testing.T) {
		r := &stubReloader{err: fmt.Errorf("loading: %w", apperrors.ErrStaleIndex)}
		f := newFixture(t, handler.WithReloader(r))
		r.h = f.holder
		before := f.holder.Current().Fingerprint()

		rec := f.do(t, http.MethodPost, "/api/v1/index/reload", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, before, f.holder.Current().Fingerprint())
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IndexReloadsTotal.WithLabelValues("api", "error")))
	})

	t.Run("internal errors are not described", func(t *testing.T) {
		r := &stubReloader{err: errors.New("dial tcp 10.0.0.5:5432: refused")}
		f := newFixture(t, handler.WithReloader(r))
		r.h = f.holder

		var body map[string]string
		rec := f.do(t, http.MethodPost, "/api/v1/index/reload", &body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "internal error", body["error"])
	})
}

func TestCacheEndpoints(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/v1/search?q=maps", nil)
	f.do(t, http.MethodGet, "/api/v1/search?q=maps", nil)

	var stats cache.Stats
	f.do(t, http.MethodGet, "/api/v1/cache/stats", &stats)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)

	var body map[string]any
	rec := f.do(t, http.MethodPost, "/api/v1/cache/invalidate", &body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, body["keys_deleted"])

	t.Run("disabled", func(t *testing.T) {
		h := handler.New(f.holder, executor.New(), config.Default().Search)
		mux := http.NewServeMux()
		h.Register(mux)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
		assert.JSONEq(t, `{"status":"disabled"}`, rec.Body.String())

		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=maps", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAnalyticsRoute(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/v1/search?q=Maps", nil)
	f.do(t, http.MethodGet, "/api/v1/search?q=maps", nil)

	var stats analytics.AggregatedStats
	rec := f.do(t, http.MethodGet, "/api/v1/analytics", &stats)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), stats.TotalSearches)
	require.NotEmpty(t, stats.TopQueries)
	assert.Equal(t, "maps", stats.TopQueries[0].Query)
	assert.Equal(t, int64(2), stats.TopQueries[0].Count)
}
