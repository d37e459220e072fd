package cache_test

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	fail error
	gets atomic.Int64
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.gets.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	v, ok := s.data[key]
	if !ok {
		return nil, pkgredis.ErrMiss
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
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

func result(query string) *executor.SearchResult {
	return &executor.SearchResult{
		Query:     query,
		TotalHits: 1,
		Results:   []ranker.Result{{DocName: "index", Title: "Welcome", Score: 15, MatchedTerms: 1}},
	}
}

func TestGetOrCompute(t *testing.T) {
	store := newMemStore()
	c := cache.New(store, time.Minute)
	ctx := context.Background()
	plan := parser.Parse("map plot")

	var calls int
	compute := func(context.Context) (*executor.SearchResult, error) {
		calls++
		return result("map plot"), nil
	}

	got, hit, err := c.GetOrCompute(ctx, "fp1", plan, 10, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "index", got.Results[0].DocName)

	// Same plan in a different spelling hits the cache.
	got, hit, err = c.GetOrCompute(ctx, "fp1", parser.Parse("  plot   map "), 10, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 15, got.Results[0].Score)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "  plot   map ", got.Query)

	// A new index fingerprint or a new limit is a different key.
	_, hit, _ = c.GetOrCompute(ctx, "fp2", plan, 10, compute)
	assert.False(t, hit)
	_, hit, _ = c.GetOrCompute(ctx, "fp1", plan, 5, compute)
	assert.False(t, hit)
	assert.Equal(t, 3, calls)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(3), stats.Misses)
	assert.Equal(t, int64(4), stats.Total)
	assert.InDelta(t, 0.25, stats.HitRate, 1e-9)
	assert.Equal(t, "closed", stats.Circuit)
}

func TestHitKeepsQueryText(t *testing.T) {
	c := cache.New(newMemStore(), time.Minute)
	ctx := context.Background()
	compute := func(context.Context) (*executor.SearchResult, error) {
		return result("maps"), nil
	}

	got, hit, err := c.GetOrCompute(ctx, "fp", parser.Parse("maps"), 10, compute)
	require.NoError(t, err)
	require.False(t, hit)
	assert.Equal(t, "maps", got.Query)

	got, hit, err = c.GetOrCompute(ctx, "fp", parser.Parse("Maps"), 10, compute)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "Maps", got.Query)
}

func TestComputeErrorIsNotCached(t *testing.T) {
	store := newMemStore()
	c := cache.New(store, time.Minute)
	plan := parser.Parse("map")
	boom := errors.New("boom")

	_, _, err := c.GetOrCompute(context.Background(), "fp", plan, 10, func(context.Context) (*executor.SearchResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, store.data)
}

func TestConcurrentMissesComputeOnce(t *testing.T) {
	store := newMemStore()
	c := cache.New(store, time.Minute)
	plan := parser.Parse("projection")

	var calls atomic.Int64
	release := make(chan struct{})
	compute := func(context.Context) (*executor.SearchResult, error) {
		calls.Add(1)
		<-release
		return result("projection"), nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), "fp", plan, 10, compute)
			assert.NoError(t, err)
		}()
	}
	// Eight misses plus the re-check made by the one running computation.
	require.Eventually(t, func() bool { return store.gets.Load() >= 9 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
}

func TestStoreFailuresOpenCircuit(t *testing.T) {
	store := newMemStore()
	store.fail = errors.New("connection refused")
	breaker := resilience.NewCircuitBreaker("test-cache", resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
		IsFailure:        func(err error) bool { return !pkgredis.IsMiss(err) },
	})
	c := cache.New(store, time.Minute, cache.WithBreaker(breaker))
	plan := parser.Parse("map")

	for range 3 {
		_, ok := c.Get(context.Background(), "fp", plan, 10)
		assert.False(t, ok)
	}
	assert.Equal(t, resilience.StateOpen, breaker.GetState())
	// Two store calls tripped the breaker; the third never reached Redis.
	assert.Equal(t, int64(2), store.gets.Load())

	got, hit, err := c.GetOrCompute(context.Background(), "fp", plan, 10, func(context.Context) (*executor.SearchResult, error) {
		return result("map"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "map", got.Query)
}

func TestMissesDoNotTripCircuit(t *testing.T) {
	store := newMemStore()
	c := cache.New(store, time.Minute)
	for range 20 {
		_, ok := c.Get(context.Background(), "fp", parser.Parse("absent"), 10)
		assert.False(t, ok)
	}
	assert.Equal(t, "closed", c.Stats().Circuit)
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	store.data["unrelated"] = []byte("x")
	c := cache.New(store, time.Minute)
	ctx := context.Background()

	for _, q := range []string{"map", "plot", "grid"} {
		c.Set(ctx, "fp", parser.Parse(q), 10, result(q))
	}
	deleted, err := c.Invalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	assert.Len(t, store.data, 1)

	_, ok := c.Get(ctx, "fp", parser.Parse("map"), 10)
	assert.False(t, ok)
}

func TestKey(t *testing.T) {
	a := cache.Key("abc", parser.Parse("Map plot"), 10)
	b := cache.Key("abc", parser.Parse("plot map"), 10)
	assert.Equal(t, a, b)
	assert.Regexp(t, `^docsearch:search:abc:[0-9a-f]{32}$`, a)
	assert.NotEqual(t, a, cache.Key("abc", parser.Parse("plot OR map"), 10))
	assert.NotEqual(t, a, cache.Key("abc", parser.Parse("plot -map"), 10))
}
