// Package handler serves the search HTTP API over the index held by a
// holder.Holder.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/holder"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

// FingerprintHeader names the index a response was computed from.
const FingerprintHeader = "X-Index-Fingerprint"

// Reloader is satisfied by *holder.Reloader.
type Reloader interface {
	Reload(ctx context.Context) (*holder.Snapshot, bool, error)
}

// Tracker is satisfied by *analytics.Collector.
type Tracker interface {
	Track(event analytics.SearchEvent)
}

type Handler struct {
	holder     *holder.Holder
	executor   *executor.Executor
	cfg        config.SearchConfig
	cache      *cache.QueryCache
	reloader   Reloader
	aggregator *analytics.Aggregator
	tracker    Tracker
	metrics    *metrics.Metrics
	tracing    bool
	logger     *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

func WithCache(c *cache.QueryCache) Option {
	return func(h *Handler) { h.cache = c }
}

func WithReloader(r Reloader) Option {
	return func(h *Handler) { h.reloader = r }
}

// WithAnalytics records every search on agg and, when tracker is non-nil,
// forwards it for publishing.
func WithAnalytics(agg *analytics.Aggregator, tracker Tracker) Option {
	return func(h *Handler) {
		h.aggregator = agg
		h.tracker = tracker
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithTracing logs a span tree for every search at debug level.
func WithTracing(enabled bool) Option {
	return func(h *Handler) { h.tracing = enabled }
}

func New(h *holder.Holder, exec *executor.Executor, cfg config.SearchConfig, opts ...Option) *Handler {
	handler := &Handler{
		holder:   h,
		executor: exec,
		cfg:      cfg,
		logger:   slog.Default().With("component", "search-handler"),
	}
	for _, opt := range opts {
		opt(handler)
	}
	return handler
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/terms/{term}", h.Term)
	mux.HandleFunc("GET /api/v1/documents", h.Documents)
	mux.HandleFunc("GET /api/v1/documents/{index}", h.Document)
	mux.HandleFunc("GET /api/v1/index", h.Index)
	mux.HandleFunc("POST /api/v1/index/reload", h.Reload)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	if h.aggregator != nil {
		mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(h.aggregator).Stats)
	}
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}
	limit, err := h.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}

	var span *tracing.Span
	if h.tracing {
		ctx, span = tracing.StartSpan(ctx, "search", logger.RequestID(ctx))
		span.SetAttr("query", query)
		defer func() {
			span.End()
			span.Log(log)
		}()
	}

	plan := parser.Parse(query)
	idx := snap.Index()
	run := func(ctx context.Context) (*executor.SearchResult, error) {
		var result *executor.SearchResult
		err := resilience.WithTimeout(ctx, h.cfg.Timeout, "search", func(ctx context.Context) error {
			var err error
			result, err = h.executor.Execute(ctx, idx, plan, limit)
			return err
		})
		return result, err
	}

	var result *executor.SearchResult
	cacheHit := false
	cacheStatus := "disabled"
	if h.cache != nil && !plan.Empty() {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, snap.Fingerprint(), plan, limit, run)
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
	} else {
		result, err = run(ctx)
	}
	latency := time.Since(start)

	if err != nil {
		log.Error("search execution failed", "query", query, "error", err)
		h.observe("error", cacheStatus, latency, 0)
		h.writeError(w, err)
		return
	}

	resultType := "hit"
	if result.TotalHits == 0 {
		resultType = "zero_result"
	}
	h.observe(resultType, cacheStatus, latency, len(result.Results))
	if span != nil {
		span.SetAttr("total_hits", result.TotalHits)
		span.SetAttr("cache", cacheStatus)
	}

	log.Info("search completed",
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.track(ctx, analytics.SearchEvent{
		Type:        analytics.EventSearch,
		Query:       query,
		Terms:       plan.Terms,
		TotalHits:   result.TotalHits,
		Returned:    len(result.Results),
		LatencyMs:   latency.Milliseconds(),
		CacheHit:    cacheHit,
		Fingerprint: snap.Fingerprint(),
	})

	w.Header().Set(FingerprintHeader, snap.Fingerprint())
	h.writeJSON(w, http.StatusOK, result)
}

// TermResponse is the raw content of both term tables for one key.
type TermResponse struct {
	Term           string                 `json:"term"`
	Documents      []searchindex.Document `json:"documents"`
	TitleDocuments []searchindex.Document `json:"title_documents"`
}

// Term looks up a term exactly as stored in the index, without stemming.
func (h *Handler) Term(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}
	idx := snap.Index()
	term := r.PathValue("term")
	w.Header().Set(FingerprintHeader, snap.Fingerprint())
	h.writeJSON(w, http.StatusOK, TermResponse{
		Term:           term,
		Documents:      resolve(idx, idx.Lookup(term)),
		TitleDocuments: resolve(idx, idx.LookupTitle(term)),
	})
}

func resolve(idx *searchindex.SearchIndex, docs []int) []searchindex.Document {
	out := make([]searchindex.Document, 0, len(docs))
	for _, i := range docs {
		if doc, ok := idx.Doc(i); ok {
			out = append(out, doc)
		}
	}
	return out
}

// Documents lists the document table, paged by offset and limit.
func (h *Handler) Documents(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}
	docs := snap.Index().Documents()
	total := len(docs)

	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "offset must be a non-negative integer"))
			return
		}
		offset = min(n, total)
	}
	end := total
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer"))
			return
		}
		end = min(offset+n, total)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"total":     total,
		"offset":    offset,
		"documents": docs[offset:end],
	})
}

// Document returns one row of the document table.
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}
	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "document index %q is not an integer", r.PathValue("index")))
		return
	}
	doc, ok := snap.Index().Doc(i)
	if !ok {
		h.writeError(w, apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "no document %d in an index of %d", i, snap.Index().Len()))
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// IndexInfo describes the served index.
type IndexInfo struct {
	Project     string            `json:"project"`
	Fingerprint string            `json:"fingerprint"`
	Location    string            `json:"location"`
	BuiltAt     time.Time         `json:"built_at"`
	LoadedAt    time.Time         `json:"loaded_at"`
	Stats       searchindex.Stats `json:"stats"`
	EnvVersion  map[string]int    `json:"envversion"`
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, info(snap))
}

func info(snap *holder.Snapshot) IndexInfo {
	b := snap.Build
	return IndexInfo{
		Project:     b.Project,
		Fingerprint: b.Fingerprint,
		Location:    b.Location,
		BuiltAt:     b.BuiltAt,
		LoadedAt:    snap.LoadedAt,
		Stats:       b.Index.Stats(),
		EnvVersion:  b.Index.EnvVersion,
	}
}

// Reload loads the newest build from the configured store. On failure the
// previous index keeps being served.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		h.writeError(w, apperrors.New(apperrors.ErrIndexUnavailable, http.StatusServiceUnavailable, "reloading is not configured"))
		return
	}
	snap, changed, err := h.reloader.Reload(r.Context())
	if h.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		h.metrics.IndexReloadsTotal.WithLabelValues("api", status).Inc()
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("index reload failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"changed": changed,
		"index":   info(snap),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, apperrors.New(apperrors.ErrIndexUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) parseLimit(v string) (int, error) {
	if v == "" {
		return h.cfg.DefaultLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer")
	}
	return min(n, h.cfg.MaxResults), nil
}

func (h *Handler) snapshot(w http.ResponseWriter) (*holder.Snapshot, bool) {
	snap := h.holder.Current()
	if snap.Index() == nil {
		h.writeError(w, apperrors.New(apperrors.ErrIndexUnavailable, http.StatusServiceUnavailable, "no search index loaded"))
		return nil, false
	}
	return snap, true
}

func (h *Handler) observe(resultType, cacheStatus string, latency time.Duration, results int) {
	if h.metrics == nil {
		return
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	if resultType != "error" {
		h.metrics.SearchResultsCount.Observe(float64(results))
	}
}

func (h *Handler) track(ctx context.Context, event analytics.SearchEvent) {
	event.Timestamp = time.Now().UTC()
	event.RequestID = logger.RequestID(ctx)
	if event.TotalHits == 0 {
		event.Type = analytics.EventZeroResult
	}
	if h.aggregator != nil {
		h.aggregator.Record(event)
	}
	if h.tracker != nil {
		h.tracker.Track(event)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError renders err as {"error": msg}. Internal failures are not
// described to the client.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		msg = appErr.Message
	case status == http.StatusInternalServerError:
		msg = "internal error"
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
