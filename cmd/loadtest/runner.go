package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const fingerprintHeader = "X-Index-Fingerprint"

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	// RPS caps the request rate across all workers; 0 means unlimited.
	RPS     float64
	Limit   int
	Queries []string
}

// Stats collects the outcome of every request. It is safe for concurrent
// use.
type Stats struct {
	total       atomic.Int64
	success     atomic.Int64
	failed      atomic.Int64
	zeroResults atomic.Int64

	mu           sync.Mutex
	latencies    []time.Duration
	statusCodes  map[int]int64
	fingerprints map[string]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:    make([]time.Duration, 0, 100000),
		statusCodes:  make(map[int]int64),
		fingerprints: make(map[string]int64),
	}
}

// Record notes one request. A transport error is recorded with status 0.
func (s *Stats) Record(d time.Duration, status int, fingerprint string, hits int, err error) {
	s.total.Add(1)
	if err != nil {
		s.failed.Add(1)
		return
	}
	if status >= 200 && status < 300 {
		s.success.Add(1)
		if hits == 0 {
			s.zeroResults.Add(1)
		}
	} else {
		s.failed.Add(1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = append(s.latencies, d)
	s.statusCodes[status]++
	if fingerprint != "" {
		s.fingerprints[fingerprint]++
	}
}

// Total returns the number of requests recorded.
func (s *Stats) Total() int64 {
	return s.total.Load()
}

// Runner drives concurrent searches against one service.
type Runner struct {
	cfg    Config
	client *http.Client
}

// NewRunner returns a Runner. A nil client gets a pooled client sized for
// cfg.Concurrency.
func NewRunner(cfg Config, client *http.Client) *Runner {
	if client == nil {
		client = &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.Concurrency * 2,
				MaxIdleConnsPerHost: cfg.Concurrency * 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Runner{cfg: cfg, client: client}
}

// TitleQueries builds one query per document title served by the target,
// so the load hits terms that exist in the index.
func (r *Runner) TitleQueries(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+"/api/v1/documents", nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing documents: status %d", resp.StatusCode)
	}

	var page struct {
		Documents []struct {
			Title string `json:"title"`
		} `json:"documents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding document list: %w", err)
	}
	seen := make(map[string]struct{})
	var queries []string
	for _, d := range page.Documents {
		q := strings.ToLower(strings.Join(strings.Fields(d.Title), " "))
		if q == "" {
			continue
		}
		if _, dup := seen[q]; !dup {
			seen[q] = struct{}{}
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		return nil, errors.New("the served index has no titled documents")
	}
	return queries, nil
}

// Run searches until cfg.Duration elapses or ctx is cancelled.
func (r *Runner) Run(ctx context.Context) (*Stats, error) {
	if len(r.cfg.Queries) == 0 {
		return nil, errors.New("no queries to send")
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Inf, 0)
	if r.cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.cfg.RPS), max(1, int(r.cfg.RPS)))
	}

	stats := NewStats()
	g, ctx := errgroup.WithContext(ctx)
	for w := range max(1, r.cfg.Concurrency) {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
				r.search(ctx, stats, r.cfg.Queries[i%len(r.cfg.Queries)])
			}
			return nil
		})
	}
	err := g.Wait()
	return stats, err
}

func (r *Runner) search(ctx context.Context, stats *Stats, query string) {
	target := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d", r.cfg.BaseURL, url.QueryEscape(query), max(1, r.cfg.Limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		stats.Record(0, 0, "", 0, err)
		return
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		// Requests cut off by the end of the run are not failures.
		if ctx.Err() == nil {
			stats.Record(time.Since(start), 0, "", 0, err)
		}
		return
	}
	defer resp.Body.Close()

	var body struct {
		TotalHits int `json:"total_hits"`
	}
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			if ctx.Err() != nil {
				return
			}
			stats.Record(time.Since(start), resp.StatusCode, "", 0, err)
			return
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	stats.Record(time.Since(start), resp.StatusCode, resp.Header.Get(fingerprintHeader), body.TotalHits, nil)
}

// Report prints a summary. It fails when no request completed.
func (s *Stats) Report(w io.Writer, duration time.Duration) error {
	total := s.total.Load()
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", s.success.Load())
	fmt.Fprintf(w, "Errors:          %d\n", s.failed.Load())
	fmt.Fprintf(w, "Zero results:    %d\n", s.zeroResults.Load())
	if total == 0 {
		return errors.New("no requests completed; is the service running?")
	}
	fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(s.failed.Load())/float64(total)*100)
	fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.latencies) > 0 {
		latencies := slices.Clone(s.latencies)
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))
		var sq float64
		for _, l := range latencies {
			d := float64(l - avg)
			sq += d * d
		}

		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		fmt.Fprintf(w, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(w, "P90:    %s\n", percentile(latencies, 90))
		fmt.Fprintf(w, "P95:    %s\n", percentile(latencies, 95))
		fmt.Fprintf(w, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
		fmt.Fprintf(w, "StdDev: %s\n", time.Duration(math.Sqrt(sq/float64(len(latencies)))))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	codes := make([]int, 0, len(s.statusCodes))
	for code := range s.statusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, s.statusCodes[code])
	}

	if len(s.fingerprints) > 1 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Index changed during the run: %d fingerprints served\n", len(s.fingerprints))
	}
	return nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[min(max(idx, 0), len(sorted)-1)]
}
