// Package indexstore keeps built search indices and loads the current one
// for serving. A build is only handed out after it has been validated and
// its extension versions checked.
package indexstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// Build is one stored index together with what identifies it.
type Build struct {
	Index       *searchindex.SearchIndex
	Project     string
	Fingerprint string
	BuiltAt     time.Time
	// Location names where the build was read from or written to.
	Location string
}

// NewBuild wraps idx, computing its fingerprint.
func NewBuild(project string, idx *searchindex.SearchIndex, builtAt time.Time) *Build {
	return &Build{
		Index:       idx,
		Project:     project,
		Fingerprint: idx.Fingerprint(),
		BuiltAt:     builtAt.UTC(),
	}
}

// Store reads and writes builds. Load returns the newest build decoded but
// not validated, or an error matching apperrors.ErrNotFound.
type Store interface {
	Load(ctx context.Context) (*Build, error)
	Save(ctx context.Context, b *Build) error
	String() string
}

// Loader loads builds from a Store and rejects the ones that cannot be
// served.
type Loader struct {
	store    Store
	expected map[string]int
	retry    resilience.RetryConfig
	logger   *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithRetry replaces the retry policy for transient store failures.
func WithRetry(cfg resilience.RetryConfig) LoaderOption {
	return func(l *Loader) { l.retry = cfg }
}

// NewLoader returns a Loader that requires the extension versions in
// expected. A nil expected map skips the version check.
func NewLoader(store Store, expected map[string]int, opts ...LoaderOption) *Loader {
	l := &Loader{
		store:    store,
		expected: expected,
		retry: resilience.RetryConfig{
			MaxAttempts:  4,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		logger: slog.Default().With("component", "index-loader", "store", store.String()),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.retry.Retryable = transient
	return l
}

// Load returns the newest valid build. Malformed, stale and missing builds
// fail at once; other store errors are retried.
func (l *Loader) Load(ctx context.Context) (*Build, error) {
	start := time.Now()
	var build *Build
	err := resilience.Retry(ctx, "load search index", l.retry, func() error {
		b, err := l.store.Load(ctx)
		if err != nil {
			return err
		}
		if err := b.Index.Validate(); err != nil {
			return fmt.Errorf("%s: %w", b.Location, err)
		}
		if l.expected != nil {
			if err := b.Index.CheckEnvVersion(l.expected); err != nil {
				return fmt.Errorf("%s: %w", b.Location, err)
			}
		}
		if b.Fingerprint == "" {
			b.Fingerprint = b.Index.Fingerprint()
		}
		build = b
		return nil
	})
	if err != nil {
		l.logger.Error("search index load failed", "error", err)
		return nil, err
	}
	stats := build.Index.Stats()
	l.logger.Info("search index loaded",
		"location", build.Location,
		"fingerprint", build.Fingerprint,
		"documents", stats.Documents,
		"terms", stats.Terms,
		"title_terms", stats.TitleTerms,
		"objects", stats.Objects,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return build, nil
}

func transient(err error) bool {
	switch {
	case errors.Is(err, apperrors.ErrMalformedIndex),
		errors.Is(err, apperrors.ErrStaleIndex),
		errors.Is(err, apperrors.ErrNotFound),
		errors.Is(err, apperrors.ErrInvalidInput),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}
