// Package holder keeps the search index currently being served and
// replaces it atomically when a new build is loaded.
package holder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
)

// Snapshot is an immutable view of the served index. Requests take one
// snapshot and use it throughout, so a concurrent swap never mixes two
// indices in one response.
type Snapshot struct {
	Build    *indexstore.Build
	LoadedAt time.Time
}

// Index returns the snapshot's index, or nil for a nil snapshot.
func (s *Snapshot) Index() *searchindex.SearchIndex {
	if s == nil || s.Build == nil {
		return nil
	}
	return s.Build.Index
}

// Fingerprint returns the snapshot's fingerprint, or "".
func (s *Snapshot) Fingerprint() string {
	if s == nil || s.Build == nil {
		return ""
	}
	return s.Build.Fingerprint
}

type Holder struct {
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

func New() *Holder {
	return &Holder{now: time.Now}
}

// Current returns the served snapshot, or nil before the first Swap.
func (h *Holder) Current() *Snapshot {
	return h.current.Load()
}

// Swap installs b and returns the snapshot it replaced.
func (h *Holder) Swap(b *indexstore.Build) (old *Snapshot) {
	return h.current.Swap(&Snapshot{Build: b, LoadedAt: h.now().UTC()})
}

// Loader is satisfied by *indexstore.Loader.
type Loader interface {
	Load(ctx context.Context) (*indexstore.Build, error)
}

// Reloader loads builds into a Holder. Reloads are serialized; a failed
// reload leaves the served index untouched.
type Reloader struct {
	mu     sync.Mutex
	loader Loader
	holder *Holder
	hooks  []func(ctx context.Context, snap *Snapshot)
	logger *slog.Logger
}

func NewReloader(loader Loader, h *Holder) *Reloader {
	return &Reloader{
		loader: loader,
		holder: h,
		logger: slog.Default().With("component", "index-reloader"),
	}
}

// OnSwap registers fn to run after every swap that changed the index.
func (r *Reloader) OnSwap(fn func(ctx context.Context, snap *Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Reload loads the newest build and swaps it in unless it has the
// fingerprint already being served. It reports whether the index changed.
func (r *Reloader) Reload(ctx context.Context) (*Snapshot, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	build, err := r.loader.Load(ctx)
	if err != nil {
		return r.holder.Current(), false, err
	}
	if cur := r.holder.Current(); cur != nil && cur.Fingerprint() == build.Fingerprint {
		r.logger.Debug("search index unchanged", "fingerprint", build.Fingerprint)
		return cur, false, nil
	}
	old := r.holder.Swap(build)
	snap := r.holder.Current()
	r.logger.Info("search index swapped",
		"fingerprint", build.Fingerprint,
		"previous", old.Fingerprint(),
		"location", build.Location,
	)
	for _, fn := range r.hooks {
		fn(ctx, snap)
	}
	return snap, true, nil
}
