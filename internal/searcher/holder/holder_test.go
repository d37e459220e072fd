package holder_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/holder"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(docnames ...string) *indexstore.Build {
	idx := searchindex.New()
	idx.DocNames = docnames
	idx.Titles = docnames
	return indexstore.NewBuild("p", idx, time.Now())
}

type stubLoader struct {
	builds []*indexstore.Build
	err    error
}

func (l *stubLoader) Load(context.Context) (*indexstore.Build, error) {
	if l.err != nil {
		return nil, l.err
	}
	b := l.builds[0]
	if len(l.builds) > 1 {
		l.builds = l.builds[1:]
	}
	return b, nil
}

func TestHolderSwap(t *testing.T) {
	h := holder.New()
	assert.Nil(t, h.Current())
	assert.Nil(t, h.Current().Index())
	assert.Empty(t, h.Current().Fingerprint())

	a, b := build("a"), build("b")
	assert.Nil(t, h.Swap(a))
	assert.Same(t, a.Index, h.Current().Index())

	old := h.Swap(b)
	assert.Same(t, a, old.Build)
	assert.Equal(t, b.Fingerprint, h.Current().Fingerprint())
	assert.False(t, h.Current().LoadedAt.IsZero())
}

func TestHolderConcurrentReaders(t *testing.T) {
	h := holder.New()
	h.Swap(build("a"))

	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			for range 1000 {
				snap := h.Current()
				// A snapshot is internally consistent.
				assert.Equal(t, snap.Build.Index.Fingerprint(), snap.Fingerprint())
			}
		})
	}
	for _, name := range []string{"b", "c", "d"} {
		h.Swap(build(name))
	}
	wg.Wait()
}

func TestReloader(t *testing.T) {
	a, b := build("a"), build("b")
	loader := &stubLoader{builds: []*indexstore.Build{a, a, b}}
	h := holder.New()
	r := holder.NewReloader(loader, h)

	var swapped []string
	r.OnSwap(func(_ context.Context, snap *holder.Snapshot) {
		swapped = append(swapped, snap.Build.Index.DocNames[0])
	})

	ctx := context.Background()
	_, changed, err := r.Reload(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	_, changed, err = r.Reload(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "same fingerprint")

	snap, changed, err := r.Reload(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, b.Fingerprint, snap.Fingerprint())
	assert.Equal(t, []string{"a", "b"}, swapped)

	loader.err = errors.New("store down")
	snap, changed, err = r.Reload(ctx)
	assert.Error(t, err)
	assert.False(t, changed)
	assert.Equal(t, b.Fingerprint, snap.Fingerprint(), "failed reload keeps the served index")
}
