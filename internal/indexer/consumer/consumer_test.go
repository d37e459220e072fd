package consumer_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/holder"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReloader struct {
	calls int
	err   error
}

func (r *countingReloader) Reload(context.Context) (*holder.Snapshot, bool, error) {
	r.calls++
	return nil, r.err == nil, r.err
}

func event(t *testing.T, project, fingerprint string) []byte {
	t.Helper()
	data, err := json.Marshal(analytics.IndexBuiltEvent{
		Type:        analytics.EventIndexBuilt,
		Project:     project,
		Fingerprint: fingerprint,
		BuiltAt:     time.Now(),
	})
	require.NoError(t, err)
	return data
}

func TestHandleIndexBuilt(t *testing.T) {
	idx := searchindex.New()
	idx.DocNames, idx.Titles = []string{"index"}, []string{"Welcome"}
	served := indexstore.NewBuild("docs", idx, time.Now())

	h := holder.New()
	h.Swap(served)
	r := &countingReloader{}
	handle := consumer.HandleIndexBuilt("docs", h, r)
	ctx := context.Background()

	require.NoError(t, handle(ctx, nil, []byte("not json")))
	require.NoError(t, handle(ctx, nil, event(t, "other", "f00")))
	require.NoError(t, handle(ctx, nil, event(t, "docs", served.Fingerprint)))
	assert.Equal(t, 0, r.calls)

	require.NoError(t, handle(ctx, []byte("docs"), event(t, "docs", "f00")))
	assert.Equal(t, 1, r.calls)

	r.err = errors.New("store down")
	assert.ErrorIs(t, handle(ctx, nil, event(t, "docs", "f01")), r.err)
}
