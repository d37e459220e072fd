package merger_test

import (
	"fmt"
	"sort"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	"github.com/stretchr/testify/assert"
)

func TestTopK(t *testing.T) {
	t.Parallel()

	objects := []ranker.Result{
		{DocName: "api", Anchor: "plot_map", Title: "plot_map", Score: 26},
		{DocName: "api", Anchor: "quicklook", Title: "quicklook", Score: 11},
	}
	terms := []ranker.Result{
		{DocName: "maps", Title: "Maps", Score: 15},
		{DocName: "index", Title: "Welcome", Score: 5},
		{DocName: "api", Anchor: "plot_map", Title: "plot_map", Score: 6},
	}

	top := merger.TopK([][]ranker.Result{objects, terms}, 3)
	assert.Len(t, top, 3)
	assert.Equal(t, 26, top[0].Score)
	assert.Equal(t, "maps", top[1].DocName)
	assert.Equal(t, "quicklook", top[2].Anchor)
}

func TestTopKMatchesFullSort(t *testing.T) {
	t.Parallel()

	var results []ranker.Result
	for i := range 200 {
		results = append(results, ranker.Result{
			DocName: fmt.Sprintf("doc%03d", i),
			Title:   fmt.Sprintf("Title %d", i%17),
			Score:   (i * 7919) % 31,
		})
	}
	want := ranker.Dedupe(results)
	sort.SliceStable(want, func(i, j int) bool {
		return ranker.Less(want[i], want[j])
	})
	want = want[:25]
	got := merger.TopK([][]ranker.Result{results[:90], results[90:]}, 25)
	assert.Equal(t, want, got)
}

func TestTopKDefaultLimit(t *testing.T) {
	t.Parallel()

	var results []ranker.Result
	for i := range 15 {
		results = append(results, ranker.Result{DocName: fmt.Sprintf("d%d", i), Score: i})
	}
	assert.Len(t, merger.TopK([][]ranker.Result{results}, 0), 10)
	assert.Empty(t, merger.TopK(nil, 5))
}
