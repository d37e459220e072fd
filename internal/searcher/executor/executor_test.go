package executor_test

import (
	"context"
	"os"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apiIndex = `Search.setIndex({docnames:["api"],envversion:{sphinx:56},filenames:["api.rst"],` +
	`objects:{plotting:{map_plot:[0,0,1,""],quicklook:[0,1,1,"-"]}},` +
	`objnames:{"0":["py","function","Python function"],"1":["py","class","Python class"]},` +
	`objtypes:{"0":"py:function","1":"py:class"},terms:{map:0},titles:["API"],titleterms:{api:0}})`

func loadSite(t testing.TB) *searchindex.SearchIndex {
	t.Helper()
	data, err := os.ReadFile("../../searchindex/testdata/searchindex.js")
	require.NoError(t, err)
	idx, err := searchindex.Parse(data)
	require.NoError(t, err)
	return idx
}

func loadAPI(t testing.TB) *searchindex.SearchIndex {
	t.Helper()
	idx, err := searchindex.Parse([]byte(apiIndex))
	require.NoError(t, err)
	return idx
}

func run(t *testing.T, idx *searchindex.SearchIndex, query string, limit int) *executor.SearchResult {
	t.Helper()
	res, err := executor.New().Execute(context.Background(), idx, parser.Parse(query), limit)
	require.NoError(t, err)
	return res
}

func docNames(res *executor.SearchResult) []string {
	names := make([]string, 0, len(res.Results))
	for _, r := range res.Results {
		names = append(names, r.DocName)
	}
	return names
}

func scores(res *executor.SearchResult) []int {
	out := make([]int, 0, len(res.Results))
	for _, r := range res.Results {
		out = append(out, r.Score)
	}
	return out
}

func TestTermSearch(t *testing.T) {
	t.Parallel()
	idx := loadSite(t)

	tests := []struct {
		name   string
		query  string
		docs   []string
		scores []int
	}{
		{
			name:   "title matches outrank text matches",
			query:  "maps",
			docs:   []string{"examples/maps", "examples/maps/plot_map_basic", "index"},
			scores: []int{15, 15, 5},
		},
		{
			name:   "AND keeps documents matching every word",
			query:  "plot world",
			docs:   []string{"examples/maps/plot_map_basic", "examples/maps"},
			scores: []int{15, 5},
		},
		{
			name:   "OR keeps documents matching any word",
			query:  "curtains OR emissions",
			docs:   []string{"examples/curtains", "examples/emissions", "index"},
			scores: []int{15, 15, 5},
		},
		{
			name:   "excluded words drop documents",
			query:  "python -widget",
			docs:   []string{"contribute", "examples/functions/example_subpage"},
			scores: []int{15, 5},
		},
		{
			name:   "NOT keyword",
			query:  "python NOT widget",
			docs:   []string{"contribute", "examples/functions/example_subpage"},
			scores: []int{15, 5},
		},
		{
			name:   "partial match without exact entry",
			query:  "matplot",
			docs:   []string{"examples/widget", "examples/maps/plot_map_basic", "index"},
			scores: []int{2, 2, 2},
		},
		{
			name:   "short unknown word is optional",
			query:  "io maps",
			docs:   []string{"examples/maps", "examples/maps/plot_map_basic", "index"},
			scores: []int{15, 15, 5},
		},
		{
			name:   "unknown long word ends the search",
			query:  "maps zzzznothing",
			docs:   []string{},
			scores: []int{},
		},
		{
			name:   "stopwords only",
			query:  "the",
			docs:   []string{},
			scores: []int{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := run(t, idx, tt.query, 10)
			assert.Equal(t, tt.docs, docNames(res))
			assert.Equal(t, tt.scores, scores(res))
			assert.Equal(t, len(tt.docs), res.TotalHits)
			for _, r := range res.Results {
				_, ok := idx.Doc(r.Doc)
				assert.True(t, ok)
			}
		})
	}
}

func TestTermStats(t *testing.T) {
	t.Parallel()
	idx := loadSite(t)

	res := run(t, idx, "maps matplot", 10)
	assert.Equal(t, []executor.TermStat{
		{Term: "map", Documents: 1, TitleDocuments: 2},
		{Term: "matplot", Documents: 3, Partial: true},
	}, res.TermStats)
	// Pages without both words are dropped.
	assert.Equal(t, []string{"examples/maps/plot_map_basic", "index"}, docNames(res))
	assert.Equal(t, []int{15, 5}, scores(res))
	assert.Equal(t, 2, res.Results[0].MatchedTerms)
}

func TestLimit(t *testing.T) {
	t.Parallel()
	idx := loadSite(t)

	res := run(t, idx, "plot", 2)
	assert.Len(t, res.Results, 2)
	assert.Equal(t, 4, res.TotalHits)
	assert.Equal(t, "examples/maps/plot_map_basic", res.Results[0].DocName)
	assert.Equal(t, "examples/maps/plot_map_basic.rst", res.Results[0].Filename)
	assert.Equal(t, "Plot a world map", res.Results[0].Title)
}

func TestObjectSearch(t *testing.T) {
	t.Parallel()
	idx := loadAPI(t)

	t.Run("full name match", func(t *testing.T) {
		t.Parallel()
		res := run(t, idx, "map_plot", 10)
		require.Len(t, res.Results, 1)
		r := res.Results[0]
		assert.Equal(t, "api", r.DocName)
		assert.Equal(t, "plotting.map_plot", r.Title)
		assert.Equal(t, "plotting.map_plot", r.Anchor)
		assert.Equal(t, "Python function, in API", r.Description)
		assert.Equal(t, 16, r.Score)
	})

	t.Run("partial last component", func(t *testing.T) {
		t.Parallel()
		res := run(t, idx, "quick", 10)
		require.Len(t, res.Results, 1)
		assert.Equal(t, "class-plotting.quicklook", res.Results[0].Anchor)
		assert.Equal(t, 11, res.Results[0].Score)
	})

	t.Run("other terms must appear in the haystack", func(t *testing.T) {
		t.Parallel()
		res := run(t, idx, "quicklook class", 10)
		require.Len(t, res.Results, 1)
		assert.Equal(t, 16, res.Results[0].Score)
		assert.Equal(t, 2, res.Results[0].MatchedTerms)

		assert.Empty(t, run(t, idx, "quicklook function", 10).Results)
	})

	t.Run("prefix match", func(t *testing.T) {
		t.Parallel()
		res := run(t, idx, "plotting", 10)
		require.Len(t, res.Results, 2)
		assert.Equal(t, "plotting.map_plot", res.Results[0].Title)
		assert.Equal(t, "plotting.quicklook", res.Results[1].Title)
		assert.Equal(t, []int{5, 5}, scores(res))
	})

	t.Run("objects and text together", func(t *testing.T) {
		t.Parallel()
		res := run(t, idx, "map", 10)
		require.Len(t, res.Results, 2)
		assert.Equal(t, "plotting.map_plot", res.Results[0].Title)
		assert.Equal(t, 11, res.Results[0].Score)
		assert.Equal(t, "API", res.Results[1].Title)
		assert.Equal(t, 5, res.Results[1].Score)
	})
}

func TestExecuteErrors(t *testing.T) {
	t.Parallel()

	_, err := executor.New().Execute(context.Background(), nil, parser.Parse("maps"), 10)
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = executor.New().Execute(ctx, loadSite(t), parser.Parse("maps"), 10)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}

func TestExecuteRecordsSpans(t *testing.T) {
	t.Parallel()

	ctx, root := tracing.StartSpan(context.Background(), "search", "trace-1")
	_, err := executor.New().Execute(ctx, loadSite(t), parser.Parse("maps"), 10)
	require.NoError(t, err)
	root.End()

	require.NotNil(t, root.Child("object_search"))
	term := root.Child("term_search")
	require.NotNil(t, term)
	v, _ := term.Attr("results")
	assert.Equal(t, 3, v)
}

func BenchmarkExecute(b *testing.B) {
	idx := loadSite(b)
	exec := executor.New()
	plan := parser.Parse("plot maps OR python")
	b.ReportAllocs()
	for b.Loop() {
		if _, err := exec.Execute(context.Background(), idx, plan, 10); err != nil {
			b.Fatal(err)
		}
	}
}
