package parser_test

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		query   string
		terms   []string
		exclude []string
		objects []string
		typ     parser.QueryType
	}{
		{
			name:    "stems and drops stopwords",
			query:   "Plotting the Maps",
			terms:   []string{"plot", "map"},
			exclude: []string{},
			objects: []string{"plotting", "the", "maps"},
		},
		{
			name:    "short stem keeps the token",
			query:   "ties",
			terms:   []string{"ties"},
			exclude: []string{},
			objects: []string{"ties"},
		},
		{
			name:    "numbers are object terms only",
			query:   "2020 emissions",
			terms:   []string{"emiss"},
			exclude: []string{},
			objects: []string{"2020", "emissions"},
		},
		{
			name:    "minus prefix excludes",
			query:   "maps -curtains",
			terms:   []string{"map"},
			exclude: []string{"curtain"},
			objects: []string{"maps"},
		},
		{
			name:    "NOT keyword excludes the next word",
			query:   "maps NOT curtains",
			terms:   []string{"map"},
			exclude: []string{"curtain"},
			objects: []string{"maps"},
		},
		{
			name:    "OR switches to union",
			query:   "maps OR profiles",
			terms:   []string{"map", "profil"},
			exclude: []string{},
			objects: []string{"maps", "profiles"},
			typ:     parser.QueryOR,
		},
		{
			name:    "duplicates collapse",
			query:   "map maps MAPS",
			terms:   []string{"map"},
			exclude: []string{},
			objects: []string{"map", "maps"},
		},
		{
			name:    "blank",
			query:   "   ",
			terms:   []string{},
			exclude: []string{},
			objects: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			plan := parser.Parse(tt.query)
			assert.Equal(t, tt.terms, plan.Terms)
			assert.Equal(t, tt.exclude, plan.ExcludeTerms)
			assert.Equal(t, tt.objects, plan.ObjectTerms)
			assert.Equal(t, tt.typ, plan.Type)
			assert.Equal(t, tt.query, plan.RawQuery)
		})
	}
}

func TestPlanEmpty(t *testing.T) {
	t.Parallel()
	assert.True(t, parser.Parse("").Empty())
	assert.False(t, parser.Parse("the").Empty())
	assert.False(t, parser.Parse("maps").Empty())
}

func TestNormalized(t *testing.T) {
	t.Parallel()

	a := parser.Parse("Maps  plotting")
	b := parser.Parse("plotting maps")
	assert.Equal(t, a.Normalized(), b.Normalized())
	assert.Equal(t, "AND|map,plot|OBJ:maps,plotting", a.Normalized())

	c := parser.Parse("maps OR plotting -curtains")
	assert.Equal(t, "OR|map,plot|NOT:curtain|OBJ:maps,plotting", c.Normalized())
}
