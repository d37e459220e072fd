// Package parser turns a search box query into a QueryPlan using the same
// word normalisation the index was built with.
package parser

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

func (t QueryType) String() string {
	if t == QueryOR {
		return "OR"
	}
	return "AND"
}

type QueryPlan struct {
	// Terms are the normalised words looked up in the term tables.
	Terms []string
	// ExcludeTerms remove documents containing them.
	ExcludeTerms []string
	// ObjectTerms are the lower-cased tokens matched against object names.
	ObjectTerms []string
	Type        QueryType
	RawQuery    string
}

// Parse splits query on whitespace. Every token is lower-cased and kept as an
// object term; stopwords and bare numbers are dropped from the term search;
// the rest are stemmed, keeping the lower-cased token when stemming shrinks
// a word of three or more characters below three. A leading "-" or a
// preceding NOT excludes the word, and OR switches the plan to union
// semantics.
func Parse(query string) *QueryPlan {
	plan := &QueryPlan{
		Terms:        make([]string, 0),
		ExcludeTerms: make([]string, 0),
		ObjectTerms:  make([]string, 0),
		Type:         QueryAND,
		RawQuery:     query,
	}
	excludeNext := false
	for _, token := range strings.Fields(query) {
		switch token {
		case "AND":
			plan.Type = QueryAND
			continue
		case "OR":
			plan.Type = QueryOR
			continue
		case "NOT":
			excludeNext = true
			continue
		}

		exclude := excludeNext
		excludeNext = false
		lower := strings.ToLower(token)
		if rest, ok := strings.CutPrefix(lower, "-"); ok && rest != "" {
			exclude = true
			lower = rest
		}
		if !exclude {
			plan.ObjectTerms = appendUnique(plan.ObjectTerms, lower)
		}

		if tokenizer.IsStopword(lower) || isNumber(lower) {
			continue
		}
		word := tokenizer.Stem(lower)
		if utf8.RuneCountInString(word) < 3 && utf8.RuneCountInString(lower) >= 3 {
			word = lower
		}
		if exclude {
			plan.ExcludeTerms = appendUnique(plan.ExcludeTerms, word)
		} else {
			plan.Terms = appendUnique(plan.Terms, word)
		}
	}
	return plan
}

// Empty reports whether the plan has nothing to search for.
func (p *QueryPlan) Empty() bool {
	return len(p.Terms) == 0 && len(p.ObjectTerms) == 0
}

// Normalized is a canonical rendering of the plan: two queries with the
// same plan produce the same string regardless of spacing, case or word
// order.
func (p *QueryPlan) Normalized() string {
	parts := []string{p.Type.String(), joinSorted(p.Terms)}
	if len(p.ExcludeTerms) > 0 {
		parts = append(parts, "NOT:"+joinSorted(p.ExcludeTerms))
	}
	parts = append(parts, "OBJ:"+joinSorted(p.ObjectTerms))
	return strings.Join(parts, "|")
}

func joinSorted(words []string) string {
	sorted := slices.Clone(words)
	slices.Sort(sorted)
	return strings.Join(sorted, ",")
}

func appendUnique(list []string, word string) []string {
	if slices.Contains(list, word) {
		return list
	}
	return append(list, word)
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
