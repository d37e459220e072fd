// Package executor runs a QueryPlan against a search index: the object
// search over API entries and the full-text search over the term tables.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

// Words of at most this many characters are optional in AND queries and
// never matched partially.
const shortWord = 2

type SearchResult struct {
	Query     string          `json:"query"`
	TotalHits int             `json:"total_hits"`
	Results   []ranker.Result `json:"results"`
	TermStats []TermStat      `json:"term_stats"`
}

// TermStat reports how many documents one search term reached.
type TermStat struct {
	Term           string `json:"term"`
	Documents      int    `json:"documents"`
	TitleDocuments int    `json:"title_documents"`
	// Partial is set when the term was matched as a substring of longer
	// index words.
	Partial bool `json:"partial,omitempty"`
}

type Executor struct {
	scorer ranker.Scorer
	logger *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

func WithScorer(s ranker.Scorer) Option {
	return func(e *Executor) { e.scorer = s }
}

func New(opts ...Option) *Executor {
	e := &Executor{
		scorer: ranker.DefaultScorer(),
		logger: slog.Default().With("component", "query-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs plan against idx and returns at most limit results, best
// first. Absent words produce no results, never an error.
func (e *Executor) Execute(ctx context.Context, idx *searchindex.SearchIndex, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	if idx == nil {
		return nil, apperrors.ErrIndexUnavailable
	}
	result := &SearchResult{
		Query:     plan.RawQuery,
		Results:   []ranker.Result{},
		TermStats: []TermStat{},
	}
	if plan.Empty() {
		return result, nil
	}

	_, objSpan := tracing.StartChildSpan(ctx, "object_search")
	objects := e.searchObjects(idx, plan)
	objSpan.SetAttr("results", len(objects))
	objSpan.End()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
	}

	_, termSpan := tracing.StartChildSpan(ctx, "term_search")
	terms, stats := e.searchTerms(idx, plan)
	termSpan.SetAttr("results", len(terms))
	termSpan.End()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
	}

	all := ranker.Dedupe(append(append([]ranker.Result{}, objects...), terms...))
	result.TotalHits = len(all)
	result.Results = merger.TopK([][]ranker.Result{all}, limit)
	result.TermStats = stats

	e.logger.Debug("query executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"type", plan.Type.String(),
		"object_hits", len(objects),
		"term_hits", len(terms),
		"results", len(result.Results),
	)
	return result, nil
}

// searchObjects matches every object term against object full names. With
// more than one term, an object must also mention the other terms in its
// prefix, name, type label or page title.
func (e *Executor) searchObjects(idx *searchindex.SearchIndex, plan *parser.QueryPlan) []ranker.Result {
	var results []ranker.Result
	for i, term := range plan.ObjectTerms {
		others := make([]string, 0, len(plan.ObjectTerms)-1)
		others = append(others, plan.ObjectTerms[:i]...)
		others = append(others, plan.ObjectTerms[i+1:]...)
		results = append(results, e.searchObject(idx, term, others)...)
	}
	return results
}

func (e *Executor) searchObject(idx *searchindex.SearchIndex, term string, others []string) []ranker.Result {
	var results []ranker.Result
	for prefix, names := range idx.Objects {
		for name, entry := range names {
			fullname := name
			if prefix != "" {
				fullname = prefix + "." + name
			}
			lower := strings.ToLower(fullname)
			if !strings.Contains(lower, term) {
				continue
			}

			score := 0
			last := lower
			if dot := strings.LastIndexByte(lower, '.'); dot >= 0 {
				last = lower[dot+1:]
			}
			switch {
			case lower == term || last == term:
				score += e.scorer.ObjNameMatch
			case strings.Contains(last, term):
				score += e.scorer.ObjPartialMatch
			}

			doc, ok := idx.Doc(entry.Doc)
			if !ok {
				continue
			}
			objName, _ := idx.ObjName(entry.Type)
			if len(others) > 0 {
				haystack := strings.ToLower(prefix + " " + name + " " + objName.Label + " " + doc.Title)
				if !containsAll(haystack, others) {
					continue
				}
			}

			anchor := entry.Anchor
			switch anchor {
			case "":
				anchor = fullname
			case "-":
				anchor = objName.Type + "-" + fullname
			}
			score += e.scorer.PrioBonus(entry.Priority)

			results = append(results, ranker.Result{
				Doc:          doc.Index,
				DocName:      doc.Name,
				Filename:     doc.Filename,
				Title:        fullname,
				Anchor:       anchor,
				Description:  objName.Label + ", in " + doc.Title,
				Score:        score,
				MatchedTerms: 1 + len(others),
			})
		}
	}
	return results
}

func containsAll(haystack string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(haystack, w) {
			return false
		}
	}
	return true
}

// searchTerms looks every search term up in the term and title tables. A
// term without an exact entry that is longer than two characters also
// matches the index words containing it, at a lower score.
//
// AND plans keep documents that match every term longer than two
// characters; OR plans keep documents matching any term. A document's score
// is the best score among the terms it matched.
func (e *Executor) searchTerms(idx *searchindex.SearchIndex, plan *parser.QueryPlan) ([]ranker.Result, []TermStat) {
	stats := make([]TermStat, 0, len(plan.Terms))
	hits := make(map[int]map[string]int)
	required := 0

	for _, word := range plan.Terms {
		long := utf8.RuneCountInString(word) > shortWord
		if long {
			required++
		}
		stat := TermStat{Term: word}
		docs := make(map[int]struct{})
		titleDocs := make(map[int]struct{})
		record := func(p searchindex.Postings, score int, seen map[int]struct{}) {
			for _, doc := range p.Docs {
				seen[doc] = struct{}{}
				words, ok := hits[doc]
				if !ok {
					words = make(map[string]int)
					hits[doc] = words
				}
				if prev, ok := words[word]; !ok || score > prev {
					words[word] = score
				}
			}
		}

		exact, hasExact := idx.Terms[word]
		title, hasTitle := idx.TitleTerms[word]
		if hasExact {
			record(exact, e.scorer.Term, docs)
		}
		if hasTitle {
			record(title, e.scorer.Title, titleDocs)
		}
		if long && !hasExact {
			for key, p := range idx.Terms {
				if strings.Contains(key, word) {
					record(p, e.scorer.PartialTerm, docs)
					stat.Partial = true
				}
			}
		}
		if long && !hasTitle {
			for key, p := range idx.TitleTerms {
				if strings.Contains(key, word) {
					record(p, e.scorer.PartialTitle, titleDocs)
					stat.Partial = true
				}
			}
		}
		stat.Documents = len(docs)
		stat.TitleDocuments = len(titleDocs)
		stats = append(stats, stat)

		if long && len(docs) == 0 && len(titleDocs) == 0 && plan.Type == parser.QueryAND {
			return []ranker.Result{}, stats
		}
	}

	results := make([]ranker.Result, 0, len(hits))
	for doc, words := range hits {
		if plan.Type == parser.QueryAND && !matchesAll(words, len(plan.Terms), required) {
			continue
		}
		if excluded(idx, plan.ExcludeTerms, doc) {
			continue
		}
		d, ok := idx.Doc(doc)
		if !ok {
			continue
		}
		best := 0
		first := true
		for _, score := range words {
			if first || score > best {
				best = score
				first = false
			}
		}
		results = append(results, ranker.Result{
			Doc:          d.Index,
			DocName:      d.Name,
			Filename:     d.Filename,
			Title:        d.Title,
			Score:        best,
			MatchedTerms: len(words),
		})
	}
	return results, stats
}

// matchesAll reports whether a document matched every term, or at least
// every term longer than two characters.
func matchesAll(words map[string]int, total, required int) bool {
	if len(words) == total {
		return true
	}
	long := 0
	for w := range words {
		if utf8.RuneCountInString(w) > shortWord {
			long++
		}
	}
	return required > 0 && long == required
}

func excluded(idx *searchindex.SearchIndex, exclude []string, doc int) bool {
	for _, word := range exclude {
		if idx.Terms[word].Contains(doc) || idx.TitleTerms[word].Contains(doc) {
			return true
		}
	}
	return false
}
