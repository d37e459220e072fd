// Package ranker holds the scoring weights of the query engine and the
// ordering of its results.
package ranker

import (
	"strings"
)

// Scorer assigns scores to the ways a document can match.
type Scorer struct {
	// ObjNameMatch is given when the query equals the object's full name or
	// its last component; ObjPartialMatch when it is contained in the last
	// component.
	ObjNameMatch    int
	ObjPartialMatch int
	// ObjPrio maps an object's priority to a bonus; unknown priorities get
	// ObjPrioDefault.
	ObjPrio        map[int]int
	ObjPrioDefault int

	Term         int
	PartialTerm  int
	Title        int
	PartialTitle int
}

// DefaultScorer returns the weights documentation sites ship by default.
func DefaultScorer() Scorer {
	return Scorer{
		ObjNameMatch:    11,
		ObjPartialMatch: 6,
		ObjPrio:         map[int]int{0: 15, 1: 5, 2: -5},
		ObjPrioDefault:  0,
		Term:            5,
		PartialTerm:     2,
		Title:           15,
		PartialTitle:    7,
	}
}

// PrioBonus returns the score added for an object of the given priority.
func (s Scorer) PrioBonus(prio int) int {
	if bonus, ok := s.ObjPrio[prio]; ok {
		return bonus
	}
	return s.ObjPrioDefault
}

// Result is one search hit: a document, or an object inside a document.
type Result struct {
	Doc         int    `json:"-"`
	DocName     string `json:"docname"`
	Filename    string `json:"filename,omitempty"`
	Title       string `json:"title"`
	Anchor      string `json:"anchor,omitempty"`
	Description string `json:"description,omitempty"`
	Score       int    `json:"score"`
	// MatchedTerms counts the query words the document matched.
	MatchedTerms int `json:"matched_terms"`
}

// Less orders results best first: higher score, then more matched terms,
// then title (case-insensitive), then docname.
func Less(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.MatchedTerms != b.MatchedTerms {
		return a.MatchedTerms > b.MatchedTerms
	}
	at, bt := strings.ToLower(a.Title), strings.ToLower(b.Title)
	if at != bt {
		return at < bt
	}
	if a.DocName != b.DocName {
		return a.DocName < b.DocName
	}
	return a.Anchor < b.Anchor
}

// Dedupe collapses results pointing at the same document and anchor,
// keeping the better one. Order is not preserved.
func Dedupe(results []Result) []Result {
	type key struct {
		doc    string
		anchor string
	}
	best := make(map[key]int, len(results))
	out := make([]Result, 0, len(results))
	for _, r := range results {
		k := key{r.DocName, r.Anchor}
		if i, ok := best[k]; ok {
			if Less(r, out[i]) {
				out[i] = r
			}
			continue
		}
		best[k] = len(out)
		out = append(out, r)
	}
	return out
}

