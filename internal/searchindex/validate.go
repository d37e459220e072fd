package searchindex

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
)

// ValidationError lists every invariant an index violates.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid search index: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid search index: %d problems: %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrMalformed
}

// Validate checks the structural invariants of idx. It returns nil or a
// *ValidationError that matches ErrMalformed.
func (idx *SearchIndex) Validate() error {
	v := &validator{docs: len(idx.DocNames)}

	if len(idx.Titles) != len(idx.DocNames) {
		v.addf("titles has %d entries, docnames has %d", len(idx.Titles), len(idx.DocNames))
	}
	if len(idx.Filenames) > 0 && len(idx.Filenames) != len(idx.DocNames) {
		v.addf("filenames has %d entries, docnames has %d", len(idx.Filenames), len(idx.DocNames))
	}

	v.termTable(fieldTerms, idx.Terms)
	v.termTable(fieldTitleTerms, idx.TitleTerms)

	for _, prefix := range sortedKeys(idx.Objects) {
		names := idx.Objects[prefix]
		for _, name := range sortedKeys(names) {
			e := names[name]
			where := fmt.Sprintf("objects[%q][%q]", prefix, name)
			if name == "" {
				v.addf("objects[%q] has an empty name", prefix)
			}
			v.docIndex(where, e.Doc)
			if _, ok := idx.ObjNames[strconv.Itoa(e.Type)]; !ok {
				v.addf("%s references unknown object type %d", where, e.Type)
			}
		}
	}

	for _, key := range sortedKeys(idx.ObjTypes) {
		if _, ok := idx.ObjNames[key]; !ok {
			v.addf("objtypes[%q] has no objnames entry", key)
		}
	}

	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

type validator struct {
	docs     int
	problems []string
}

func (v *validator) addf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) docIndex(where string, doc int) {
	if doc < 0 || doc >= v.docs {
		v.addf("%s references document %d, index has %d documents", where, doc, v.docs)
	}
}

func (v *validator) termTable(field string, table map[string]Postings) {
	for _, term := range sortedKeys(table) {
		where := fmt.Sprintf("%s[%q]", field, term)
		if term == "" {
			v.addf("%s has an empty term", field)
		} else if !isCaseFolded(term) {
			v.addf("%s is not case-folded", where)
		}

		p := table[term]
		if len(p.Docs) == 0 {
			v.addf("%s has no documents", where)
		}
		for i, doc := range p.Docs {
			v.docIndex(where, doc)
			if i > 0 && doc <= p.Docs[i-1] {
				v.addf("%s postings are not strictly increasing", where)
				break
			}
		}
	}
}

// isCaseFolded accepts lower-case terms and the words a build keeps as
// written because their stem is filtered out ("These", "For").
func isCaseFolded(term string) bool {
	return term == strings.ToLower(term) || !tokenizer.WordFilter(tokenizer.Stem(term))
}
