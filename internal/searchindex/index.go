// Package searchindex models the full-text search index written by a
// documentation build (searchindex.js): a table of documents, an inverted
// index from terms to document indices, title terms used for ranking
// boosts, object tables for API entries, and the versions of the extensions
// that produced it.
//
// A SearchIndex is created in full by a build (see internal/indexer) or by
// decoding a serialized index, and is treated as read-only afterwards. It is
// replaced wholesale, never mutated in place.
package searchindex

import (
	"fmt"
	"slices"
	"strconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/cespare/xxhash/v2"
)

var (
	// ErrMalformed is returned for input that is not a well-formed index or
	// that violates the index invariants.
	ErrMalformed = apperrors.ErrMalformedIndex
	// ErrStale is returned when the extension versions recorded in the index
	// do not match what the reader expects.
	ErrStale = apperrors.ErrStaleIndex
)

// Top-level field names of the serialized index.
const (
	fieldDocNames   = "docnames"
	fieldEnvVersion = "envversion"
	fieldFilenames  = "filenames"
	fieldObjects    = "objects"
	fieldObjNames   = "objnames"
	fieldObjTypes   = "objtypes"
	fieldTerms      = "terms"
	fieldTitles     = "titles"
	fieldTitleTerms = "titleterms"
)

// SearchIndex is the decoded form of searchindex.js. DocNames, Filenames and
// Titles are parallel tables addressed by document index.
type SearchIndex struct {
	DocNames   []string
	Filenames  []string
	Titles     []string
	Terms      map[string]Postings
	TitleTerms map[string]Postings
	EnvVersion map[string]int
	Objects    Objects
	ObjNames   map[string]ObjName
	ObjTypes   map[string]string

	// Extra holds top-level fields that are not modelled above.
	Extra map[string]Value
}

// Postings is the ordered list of documents a term occurs in.
type Postings struct {
	Docs []int
	// Single is set when the postings are serialized as a bare integer.
	Single bool
}

// NewPostings returns postings for docs, sorted and de-duplicated. A single
// document is serialized as a bare integer, matching what builds emit.
func NewPostings(docs ...int) Postings {
	sorted := slices.Clone(docs)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return Postings{Docs: sorted, Single: len(sorted) == 1}
}

// Len returns the number of documents.
func (p Postings) Len() int {
	return len(p.Docs)
}

// Contains reports whether doc is in the postings.
func (p Postings) Contains(doc int) bool {
	return slices.Contains(p.Docs, doc)
}

// ObjectEntry locates one documented object (function, class, option, ...).
type ObjectEntry struct {
	Doc      int
	Type     int
	Priority int
	// Anchor is the fragment inside the document. An empty anchor means the
	// object's full name, "-" means "<objtype>-<fullname>".
	Anchor string
}

// Objects maps an object name prefix (for example a module name) to the
// objects defined under it.
type Objects map[string]map[string]ObjectEntry

// Len returns the total number of objects.
func (o Objects) Len() int {
	n := 0
	for _, names := range o {
		n += len(names)
	}
	return n
}

// ObjName describes an object type: its domain, its name inside the domain
// and a human readable label.
type ObjName struct {
	Domain string
	Type   string
	Label  string
}

// Document is one row of the document tables.
type Document struct {
	Index    int    `json:"index"`
	Name     string `json:"docname"`
	Filename string `json:"filename,omitempty"`
	Title    string `json:"title"`
}

// Stats summarises the size of an index.
type Stats struct {
	Documents  int `json:"documents"`
	Terms      int `json:"terms"`
	TitleTerms int `json:"title_terms"`
	Objects    int `json:"objects"`
}

// New returns an empty index with all tables allocated.
func New() *SearchIndex {
	return &SearchIndex{
		DocNames:   []string{},
		Filenames:  []string{},
		Titles:     []string{},
		Terms:      make(map[string]Postings),
		TitleTerms: make(map[string]Postings),
		EnvVersion: make(map[string]int),
		Objects:    make(Objects),
		ObjNames:   make(map[string]ObjName),
		ObjTypes:   make(map[string]string),
		Extra:      make(map[string]Value),
	}
}

// Len returns the number of documents.
func (idx *SearchIndex) Len() int {
	return len(idx.DocNames)
}

// Doc returns the document at index i.
func (idx *SearchIndex) Doc(i int) (Document, bool) {
	if i < 0 || i >= len(idx.DocNames) {
		return Document{}, false
	}
	doc := Document{Index: i, Name: idx.DocNames[i]}
	if i < len(idx.Titles) {
		doc.Title = idx.Titles[i]
	}
	if i < len(idx.Filenames) {
		doc.Filename = idx.Filenames[i]
	}
	return doc, true
}

// Documents returns every row of the document tables in index order.
func (idx *SearchIndex) Documents() []Document {
	docs := make([]Document, 0, len(idx.DocNames))
	for i := range idx.DocNames {
		doc, _ := idx.Doc(i)
		docs = append(docs, doc)
	}
	return docs
}

// Lookup returns the documents whose text contains term. The term must
// already be normalised the way the index stores it. An absent term yields
// an empty slice.
func (idx *SearchIndex) Lookup(term string) []int {
	return lookup(idx.Terms, term)
}

// LookupTitle returns the documents whose title contains term.
func (idx *SearchIndex) LookupTitle(term string) []int {
	return lookup(idx.TitleTerms, term)
}

func lookup(table map[string]Postings, term string) []int {
	p, ok := table[term]
	if !ok {
		return []int{}
	}
	return slices.Clone(p.Docs)
}

// ObjName returns the description of the object type with the given index.
func (idx *SearchIndex) ObjName(objType int) (ObjName, bool) {
	n, ok := idx.ObjNames[strconv.Itoa(objType)]
	return n, ok
}

// Stats returns table sizes.
func (idx *SearchIndex) Stats() Stats {
	return Stats{
		Documents:  len(idx.DocNames),
		Terms:      len(idx.Terms),
		TitleTerms: len(idx.TitleTerms),
		Objects:    idx.Objects.Len(),
	}
}

// Fingerprint identifies the content of the index. Two indices with the
// same canonical encoding have the same fingerprint.
func (idx *SearchIndex) Fingerprint() string {
	return fmt.Sprintf("%016x", xxhash.Sum64(Marshal(idx)))
}

// CheckEnvVersion returns ErrStale when any extension in expected is missing
// from the index or was recorded with a different version.
func (idx *SearchIndex) CheckEnvVersion(expected map[string]int) error {
	for _, name := range sortedKeys(expected) {
		got, ok := idx.EnvVersion[name]
		if !ok {
			return fmt.Errorf("%w: extension %q not recorded", ErrStale, name)
		}
		if got != expected[name] {
			return fmt.Errorf("%w: extension %q has version %d, want %d", ErrStale, name, got, expected[name])
		}
	}
	return nil
}
