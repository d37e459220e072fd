// Package indexer turns documents into a search index. Documents are fed one
// at a time into mutable word tables; Freeze produces the immutable
// searchindex.SearchIndex that the search service loads.
package indexer

import (
	"fmt"
	"log/slog"
	"maps"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Document is one page of a documentation site, already reduced to words.
type Document struct {
	// Name is the docname: the page path without extension.
	Name     string
	Filename string
	Title    string
	// TitleWords are the words of the page title and of its section titles.
	TitleWords []string
	// Words are all words of the page text, titles included.
	Words []string
}

// NewDocument splits title texts and body text into words.
func NewDocument(name, filename, title string, titleTexts []string, body string) Document {
	doc := Document{Name: name, Filename: filename, Title: title}
	for _, t := range titleTexts {
		doc.TitleWords = append(doc.TitleWords, tokenizer.Split(t)...)
	}
	doc.Words = tokenizer.Split(body)
	return doc
}

// Builder accumulates documents. Feed and Remove are safe for concurrent
// use.
type Builder struct {
	mem        *index.MemoryIndex
	envVersion map[string]int
	logger     *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithEnvVersion sets the extension versions stamped into built indices.
func WithEnvVersion(env map[string]int) Option {
	return func(b *Builder) {
		b.envVersion = maps.Clone(env)
	}
}

// WithLogger sets the logger used for build progress.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		mem:        index.NewMemoryIndex(),
		envVersion: map[string]int{},
		logger:     slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Feed adds doc to the build. Feeding a docname again replaces the earlier
// version of the document.
//
// A title word is indexed by its stem, or as written when the stem is a
// stopword and the word is not. Body words follow the same rule and are
// left out for documents that already have them as a title word.
func (b *Builder) Feed(doc Document) error {
	if doc.Name == "" {
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "document has no name")
	}

	titleSet := make(map[string]struct{}, len(doc.TitleWords))
	titleWords := make([]string, 0, len(doc.TitleWords))
	for _, word := range doc.TitleWords {
		if word == "" {
			continue
		}
		var w string
		switch stem := tokenizer.Stem(word); {
		case tokenizer.WordFilter(stem):
			w = stem
		case tokenizer.WordFilter(word):
			w = word
		default:
			continue
		}
		if _, seen := titleSet[w]; !seen {
			titleSet[w] = struct{}{}
			titleWords = append(titleWords, w)
		}
	}

	bodyWords := make([]string, 0, len(doc.Words))
	for _, word := range doc.Words {
		if word == "" {
			continue
		}
		w := tokenizer.Stem(word)
		if !tokenizer.WordFilter(w) && tokenizer.WordFilter(word) {
			w = word
		}
		if !tokenizer.WordFilter(w) {
			continue
		}
		if _, inTitle := titleSet[w]; inTitle {
			continue
		}
		bodyWords = append(bodyWords, w)
	}

	b.mem.AddDocument(index.DocInfo{Name: doc.Name, Filename: doc.Filename, Title: doc.Title}, titleWords, bodyWords)
	b.logger.Debug("document fed",
		"docname", doc.Name,
		"title_words", len(titleWords),
		"words", len(bodyWords),
	)
	return nil
}

// Remove drops a document from the build. It reports whether the document
// had been fed.
func (b *Builder) Remove(docname string) bool {
	return b.mem.RemoveDocument(docname)
}

// Len returns the number of documents fed so far.
func (b *Builder) Len() int {
	return b.mem.DocCount()
}

// Freeze produces the search index for everything fed so far. Documents are
// numbered in docname order. The builder stays usable afterwards.
func (b *Builder) Freeze() (*searchindex.SearchIndex, error) {
	docs := b.mem.Docs()
	if len(docs) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "no documents to index")
	}

	idx := searchindex.New()
	positions := make(map[string]int, len(docs))
	hasFilenames := false
	for i, d := range docs {
		positions[d.Name] = i
		idx.DocNames = append(idx.DocNames, d.Name)
		idx.Titles = append(idx.Titles, d.Title)
		idx.Filenames = append(idx.Filenames, d.Filename)
		hasFilenames = hasFilenames || d.Filename != ""
	}
	if !hasFilenames {
		idx.Filenames = []string{}
	}

	terms, titles := b.mem.Snapshot()
	idx.Terms = postingsTable(terms, positions)
	idx.TitleTerms = postingsTable(titles, positions)
	maps.Copy(idx.EnvVersion, b.envVersion)

	if err := idx.Validate(); err != nil {
		return nil, fmt.Errorf("freezing index: %w", err)
	}
	b.logger.Info("index frozen",
		"documents", len(idx.DocNames),
		"terms", len(idx.Terms),
		"title_terms", len(idx.TitleTerms),
		"postings", b.mem.Size(),
	)
	return idx, nil
}

func postingsTable(entries []index.TermEntry, positions map[string]int) map[string]searchindex.Postings {
	table := make(map[string]searchindex.Postings, len(entries))
	for _, e := range entries {
		docs := make([]int, 0, len(e.DocNames))
		for _, name := range e.DocNames {
			docs = append(docs, positions[name])
		}
		table[e.Term] = searchindex.NewPostings(docs...)
	}
	return table
}
