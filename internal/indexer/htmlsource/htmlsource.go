// Package htmlsource reads the HTML output of a documentation build and
// turns every page into an indexer.Document.
package htmlsource

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Content containers tried in order; the first one present is indexed.
var contentSelectors = []string{
	`div[role="main"]`,
	"div.body",
	"article",
	"body",
}

// Generated pages that are not documents.
var skipPages = map[string]struct{}{
	"search":      {},
	"genindex":    {},
	"py-modindex": {},
}

// Source walks a directory of rendered pages.
type Source struct {
	root         string
	sourceSuffix string
	workers      int
	logger       *slog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithSourceSuffix sets the suffix appended to docnames to form the
// filenames table (".rst", ".ipynb", ...). Empty leaves filenames out.
func WithSourceSuffix(suffix string) Option {
	return func(s *Source) { s.sourceSuffix = suffix }
}

// WithWorkers bounds the number of pages parsed concurrently.
func WithWorkers(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.workers = n
		}
	}
}

func New(root string, opts ...Option) *Source {
	s := &Source{
		root:    root,
		workers: 4,
		logger:  slog.Default().With("component", "htmlsource"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pages lists the page paths under the root, relative and slash-separated.
// Directories starting with "_" or "." (static assets, page sources) are
// skipped.
func (s *Source) Pages() ([]string, error) {
	var pages []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if p != s.root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(name) != ".html" {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if _, skip := skipPages[strings.TrimSuffix(rel, ".html")]; skip {
			return nil
		}
		pages = append(pages, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", s.root, err)
	}
	return pages, nil
}

// Build parses every page and feeds it to b. It returns the number of pages
// fed.
func (s *Source) Build(ctx context.Context, b *indexer.Builder) (int, error) {
	pages, err := s.Pages()
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "no HTML pages under %s", s.root)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, page := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := s.readPage(page)
			if err != nil {
				return err
			}
			return b.Feed(doc)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	s.logger.Info("html pages indexed", "root", s.root, "pages", len(pages))
	return len(pages), nil
}

func (s *Source) readPage(page string) (indexer.Document, error) {
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(page)))
	if err != nil {
		return indexer.Document{}, fmt.Errorf("opening page %s: %w", page, err)
	}
	defer f.Close()

	docname := strings.TrimSuffix(page, path.Ext(page))
	filename := ""
	if s.sourceSuffix != "" {
		filename = docname + s.sourceSuffix
	}
	doc, err := ParsePage(f, docname, filename)
	if err != nil {
		return indexer.Document{}, fmt.Errorf("parsing page %s: %w", page, err)
	}
	return doc, nil
}

// ParsePage extracts the title, section titles and text of one rendered
// page.
func ParsePage(r io.Reader, docname, filename string) (indexer.Document, error) {
	html, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return indexer.Document{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid HTML: %v", err)
	}
	html.Find("script, style, .headerlink").Remove()

	content := html.Selection
	for _, sel := range contentSelectors {
		if found := html.Find(sel).First(); found.Length() > 0 {
			content = found
			break
		}
	}

	var sections []string
	content.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, h *goquery.Selection) {
		if text := cleanText(h.Text()); text != "" {
			sections = append(sections, text)
		}
	})

	title := ""
	if len(sections) > 0 {
		title = sections[0]
	} else {
		title = pageTitle(html)
		if title != "" {
			sections = append(sections, title)
		}
	}

	return indexer.NewDocument(docname, filename, title, sections, blockText(content)), nil
}

// Elements whose boundaries separate words in rendered output.
var blockElements = map[string]struct{}{
	"address": {}, "article": {}, "aside": {}, "blockquote": {}, "br": {},
	"caption": {}, "dd": {}, "div": {}, "dl": {}, "dt": {}, "figcaption": {},
	"figure": {}, "footer": {}, "h1": {}, "h2": {}, "h3": {}, "h4": {},
	"h5": {}, "h6": {}, "header": {}, "hr": {}, "li": {}, "main": {},
	"nav": {}, "ol": {}, "p": {}, "pre": {}, "section": {}, "table": {},
	"tbody": {}, "td": {}, "tfoot": {}, "th": {}, "thead": {}, "tr": {},
	"ul": {},
}

// blockText is Selection.Text with a space at every block boundary, so
// <p>foo</p><p>bar</p> reads as two words while foo<em>bar</em> stays one.
func blockText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, n *goquery.Selection) {
			name := goquery.NodeName(n)
			if name == "#text" {
				b.WriteString(n.Text())
				return
			}
			_, block := blockElements[name]
			if block {
				b.WriteByte(' ')
			}
			walk(n)
			if block {
				b.WriteByte(' ')
			}
		})
	}
	walk(sel)
	return b.String()
}

// pageTitle returns the <title> text up to the separator that precedes the
// site name.
func pageTitle(html *goquery.Document) string {
	title := cleanText(html.Find("title").First().Text())
	if before, _, ok := strings.Cut(title, " \u2014 "); ok {
		return strings.TrimSpace(before)
	}
	return title
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
