// Package index holds the mutable word tables a build accumulates before it
// is frozen into a search index. Documents are keyed by docname so a
// document fed twice replaces its earlier contribution.
package index

import (
	"sort"
	"sync"
)

// DocInfo is the per-document metadata written to the index tables.
type DocInfo struct {
	Name     string
	Filename string
	Title    string
}

// TermEntry is one word of a table with the docnames it occurs in, sorted.
type TermEntry struct {
	Term     string
	DocNames []string
}

// MemoryIndex maps words to the set of documents containing them, once for
// body text and once for titles.
type MemoryIndex struct {
	mu     sync.RWMutex
	docs   map[string]DocInfo
	terms  map[string]map[string]struct{}
	titles map[string]map[string]struct{}
	size   int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		docs:   make(map[string]DocInfo),
		terms:  make(map[string]map[string]struct{}),
		titles: make(map[string]map[string]struct{}),
	}
}

// AddDocument records doc with the given title words and body words,
// replacing whatever was recorded for the same docname before.
func (m *MemoryIndex) AddDocument(doc DocInfo, titleWords, bodyWords []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(doc.Name)
	m.docs[doc.Name] = doc
	for _, w := range titleWords {
		m.size += add(m.titles, w, doc.Name)
	}
	for _, w := range bodyWords {
		m.size += add(m.terms, w, doc.Name)
	}
}

// RemoveDocument drops docname from every table. It reports whether the
// document was present.
func (m *MemoryIndex) RemoveDocument(docname string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(docname)
}

func (m *MemoryIndex) removeLocked(docname string) bool {
	if _, ok := m.docs[docname]; !ok {
		return false
	}
	delete(m.docs, docname)
	m.size -= prune(m.terms, docname)
	m.size -= prune(m.titles, docname)
	return true
}

// Docs returns the recorded documents sorted by docname.
func (m *MemoryIndex) Docs() []DocInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make([]DocInfo, 0, len(m.docs))
	for _, d := range m.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Name < docs[j].Name
	})
	return docs
}

// Snapshot returns the body table and the title table, each sorted by term.
func (m *MemoryIndex) Snapshot() (terms, titles []TermEntry) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return snapshot(m.terms), snapshot(m.titles)
}

// Size approximates the number of (word, document) pairs held.
func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func add(table map[string]map[string]struct{}, word, docname string) int64 {
	set, ok := table[word]
	if !ok {
		set = make(map[string]struct{})
		table[word] = set
	}
	if _, ok := set[docname]; ok {
		return 0
	}
	set[docname] = struct{}{}
	return 1
}

func prune(table map[string]map[string]struct{}, docname string) int64 {
	var removed int64
	for word, set := range table {
		if _, ok := set[docname]; !ok {
			continue
		}
		delete(set, docname)
		removed++
		if len(set) == 0 {
			delete(table, word)
		}
	}
	return removed
}

func snapshot(table map[string]map[string]struct{}) []TermEntry {
	entries := make([]TermEntry, 0, len(table))
	for term, set := range table {
		entries = append(entries, TermEntry{Term: term, DocNames: sortedSet(set)})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
