package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
)

// Run executes the inspect command.
func (c *InspectCmd) Run(deps *Dependencies) error {
	idx, err := readIndex(c.File)
	if err != nil {
		return err
	}
	stats := idx.Stats()

	tw := tabwriter.NewWriter(deps.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "fingerprint\t%s\n", idx.Fingerprint())
	fmt.Fprintf(tw, "documents\t%d\n", stats.Documents)
	fmt.Fprintf(tw, "terms\t%d\n", stats.Terms)
	fmt.Fprintf(tw, "title terms\t%d\n", stats.TitleTerms)
	fmt.Fprintf(tw, "objects\t%d\n", stats.Objects)
	if len(idx.Extra) > 0 {
		extra := make([]string, 0, len(idx.Extra))
		for name := range idx.Extra {
			extra = append(extra, name)
		}
		slices.Sort(extra)
		fmt.Fprintf(tw, "other fields\t%s\n", strings.Join(extra, ", "))
	}
	fmt.Fprintln(tw, "envversion")
	for _, name := range sortedNames(idx.EnvVersion) {
		fmt.Fprintf(tw, "  %s\t%d\n", name, idx.EnvVersion[name])
	}
	return tw.Flush()
}

// Run executes the validate command. Every problem found is printed before
// the command fails.
func (c *ValidateCmd) Run(deps *Dependencies) error {
	idx, err := readIndex(c.File)
	if err != nil {
		return err
	}

	var problems []string
	if err := idx.Validate(); err != nil {
		var verr *searchindex.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		problems = append(problems, verr.Problems...)
	}
	if !c.NoEnv {
		expected := c.Env
		if len(expected) == 0 {
			expected = deps.Config.Index.ExpectedEnvVersion
		}
		if err := idx.CheckEnvVersion(expected); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(deps.Stdout, "FAIL %s\n", p)
		}
		return fmt.Errorf("%s: %d problems", c.File, len(problems))
	}
	fmt.Fprintf(deps.Stdout, "ok %s (%d documents, fingerprint %s)\n", c.File, idx.Len(), idx.Fingerprint())
	return nil
}

// Run executes the lookup command.
func (c *LookupCmd) Run(deps *Dependencies) error {
	idx, err := readIndex(c.File)
	if err != nil {
		return err
	}

	// A word that is not stored as given is looked up by the terms a build
	// would have stored for it.
	terms := []string{c.Term}
	if !stored(idx, c.Term) {
		terms = terms[:0]
		for _, tok := range tokenizer.Tokenize(c.Term) {
			if !slices.Contains(terms, tok.Term) {
				terms = append(terms, tok.Term)
			}
		}
		if len(terms) > 0 && !slices.Equal(terms, []string{c.Term}) {
			fmt.Fprintf(deps.Stdout, "%q stems to %s\n", c.Term, strings.Join(terms, " "))
		}
	}

	tw := tabwriter.NewWriter(deps.Stdout, 0, 4, 2, ' ', 0)
	found := false
	for _, term := range terms {
		for _, table := range []struct {
			name string
			docs []int
		}{{"terms", idx.Lookup(term)}, {"titleterms", idx.LookupTitle(term)}} {
			for _, i := range table.docs {
				doc, _ := idx.Doc(i)
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", table.name, term, i, doc.Name, doc.Title)
				found = true
			}
		}
	}
	if !found {
		fmt.Fprintf(deps.Stdout, "%q is not in the index\n", c.Term)
		return nil
	}
	return tw.Flush()
}

func stored(idx *searchindex.SearchIndex, term string) bool {
	return len(idx.Lookup(term)) > 0 || len(idx.LookupTitle(term)) > 0
}

// Run executes the fmt command.
func (c *FmtCmd) Run(deps *Dependencies) error {
	idx, err := readIndex(c.File)
	if err != nil {
		return err
	}
	if c.Output == "" {
		return searchindex.Encode(deps.Stdout, idx)
	}
	if err := os.WriteFile(c.Output, searchindex.Marshal(idx), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", c.Output, err)
	}
	deps.Logger.Info("index rewritten", "from", c.File, "to", c.Output, "fingerprint", idx.Fingerprint())
	return nil
}

func sortedNames(m map[string]int) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
