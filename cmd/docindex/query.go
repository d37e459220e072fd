package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
)

// Run executes the query command.
func (c *QueryCmd) Run(deps *Dependencies) error {
	if c.Limit < 1 {
		return fmt.Errorf("--limit must be positive")
	}
	idx, err := readIndex(c.File)
	if err != nil {
		return err
	}
	plan := parser.Parse(strings.Join(c.Query, " "))
	result, err := executor.New().Execute(deps.Ctx, idx, plan, c.Limit)
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(deps.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(deps.Stdout, "%d results for %q\n", result.TotalHits, result.Query)
	tw := tabwriter.NewWriter(deps.Stdout, 0, 4, 2, ' ', 0)
	for _, r := range result.Results {
		target := r.DocName
		if r.Anchor != "" {
			target += "#" + r.Anchor
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Score, target, r.Title)
	}
	return tw.Flush()
}
