package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
)

// Dependencies is bound into every command's Run.
type Dependencies struct {
	Ctx    context.Context
	Stdout io.Writer
	Stderr io.Writer
	Config *config.Config
	Logger *slog.Logger
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Config   string `short:"c" help:"Config file; DOCSEARCH_* variables override it." type:"path"`
	LogLevel string `name:"log-level" default:"warn" enum:"debug,info,warn,error" help:"Log level for progress written to stderr."`

	Inspect  InspectCmd  `cmd:"" help:"Show table sizes, extension versions and the fingerprint of an index."`
	Validate ValidateCmd `cmd:"" help:"Check an index's invariants and extension versions."`
	Lookup   LookupCmd   `cmd:"" help:"Look a term up as stored, falling back to its stems."`
	Query    QueryCmd    `cmd:"" help:"Run a search against an index file."`
	Fmt      FmtCmd      `cmd:"" help:"Rewrite an index in canonical form."`
	Build    BuildCmd    `cmd:"" help:"Build an index from a directory of rendered HTML pages."`
	Publish  PublishCmd  `cmd:"" help:"Announce the newest stored build on the index-built Kafka topic."`
	Token    TokenCmd    `cmd:"" help:"Generate an admin token and the digest to list in server.adminTokens."`
}

// InspectCmd is the "inspect" subcommand.
type InspectCmd struct {
	File string `arg:"" type:"existingfile" help:"searchindex.js to read."`
}

// ValidateCmd is the "validate" subcommand.
type ValidateCmd struct {
	File  string         `arg:"" type:"existingfile" help:"searchindex.js to read."`
	Env   map[string]int `help:"Required extension version, as name=version (repeatable). Defaults to index.expectedEnvVersion."`
	NoEnv bool           `name:"no-env" help:"Skip the extension version check."`
}

// LookupCmd is the "lookup" subcommand.
type LookupCmd struct {
	File string `arg:"" type:"existingfile" help:"searchindex.js to read."`
	Term string `arg:"" help:"Term as stored in the index, or words to stem first."`
}

// QueryCmd is the "query" subcommand.
type QueryCmd struct {
	File  string   `arg:"" type:"existingfile" help:"searchindex.js to read."`
	Query []string `arg:"" help:"Search words; OR, NOT and -word are understood."`
	Limit int      `short:"n" default:"10" help:"Maximum number of results."`
	JSON  bool     `help:"Print the result as JSON."`
}

// FmtCmd is the "fmt" subcommand.
type FmtCmd struct {
	File   string `arg:"" type:"existingfile" help:"searchindex.js to read."`
	Output string `short:"o" type:"path" help:"Write here instead of stdout."`
}

// BuildCmd is the "build" subcommand.
type BuildCmd struct {
	Dir          string `arg:"" type:"existingdir" help:"Directory of rendered HTML pages."`
	Output       string `short:"o" type:"path" help:"Index file to write (file store)."`
	Project      string `short:"p" help:"Project the build belongs to. Defaults to index.project."`
	SourceSuffix string `name:"source-suffix" help:"Suffix turning docnames into source filenames. Defaults to index.sourceSuffix."`
	Store        string `default:"file" enum:"file,postgres" help:"Where to save the build."`
	Keep         int    `default:"10" help:"Builds kept per project in the postgres store; 0 keeps all."`
	Publish      bool   `help:"Announce the build on the index-built Kafka topic."`
	Workers      int    `short:"w" help:"Pages parsed concurrently. Defaults to index.buildWorkers."`
}

// PublishCmd is the "publish" subcommand.
type PublishCmd struct {
	File    string `arg:"" optional:"" type:"existingfile" help:"Index file (file store). Defaults to index.path."`
	Project string `short:"p" help:"Project the build belongs to. Defaults to index.project."`
	Store   string `default:"file" enum:"file,postgres" help:"Where the build is stored."`
}

// TokenCmd is the "token" subcommand.
type TokenCmd struct{}

func readIndex(path string) (*searchindex.SearchIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	idx, err := searchindex.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return idx, nil
}
