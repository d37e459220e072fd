package main

import (
	"cmp"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/htmlsource"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

// Run executes the build command: parse the pages, freeze the index, save
// it to the chosen store and optionally announce it.
func (c *BuildCmd) Run(deps *Dependencies) error {
	cfg := deps.Config
	project := cmp.Or(c.Project, cfg.Index.Project)
	suffix := cmp.Or(c.SourceSuffix, cfg.Index.SourceSuffix)
	workers := c.Workers
	if workers <= 0 {
		workers = cfg.Index.BuildWorkers
	}
	if c.Store == config.SourceFile && c.Output == "" {
		return fmt.Errorf("-o is required when saving to the file store")
	}

	b := indexer.NewBuilder(
		indexer.WithEnvVersion(cfg.Index.ExpectedEnvVersion),
		indexer.WithLogger(deps.Logger.With("component", "indexer")),
	)
	src := htmlsource.New(c.Dir, htmlsource.WithSourceSuffix(suffix), htmlsource.WithWorkers(workers))
	pages, err := src.Build(deps.Ctx, b)
	if err != nil {
		return err
	}
	idx, err := b.Freeze()
	if err != nil {
		return err
	}
	build := indexstore.NewBuild(project, idx, time.Now())

	var store indexstore.Store
	switch c.Store {
	case config.SourcePostgres:
		pg, err := postgres.New(deps.Ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pg.Close()
		ps := indexstore.NewPostgresStore(pg, project, c.Keep)
		if err := ps.EnsureSchema(deps.Ctx); err != nil {
			return err
		}
		store = ps
	default:
		store = indexstore.NewFileStore(c.Output, project)
	}
	if err := store.Save(deps.Ctx, build); err != nil {
		return fmt.Errorf("saving build: %w", err)
	}

	if c.Publish {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexBuilt)
		defer producer.Close()
		if err := indexstore.Announce(deps.Ctx, producer, build); err != nil {
			return err
		}
	}

	stats := idx.Stats()
	fmt.Fprintf(deps.Stdout, "built %s from %d pages: %d documents, %d terms, %d title terms\n",
		build.Location, pages, stats.Documents, stats.Terms, stats.TitleTerms)
	fmt.Fprintf(deps.Stdout, "fingerprint %s\n", build.Fingerprint)
	return nil
}
