package main

import (
	"cmp"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

// Run executes the publish command. The build is loaded the way a search
// service would load it, so a build that would be rejected is never
// announced.
func (c *PublishCmd) Run(deps *Dependencies) error {
	cfg := deps.Config
	project := cmp.Or(c.Project, cfg.Index.Project)

	var store indexstore.Store
	switch c.Store {
	case config.SourcePostgres:
		pg, err := postgres.New(deps.Ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pg.Close()
		store = indexstore.NewPostgresStore(pg, project, 0)
	default:
		store = indexstore.NewFileStore(cmp.Or(c.File, cfg.Index.Path), project)
	}

	build, err := indexstore.NewLoader(store, cfg.Index.ExpectedEnvVersion).Load(deps.Ctx)
	if err != nil {
		return err
	}
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexBuilt)
	defer producer.Close()
	if err := indexstore.Announce(deps.Ctx, producer, build); err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "announced %s (%s) on %s\n", build.Fingerprint, build.Location, cfg.Kafka.Topics.IndexBuilt)
	return nil
}
