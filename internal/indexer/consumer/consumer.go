// Package consumer reacts to index-built announcements by reloading the
// served search index.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/holder"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// Reloader is satisfied by *holder.Reloader.
type Reloader interface {
	Reload(ctx context.Context) (*holder.Snapshot, bool, error)
}

// IndexConsumer wraps a Kafka consumer subscribed to the index-built topic.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start consumes announcements until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleIndexBuilt returns a handler that reloads the index when a build of
// project is announced whose fingerprint differs from the served one.
// Undecodable messages and other projects' builds are skipped.
func HandleIndexBuilt(project string, h *holder.Holder, r Reloader) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer", "project", project)
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[analytics.IndexBuiltEvent](value)
		if err != nil {
			logger.Error("failed to decode index-built event", "error", err, "key", string(key))
			return nil
		}
		if event.Project != project {
			logger.Debug("ignoring build of another project", "event_project", event.Project)
			return nil
		}
		if event.Fingerprint != "" && event.Fingerprint == h.Current().Fingerprint() {
			logger.Debug("announced build already served", "fingerprint", event.Fingerprint)
			return nil
		}

		snap, changed, err := r.Reload(ctx)
		if err != nil {
			return fmt.Errorf("reloading after build %s: %w", event.Fingerprint, err)
		}
		logger.Info("index reloaded from announcement",
			"announced", event.Fingerprint,
			"serving", snap.Fingerprint(),
			"changed", changed,
			"store", event.Store,
		)
		return nil
	}
}
