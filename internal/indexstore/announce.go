package indexstore

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// BuiltEvent describes b for the index-built topic.
func BuiltEvent(b *Build) analytics.IndexBuiltEvent {
	stats := b.Index.Stats()
	return analytics.IndexBuiltEvent{
		Type:        analytics.EventIndexBuilt,
		Project:     b.Project,
		Fingerprint: b.Fingerprint,
		DocCount:    stats.Documents,
		TermCount:   stats.Terms,
		Store:       b.Location,
		BuiltAt:     b.BuiltAt,
	}
}

// Announce publishes a stored build, keyed by project so that one project's
// announcements stay ordered.
func Announce(ctx context.Context, pub kafka.Publisher, b *Build) error {
	if err := pub.Publish(ctx, kafka.Event{Key: b.Project, Value: BuiltEvent(b)}); err != nil {
		return fmt.Errorf("announcing build %s: %w", b.Fingerprint, err)
	}
	return nil
}
