package analytics

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// HandleSearchEvent returns a Kafka handler that aggregates the search
// events published by search instances. Messages that are not search events
// are skipped so that the consumer does not stall on them.
func HandleSearchEvent(agg *Aggregator) kafka.MessageHandler {
	logger := slog.Default().With("component", "analytics-consumer")
	return func(_ context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			logger.Error("failed to decode search event", "error", err, "key", string(key))
			return nil
		}
		switch event.Type {
		case EventSearch, EventZeroResult:
			agg.Record(event)
		default:
			logger.Debug("ignoring event", "type", event.Type)
		}
		return nil
	}
}
