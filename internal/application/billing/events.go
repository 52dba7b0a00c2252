package billing

import (
	"context"

	"go.uber.org/zap"

	"github.com/spa/backend/internal/domain/shared"
)

// publishEvents drains the pending domain events of the given aggregates and
// hands them to the publisher. Services call this after their transaction has
// committed; the ledger write is already durable, so a publish failure is
// logged and swallowed.
func publishEvents(ctx context.Context, pub shared.EventPublisher, logger *zap.Logger, aggregates ...shared.AggregateRoot) {
	if pub == nil {
		return
	}
	for _, agg := range aggregates {
		events := agg.GetDomainEvents()
		if len(events) == 0 {
			continue
		}
		agg.ClearDomainEvents()
		if err := pub.Publish(ctx, events...); err != nil {
			logger.Warn("Failed to publish domain events",
				zap.Int("count", len(events)),
				zap.Error(err),
			)
		}
	}
}
