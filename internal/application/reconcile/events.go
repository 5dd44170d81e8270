package reconcile

import (
	"context"

	"github.com/openbooks/backend/internal/domain/shared"
)

// eventCarrier is the slice of aggregate behavior event publishing needs
type eventCarrier interface {
	GetDomainEvents() []shared.DomainEvent
	ClearDomainEvents()
}

// publishEvents drains collected domain events onto the bus after a
// successful save. Publish failures stay on the bus's own log;
// reconciliation never fails because a subscriber did.
func publishEvents(ctx context.Context, bus shared.EventPublisher, aggregates ...eventCarrier) {
	if bus == nil {
		return
	}
	for _, agg := range aggregates {
		events := agg.GetDomainEvents()
		if len(events) == 0 {
			continue
		}
		_ = bus.Publish(ctx, events...)
		agg.ClearDomainEvents()
	}
}
