package ports

import (
	"context"

	"github.com/bft-labs/zonecast/internal/domain"
)

// TriggerSink accepts trigger records from the delivery queue.
// The in-process dispatcher and the HTTP transport client both satisfy it.
type TriggerSink interface {
	// Deliver blocks until the record is delivered or definitively failed.
	// Failures are *domain.DeliveryError.
	Deliver(ctx context.Context, record domain.TriggerRecord) error
}
