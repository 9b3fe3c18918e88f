package notify

import (
	"context"

	"clubsync/pkg/model"
)

// Publisher emits domain events for downstream consumers (front desk
// dashboards, audit sinks). Publishing is best effort: a dropped event never
// fails the operation that produced it.
type Publisher interface {
	RecordResolved(ctx context.Context, record *model.ExternalBookingRecord)
	RecordSuperseded(ctx context.Context, record *model.ExternalBookingRecord)
	ImportCompleted(ctx context.Context, run *model.ImportRun)
}

type noopPublisher struct{}

// NewNoopPublisher is used when no broker is configured.
func NewNoopPublisher() Publisher {
	return &noopPublisher{}
}

func (noopPublisher) RecordResolved(context.Context, *model.ExternalBookingRecord)   {}
func (noopPublisher) RecordSuperseded(context.Context, *model.ExternalBookingRecord) {}
func (noopPublisher) ImportCompleted(context.Context, *model.ImportRun)              {}
