package notify

import (
	"context"

	"github.com/google/uuid"

	"clubsync/pkg/kafka"
	"clubsync/pkg/logger"
	"clubsync/pkg/model"
)

const (
	EventRecordResolved   = "record.resolved"
	EventRecordSuperseded = "record.superseded"
	EventImportCompleted  = "import.completed"

	schemaVersion = "1.0"
	eventSource   = "clubsync-reconcile"
)

type kafkaPublisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

func NewKafkaPublisher(producer *kafka.Producer, log *logger.Logger) Publisher {
	return &kafkaPublisher{
		producer: producer,
		log:      log,
	}
}

func (p *kafkaPublisher) RecordResolved(ctx context.Context, record *model.ExternalBookingRecord) {
	p.publish(ctx, EventRecordResolved, record.Key(), record)
}

func (p *kafkaPublisher) RecordSuperseded(ctx context.Context, record *model.ExternalBookingRecord) {
	p.publish(ctx, EventRecordSuperseded, record.Key(), record)
}

func (p *kafkaPublisher) ImportCompleted(ctx context.Context, run *model.ImportRun) {
	p.publish(ctx, EventImportCompleted, run.ID, run)
}

func (p *kafkaPublisher) publish(ctx context.Context, eventType, key string, payload any) {
	msg := kafka.NewMessage().
		WithKey(key).
		WithValue(payload).
		WithEventID(uuid.New().String()).
		WithEventType(eventType).
		WithSchemaVersion(schemaVersion).
		WithSource(eventSource).
		Build()

	if err := p.producer.Publish(ctx, msg); err != nil {
		p.log.Error("Failed to publish event",
			"event_type", eventType,
			"key", key,
			"error", err,
		)
	}
}
