package consumer

import (
	"context"
	"time"

	"clubsync/internal/reconcile/service"
	apperrors "clubsync/pkg/errors"
	"clubsync/pkg/kafka"
	kafka_config "clubsync/pkg/kafka/config"
	kafka_middleware "clubsync/pkg/kafka/middleware"
	"clubsync/pkg/logger"
	"clubsync/pkg/model"
)

const (
	Topic    = "trackman.bookings"
	GroupID  = "clubsync-reconcile"
	DLQTopic = "trackman.bookings.dlq"

	eventBookingCancelled = "booking.cancelled"
)

// bookingEvent is the broker-side shape of a scheduler notification. The
// event type travels in the message headers.
type bookingEvent struct {
	BookingID   string `json:"booking_id"`
	PlayerName  string `json:"player_name"`
	Email       string `json:"email"`
	BayID       string `json:"bay_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	PlayerCount int    `json:"player_count"`
	Notes       string `json:"notes"`
}

// BookingEventConsumer drains scheduler events from the broker into the
// reconciliation engine. Malformed payloads are permanent failures and go
// straight to the DLQ; engine outages are transient and retried.
type BookingEventConsumer struct {
	consumer *kafka.Consumer
	engine   service.ReconcileService
	log      *logger.Logger
}

func NewBookingEventConsumer(
	cfg *kafka_config.Config,
	engine service.ReconcileService,
	log *logger.Logger,
) (*BookingEventConsumer, error) {
	c := &BookingEventConsumer{
		engine: engine,
		log:    log,
	}

	consumer, err := kafka.NewConsumer(cfg, Topic, GroupID, DLQTopic, c.handle)
	if err != nil {
		return nil, err
	}
	consumer.Use(kafka_middleware.LoggingConsumerMiddleware(log))

	c.consumer = consumer
	return c, nil
}

func (c *BookingEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *BookingEventConsumer) Close() error {
	return c.consumer.Close()
}

func (c *BookingEventConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var event bookingEvent
	if err := msg.DecodeValue(&event); err != nil {
		return kafka.NewPermanentError("undecodable booking event", err)
	}
	if event.BookingID == "" {
		return kafka.NewPermanentError("booking event without a booking id", nil)
	}

	if msg.GetEventType() == eventBookingCancelled {
		_, err := c.engine.Cancel(ctx, model.SourceTrackman, event.BookingID)
		if err != nil && apperrors.AsAppError(err).Code == apperrors.CodeNotFound {
			c.log.Warn("Cancellation event for unknown record",
				"event_id", msg.GetEventID(),
				"external_id", event.BookingID,
			)
			return nil
		}
		return err
	}

	record, err := recordFromEvent(msg.GetEventID(), &event)
	if err != nil {
		return kafka.NewPermanentError("invalid booking event payload", err)
	}

	result, err := c.engine.Ingest(ctx, record)
	if err != nil {
		return err
	}

	c.log.Info("Booking event ingested",
		"event_id", msg.GetEventID(),
		"external_id", event.BookingID,
		"outcome", result.Outcome,
	)
	return nil
}

func recordFromEvent(eventID string, event *bookingEvent) (*model.ExternalBookingRecord, error) {
	date, err := time.ParseInLocation("2006-01-02", event.Date, time.UTC)
	if err != nil {
		return nil, err
	}

	return &model.ExternalBookingRecord{
		Source:         model.SourceTrackman,
		ExternalID:     event.BookingID,
		OccupantName:   event.PlayerName,
		RawEmail:       event.Email,
		ResourceID:     event.BayID,
		Date:           date,
		StartTime:      event.StartTime,
		EndTime:        event.EndTime,
		DeclaredCount:  event.PlayerCount,
		Notes:          event.Notes,
		WebhookEventID: eventID,
	}, nil
}
