package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/julienschmidt/httprouter"

	"clubsync/internal/reconcile/service"
	reconcilevalidator "clubsync/internal/reconcile/validator"
	apperrors "clubsync/pkg/errors"
	httputil "clubsync/pkg/http"
	"clubsync/pkg/logger"
	"clubsync/pkg/model"
)

const (
	eventBookingCreated   = "booking.created"
	eventBookingUpdated   = "booking.updated"
	eventBookingCancelled = "booking.cancelled"
)

type trackmanEvent struct {
	EventID   string          `json:"event_id" validate:"required"`
	EventType string          `json:"event_type" validate:"required,oneof=booking.created booking.updated booking.cancelled"`
	Data      trackmanBooking `json:"data"`
}

type trackmanBooking struct {
	BookingID   string `json:"booking_id" validate:"required"`
	PlayerName  string `json:"player_name"`
	Email       string `json:"email"`
	BayID       string `json:"bay_id"`
	Date        string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime   string `json:"start_time" validate:"omitempty,clock"`
	EndTime     string `json:"end_time" validate:"omitempty,clock"`
	PlayerCount int    `json:"player_count" validate:"omitempty,min=1,max=20"`
	Notes       string `json:"notes"`
}

// WebhookHandler receives push notifications from the external scheduler.
// Signature verification happens in middleware before requests reach it.
type WebhookHandler struct {
	service  service.ReconcileService
	validate *validator.Validate
	log      *logger.Logger
}

func NewWebhookHandler(svc service.ReconcileService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		service:  svc,
		validate: reconcilevalidator.New(),
		log:      log,
	}
}

func (h *WebhookHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/webhooks/trackman", h.HandleEvent)
}

func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var event trackmanEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.writeError(w, apperrors.InvalidInput("Invalid webhook payload"))
		return
	}
	if err := reconcilevalidator.ValidateStruct(h.validate, &event); err != nil {
		h.writeError(w, err)
		return
	}

	h.log.Info("Webhook event received",
		"event_id", event.EventID,
		"event_type", event.EventType,
		"external_id", event.Data.BookingID,
	)

	switch event.EventType {
	case eventBookingCancelled:
		h.handleCancellation(w, r, &event)
	default:
		h.handleUpsert(w, r, &event)
	}
}

func (h *WebhookHandler) handleUpsert(w http.ResponseWriter, r *http.Request, event *trackmanEvent) {
	record, err := recordFromEvent(event)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.service.Ingest(r.Context(), record)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := httputil.WriteSuccess(w, map[string]any{
		"event_id": event.EventID,
		"outcome":  result.Outcome,
		"record":   result.Record,
	}); err != nil {
		h.log.Error("failed to write success response", "handler", "HandleEvent", "error", err)
	}
}

func (h *WebhookHandler) handleCancellation(w http.ResponseWriter, r *http.Request, event *trackmanEvent) {
	record, err := h.service.Cancel(r.Context(), model.SourceTrackman, event.Data.BookingID)
	if err != nil {
		// A cancellation for a record we never saw needs no action; reporting
		// an error would only make the sender retry forever.
		if apperrors.AsAppError(err).Code == apperrors.CodeNotFound {
			h.log.Warn("Cancellation for unknown record",
				"event_id", event.EventID,
				"external_id", event.Data.BookingID,
			)
			if writeErr := httputil.WriteSuccess(w, map[string]any{
				"event_id": event.EventID,
				"outcome":  "ignored",
			}); writeErr != nil {
				h.log.Error("failed to write success response", "handler", "HandleEvent", "error", writeErr)
			}
			return
		}
		h.writeError(w, err)
		return
	}

	if err := httputil.WriteSuccess(w, map[string]any{
		"event_id": event.EventID,
		"outcome":  "superseded",
		"record":   record,
	}); err != nil {
		h.log.Error("failed to write success response", "handler", "HandleEvent", "error", err)
	}
}

func recordFromEvent(event *trackmanEvent) (*model.ExternalBookingRecord, error) {
	booking := event.Data
	if booking.BayID == "" || booking.Date == "" || booking.StartTime == "" {
		return nil, apperrors.InvalidInput("bay_id, date and start_time are required for booking events")
	}

	date, err := time.ParseInLocation("2006-01-02", booking.Date, time.UTC)
	if err != nil {
		return nil, apperrors.InvalidInput("date must be formatted YYYY-MM-DD")
	}

	return &model.ExternalBookingRecord{
		Source:         model.SourceTrackman,
		ExternalID:     booking.BookingID,
		OccupantName:   booking.PlayerName,
		RawEmail:       booking.Email,
		ResourceID:     booking.BayID,
		Date:           date,
		StartTime:      booking.StartTime,
		EndTime:        booking.EndTime,
		DeclaredCount:  booking.PlayerCount,
		Notes:          booking.Notes,
		WebhookEventID: event.EventID,
	}, nil
}

func (h *WebhookHandler) writeError(w http.ResponseWriter, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", "HandleEvent", "error", writeErr)
	}
}
