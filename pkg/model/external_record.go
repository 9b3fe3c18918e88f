package model

import "time"

const SourceTrackman = "trackman"

// Stored resolution statuses. A record that needs more occupants is not a
// stored status: it is derived from declared_count vs attached assignments.
const (
	StatusUnresolved = "unresolved"
	StatusResolved   = "resolved"
	StatusSuperseded = "superseded"
)

// Failure reasons recorded on records that stay unresolved.
const (
	FailureNoMatch              = "no_match"
	FailureAmbiguous            = "ambiguous"
	FailureDirectoryUnavailable = "directory_unavailable"
	FailureBookingUnavailable   = "booking_unavailable"
)

// ExternalBookingRecord is one booking entry reported by the external
// scheduling system, via CSV import row or webhook payload.
type ExternalBookingRecord struct {
	ID         string `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Source     string `json:"source" bson:"source" validate:"required"`
	ExternalID string `json:"external_id" bson:"external_id" validate:"required"`

	OccupantName string `json:"occupant_name" bson:"occupant_name"`
	// RawEmail keeps the original casing for audit; EmailKey is the lowercased
	// form every lookup and cascade query uses.
	RawEmail string `json:"raw_email" bson:"raw_email"`
	EmailKey string `json:"-" bson:"email_key"`

	ResourceID    string    `json:"resource_id" bson:"resource_id" validate:"required"`
	Date          time.Time `json:"date" bson:"date" validate:"required"`
	StartTime     string    `json:"start_time" bson:"start_time" validate:"required,clock"`
	EndTime       string    `json:"end_time" bson:"end_time" validate:"omitempty,clock"`
	DeclaredCount int       `json:"declared_count" bson:"declared_count" validate:"omitempty,min=1,max=20"`
	Notes         string    `json:"notes,omitempty" bson:"notes,omitempty"`

	Status        string `json:"status" bson:"status"`
	ResolvedEmail string `json:"resolved_email,omitempty" bson:"resolved_email,omitempty"`
	FailureReason string `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
	// ResolutionOutcome records how the record was first resolved (matched or
	// linked) so re-ingesting it reports the same outcome.
	ResolutionOutcome string `json:"resolution_outcome,omitempty" bson:"resolution_outcome,omitempty"`

	// BookingID links the club's own reservation once the record is resolved
	// against it. Empty when no canonical booking was found.
	BookingID string `json:"booking_id,omitempty" bson:"booking_id,omitempty"`

	ImportRunID    string `json:"import_run_id,omitempty" bson:"import_run_id,omitempty"`
	WebhookEventID string `json:"webhook_event_id,omitempty" bson:"webhook_event_id,omitempty"`

	ResolvedBy string     `json:"resolved_by,omitempty" bson:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty" bson:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" bson:"updated_at"`
}

// Key identifies the record within its source.
func (r *ExternalBookingRecord) Key() string {
	return r.Source + ":" + r.ExternalID
}

func (r *ExternalBookingRecord) IsResolved() bool {
	return r.Status == StatusResolved
}

// NeedsPlayersRecord is a resolved record decorated with the number of
// occupant slots currently filled on its booking.
type NeedsPlayersRecord struct {
	ExternalBookingRecord `bson:",inline"`
	Filled                int `json:"filled" bson:"filled"`
}
