package model

import "time"

// ImportRunSummary tallies what happened to the rows of one bulk import.
type ImportRunSummary struct {
	Total                int `json:"total" bson:"total"`
	Matched              int `json:"matched" bson:"matched"`
	Linked               int `json:"linked" bson:"linked"`
	Unmatched            int `json:"unmatched" bson:"unmatched"`
	Skipped              int `json:"skipped" bson:"skipped"`
	RemovedFromUnmatched int `json:"removed_from_unmatched" bson:"removed_from_unmatched"`
	CancelledBookings    int `json:"cancelled_bookings" bson:"cancelled_bookings"`
}

// ImportRun is one bulk CSV ingestion unit. Immutable once finalized.
type ImportRun struct {
	ID         string           `json:"id" bson:"_id"`
	Source     string           `json:"source" bson:"source"`
	Filename   string           `json:"filename" bson:"filename"`
	ImportedBy string           `json:"imported_by" bson:"imported_by"`
	StartedAt  time.Time        `json:"started_at" bson:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty" bson:"finished_at,omitempty"`
	Cancelled  bool             `json:"cancelled" bson:"cancelled"`
	Summary    ImportRunSummary `json:"summary" bson:"summary"`
}
