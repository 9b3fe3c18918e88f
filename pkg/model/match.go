package model

import "time"

// MatchCandidate is one scored directory member for a raw (name, email) pair.
// Ephemeral: produced per match request, never persisted.
type MatchCandidate struct {
	MemberEmail string `json:"member_email"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
}

// Member is the directory's listing shape.
type Member struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Tier  string `json:"tier"`
}

// MemberDetails is the directory's detail shape for a single member.
type MemberDetails struct {
	Tier             string     `json:"tier"`
	Tags             []string   `json:"tags"`
	LifetimeVisits   int        `json:"lifetime_visits"`
	LastBookingDate  *time.Time `json:"last_booking_date,omitempty"`
	MindbodyClientID string     `json:"mindbody_client_id,omitempty"`
}
