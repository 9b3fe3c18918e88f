package model

import "time"

// OccupantAssignment is one filled slot on a multi-occupant booking. Either
// MemberEmail is set (a member slot) or GuestName is (a guest slot).
// OccupantKey is the deduplication key: the lowercased member email, or a
// generated guest key, unique per booking.
type OccupantAssignment struct {
	ID          string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	BookingID   string    `json:"booking_id" bson:"booking_id" validate:"required"`
	OccupantKey string    `json:"occupant_key" bson:"occupant_key" validate:"required"`
	MemberEmail string    `json:"member_email,omitempty" bson:"member_email,omitempty" validate:"omitempty,email"`
	GuestName   string    `json:"guest_name,omitempty" bson:"guest_name,omitempty" validate:"omitempty,min=2,max=100"`
	GuestPhone  string    `json:"guest_phone,omitempty" bson:"guest_phone,omitempty"`
	AddedBy     string    `json:"added_by" bson:"added_by"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

func (a *OccupantAssignment) IsGuest() bool {
	return a.MemberEmail == ""
}

// SlotInfo reports slot occupancy for one booking.
type SlotInfo struct {
	BookingID   string `json:"booking_id"`
	FilledSlots int    `json:"filled_slots"`
	TotalSlots  int    `json:"total_slots"`
}

func (s SlotInfo) NeedsPlayers() bool {
	return s.FilledSlots < s.TotalSlots
}
