package model

import "time"

// AliasLink maps an alternate email seen in external records to a member's
// canonical directory email. Created only by explicit staff action; an
// alternate email maps to exactly one canonical email at a time.
type AliasLink struct {
	ID             string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	AlternateEmail string    `json:"alternate_email" bson:"alternate_email" validate:"required,email"`
	CanonicalEmail string    `json:"canonical_email" bson:"canonical_email" validate:"required,email"`
	LinkedBy       string    `json:"linked_by" bson:"linked_by"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" bson:"updated_at"`
}
