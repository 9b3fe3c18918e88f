package model

import "time"

// ImportLock is an advisory lock preventing two concurrent bulk imports of
// the same source from interleaving their cleanup passes.
type ImportLock struct {
	ID        string    `bson:"_id" json:"id"`
	RunID     string    `bson:"run_id" json:"run_id"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
