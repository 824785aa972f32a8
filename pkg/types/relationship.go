package types

import "time"

// Relationship is a directed edge between two canonical entities carrying
// "is-a" or "belongs-to" semantics (e.g. "React" -> "JavaScript").
// Self-loops are rejected at creation. Cycles may exist structurally;
// traversal over relationships is always bounded-depth.
type Relationship struct {
	ID        string    `json:"id"`      // Unique identifier (format: rel_<uuid8>)
	FromID    string    `json:"from_id"` // Source entity ID
	ToID      string    `json:"to_id"`   // Target entity ID
	Type      string    `json:"type"`    // Relationship type tag (e.g. "is_a", "belongs_to")
	CreatedAt time.Time `json:"created_at"`
}
