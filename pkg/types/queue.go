package types

import "time"

// QueueStatus is the lifecycle state of an enrichment queue item.
type QueueStatus string

const (
	// QueuePending marks items awaiting review or automatic promotion.
	QueuePending QueueStatus = "pending"

	// QueueInReview marks items claimed by a review workflow.
	QueueInReview QueueStatus = "in-review"

	// QueueResolved marks items that became an alias of a canonical entity.
	// The row is kept for audit, pointing at the created alias.
	QueueResolved QueueStatus = "resolved"

	// QueueRejected marks items dismissed by review. The row is kept,
	// with the rejection reason, for audit.
	QueueRejected QueueStatus = "rejected"
)

// QueueItem is a raw mention that failed resolution and is queued for
// future learning. There is at most one item per distinct normalized
// mention per namespace; repeated misses increment Occurrences.
type QueueItem struct {
	ID         string      `json:"id"`      // Unique identifier (format: enq_<uuid8>)
	Mention    string      `json:"mention"` // Raw mention text as first seen
	Normalized string      `json:"normalized"`
	Namespace  string      `json:"namespace"`
	Status     QueueStatus `json:"status"`

	// Occurrences counts how many times this normalized mention missed.
	Occurrences int `json:"occurrences"`

	// SuggestedEntityID is the best fuzzy/semantic guess recorded at miss
	// time or refreshed by the enrichment worker. Empty when no candidate
	// cleared the suggestion floor.
	SuggestedEntityID string  `json:"suggested_entity_id,omitempty"`
	SuggestedScore    float64 `json:"suggested_score,omitempty"`

	// ResolvedAliasID points at the alias created when the item was
	// resolved. Empty unless Status is QueueResolved.
	ResolvedAliasID string `json:"resolved_alias_id,omitempty"`

	// RejectReason explains a QueueRejected status.
	RejectReason string `json:"reject_reason,omitempty"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}
