// Package storage defines the Canonical Store contract: the durable,
// transactional source of truth for canonical entities, aliases,
// relationships and the enrichment queue.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. The choice of concrete
// engine (SQLite or PostgreSQL) is a deployment-time decision injected
// behind these interfaces, never runtime branching at call sites.
package storage

import (
	"context"

	"github.com/jenezis/harmon/pkg/types"
)

// EntityStore provides the admin write surface and point reads over
// canonical entities. All invariant checks (duplicate names, ambiguous
// aliases, self-loops) execute inside a single transaction: the store is
// the only component permitted to enforce them.
type EntityStore interface {
	// CreateEntity inserts a new canonical entity and its self-alias
	// (the normalized canonical name). Returns a *DuplicateNameError if
	// the normalized name collides with a non-archived entity in the
	// same namespace.
	CreateEntity(ctx context.Context, entity *types.CanonicalEntity) (string, error)

	// GetEntity retrieves an entity by ID. Returns ErrNotFound if absent.
	GetEntity(ctx context.Context, id string) (*types.CanonicalEntity, error)

	// AddAlias maps a new alias text to an existing entity. Returns a
	// *AmbiguousAliasError if the normalized alias already maps to a
	// different entity; the check and insert are atomic so that two
	// concurrent writers claiming the same alias for different entities
	// cannot both succeed. Re-adding an alias for its current owner is
	// idempotent and returns the existing alias ID.
	AddAlias(ctx context.Context, entityID, aliasText string, confidence types.AliasConfidence) (string, error)

	// AddRelationship creates a directed edge between two entities.
	// Returns a *SelfLoopError when source == target. Cycles are not
	// checked; traversal is bounded-depth elsewhere.
	AddRelationship(ctx context.Context, fromID, toID, relType string) (string, error)

	// ArchiveEntity marks an entity archived. Archived entities keep
	// resolving through their existing aliases and drop out of the
	// active-name uniqueness check.
	ArchiveEntity(ctx context.Context, id string) error

	// Stats reports entity/alias/relationship/queue counts for a namespace.
	Stats(ctx context.Context, namespace string) (*Stats, error)

	// Close releases any resources held by the store.
	Close() error
}

// QueueStore manages the enrichment queue: the durable record of
// unresolved mentions awaiting promotion.
type QueueStore interface {
	// RecordMiss upserts a queue item for the given mention. A pending
	// item with the same normalized text has its occurrence count
	// incremented instead of creating a duplicate row. The suggested
	// entity and score (best available guess) may be empty.
	RecordMiss(ctx context.Context, namespace, mention, normalized, suggestedID string, suggestedScore float64) (string, error)

	// ListPending returns pending items ordered by occurrence count
	// descending, ties broken by first-seen ascending, so the oldest
	// frequent misses surface first for review.
	ListPending(ctx context.Context, namespace string, opts PendingOptions) ([]*types.QueueItem, error)

	// MarkResolved transitions an item to resolved, recording the alias
	// that was created for it. Returns ErrNotFound for unknown items.
	MarkResolved(ctx context.Context, itemID, createdAliasID string) error

	// MarkRejected transitions an item to rejected with a reason. The row
	// is kept for audit, not deleted.
	MarkRejected(ctx context.Context, itemID, reason string) error

	// GetQueueItem retrieves a queue item by ID. Returns ErrNotFound if
	// absent.
	GetQueueItem(ctx context.Context, itemID string) (*types.QueueItem, error)
}

// Snapshotter produces the consistent read used exclusively to build the
// resolution cache and to drive graph export.
type Snapshotter interface {
	// Snapshot reads all entities, aliases and relationships of one
	// namespace in a single transaction.
	Snapshot(ctx context.Context, namespace string) (*SnapshotData, error)
}

// SemanticStore is implemented by backends that can rank canonical
// entities by embedding similarity (PostgreSQL with pgvector). Optional:
// the resolver falls back to in-cache cosine scoring when unavailable.
type SemanticStore interface {
	// SemanticCandidates returns up to k entities ordered by ascending
	// cosine distance to the query embedding.
	SemanticCandidates(ctx context.Context, namespace string, embedding []float32, k int) ([]*types.CanonicalEntity, error)
}

// Store is the full canonical store contract used by the server wiring.
type Store interface {
	EntityStore
	QueueStore
	Snapshotter
}
