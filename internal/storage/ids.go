package storage

import "github.com/google/uuid"

// NewEntityID returns a fresh canonical entity identifier (ent_<uuid8>).
func NewEntityID() string { return "ent_" + shortUUID() }

// NewAliasID returns a fresh alias identifier (als_<uuid8>).
func NewAliasID() string { return "als_" + shortUUID() }

// NewRelationshipID returns a fresh relationship identifier (rel_<uuid8>).
func NewRelationshipID() string { return "rel_" + shortUUID() }

// NewQueueItemID returns a fresh enrichment queue identifier (enq_<uuid8>).
func NewQueueItemID() string { return "enq_" + shortUUID() }

// shortUUID returns the first 8 hex characters of a random UUID. Short IDs
// keep log lines and export payloads readable; collision risk is acceptable
// at catalog scale and caught by primary-key constraints regardless.
func shortUUID() string {
	return uuid.NewString()[:8]
}
