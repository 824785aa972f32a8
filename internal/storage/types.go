package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/jenezis/harmon/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable indicates a transient storage failure. Reloads
	// recover by keeping the previously-live cache; admin writes surface
	// it to the caller for retry.
	ErrStoreUnavailable = errors.New("canonical store unavailable")
)

// DuplicateNameError is returned when creating a canonical entity whose
// normalized name collides with an existing active entity in the same
// namespace. The caller decides between rejecting and a merge workflow;
// the store never silently overwrites.
type DuplicateNameError struct {
	Namespace string
	Name      string
	ExistingID string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("entity name %q already exists in namespace %q (entity %s)",
		e.Name, e.Namespace, e.ExistingID)
}

// AmbiguousAliasError is returned when an alias insert would map one
// normalized string to two different entities. Always rejected at the
// store layer; never resolved by last-write-wins.
type AmbiguousAliasError struct {
	Namespace string
	Alias     string
	OwnerID   string // Entity that already owns the alias
	WantedID  string // Entity the insert tried to claim it for
}

func (e *AmbiguousAliasError) Error() string {
	return fmt.Sprintf("alias %q in namespace %q already maps to entity %s (attempted %s)",
		e.Alias, e.Namespace, e.OwnerID, e.WantedID)
}

// SelfLoopError is returned when a relationship's source and target are
// the same entity.
type SelfLoopError struct {
	EntityID string
}

func (e *SelfLoopError) Error() string {
	return fmt.Sprintf("relationship source and target are the same entity (%s)", e.EntityID)
}

// SnapshotData is a consistent view of one namespace, read in a single
// transaction. It is consumed by the cache builder and by graph export;
// a snapshot never observes a half-committed alias insert.
type SnapshotData struct {
	Namespace     string
	Entities      []*types.CanonicalEntity
	Aliases       []*types.Alias
	Relationships []*types.Relationship
	TakenAt       time.Time
}

// PendingOptions filters and bounds a ListPending call.
type PendingOptions struct {
	// MinOccurrences drops items seen fewer than this many times.
	// Values below 1 are treated as 1.
	MinOccurrences int

	// Limit bounds the number of items returned (default 50, max 500).
	Limit int
}

// Normalize applies defaults and bounds to the PendingOptions.
func (o *PendingOptions) Normalize() {
	if o.MinOccurrences < 1 {
		o.MinOccurrences = 1
	}
	if o.Limit < 1 {
		o.Limit = 50
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
}

// Stats summarizes the canonical store contents for one namespace.
type Stats struct {
	Entities      int `json:"entities"`
	Aliases       int `json:"aliases"`
	Relationships int `json:"relationships"`
	QueuePending  int `json:"queue_pending"`
}
