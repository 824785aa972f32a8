package types

import "time"

// EntitySource records how a canonical entity entered the catalog.
type EntitySource string

const (
	// SourceManual marks entities created directly through the admin surface.
	SourceManual EntitySource = "manual"

	// SourceAutoApproved marks entities promoted automatically by the
	// enrichment worker from a high-confidence suggestion.
	SourceAutoApproved EntitySource = "auto-approved"

	// SourceHumanReviewed marks entities promoted by a human review workflow.
	SourceHumanReviewed EntitySource = "human-reviewed"
)

// CanonicalEntity is the single authoritative representation of one
// real-world concept (a skill, a company, a school) after deduplication.
// Its canonical name is unique (normalized) within its namespace among
// non-archived entities. Entities are never deleted in normal operation;
// they are archived so that historical alias mappings keep resolving.
type CanonicalEntity struct {
	ID             string       `json:"id"`                  // Unique identifier (format: ent_<uuid8>)
	Name           string       `json:"name"`                // Canonical display name
	NormalizedName string       `json:"normalized_name"`     // Derived lookup form of Name
	Namespace      string       `json:"namespace"`           // Isolation boundary (e.g. "skills", "companies")
	Type           string       `json:"type"`                // Entity category tag (e.g. "SKILL", "COMPANY")
	Source         EntitySource `json:"source"`              // How the entity was created
	Archived       bool         `json:"archived"`            // Archived entities block new names, not lookups
	Embedding      []float32    `json:"embedding,omitempty"` // Optional vector for semantic matching
	CreatedAt      time.Time    `json:"created_at"`
}

// AliasConfidence tags how an alias mapping was established.
type AliasConfidence string

const (
	// ConfidenceExact marks aliases created alongside their entity
	// (the canonical name itself, or an operator-supplied variant).
	ConfidenceExact AliasConfidence = "exact"

	// ConfidenceFuzzyApproved marks aliases promoted from a fuzzy or
	// semantic suggestion by the enrichment worker.
	ConfidenceFuzzyApproved AliasConfidence = "fuzzy-approved"

	// ConfidenceHumanApproved marks aliases confirmed by a human reviewer.
	// An alias may be upgraded to this level but never downgraded.
	ConfidenceHumanApproved AliasConfidence = "human-approved"
)

// Alias maps one raw string form to exactly one canonical entity.
// The normalized text is unique across the whole namespace: no alias may
// point to two different entities. That invariant is enforced at the store
// layer, never resolved at lookup time.
type Alias struct {
	ID         string          `json:"id"`        // Unique identifier (format: als_<uuid8>)
	EntityID   string          `json:"entity_id"` // Owning canonical entity
	Text       string          `json:"text"`      // Raw alias text as supplied
	Normalized string          `json:"normalized"`
	Confidence AliasConfidence `json:"confidence"`
	CreatedAt  time.Time       `json:"created_at"`
}
