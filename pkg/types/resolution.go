package types

// MatchKind classifies how a mention was resolved.
type MatchKind string

const (
	// MatchExact means the normalized mention hit the alias index directly.
	MatchExact MatchKind = "exact"

	// MatchFuzzy means a string-similarity candidate cleared the confident
	// threshold.
	MatchFuzzy MatchKind = "fuzzy"

	// MatchSemantic means an embedding-similarity candidate cleared the
	// confident threshold after the fuzzy step fell short.
	MatchSemantic MatchKind = "semantic"

	// MatchUnresolved means no candidate was confident enough. The best
	// available suggestions (if any) are still attached to the result.
	MatchUnresolved MatchKind = "unresolved"
)

// Suggestion is one ranked candidate for an unresolved or fuzzy mention.
type Suggestion struct {
	EntityID      string  `json:"entity_id"`
	CanonicalName string  `json:"canonical_name"`
	Score         float64 `json:"score"` // Similarity in [0,1], higher is better
}

// ResolutionResult is the outcome of resolving one mention. A caller always
// receives a result for any input string; malformed input resolves to
// MatchUnresolved rather than erroring.
type ResolutionResult struct {
	// Mention is the original input string, unmodified.
	Mention string `json:"mention"`

	// Entity is the resolved canonical entity. Nil when Kind is
	// MatchUnresolved.
	Entity *CanonicalEntity `json:"entity,omitempty"`

	// Kind classifies the resolution path taken.
	Kind MatchKind `json:"match_kind"`

	// Confidence is 1.0 for exact matches, the winning similarity score for
	// fuzzy/semantic matches, and 0 when unresolved.
	Confidence float64 `json:"confidence"`

	// Suggestions lists alternative candidates ordered best-first. For an
	// exact match it is empty.
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}
