// Package resolver implements the entity resolution core: the immutable
// resolution cache with its atomic reload protocol, and the tiered
// matching algorithm (exact -> fuzzy -> semantic -> unresolved).
package resolver

import (
	"context"
	"log"
	"time"

	"github.com/jenezis/harmon/internal/normalize"
	"github.com/jenezis/harmon/internal/storage"
	"github.com/jenezis/harmon/pkg/types"
)

const (
	// defaultFuzzyConfident is the similarity at which a fuzzy candidate
	// resolves outright instead of remaining a suggestion. A single edit
	// in a ten-character mention scores 0.9; the threshold sits just
	// below so one-typo mentions of common entity names resolve.
	defaultFuzzyConfident = 0.85

	// defaultSemanticConfident is the cosine similarity at which a
	// semantic candidate resolves outright.
	defaultSemanticConfident = 0.95

	// defaultSuggestionFloor drops candidates below this similarity from
	// the suggestion list entirely.
	defaultSuggestionFloor = 0.30

	// defaultTopK bounds the suggestion list.
	defaultTopK = 3

	// defaultSemanticTimeout bounds the optional embedding call.
	defaultSemanticTimeout = 2 * time.Second

	// enqueueTimeout bounds the fire-and-forget queue write on the
	// unresolved path.
	enqueueTimeout = 3 * time.Second
)

// Options tune the resolution thresholds. The zero value selects the
// defaults above.
type Options struct {
	TopK              int
	FuzzyConfident    float64
	SemanticConfident float64
	SuggestionFloor   float64
	SemanticTimeout   time.Duration
}

// Normalize applies defaults to unset options.
func (o *Options) Normalize() {
	if o.TopK <= 0 {
		o.TopK = defaultTopK
	}
	if o.FuzzyConfident <= 0 {
		o.FuzzyConfident = defaultFuzzyConfident
	}
	if o.SemanticConfident <= 0 {
		o.SemanticConfident = defaultSemanticConfident
	}
	if o.SuggestionFloor <= 0 {
		o.SuggestionFloor = defaultSuggestionFloor
	}
	if o.SemanticTimeout <= 0 {
		o.SemanticTimeout = defaultSemanticTimeout
	}
}

// Resolver maps raw mention strings to canonical entities using the tiered
// strategy: exact normalized match, fuzzy string similarity over bucketed
// candidates, optional semantic match, unresolved. It reads only the
// immutable cache on the happy path; the one write it performs (recording
// a miss in the enrichment queue) is fire-and-forget.
type Resolver struct {
	caches   *Registry
	queue    storage.QueueStore
	embedder Embedder
	opts     Options

	// OnUnresolved, when set, is invoked after a miss has been recorded.
	// Used by the server to broadcast enrichment events; it must not block.
	OnUnresolved func(namespace, mention string)
}

// New creates a Resolver. queue may be nil (misses are then not recorded)
// and embedder may be nil (the semantic step is skipped with zero behavior
// change to the earlier steps).
func New(caches *Registry, queue storage.QueueStore, embedder Embedder, opts Options) *Resolver {
	opts.Normalize()
	return &Resolver{caches: caches, queue: queue, embedder: embedder, opts: opts}
}

// Resolve maps one mention to a resolution result. The only error it can
// return is ErrCacheUnavailable (no cache has ever been built for the
// namespace); every input string, including empty and garbage input,
// otherwise produces a result.
func (r *Resolver) Resolve(ctx context.Context, namespace, mention string) (*types.ResolutionResult, error) {
	cache, err := r.caches.Holder(namespace).Load()
	if err != nil {
		return nil, err
	}
	return r.resolveAgainst(ctx, cache, mention), nil
}

// ResolveMany resolves a batch of mentions against a single cache
// snapshot. Output order matches input order, and a malformed mention
// never aborts the batch: each item resolves independently.
func (r *Resolver) ResolveMany(ctx context.Context, namespace string, mentions []string) ([]*types.ResolutionResult, error) {
	cache, err := r.caches.Holder(namespace).Load()
	if err != nil {
		return nil, err
	}

	results := make([]*types.ResolutionResult, len(mentions))
	for i, mention := range mentions {
		results[i] = r.resolveAgainst(ctx, cache, mention)
	}
	return results, nil
}

// resolveAgainst runs the tiered match against one cache instance, which
// guarantees a single resolve call never mixes old and new cache state.
func (r *Resolver) resolveAgainst(ctx context.Context, cache *Cache, mention string) *types.ResolutionResult {
	result := &types.ResolutionResult{Mention: mention, Kind: types.MatchUnresolved}

	// Step 1: normalize. An empty normalized form is not a real entity
	// mention: unresolved immediately, and not enqueued.
	normalized := normalize.Normalize(mention)
	if normalized == "" {
		return result
	}

	// Step 2: exact match. O(1), no further computation, and the dominant
	// traffic pattern. Archived entities still resolve here: archived only
	// blocks new names, not lookups.
	if entity, ok := cache.Lookup(normalized); ok {
		result.Entity = entity
		result.Kind = types.MatchExact
		result.Confidence = 1.0
		return result
	}

	// Step 3: fuzzy match over bucketed candidates only.
	suggestions := cache.FuzzyCandidates(normalized, r.opts.TopK, r.opts.SuggestionFloor)
	if len(suggestions) > 0 && suggestions[0].Score >= r.opts.FuzzyConfident {
		result.Entity = cache.Entity(suggestions[0].EntityID)
		result.Kind = types.MatchFuzzy
		result.Confidence = suggestions[0].Score
		result.Suggestions = suggestions
		return result
	}

	// Step 4: optional semantic match, only when fuzzy was not confident.
	if semantic := r.semanticMatch(ctx, cache, normalized); len(semantic) > 0 {
		if semantic[0].Score >= r.opts.SemanticConfident {
			result.Entity = cache.Entity(semantic[0].EntityID)
			result.Kind = types.MatchSemantic
			result.Confidence = semantic[0].Score
			result.Suggestions = semantic
			return result
		}
		suggestions = mergeSuggestions(suggestions, semantic, r.opts.TopK)
	}

	// Step 5: unresolved. Return the best-available suggestions and record
	// the miss as a side effect.
	result.Suggestions = suggestions
	r.recordMiss(cache.namespace, mention, normalized, suggestions)
	return result
}

// recordMiss upserts the mention into the enrichment queue. Failures are
// logged, never surfaced: the resolve call already has its result and an
// unavailable store must not turn it into an error.
func (r *Resolver) recordMiss(namespace, mention, normalized string, suggestions []types.Suggestion) {
	if r.queue == nil {
		return
	}

	var suggestedID string
	var suggestedScore float64
	if len(suggestions) > 0 {
		suggestedID = suggestions[0].EntityID
		suggestedScore = suggestions[0].Score
	}

	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()

	if _, err := r.queue.RecordMiss(ctx, namespace, mention, normalized, suggestedID, suggestedScore); err != nil {
		log.Printf("resolver[%s]: failed to enqueue unresolved mention %q: %v", namespace, mention, err)
		return
	}

	if r.OnUnresolved != nil {
		r.OnUnresolved(namespace, mention)
	}
}

// mergeSuggestions combines fuzzy and semantic candidate lists, keeping
// each entity's best score and preserving best-first order, capped at topK.
func mergeSuggestions(fuzzy, semantic []types.Suggestion, topK int) []types.Suggestion {
	merged := make([]types.Suggestion, 0, len(fuzzy)+len(semantic))
	byEntity := make(map[string]int)

	for _, lists := range [][]types.Suggestion{fuzzy, semantic} {
		for _, s := range lists {
			if idx, ok := byEntity[s.EntityID]; ok {
				if s.Score > merged[idx].Score {
					merged[idx].Score = s.Score
				}
				continue
			}
			byEntity[s.EntityID] = len(merged)
			merged = append(merged, s)
		}
	}

	// Re-rank after merging; ties break on canonical name.
	for i := 1; i < len(merged); i++ {
		for j := i; j > 0; j-- {
			a, b := merged[j], merged[j-1]
			if a.Score > b.Score || (a.Score == b.Score && a.CanonicalName < b.CanonicalName) {
				merged[j], merged[j-1] = merged[j-1], merged[j]
			} else {
				break
			}
		}
	}

	if topK > 0 && len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}
