package resolver

import (
	"context"
	"log"
	"math"
	"sort"
	"time"

	"github.com/jenezis/harmon/pkg/types"
)

// Embedder produces a vector embedding for a piece of text. The concrete
// implementation lives in internal/embedding; the resolver only needs this
// one method so that the semantic step stays optional and swappable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// cosineSimilarity computes cosine similarity between two vectors of
// equal length. Mismatched or zero-norm vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	den := math.Sqrt(na) * math.Sqrt(nb)
	if den == 0 {
		return 0
	}
	return dot / den
}

// SemanticCandidates scores the mention embedding against every entity
// vector in the cache and returns up to topK suggestions at or above the
// floor, best-first. Ties break on canonical name for determinism.
func (c *Cache) SemanticCandidates(embedding []float32, topK int, floor float64) []types.Suggestion {
	type scored struct {
		entity *types.CanonicalEntity
		score  float64
	}

	var ranked []scored
	for _, v := range c.vectors {
		s := cosineSimilarity(embedding, v.embedding)
		if s >= floor {
			ranked = append(ranked, scored{entity: v.entity, score: s})
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].entity.Name < ranked[j].entity.Name
	})

	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}

	out := make([]types.Suggestion, len(ranked))
	for i, s := range ranked {
		out[i] = types.Suggestion{
			EntityID:      s.entity.ID,
			CanonicalName: s.entity.Name,
			Score:         s.score,
		}
	}
	return out
}

// semanticMatch runs the optional embedding step under its own timeout.
// Any failure (no embedder, embed error, deadline) degrades to nil so the
// caller falls back to the fuzzy result already computed; a slow embedding
// backend must never block resolution indefinitely.
func (r *Resolver) semanticMatch(ctx context.Context, cache *Cache, normalized string) []types.Suggestion {
	if r.embedder == nil || len(cache.vectors) == 0 {
		return nil
	}

	timeout := r.opts.SemanticTimeout
	if timeout <= 0 {
		timeout = defaultSemanticTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	embedding, err := r.embedder.Embed(ctx, normalized)
	if err != nil {
		log.Printf("resolver[%s]: semantic step skipped for %q: %v", cache.namespace, normalized, err)
		return nil
	}
	if len(embedding) == 0 {
		return nil
	}

	suggestions := cache.SemanticCandidates(embedding, r.opts.TopK, r.opts.SuggestionFloor)
	if len(suggestions) > 0 {
		log.Printf("resolver[%s]: semantic scoring of %q matched %q at %.3f in %s",
			cache.namespace, normalized, suggestions[0].CanonicalName, suggestions[0].Score, time.Since(start))
	}
	return suggestions
}
