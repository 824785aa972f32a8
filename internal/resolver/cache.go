package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jenezis/harmon/internal/normalize"
	"github.com/jenezis/harmon/internal/storage"
	"github.com/jenezis/harmon/pkg/types"
)

// ErrCacheUnavailable is returned when resolution is requested before any
// cache has ever been built for the namespace (cold start with no prior
// successful reload). It is a distinct condition from an unresolved
// mention: an empty but successfully built cache resolves everything
// unresolved instead.
var ErrCacheUnavailable = errors.New("resolution cache not yet built")

// aliasEntry binds a normalized alias string to its owning entity.
type aliasEntry struct {
	entity *types.CanonicalEntity
	alias  *types.Alias
}

// entityVector pairs an entity with its embedding for semantic scoring.
type entityVector struct {
	entity    *types.CanonicalEntity
	embedding []float32
}

// Cache is an immutable in-memory projection of one namespace's canonical
// store snapshot. It is never mutated after BuildCache returns; reload
// builds a fresh instance and swaps it in atomically. Readers therefore
// take no locks on the hot path.
type Cache struct {
	namespace string

	// aliases is the exact-match index: normalized alias -> owning entity.
	aliases map[string]aliasEntry

	// entities is the reverse index: entity ID -> entity.
	entities map[string]*types.CanonicalEntity

	// buckets groups normalized alias strings by cheap prefix/bigram keys
	// so the fuzzy path never scans the whole alias set. Bucket slices are
	// sorted so candidate iteration is deterministic.
	buckets map[string][]string

	// parents is the hierarchy adjacency: entity ID -> parent entity IDs.
	parents map[string][]string

	// vectors holds embeddings of entities that carry one, for the
	// optional semantic step.
	vectors []entityVector

	// skipped counts alias rows rejected during the build because they
	// would violate the one-alias-one-entity invariant or referenced a
	// missing entity. A reload proceeds past corrupt legacy rows rather
	// than failing outright.
	skipped int

	builtAt time.Time
}

// maxAncestorDepth bounds hierarchy traversal; cycles are permitted to
// exist structurally, so traversal must terminate regardless.
const maxAncestorDepth = 5

// BuildCache constructs a fully-formed cache from a store snapshot. It
// validates the one-alias-one-entity invariant while building: a colliding
// or dangling alias row is logged and skipped, never fatal.
func BuildCache(snap *storage.SnapshotData) *Cache {
	c := &Cache{
		namespace: snap.Namespace,
		aliases:   make(map[string]aliasEntry, len(snap.Aliases)),
		entities:  make(map[string]*types.CanonicalEntity, len(snap.Entities)),
		buckets:   make(map[string][]string),
		parents:   make(map[string][]string),
	}

	for _, e := range snap.Entities {
		c.entities[e.ID] = e
		if len(e.Embedding) > 0 {
			c.vectors = append(c.vectors, entityVector{entity: e, embedding: e.Embedding})
		}
	}

	for _, a := range snap.Aliases {
		normalized := a.Normalized
		if normalized == "" {
			normalized = normalize.Normalize(a.Text)
		}
		if normalized == "" {
			c.skipped++
			continue
		}

		entity, ok := c.entities[a.EntityID]
		if !ok {
			log.Printf("cache[%s]: skipping alias %q (%s): owning entity %s not in snapshot",
				snap.Namespace, a.Text, a.ID, a.EntityID)
			c.skipped++
			continue
		}

		if existing, dup := c.aliases[normalized]; dup {
			if existing.entity.ID != entity.ID {
				log.Printf("cache[%s]: skipping alias %q (%s): already maps to entity %s, row claims %s",
					snap.Namespace, a.Text, a.ID, existing.entity.ID, entity.ID)
			}
			c.skipped++
			continue
		}

		c.aliases[normalized] = aliasEntry{entity: entity, alias: a}
		for _, key := range bucketKeys(normalized) {
			c.buckets[key] = append(c.buckets[key], normalized)
		}
	}

	// Sorted buckets make candidate iteration order stable across builds.
	for _, bucket := range c.buckets {
		sort.Strings(bucket)
	}

	for _, r := range snap.Relationships {
		if r.FromID == r.ToID {
			continue // defect rows; the store rejects these on insert
		}
		c.parents[r.FromID] = append(c.parents[r.FromID], r.ToID)
	}
	for _, ps := range c.parents {
		sort.Strings(ps)
	}

	c.builtAt = time.Now()
	return c
}

// bucketKeys returns the candidate-generation keys for a normalized
// string: one per distinct token-initial rune and one per distinct bigram
// of the space-free form. An alias and a mention that share any key land
// in the same bucket, which tolerates typos anywhere but the full string.
func bucketKeys(normalized string) []string {
	seen := make(map[string]struct{}, 8)
	var keys []string

	add := func(k string) {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}

	for _, tok := range strings.Fields(normalized) {
		runes := []rune(tok)
		add("t:" + string(runes[0]))
	}

	compact := []rune(strings.ReplaceAll(normalized, " ", ""))
	for i := 0; i+1 < len(compact); i++ {
		add("g:" + string(compact[i:i+2]))
	}
	if len(compact) == 1 {
		add("g:" + string(compact))
	}

	return keys
}

// Lookup performs the O(1) exact-match lookup for an already-normalized
// mention. The boolean reports whether the alias is known.
func (c *Cache) Lookup(normalized string) (*types.CanonicalEntity, bool) {
	entry, ok := c.aliases[normalized]
	if !ok {
		return nil, false
	}
	return entry.entity, true
}

// Entity returns the entity for an ID, or nil.
func (c *Cache) Entity(id string) *types.CanonicalEntity {
	return c.entities[id]
}

// Namespace returns the namespace this cache projects.
func (c *Cache) Namespace() string { return c.namespace }

// Size returns the number of distinct normalized aliases indexed.
func (c *Cache) Size() int { return len(c.aliases) }

// EntityCount returns the number of canonical entities indexed.
func (c *Cache) EntityCount() int { return len(c.entities) }

// SkippedRows returns how many corrupt alias rows the build rejected.
func (c *Cache) SkippedRows() int { return c.skipped }

// BuiltAt returns when the cache was constructed.
func (c *Cache) BuiltAt() time.Time { return c.builtAt }

// Ancestors walks the hierarchy upward from an entity, bounded at
// maxAncestorDepth hops, and returns the canonical names encountered.
// Safe in the presence of cycles.
func (c *Cache) Ancestors(entityID string) []string {
	var names []string
	visited := map[string]struct{}{entityID: {}}
	frontier := []string{entityID}

	for depth := 0; depth < maxAncestorDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			for _, parentID := range c.parents[id] {
				if _, ok := visited[parentID]; ok {
					continue
				}
				visited[parentID] = struct{}{}
				if p := c.entities[parentID]; p != nil {
					names = append(names, p.Name)
				}
				next = append(next, parentID)
			}
		}
		frontier = next
	}

	return names
}

// candidates returns the normalized alias strings sharing at least one
// bucket key with the mention, deduplicated and in deterministic order.
func (c *Cache) candidates(normalized string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, key := range bucketKeys(normalized) {
		for _, alias := range c.buckets[key] {
			if _, ok := seen[alias]; ok {
				continue
			}
			seen[alias] = struct{}{}
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}

// FuzzyCandidates scores every bucketed candidate against the normalized
// mention with token-sort similarity and returns up to topK suggestions at
// or above the floor, ordered best-first with deterministic tie-breaks.
func (c *Cache) FuzzyCandidates(normalized string, topK int, floor float64) []types.Suggestion {
	// Deduplicate by entity, keeping each entity's best-ranked candidate;
	// several aliases of one entity may all sit near the mention.
	best := make(map[string]fuzzyCandidate)

	for _, aliasText := range c.candidates(normalized) {
		entry := c.aliases[aliasText]
		cand := fuzzyCandidate{
			normalizedAlias: aliasText,
			entityID:        entry.entity.ID,
			canonicalName:   entry.entity.Name,
			score:           tokenSortRatio(normalized, aliasText),
			editDistance:    levenshteinDistance(normalized, aliasText),
		}
		if cand.score < floor {
			continue
		}
		if prev, ok := best[cand.entityID]; !ok || betterCandidate(cand, prev) {
			best[cand.entityID] = cand
		}
	}

	ranked := make([]fuzzyCandidate, 0, len(best))
	for _, cand := range best {
		ranked = append(ranked, cand)
	}
	sort.Slice(ranked, func(i, j int) bool { return betterCandidate(ranked[i], ranked[j]) })

	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}

	out := make([]types.Suggestion, len(ranked))
	for i, cand := range ranked {
		out[i] = types.Suggestion{
			EntityID:      cand.entityID,
			CanonicalName: cand.canonicalName,
			Score:         cand.score,
		}
	}
	return out
}

// Holder owns the live cache reference for one namespace. The reference
// is the single piece of mutable shared state on the resolution hot path:
// written only by Reload, read everywhere else through an atomic pointer,
// so in-flight resolve calls observe either the fully-old or fully-new
// cache, never a partially built one.
type Holder struct {
	namespace string
	live      atomic.Pointer[Cache]

	// reloadMu serializes reloads; concurrent reload requests would
	// otherwise race on snapshot ordering.
	reloadMu sync.Mutex
}

// NewHolder creates an empty holder. Load returns ErrCacheUnavailable
// until the first successful Reload.
func NewHolder(namespace string) *Holder {
	return &Holder{namespace: namespace}
}

// Load returns the live cache, or ErrCacheUnavailable when none has ever
// been built.
func (h *Holder) Load() (*Cache, error) {
	c := h.live.Load()
	if c == nil {
		return nil, ErrCacheUnavailable
	}
	return c, nil
}

// Reload builds a fresh cache from a store snapshot and swaps it live. If
// the snapshot read fails the previous cache stays in service and the
// error is returned wrapped in ErrStoreUnavailable — a reload failure must
// never leave the system with no cache.
func (h *Holder) Reload(ctx context.Context, snapshotter storage.Snapshotter) (*Cache, error) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	snap, err := snapshotter.Snapshot(ctx, h.namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot of namespace %q failed: %v",
			storage.ErrStoreUnavailable, h.namespace, err)
	}

	fresh := BuildCache(snap)
	h.live.Store(fresh)

	if fresh.skipped > 0 {
		log.Printf("cache[%s]: reload complete with %d corrupt rows skipped (%d aliases, %d entities)",
			h.namespace, fresh.skipped, fresh.Size(), fresh.EntityCount())
	} else {
		log.Printf("cache[%s]: reload complete (%d aliases, %d entities)",
			h.namespace, fresh.Size(), fresh.EntityCount())
	}

	return fresh, nil
}

// Registry maps namespaces to their cache holders.
type Registry struct {
	mu      sync.Mutex
	holders map[string]*Holder
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{holders: make(map[string]*Holder)}
}

// Holder returns the holder for a namespace, creating it on first use.
func (r *Registry) Holder(namespace string) *Holder {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.holders[namespace]
	if !ok {
		h = NewHolder(namespace)
		r.holders[namespace] = h
	}
	return h
}

// Namespaces returns the namespaces with a registered holder, sorted.
func (r *Registry) Namespaces() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.holders))
	for ns := range r.holders {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}
