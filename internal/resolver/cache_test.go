package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jenezis/harmon/internal/storage"
	"github.com/jenezis/harmon/pkg/types"
)

func testEntity(id, name, namespace string) *types.CanonicalEntity {
	return &types.CanonicalEntity{
		ID:             id,
		Name:           name,
		NormalizedName: name, // tests use pre-normalized names
		Namespace:      namespace,
		Type:           "technology",
		Source:         types.SourceManual,
		CreatedAt:      time.Now(),
	}
}

func testAlias(id, entityID, text string) *types.Alias {
	return &types.Alias{
		ID:         id,
		EntityID:   entityID,
		Text:       text,
		Normalized: text,
		Confidence: types.ConfidenceExact,
		CreatedAt:  time.Now(),
	}
}

// testSnapshot builds a small but realistic namespace: three entities,
// several aliases each, and one hierarchy edge.
func testSnapshot() *storage.SnapshotData {
	return &storage.SnapshotData{
		Namespace: "default",
		Entities: []*types.CanonicalEntity{
			testEntity("ent_js", "javascript", "default"),
			testEntity("ent_k8s", "kubernetes", "default"),
			testEntity("ent_rn", "react native", "default"),
			testEntity("ent_lang", "programming language", "default"),
		},
		Aliases: []*types.Alias{
			testAlias("als_1", "ent_js", "javascript"),
			testAlias("als_2", "ent_js", "js"),
			testAlias("als_3", "ent_js", "ecmascript"),
			testAlias("als_4", "ent_k8s", "kubernetes"),
			testAlias("als_5", "ent_k8s", "k8s"),
			testAlias("als_6", "ent_rn", "react native"),
			testAlias("als_7", "ent_lang", "programming language"),
		},
		Relationships: []*types.Relationship{
			{ID: "rel_1", FromID: "ent_js", ToID: "ent_lang", Type: "is_a"},
		},
		TakenAt: time.Now(),
	}
}

type fakeSnapshotter struct {
	mu   sync.Mutex
	snap *storage.SnapshotData
	err  error
}

func (f *fakeSnapshotter) Snapshot(_ context.Context, _ string) (*storage.SnapshotData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

func (f *fakeSnapshotter) set(snap *storage.SnapshotData, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap, f.err = snap, err
}

func TestBuildCacheIndexes(t *testing.T) {
	c := BuildCache(testSnapshot())

	if c.Size() != 7 {
		t.Errorf("expected 7 aliases indexed, got %d", c.Size())
	}
	if c.EntityCount() != 4 {
		t.Errorf("expected 4 entities indexed, got %d", c.EntityCount())
	}
	if c.SkippedRows() != 0 {
		t.Errorf("clean snapshot should skip no rows, skipped %d", c.SkippedRows())
	}

	entity, ok := c.Lookup("k8s")
	if !ok {
		t.Fatal("expected exact lookup of k8s to hit")
	}
	if entity.ID != "ent_k8s" {
		t.Errorf("k8s resolved to %s, want ent_k8s", entity.ID)
	}

	if _, ok := c.Lookup("golang"); ok {
		t.Error("unknown alias must miss")
	}
}

func TestBuildCacheSkipsCorruptRows(t *testing.T) {
	snap := testSnapshot()
	snap.Aliases = append(snap.Aliases,
		testAlias("als_dangle", "ent_missing", "dangling"), // owner not in snapshot
		testAlias("als_collide", "ent_k8s", "js"),          // js already owned by ent_js
		&types.Alias{ID: "als_blank", EntityID: "ent_js", Text: "?!", Normalized: ""},
	)
	snap.Relationships = append(snap.Relationships,
		&types.Relationship{ID: "rel_loop", FromID: "ent_js", ToID: "ent_js", Type: "is_a"},
	)

	c := BuildCache(snap)

	if c.SkippedRows() != 3 {
		t.Errorf("expected 3 skipped alias rows, got %d", c.SkippedRows())
	}
	if c.Size() != 7 {
		t.Errorf("corrupt rows must not displace valid ones, size = %d", c.Size())
	}

	// First writer wins on a collision: js still belongs to ent_js.
	entity, ok := c.Lookup("js")
	if !ok || entity.ID != "ent_js" {
		t.Errorf("js should still map to ent_js, got %v ok=%v", entity, ok)
	}
}

func TestCandidatesShareBuckets(t *testing.T) {
	c := BuildCache(testSnapshot())

	found := false
	for _, cand := range c.candidates("kubernets") {
		if cand == "kubernetes" {
			found = true
		}
	}
	if !found {
		t.Error("one-typo mention must land in the same bucket as its alias")
	}
}

func TestFuzzyCandidates(t *testing.T) {
	c := BuildCache(testSnapshot())

	suggestions := c.FuzzyCandidates("kubernets", 3, 0.30)
	if len(suggestions) == 0 {
		t.Fatal("expected at least one suggestion for kubernets")
	}
	if suggestions[0].EntityID != "ent_k8s" {
		t.Errorf("best suggestion = %s, want ent_k8s", suggestions[0].EntityID)
	}
	if suggestions[0].Score < 0.85 {
		t.Errorf("one typo in ten characters should score >= 0.85, got %v", suggestions[0].Score)
	}

	// Per-entity dedup: ent_js has three aliases near "javascrip" but must
	// appear only once.
	suggestions = c.FuzzyCandidates("javascrip", 5, 0.30)
	seen := 0
	for _, s := range suggestions {
		if s.EntityID == "ent_js" {
			seen++
		}
	}
	if seen != 1 {
		t.Errorf("entity with several close aliases appeared %d times, want 1", seen)
	}

	// topK caps the list.
	if got := c.FuzzyCandidates("a", 1, 0.0); len(got) > 1 {
		t.Errorf("topK=1 returned %d suggestions", len(got))
	}

	// A high floor filters everything for garbage input.
	if got := c.FuzzyCandidates("zzzzqqqq", 3, 0.90); len(got) != 0 {
		t.Errorf("expected no suggestions above 0.90 for garbage, got %d", len(got))
	}
}

func TestFuzzyCandidatesDeterministic(t *testing.T) {
	// Ranking must be identical across independently built caches even
	// though the underlying indexes are hash maps.
	snap := &storage.SnapshotData{
		Namespace: "default",
		Entities: []*types.CanonicalEntity{
			testEntity("ent_a", "alpha", "default"),
			testEntity("ent_b", "altha", "default"),
		},
		Aliases: []*types.Alias{
			testAlias("als_a", "ent_a", "alpha"),
			testAlias("als_b", "ent_b", "altha"),
		},
	}

	var first []types.Suggestion
	for i := 0; i < 20; i++ {
		got := BuildCache(snap).FuzzyCandidates("alpha", 3, 0.0)
		if i == 0 {
			first = got
			continue
		}
		if len(got) != len(first) {
			t.Fatalf("run %d returned %d suggestions, want %d", i, len(got), len(first))
		}
		for j := range got {
			if got[j].EntityID != first[j].EntityID {
				t.Fatalf("run %d rank %d = %s, want %s", i, j, got[j].EntityID, first[j].EntityID)
			}
		}
	}
}

func TestAncestors(t *testing.T) {
	c := BuildCache(testSnapshot())
	names := c.Ancestors("ent_js")
	if len(names) != 1 || names[0] != "programming language" {
		t.Errorf("Ancestors(ent_js) = %v, want [programming language]", names)
	}
	if got := c.Ancestors("ent_rn"); len(got) != 0 {
		t.Errorf("entity without parents returned ancestors %v", got)
	}
}

func TestAncestorsCycleSafe(t *testing.T) {
	snap := &storage.SnapshotData{
		Namespace: "default",
		Entities: []*types.CanonicalEntity{
			testEntity("ent_a", "a", "default"),
			testEntity("ent_b", "b", "default"),
			testEntity("ent_c", "c", "default"),
		},
		Relationships: []*types.Relationship{
			{ID: "rel_1", FromID: "ent_a", ToID: "ent_b", Type: "is_a"},
			{ID: "rel_2", FromID: "ent_b", ToID: "ent_c", Type: "is_a"},
			{ID: "rel_3", FromID: "ent_c", ToID: "ent_a", Type: "is_a"},
		},
	}

	names := BuildCache(snap).Ancestors("ent_a")
	if len(names) != 2 {
		t.Errorf("cycle traversal returned %v, want exactly the two other entities", names)
	}
}

func TestAncestorsDepthBound(t *testing.T) {
	snap := &storage.SnapshotData{Namespace: "default"}
	ids := []string{"ent_0", "ent_1", "ent_2", "ent_3", "ent_4", "ent_5", "ent_6", "ent_7"}
	for _, id := range ids {
		snap.Entities = append(snap.Entities, testEntity(id, id, "default"))
	}
	for i := 0; i+1 < len(ids); i++ {
		snap.Relationships = append(snap.Relationships, &types.Relationship{
			ID: "rel_" + ids[i], FromID: ids[i], ToID: ids[i+1], Type: "is_a",
		})
	}

	names := BuildCache(snap).Ancestors("ent_0")
	if len(names) != maxAncestorDepth {
		t.Errorf("deep chain returned %d ancestors, want %d", len(names), maxAncestorDepth)
	}
}

func TestHolderLoadBeforeFirstReload(t *testing.T) {
	h := NewHolder("default")
	if _, err := h.Load(); !errors.Is(err, ErrCacheUnavailable) {
		t.Errorf("Load before first reload = %v, want ErrCacheUnavailable", err)
	}
}

func TestHolderReloadFailureKeepsOldCache(t *testing.T) {
	src := &fakeSnapshotter{snap: testSnapshot()}
	h := NewHolder("default")

	if _, err := h.Reload(context.Background(), src); err != nil {
		t.Fatalf("initial reload failed: %v", err)
	}
	old, err := h.Load()
	if err != nil {
		t.Fatalf("Load after reload failed: %v", err)
	}

	src.set(nil, errors.New("connection refused"))
	if _, err := h.Reload(context.Background(), src); err == nil {
		t.Fatal("reload against a failing store must return an error")
	} else if !errors.Is(err, storage.ErrStoreUnavailable) {
		t.Errorf("reload error = %v, want wrapped ErrStoreUnavailable", err)
	}

	still, err := h.Load()
	if err != nil {
		t.Fatalf("Load after failed reload errored: %v", err)
	}
	if still != old {
		t.Error("failed reload must leave the previous cache in service")
	}
}

func TestHolderConcurrentReadersDuringReload(t *testing.T) {
	src := &fakeSnapshotter{snap: testSnapshot()}
	h := NewHolder("default")
	if _, err := h.Reload(context.Background(), src); err != nil {
		t.Fatalf("initial reload failed: %v", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				c, err := h.Load()
				if err != nil {
					t.Errorf("Load during reload: %v", err)
					return
				}
				// Any fully-built cache is acceptable; partial state is not.
				if c.Namespace() != "default" || c.Size() == 0 {
					t.Errorf("reader observed inconsistent cache: ns=%q size=%d", c.Namespace(), c.Size())
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		if _, err := h.Reload(context.Background(), src); err != nil {
			t.Fatalf("reload %d failed: %v", i, err)
		}
	}
	close(done)
	wg.Wait()
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	a := r.Holder("zoo")
	b := r.Holder("zoo")
	if a != b {
		t.Error("registry must return the same holder for a namespace")
	}
	r.Holder("default")

	got := r.Namespaces()
	want := []string{"default", "zoo"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Namespaces() = %v, want %v", got, want)
	}
}
