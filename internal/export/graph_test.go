package export

import (
	"testing"
	"time"

	"github.com/jenezis/harmon/internal/storage"
	"github.com/jenezis/harmon/pkg/types"
)

func exportSnapshot() *storage.SnapshotData {
	return &storage.SnapshotData{
		Namespace: "default",
		TakenAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Entities: []*types.CanonicalEntity{
			{ID: "ent_b", Name: "Kubernetes", NormalizedName: "kubernetes", Namespace: "default", Type: "technology", Source: types.SourceManual},
			{ID: "ent_a", Name: "JavaScript", NormalizedName: "javascript", Namespace: "default", Type: "technology", Source: types.SourceManual, Archived: true},
		},
		Aliases: []*types.Alias{
			{ID: "als_1", EntityID: "ent_a", Text: "JavaScript", Normalized: "javascript"},
			{ID: "als_2", EntityID: "ent_a", Text: "JS", Normalized: "js"},
			{ID: "als_3", EntityID: "ent_a", Text: "ECMAScript", Normalized: "ecmascript"},
			{ID: "als_4", EntityID: "ent_b", Text: "K8s", Normalized: "k8s"},
			{ID: "als_5", EntityID: "ent_gone", Text: "orphan", Normalized: "orphan"},
		},
		Relationships: []*types.Relationship{
			{ID: "rel_1", FromID: "ent_b", ToID: "ent_a", Type: "related_to"},
			{ID: "rel_2", FromID: "ent_a", ToID: "ent_gone", Type: "is_a"},
		},
	}
}

func TestGraph(t *testing.T) {
	got := Graph(exportSnapshot())

	if got.Namespace != "default" {
		t.Errorf("namespace = %q", got.Namespace)
	}
	if got.TakenAt.IsZero() {
		t.Error("TakenAt not carried over")
	}

	if len(got.Nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(got.Nodes))
	}
	// Nodes sorted by ID regardless of snapshot order.
	if got.Nodes[0].ID != "ent_a" || got.Nodes[1].ID != "ent_b" {
		t.Errorf("node order = [%s %s]", got.Nodes[0].ID, got.Nodes[1].ID)
	}
	if !got.Nodes[0].Archived {
		t.Error("archived flag must be exported")
	}

	// Self-alias excluded, remainder alphabetical, dangling alias dropped.
	a := got.Nodes[0]
	if len(a.Aliases) != 2 || a.Aliases[0] != "ECMAScript" || a.Aliases[1] != "JS" {
		t.Errorf("ent_a aliases = %v, want [ECMAScript JS]", a.Aliases)
	}

	// The edge to the missing entity is dropped.
	if len(got.Edges) != 1 {
		t.Fatalf("got %d edges, want 1", len(got.Edges))
	}
	e := got.Edges[0]
	if e.From != "ent_b" || e.To != "ent_a" || e.Type != "related_to" {
		t.Errorf("edge = %+v", e)
	}
}

func TestGraphEmptySnapshot(t *testing.T) {
	got := Graph(&storage.SnapshotData{Namespace: "empty"})
	if len(got.Nodes) != 0 || len(got.Edges) != 0 {
		t.Errorf("empty snapshot exported %d nodes, %d edges", len(got.Nodes), len(got.Edges))
	}
	if got.Nodes == nil || got.Edges == nil {
		t.Error("exported slices must be non-nil for stable JSON")
	}
}

func TestGraphEdgeOrderingDeterministic(t *testing.T) {
	snap := &storage.SnapshotData{
		Namespace: "default",
		Entities: []*types.CanonicalEntity{
			{ID: "ent_a", Name: "a", NormalizedName: "a"},
			{ID: "ent_b", Name: "b", NormalizedName: "b"},
			{ID: "ent_c", Name: "c", NormalizedName: "c"},
		},
		Relationships: []*types.Relationship{
			{ID: "r3", FromID: "ent_b", ToID: "ent_a", Type: "is_a"},
			{ID: "r1", FromID: "ent_a", ToID: "ent_c", Type: "related_to"},
			{ID: "r2", FromID: "ent_a", ToID: "ent_b", Type: "is_a"},
		},
	}

	got := Graph(snap)
	want := []Edge{
		{From: "ent_a", To: "ent_b", Type: "is_a"},
		{From: "ent_a", To: "ent_c", Type: "related_to"},
		{From: "ent_b", To: "ent_a", Type: "is_a"},
	}
	if len(got.Edges) != len(want) {
		t.Fatalf("got %d edges", len(got.Edges))
	}
	for i := range want {
		if got.Edges[i] != want[i] {
			t.Errorf("edge %d = %+v, want %+v", i, got.Edges[i], want[i])
		}
	}
}
