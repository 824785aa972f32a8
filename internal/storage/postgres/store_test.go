package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jenezis/harmon/internal/storage"
	"github.com/jenezis/harmon/pkg/types"
)

// newTestStore connects to the database named by HARMON_TEST_POSTGRES_DSN,
// or skips the test when none is configured. Each test isolates itself in
// a unique namespace rather than truncating shared tables.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("HARMON_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HARMON_TEST_POSTGRES_DSN not set")
	}
	store, err := New(dsn)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testNamespace(t *testing.T) string {
	return fmt.Sprintf("test_%s_%d", t.Name(), time.Now().UnixNano())
}

func TestCreateEntityAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ns := testNamespace(t)

	id, err := store.CreateEntity(ctx, &types.CanonicalEntity{
		Name: "JavaScript", Namespace: ns, Type: "technology",
	})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	got, err := store.GetEntity(ctx, id)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got.NormalizedName != "javascript" {
		t.Errorf("normalized name = %q", got.NormalizedName)
	}

	_, err = store.CreateEntity(ctx, &types.CanonicalEntity{Name: "javascript", Namespace: ns})
	var dup *storage.DuplicateNameError
	if !errors.As(err, &dup) {
		t.Errorf("err = %v, want DuplicateNameError", err)
	}
}

func TestAliasOwnership(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ns := testNamespace(t)

	jsID, err := store.CreateEntity(ctx, &types.CanonicalEntity{Name: "JavaScript", Namespace: ns})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	tsID, err := store.CreateEntity(ctx, &types.CanonicalEntity{Name: "TypeScript", Namespace: ns})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	aliasID, err := store.AddAlias(ctx, jsID, "JS", types.ConfidenceHumanApproved)
	if err != nil {
		t.Fatalf("AddAlias: %v", err)
	}
	again, err := store.AddAlias(ctx, jsID, "js", types.ConfidenceHumanApproved)
	if err != nil {
		t.Fatalf("idempotent AddAlias: %v", err)
	}
	if again != aliasID {
		t.Errorf("re-add returned %s, want %s", again, aliasID)
	}

	_, err = store.AddAlias(ctx, tsID, "JS", types.ConfidenceHumanApproved)
	var ambiguous *storage.AmbiguousAliasError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("err = %v, want AmbiguousAliasError", err)
	}
	if ambiguous.OwnerID != jsID {
		t.Errorf("OwnerID = %s, want %s", ambiguous.OwnerID, jsID)
	}
}

func TestQueueLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ns := testNamespace(t)

	first, err := store.RecordMiss(ctx, ns, "Golang", "golang", "", 0)
	if err != nil {
		t.Fatalf("RecordMiss: %v", err)
	}
	second, err := store.RecordMiss(ctx, ns, "golang", "golang", "ent_go", 0.7)
	if err != nil {
		t.Fatalf("second RecordMiss: %v", err)
	}
	if second != first {
		t.Errorf("upsert created a new row: %s vs %s", second, first)
	}

	item, err := store.GetQueueItem(ctx, first)
	if err != nil {
		t.Fatalf("GetQueueItem: %v", err)
	}
	if item.Occurrences != 2 {
		t.Errorf("occurrences = %d, want 2", item.Occurrences)
	}

	if err := store.MarkResolved(ctx, first, "als_x"); err != nil {
		t.Fatalf("MarkResolved: %v", err)
	}
	items, err := store.ListPending(ctx, ns, storage.PendingOptions{})
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("resolved item still pending: %v", items)
	}
}

func TestSnapshotConsistency(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ns := testNamespace(t)

	jsID, err := store.CreateEntity(ctx, &types.CanonicalEntity{Name: "JavaScript", Namespace: ns})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	langID, err := store.CreateEntity(ctx, &types.CanonicalEntity{Name: "Programming Language", Namespace: ns})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if _, err := store.AddRelationship(ctx, jsID, langID, "is_a"); err != nil {
		t.Fatalf("AddRelationship: %v", err)
	}

	snap, err := store.Snapshot(ctx, ns)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Entities) != 2 || len(snap.Aliases) != 2 || len(snap.Relationships) != 1 {
		t.Errorf("snapshot shape = %d entities, %d aliases, %d relationships",
			len(snap.Entities), len(snap.Aliases), len(snap.Relationships))
	}
}
