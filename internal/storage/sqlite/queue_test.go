package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/jenezis/harmon/internal/storage"
	"github.com/jenezis/harmon/pkg/types"
)

func TestRecordMissUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.RecordMiss(ctx, "default", "Golang", "golang", "", 0)
	if err != nil {
		t.Fatalf("RecordMiss: %v", err)
	}

	// A second miss on the same normalized text increments occurrences on
	// the same row, even with a different surface form.
	second, err := store.RecordMiss(ctx, "default", "GOLANG", "golang", "ent_go", 0.72)
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
	if item.Status != types.QueuePending {
		t.Errorf("status = %q, want pending", item.Status)
	}
	if item.SuggestedEntityID != "ent_go" || item.SuggestedScore != 0.72 {
		t.Errorf("suggestion not refreshed: %q at %v", item.SuggestedEntityID, item.SuggestedScore)
	}
	if item.Mention != "Golang" {
		t.Errorf("mention = %q; the first-seen surface form is kept", item.Mention)
	}

	// Separate namespaces track the same mention independently.
	other, err := store.RecordMiss(ctx, "infra", "Golang", "golang", "", 0)
	if err != nil {
		t.Fatalf("cross-namespace RecordMiss: %v", err)
	}
	if other == first {
		t.Error("namespaces must not share queue rows")
	}
}

func TestRecordMissValidation(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.RecordMiss(context.Background(), "default", "?!", "", "", 0); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestListPendingOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// golang seen three times, rustlang twice, ziglang once.
	for i := 0; i < 3; i++ {
		if _, err := store.RecordMiss(ctx, "default", "golang", "golang", "", 0); err != nil {
			t.Fatalf("RecordMiss: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := store.RecordMiss(ctx, "default", "rustlang", "rustlang", "", 0); err != nil {
			t.Fatalf("RecordMiss: %v", err)
		}
	}
	if _, err := store.RecordMiss(ctx, "default", "ziglang", "ziglang", "", 0); err != nil {
		t.Fatalf("RecordMiss: %v", err)
	}

	items, err := store.ListPending(ctx, "default", storage.PendingOptions{})
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if items[0].Normalized != "golang" || items[1].Normalized != "rustlang" || items[2].Normalized != "ziglang" {
		t.Errorf("order = [%s %s %s], want most-frequent first",
			items[0].Normalized, items[1].Normalized, items[2].Normalized)
	}

	// The occurrence threshold filters singletons.
	items, err = store.ListPending(ctx, "default", storage.PendingOptions{MinOccurrences: 2})
	if err != nil {
		t.Fatalf("ListPending min=2: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("min occurrences 2 returned %d items, want 2", len(items))
	}

	// Limit caps the page.
	items, err = store.ListPending(ctx, "default", storage.PendingOptions{Limit: 1})
	if err != nil {
		t.Fatalf("ListPending limit=1: %v", err)
	}
	if len(items) != 1 || items[0].Normalized != "golang" {
		t.Errorf("limit=1 returned %v", items)
	}
}

func TestMarkResolved(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	itemID, err := store.RecordMiss(ctx, "default", "golang", "golang", "", 0)
	if err != nil {
		t.Fatalf("RecordMiss: %v", err)
	}

	if err := store.MarkResolved(ctx, itemID, "als_abc123"); err != nil {
		t.Fatalf("MarkResolved: %v", err)
	}

	item, err := store.GetQueueItem(ctx, itemID)
	if err != nil {
		t.Fatalf("GetQueueItem: %v", err)
	}
	if item.Status != types.QueueResolved {
		t.Errorf("status = %q, want resolved", item.Status)
	}
	if item.ResolvedAliasID != "als_abc123" {
		t.Errorf("resolved alias = %q", item.ResolvedAliasID)
	}

	// Resolved items leave the pending list but stay readable for audit.
	items, err := store.ListPending(ctx, "default", storage.PendingOptions{})
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("resolved item still pending: %v", items)
	}

	if err := store.MarkResolved(ctx, "enq_missing", "als_x"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown item: err = %v, want ErrNotFound", err)
	}
}

func TestMarkRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	itemID, err := store.RecordMiss(ctx, "default", "asdfgh", "asdfgh", "", 0)
	if err != nil {
		t.Fatalf("RecordMiss: %v", err)
	}

	if err := store.MarkRejected(ctx, itemID, "keyboard mash"); err != nil {
		t.Fatalf("MarkRejected: %v", err)
	}

	item, err := store.GetQueueItem(ctx, itemID)
	if err != nil {
		t.Fatalf("GetQueueItem: %v", err)
	}
	if item.Status != types.QueueRejected {
		t.Errorf("status = %q, want rejected", item.Status)
	}
	if item.RejectReason != "keyboard mash" {
		t.Errorf("reason = %q", item.RejectReason)
	}

	if err := store.MarkRejected(ctx, "enq_missing", "x"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown item: err = %v, want ErrNotFound", err)
	}
}

func TestGetQueueItemNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetQueueItem(context.Background(), "enq_missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
