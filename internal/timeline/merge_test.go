package timeline

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

func makeItem(id string, at int64) *Item {
	event := &nostr.Event{ID: id, PubKey: "author", Kind: KindNote, CreatedAt: nostr.Timestamp(at)}
	return &Item{Event: event, Tags: ParseTags(event)}
}

func itemIDs(items []*Item) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID())
	}
	return ids
}

func assertOrder(t *testing.T, items []*Item, want ...string) {
	t.Helper()

	got := itemIDs(items)
	if len(got) != len(want) {
		t.Fatalf("expected %d items %v, got %v", len(want), want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestMergeDedupesAndSorts(t *testing.T) {
	existing := []*Item{makeItem("a", 100), makeItem("b", 90)}
	batch := []*Item{makeItem("b", 90), makeItem("c", 95), makeItem("d", 80)}

	merged, added, evicted := Merge(existing, batch, 0, MergeOlder)

	if added != 2 {
		t.Errorf("expected 2 added, got %d", added)
	}
	if len(evicted) != 0 {
		t.Errorf("expected no evictions, got %d", len(evicted))
	}
	assertOrder(t, merged, "a", "c", "b", "d")
}

func TestMergeOlderTrimsNewestEnd(t *testing.T) {
	existing := []*Item{makeItem("a", 100), makeItem("b", 90)}
	batch := []*Item{makeItem("c", 80), makeItem("d", 70)}

	merged, added, evicted := Merge(existing, batch, 3, MergeOlder)

	if added != 2 {
		t.Errorf("expected 2 added, got %d", added)
	}
	assertOrder(t, merged, "b", "c", "d")
	assertOrder(t, evicted, "a")
}

func TestMergeNewerTrimsOldestEnd(t *testing.T) {
	existing := []*Item{makeItem("b", 90), makeItem("c", 80)}
	batch := []*Item{makeItem("a", 100), makeItem("z", 110)}

	merged, added, evicted := Merge(existing, batch, 3, MergeNewer)

	if added != 2 {
		t.Errorf("expected 2 added, got %d", added)
	}
	assertOrder(t, merged, "z", "a", "b")
	assertOrder(t, evicted, "c")
}

func TestMergeStableForEqualTimestamps(t *testing.T) {
	existing := []*Item{makeItem("a", 100), makeItem("b", 100)}
	batch := []*Item{makeItem("c", 100)}

	merged, _, _ := Merge(existing, batch, 0, MergeNewer)

	// Equal timestamps keep insertion order
	assertOrder(t, merged, "a", "b", "c")
}

func TestMergeEmptyBatch(t *testing.T) {
	existing := []*Item{makeItem("a", 100)}

	merged, added, evicted := Merge(existing, nil, 10, MergeOlder)

	if added != 0 || len(evicted) != 0 {
		t.Errorf("expected no-op, got added=%d evicted=%d", added, len(evicted))
	}
	assertOrder(t, merged, "a")
}

func TestContainsID(t *testing.T) {
	items := []*Item{makeItem("a", 100), makeItem("b", 90)}

	if !ContainsID(items, "a") {
		t.Error("expected a to be present")
	}
	if ContainsID(items, "z") {
		t.Error("expected z to be absent")
	}
}
