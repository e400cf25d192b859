package timeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

type fakeResolver struct {
	events map[string]*nostr.Event
	calls  int
}

func (f *fakeResolver) FetchByIDs(ctx context.Context, ids []string) []*nostr.Event {
	f.calls++

	result := make([]*nostr.Event, 0, len(ids))
	for _, id := range ids {
		if event, ok := f.events[id]; ok {
			result = append(result, event)
		}
	}
	return result
}

func note(id, pubkey string, at int64, content string) *nostr.Event {
	return &nostr.Event{ID: id, PubKey: pubkey, Kind: KindNote, CreatedAt: nostr.Timestamp(at), Content: content}
}

func repost(id, pubkey string, at int64, pointer, content string) *nostr.Event {
	return &nostr.Event{
		ID: id, PubKey: pubkey, Kind: KindRepost, CreatedAt: nostr.Timestamp(at),
		Content: content,
		Tags:    nostr.Tags{nostr.Tag{"e", pointer}},
	}
}

func TestBuildItemsPlainNotes(t *testing.T) {
	events := []*nostr.Event{note("n1", "alice", 100, "hello"), note("n2", "bob", 90, "hi")}

	items := BuildItems(context.Background(), events, nil)

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID() != "n1" || items[0].Display().ID != "n1" {
		t.Errorf("plain note must display itself")
	}
	if _, _, ok := items[0].RepostedBy(); ok {
		t.Error("plain note is not a repost")
	}
}

func TestBuildItemsRepostWithEmbeddedOriginal(t *testing.T) {
	original := note("orig", "alice", 50, "the original")
	embedded, err := json.Marshal(original)
	if err != nil {
		t.Fatal(err)
	}

	wrapper := repost("r1", "bob", 100, "orig", string(embedded))
	resolver := &fakeResolver{}

	items := BuildItems(context.Background(), []*nostr.Event{wrapper}, resolver)

	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	item := items[0]
	if item.ID() != "r1" {
		t.Errorf("dedup key must be the wrapper id, got %q", item.ID())
	}
	if item.CreatedAt() != 100 {
		t.Errorf("feed order must use repost time, got %d", item.CreatedAt())
	}
	if item.Display().ID != "orig" {
		t.Errorf("display must be the original, got %q", item.Display().ID)
	}
	if by, at, ok := item.RepostedBy(); !ok || by != "bob" || at != 100 {
		t.Errorf("unexpected repost attribution: %q %d %v", by, at, ok)
	}
	if resolver.calls != 0 {
		t.Errorf("embedded original must not trigger a fetch, got %d calls", resolver.calls)
	}
}

func TestBuildItemsRepostResolvedByFetch(t *testing.T) {
	resolver := &fakeResolver{events: map[string]*nostr.Event{
		"orig": note("orig", "alice", 50, "the original"),
	}}

	items := BuildItems(context.Background(), []*nostr.Event{repost("r1", "bob", 100, "orig", "")}, resolver)

	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Display().ID != "orig" {
		t.Errorf("expected fetched original displayed, got %q", items[0].Display().ID)
	}
	if resolver.calls != 1 {
		t.Errorf("expected one batched fetch, got %d", resolver.calls)
	}
}

func TestBuildItemsBatchesPointerFetches(t *testing.T) {
	resolver := &fakeResolver{events: map[string]*nostr.Event{
		"o1": note("o1", "alice", 50, "one"),
		"o2": note("o2", "carol", 40, "two"),
	}}

	events := []*nostr.Event{
		repost("r1", "bob", 100, "o1", ""),
		repost("r2", "bob", 90, "o2", ""),
	}
	items := BuildItems(context.Background(), events, resolver)

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if resolver.calls != 1 {
		t.Errorf("expected one batched fetch for all pointers, got %d", resolver.calls)
	}
}

func TestBuildItemsDropsUnresolvableRepost(t *testing.T) {
	resolver := &fakeResolver{}

	events := []*nostr.Event{
		note("n1", "alice", 100, "kept"),
		repost("r1", "bob", 90, "missing", ""),
	}
	items := BuildItems(context.Background(), events, resolver)

	if len(items) != 1 || items[0].ID() != "n1" {
		t.Errorf("unresolvable repost must be dropped, got %v", itemIDs(items))
	}
}

func TestBuildItemsDropsRepostWithoutPointer(t *testing.T) {
	wrapper := &nostr.Event{ID: "r1", PubKey: "bob", Kind: KindRepost, CreatedAt: 100}

	items := BuildItems(context.Background(), []*nostr.Event{wrapper}, &fakeResolver{})

	if len(items) != 0 {
		t.Errorf("malformed repost must be dropped, got %v", itemIDs(items))
	}
}

func TestDecodeEmbeddedEventRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"not json", "just a note"},
		{"malformed json", `{"id": truncated`},
		{"wrong kind", `{"id":"x","pubkey":"y","kind":6}`},
		{"missing pubkey", `{"id":"x","kind":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeEmbeddedEvent(tt.content); got != nil {
				t.Errorf("expected nil, got %+v", got)
			}
		})
	}
}
