package timeline

import (
	"context"
	"encoding/json"

	"github.com/nbd-wtf/go-nostr"
)

// KindNote and KindRepost are the event kinds the view displays
const (
	KindNote     = 1
	KindRepost   = 6
	KindReaction = 7
	KindDeletion = 5
)

// Item is one displayable timeline unit. For reposts, Event is the
// kind-6 wrapper (whose id is the dedup key) and Original is the
// resolved note it points at.
type Item struct {
	Event    *nostr.Event
	Original *nostr.Event
	Tags     *ParsedTags
}

// ID returns the dedup key for the item
func (it *Item) ID() string {
	return it.Event.ID
}

// CreatedAt returns the feed-order timestamp: a repost sorts at the
// time it was reposted, not the time the original was written
func (it *Item) CreatedAt() int64 {
	return int64(it.Event.CreatedAt)
}

// Display returns the event whose content is shown
func (it *Item) Display() *nostr.Event {
	if it.Original != nil {
		return it.Original
	}
	return it.Event
}

// RepostedBy returns the reposting author and timestamp for reposts
func (it *Item) RepostedBy() (pubkey string, at int64, ok bool) {
	if it.Original == nil {
		return "", 0, false
	}
	return it.Event.PubKey, int64(it.Event.CreatedAt), true
}

// Resolver fetches events by id, for repost pointer resolution
type Resolver interface {
	FetchByIDs(ctx context.Context, ids []string) []*nostr.Event
}

// BuildItems turns filtered events into timeline items. Repost originals
// are taken from the embedded JSON when present and valid; remaining
// pointers are resolved with one batched id fetch. A repost whose pointer
// cannot be resolved to a valid note is dropped, never displayed empty.
func BuildItems(ctx context.Context, events []*nostr.Event, resolver Resolver) []*Item {
	items := make([]*Item, 0, len(events))

	type pendingRepost struct {
		item    *Item
		pointer string
	}
	var pending []pendingRepost

	for _, event := range events {
		parsed := ParseTags(event)
		item := &Item{Event: event, Tags: parsed}

		if event.Kind != KindRepost {
			items = append(items, item)
			continue
		}

		if original := decodeEmbeddedEvent(event.Content); original != nil {
			item.Original = original
			items = append(items, item)
			continue
		}

		if parsed.Pointer == "" {
			// Malformed repost: no embedded event and nothing to resolve
			continue
		}

		items = append(items, item)
		pending = append(pending, pendingRepost{item: item, pointer: parsed.Pointer})
	}

	if len(pending) == 0 {
		return items
	}

	// One batched fetch for every unresolved pointer
	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.pointer)
	}

	fetched := make(map[string]*nostr.Event)
	if resolver != nil {
		for _, event := range resolver.FetchByIDs(ctx, ids) {
			fetched[event.ID] = event
		}
	}

	for _, p := range pending {
		if original := fetched[p.pointer]; original != nil && isValidOriginal(original) {
			p.item.Original = original
		}
	}

	// Drop reposts that could not be resolved
	resolved := items[:0]
	for _, item := range items {
		if item.Event.Kind == KindRepost && item.Original == nil {
			continue
		}
		resolved = append(resolved, item)
	}

	return resolved
}

// decodeEmbeddedEvent parses a kind-6 content field carrying the
// original event as JSON, returning nil when absent or invalid
func decodeEmbeddedEvent(content string) *nostr.Event {
	if content == "" || content[0] != '{' {
		return nil
	}

	var event nostr.Event
	if err := json.Unmarshal([]byte(content), &event); err != nil {
		return nil
	}
	if !isValidOriginal(&event) {
		return nil
	}

	return &event
}

// isValidOriginal checks the minimal shape of a resolved repost target
func isValidOriginal(event *nostr.Event) bool {
	return event.ID != "" && event.PubKey != "" && event.Kind == KindNote
}
