package relay

import (
	"context"
	"sort"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/awayuki/lumiline/internal/config"
	"github.com/awayuki/lumiline/internal/ops"
)

// Query describes one logical timeline query against all configured relays
type Query struct {
	Kinds        []int
	Authors      []string
	Search       string
	RequiredTags []string // mapped to #t on the wire; AND semantics are enforced client-side
	Since        int64    // unix seconds, 0 = unset
	Until        int64    // unix seconds, 0 = unset
	Limit        int
}

// Batch is the raw, unfiltered result of a Query.
// SearchedUntil is the oldest CreatedAt among the raw results, before any
// client-side filtering. It is nil when no relay returned any event, which
// callers must treat as "no progress, do not advance the frontier".
type Batch struct {
	Events        []*nostr.Event
	SearchedUntil *int64
}

// Client issues logical queries against all configured relays
type Client struct {
	pool   *nostr.SimplePool
	relays *config.Relays
	log    *ops.Logger
}

// NewClient creates a new relay query client
func NewClient(ctx context.Context, relays *config.Relays, log *ops.Logger) *Client {
	return &Client{
		pool:   nostr.NewSimplePool(ctx),
		relays: relays,
		log:    log.WithComponent("relay"),
	}
}

// Seeds returns the configured relay endpoints
func (c *Client) Seeds() []string {
	return c.relays.Seeds
}

// QueryTimeout returns the configured per-query timeout
func (c *Client) QueryTimeout() time.Duration {
	if c.relays.Policy.QueryTimeoutMs == 0 {
		return 15 * time.Second
	}
	return time.Duration(c.relays.Policy.QueryTimeoutMs) * time.Millisecond
}

// Query fans the query out to every configured relay, merges the raw
// results and returns them sorted descending by CreatedAt together with
// the pre-filter time boundary that was actually searched.
//
// Transport failures never surface as errors: a relay that fails or
// times out simply contributes nothing, and a fully empty raw result is
// reported as SearchedUntil == nil.
func (c *Client) Query(ctx context.Context, q Query) *Batch {
	start := time.Now()

	queryCtx, cancel := context.WithTimeout(ctx, c.QueryTimeout())
	defer cancel()

	filter := buildFilter(q)

	events := make([]*nostr.Event, 0, q.Limit)
	for relayEvent := range c.pool.SubManyEose(queryCtx, c.relays.Seeds, nostr.Filters{filter}) {
		if relayEvent.Event != nil {
			events = append(events, relayEvent.Event)
		}
	}

	batch := newBatch(events)
	c.log.LogQuery(len(c.relays.Seeds), q.Kinds, q.Since, q.Until, len(batch.Events), time.Since(start))
	return batch
}

// FetchByIDs fetches specific events by id, for repost pointer resolution
// and reaction reconciliation. Missing ids are silently absent from the result.
func (c *Client) FetchByIDs(ctx context.Context, ids []string) []*nostr.Event {
	if len(ids) == 0 {
		return nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, c.QueryTimeout())
	defer cancel()

	filter := nostr.Filter{
		IDs:   ids,
		Limit: len(ids),
	}

	events := make([]*nostr.Event, 0, len(ids))
	for relayEvent := range c.pool.SubManyEose(queryCtx, c.relays.Seeds, nostr.Filters{filter}) {
		if relayEvent.Event != nil {
			events = append(events, relayEvent.Event)
		}
	}

	return dedupeByID(events)
}

// FetchTagged fetches events of the given kinds that reference any of the
// given event ids via an e tag (reactions, replies, reposts of visible items).
func (c *Client) FetchTagged(ctx context.Context, kinds []int, eventIDs []string, limit int) []*nostr.Event {
	if len(eventIDs) == 0 {
		return nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, c.QueryTimeout())
	defer cancel()

	filter := nostr.Filter{
		Kinds: kinds,
		Tags: nostr.TagMap{
			"e": eventIDs,
		},
		Limit: limit,
	}

	events := make([]*nostr.Event, 0, limit)
	for relayEvent := range c.pool.SubManyEose(queryCtx, c.relays.Seeds, nostr.Filters{filter}) {
		if relayEvent.Event != nil {
			events = append(events, relayEvent.Event)
		}
	}

	return dedupeByID(events)
}

// FetchMetadata fetches the newest kind-0 metadata event for a pubkey.
// Returns nil when no relay has one.
func (c *Client) FetchMetadata(ctx context.Context, pubkey string) *nostr.Event {
	queryCtx, cancel := context.WithTimeout(ctx, c.QueryTimeout())
	defer cancel()

	filter := nostr.Filter{
		Kinds:   []int{nostr.KindProfileMetadata},
		Authors: []string{pubkey},
		Limit:   1,
	}

	result := c.pool.QuerySingle(queryCtx, c.relays.Seeds, filter)
	if result == nil || result.Event == nil {
		return nil
	}
	return result.Event
}

// Close closes all relay connections
func (c *Client) Close() {
	c.pool.Close("client shutting down")
}

// buildFilter translates a logical query into a wire filter
func buildFilter(q Query) nostr.Filter {
	filter := nostr.Filter{
		Kinds:   q.Kinds,
		Authors: q.Authors,
		Search:  q.Search,
		Limit:   q.Limit,
	}

	if len(q.RequiredTags) > 0 {
		// Relays apply OR semantics to tag filters; this only narrows the
		// candidate set. The pipeline re-checks every required tag with AND.
		filter.Tags = nostr.TagMap{
			"t": q.RequiredTags,
		}
	}

	if q.Since > 0 {
		since := nostr.Timestamp(q.Since)
		filter.Since = &since
	}
	if q.Until > 0 {
		until := nostr.Timestamp(q.Until)
		filter.Until = &until
	}

	return filter
}

// newBatch dedupes the raw fan-out result, sorts it descending by
// CreatedAt and computes the searched boundary from the raw set.
func newBatch(events []*nostr.Event) *Batch {
	events = dedupeByID(events)

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt > events[j].CreatedAt
	})

	batch := &Batch{Events: events}
	if len(events) > 0 {
		oldest := int64(events[len(events)-1].CreatedAt)
		batch.SearchedUntil = &oldest
	}

	return batch
}

// dedupeByID removes cross-relay duplicates, keeping first occurrence
func dedupeByID(events []*nostr.Event) []*nostr.Event {
	seen := make(map[string]bool, len(events))
	result := events[:0]

	for _, event := range events {
		if seen[event.ID] {
			continue
		}
		seen[event.ID] = true
		result = append(result, event)
	}

	return result
}
