package timeline

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/awayuki/lumiline/internal/config"
	"github.com/awayuki/lumiline/internal/filter"
	"github.com/awayuki/lumiline/internal/ops"
	"github.com/awayuki/lumiline/internal/relay"
)

var (
	// ErrViewClosed is returned when an operation runs against a torn-down view
	ErrViewClosed = errors.New("timeline: view is closed")
	// ErrUnknownGap is returned for a fill request with a stale gap id
	ErrUnknownGap = errors.New("timeline: unknown gap id")
)

// Source is the opaque query capability the view consumes. It never
// returns transport errors; failures degrade to empty results.
type Source interface {
	Query(ctx context.Context, q relay.Query) *relay.Batch
	FetchByIDs(ctx context.Context, ids []string) []*nostr.Event
	FetchTagged(ctx context.Context, kinds []int, eventIDs []string, limit int) []*nostr.Event
}

// Params fixes the query context of one view (global timeline, one
// author's timeline, a hashtag search). Views never share state.
type Params struct {
	Kinds        []int
	Authors      []string
	Search       string
	RequiredTags []string
}

// Meta carries per-item interaction counts, keyed by displayed event id
type Meta struct {
	ReplyCount  int
	RepostCount int

	seen map[string]bool // interaction event ids already counted
}

// View is a single deduplicated, paginated, filterable timeline over
// all configured relays. All exported methods are safe for concurrent
// use; every continuation after a query re-checks liveness so results
// of in-flight requests are never applied to a closed view.
type View struct {
	source   Source
	pipeline *filter.Pipeline
	log      *ops.Logger

	params   Params
	pageSize int
	maxItems int

	mu         sync.Mutex
	closed     bool
	items      []*Item
	meta       map[string]*Meta
	frontier   *Frontier
	gaps       *GapTracker
	pendingNew []*Item
	latestSeen int64 // watermark: newest raw timestamp incorporated into the view
}

// NewView creates a view for one query context
func NewView(source Source, pipeline *filter.Pipeline, cfg *config.Timeline, params Params, log *ops.Logger) *View {
	if len(params.Kinds) == 0 {
		params.Kinds = cfg.Kinds
	}

	return &View{
		source:   source,
		pipeline: pipeline,
		log:      log.WithComponent("timeline"),
		params:   params,
		pageSize: cfg.PageSize,
		maxItems: cfg.MaxItems,
		meta:     make(map[string]*Meta),
		frontier: NewFrontier(),
		gaps:     NewGapTracker(),
	}
}

// baseQuery builds the wire query for this view's context
func (v *View) baseQuery() relay.Query {
	return relay.Query{
		Kinds:        v.params.Kinds,
		Authors:      v.params.Authors,
		Search:       v.params.Search,
		RequiredTags: v.params.RequiredTags,
		Limit:        v.pageSize,
	}
}

// LoadInitial performs the first load, establishing the frontier and
// the polling watermark. Returns the number of items added.
func (v *View) LoadInitial(ctx context.Context) (int, error) {
	if v.isClosed() {
		return 0, ErrViewClosed
	}

	batch := v.source.Query(ctx, v.baseQuery())
	filtered := v.pipeline.Apply(batch.Events)
	items := BuildItems(ctx, filtered, v.source)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, ErrViewClosed
	}

	v.frontier.ApplyInitial(batch.SearchedUntil)

	var added int
	var evicted []*Item
	v.items, added, evicted = Merge(v.items, items, v.maxItems, MergeNewer)
	v.prune(evicted)

	if len(batch.Events) > 0 {
		if newest := int64(batch.Events[0].CreatedAt); newest > v.latestSeen {
			v.latestSeen = newest
		}
	}

	v.log.LogMerge("initial", added, len(evicted), len(v.items))
	return added, nil
}

// LoadOlder pages backward from the current frontier. An empty raw
// response flips HasMore off without moving the frontier, so a retry
// stays legal. The frontier always tracks raw search depth, not
// visible items.
func (v *View) LoadOlder(ctx context.Context) (int, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return 0, ErrViewClosed
	}
	q := v.baseQuery()
	if until, ok := v.frontier.NextUntil(); ok {
		q.Until = until
	}
	v.mu.Unlock()

	batch := v.source.Query(ctx, q)
	filtered := v.pipeline.Apply(batch.Events)
	items := BuildItems(ctx, filtered, v.source)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, ErrViewClosed
	}

	v.frontier.ApplyOlder(batch.SearchedUntil)
	if batch.SearchedUntil == nil {
		// No progress; nothing to merge and nothing to register
		return 0, nil
	}

	var added int
	var evicted []*Item
	v.items, added, evicted = Merge(v.items, items, v.maxItems, MergeOlder)
	v.prune(evicted)

	v.registerGap(batch, filtered, items)

	v.log.LogMerge("older", added, len(evicted), len(v.items))
	return added, nil
}

// registerGap records a continuity hole after a backward page: when the
// raw page was limit-truncated and filtering dropped events, per-relay
// limits may have cut coverage inside the span now displayed as
// contiguous. Caller holds the lock.
func (v *View) registerGap(batch *relay.Batch, filtered []*nostr.Event, items []*Item) {
	if batch.SearchedUntil == nil {
		return
	}
	if len(batch.Events) < v.pageSize || len(filtered) >= len(batch.Events) {
		return
	}

	since := *batch.SearchedUntil

	var afterID string
	var until int64
	if len(items) > 0 {
		oldest := items[len(items)-1]
		afterID = oldest.ID()
		until = oldest.CreatedAt()
	} else if len(v.items) > 0 {
		// Every event in the page was filtered out; anchor below the
		// current bottom and cover the whole queried span
		bottom := v.items[len(v.items)-1]
		afterID = bottom.ID()
		until = int64(batch.Events[0].CreatedAt) + 1
	} else {
		return
	}

	if gap := v.gaps.Register(afterID, since, until); gap != nil {
		v.log.Debug("gap registered",
			"gap_id", gap.ID, "after", gap.AfterItemID, "since", gap.Since, "until", gap.Until)
	}
}

// FillGap performs one narrowing step on a registered gap, re-querying
// its exact window. The gap persists at a narrower boundary when the
// sub-query was still limit-truncated above the window floor; callers
// invoke FillGap again until it resolves.
func (v *View) FillGap(ctx context.Context, gapID string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrViewClosed
	}
	gap := v.gaps.Get(gapID)
	if gap == nil {
		v.mu.Unlock()
		return ErrUnknownGap
	}
	q := v.baseQuery()
	q.Since = gap.Since
	q.Until = gap.Until - 1
	v.mu.Unlock()

	batch := v.source.Query(ctx, q)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrViewClosed
	}
	if v.gaps.Get(gapID) == nil {
		// Resolved concurrently
		v.mu.Unlock()
		return nil
	}

	if batch.SearchedUntil == nil {
		// Nothing was ever there
		v.gaps.Resolve(gapID)
		v.log.LogGapFill(gapID, gap.Since, gap.Until, 0, true)
		v.mu.Unlock()
		return nil
	}

	// Only previously-unseen events count toward progress
	unseen := make([]*nostr.Event, 0, len(batch.Events))
	for _, event := range batch.Events {
		if !ContainsID(v.items, event.ID) {
			unseen = append(unseen, event)
		}
	}
	v.mu.Unlock()

	if len(unseen) == 0 {
		v.mu.Lock()
		v.gaps.Resolve(gapID)
		v.mu.Unlock()
		v.log.LogGapFill(gapID, gap.Since, gap.Until, 0, true)
		return nil
	}

	filtered := v.pipeline.Apply(unseen)
	items := BuildItems(ctx, filtered, v.source)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrViewClosed
	}

	var added int
	var evicted []*Item
	v.items, added, evicted = Merge(v.items, items, v.maxItems, MergeOlder)
	v.prune(evicted)

	oldestNew := int64(unseen[len(unseen)-1].CreatedAt)
	fullPage := len(batch.Events) >= v.pageSize

	resolved := true
	if oldestNew > gap.Since+1 && fullPage {
		v.gaps.Narrow(gapID, oldestNew)
		resolved = v.gaps.Get(gapID) == nil
	} else {
		v.gaps.Resolve(gapID)
	}

	v.log.LogGapFill(gapID, gap.Since, gap.Until, added, resolved)
	return nil
}

// CheckForNew polls for events newer than the watermark and stages them
// without touching the visible view. Returns the pending-new count.
func (v *View) CheckForNew(ctx context.Context) (int, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return 0, ErrViewClosed
	}
	if v.latestSeen == 0 {
		// Nothing loaded yet; polling has no lower bound to work from
		pending := len(v.pendingNew)
		v.mu.Unlock()
		return pending, nil
	}
	q := v.baseQuery()
	q.Since = v.latestSeen + 1
	v.mu.Unlock()

	batch := v.source.Query(ctx, q)
	filtered := v.pipeline.Apply(batch.Events)
	items := BuildItems(ctx, filtered, v.source)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, ErrViewClosed
	}

	staged := 0
	for _, item := range items {
		if ContainsID(v.items, item.ID()) || ContainsID(v.pendingNew, item.ID()) {
			continue
		}
		v.pendingNew = append(v.pendingNew, item)
		staged++
	}

	if staged > 0 {
		sort.SliceStable(v.pendingNew, func(i, j int) bool {
			return v.pendingNew[i].CreatedAt() > v.pendingNew[j].CreatedAt()
		})
	}

	v.log.LogPoll(v.latestSeen, staged, len(v.pendingNew))
	return len(v.pendingNew), nil
}

// AcceptNew merges the staged pending list into the visible view at the
// newest end and advances the watermark to the accepted maximum. This
// is the explicit "show new posts" action; polling alone never shifts
// visible content.
func (v *View) AcceptNew() (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, ErrViewClosed
	}
	if len(v.pendingNew) == 0 {
		return 0, nil
	}

	var added int
	var evicted []*Item
	v.items, added, evicted = Merge(v.items, v.pendingNew, v.maxItems, MergeNewer)
	v.prune(evicted)

	for _, item := range v.pendingNew {
		if at := item.CreatedAt(); at > v.latestSeen {
			v.latestSeen = at
		}
	}
	v.pendingNew = nil

	v.log.LogMerge("accept-new", added, len(evicted), len(v.items))
	return added, nil
}

// RefreshInteractions fetches interactions referencing the visible
// items, updates reply/repost counts, and returns the reaction events
// for the reaction coordinator to reconcile.
func (v *View) RefreshInteractions(ctx context.Context) []*nostr.Event {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	ids := make([]string, 0, len(v.items))
	for _, item := range v.items {
		ids = append(ids, item.Display().ID)
	}
	v.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}

	events := v.source.FetchTagged(ctx, []int{KindNote, KindRepost, KindReaction}, ids, v.pageSize*10)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}

	var reactions []*nostr.Event
	for _, event := range events {
		switch event.Kind {
		case KindReaction:
			reactions = append(reactions, event)
		case KindNote, KindRepost:
			v.countInteraction(event)
		}
	}

	return reactions
}

// countInteraction updates the metadata map for one reply or repost.
// Caller holds the lock.
func (v *View) countInteraction(event *nostr.Event) {
	parsed := ParseTags(event)

	var target string
	switch event.Kind {
	case KindNote:
		target = parsed.ReplyTo
	case KindRepost:
		target = parsed.Pointer
	}
	if target == "" {
		return
	}

	meta := v.meta[target]
	if meta == nil {
		if !v.displaysEvent(target) {
			return
		}
		meta = &Meta{seen: make(map[string]bool)}
		v.meta[target] = meta
	}

	if meta.seen[event.ID] {
		return
	}
	meta.seen[event.ID] = true

	switch event.Kind {
	case KindNote:
		meta.ReplyCount++
	case KindRepost:
		meta.RepostCount++
	}
}

// displaysEvent reports whether the given event id is currently shown.
// Caller holds the lock.
func (v *View) displaysEvent(id string) bool {
	for _, item := range v.items {
		if item.Display().ID == id {
			return true
		}
	}
	return false
}

// prune drops metadata and gap anchors belonging to evicted items.
// Caller holds the lock.
func (v *View) prune(evicted []*Item) {
	if len(evicted) == 0 {
		return
	}

	ids := make([]string, 0, len(evicted))
	for _, item := range evicted {
		ids = append(ids, item.ID())
		delete(v.meta, item.Display().ID)
	}
	v.gaps.DropAnchored(ids)
}

// Items returns the visible items in display order
func (v *View) Items() []*Item {
	v.mu.Lock()
	defer v.mu.Unlock()

	result := make([]*Item, len(v.items))
	copy(result, v.items)
	return result
}

// MetaFor returns interaction counts for a displayed event id
func (v *View) MetaFor(id string) (replies, reposts int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if meta := v.meta[id]; meta != nil {
		return meta.ReplyCount, meta.RepostCount
	}
	return 0, 0
}

// HasMore reports whether older history is believed to exist
func (v *View) HasMore() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frontier.HasMore()
}

// SearchedUntil returns the current pagination frontier
func (v *View) SearchedUntil() *int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frontier.SearchedUntil()
}

// Gaps returns the unresolved continuity gaps
func (v *View) Gaps() []*Gap {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gaps.Gaps()
}

// PendingCount returns the number of staged new items
func (v *View) PendingCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pendingNew)
}

// Watermark returns the newest raw timestamp incorporated into the view
func (v *View) Watermark() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.latestSeen
}

// SetWatermark restores a persisted watermark before the first load
func (v *View) SetWatermark(at int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if at > v.latestSeen {
		v.latestSeen = at
	}
}

// Close tears the view down. In-flight operations discard their results
// instead of mutating discarded state.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
}

func (v *View) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}
