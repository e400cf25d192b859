package reaction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/awayuki/lumiline/internal/config"
	"github.com/awayuki/lumiline/internal/ops"
	"github.com/awayuki/lumiline/internal/timeline"
)

var (
	// ErrCapReached rejects an add that would exceed the per-user cap
	ErrCapReached = errors.New("reaction: per-user stella cap reached")
	// ErrUnknownCategory rejects an add for an unconfigured category
	ErrUnknownCategory = errors.New("reaction: unknown category")
	// ErrNoPaymentAddress aborts a paid flush whose target cannot be paid
	ErrNoPaymentAddress = errors.New("reaction: target has no payment address")
	// ErrNoPriorReaction rejects removal when nothing was reacted
	ErrNoPriorReaction = errors.New("reaction: no reaction to remove")
	// ErrNotRetractable rejects removal when only paid categories remain
	ErrNotRetractable = errors.New("reaction: only the free category can be removed")
)

// Publisher is the opaque sign-and-broadcast capability
type Publisher interface {
	SignAndPublish(ctx context.Context, event *nostr.Event) (*nostr.Event, error)
}

// Payer is the opaque Lightning payment capability
type Payer interface {
	Pay(ctx context.Context, address string, amountSats int64) error
}

// AddressBook resolves a pubkey to its Lightning payment address
type AddressBook interface {
	PaymentAddress(ctx context.Context, pubkey string) (string, error)
}

// itemState is the per-item reaction state machine. Items are fully
// independent: one item's debounce and flush never touch another's.
//
// Two overlapping flushes for the same item are not serialized; the
// last one to complete owns MyReactionEventID. The source behavior
// tolerates this race and so does this coordinator.
type itemState struct {
	mu        sync.Mutex
	target    Target
	record    *Record
	pending   map[string]int
	snapshot  *Record // record as it was before the current pending batch
	debounced func(func())
}

// Coordinator accepts rapid local reaction intents, coalesces them over
// a debounce window, performs the payment step for paid categories,
// publishes the cumulative reaction, retires the previous one, and
// rolls local state back on failure.
type Coordinator struct {
	cfg       *config.Reactions
	costs     Costs
	publisher Publisher
	payer     Payer
	addresses AddressBook
	self      string // the local identity's hex pubkey
	interval  time.Duration
	log       *ops.Logger

	items *xsync.MapOf[string, *itemState]
}

// NewCoordinator creates a reaction coordinator
func NewCoordinator(cfg *config.Reactions, publisher Publisher, payer Payer, addresses AddressBook, selfPubkey string, log *ops.Logger) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		costs:     CostsFromConfig(cfg),
		publisher: publisher,
		payer:     payer,
		addresses: addresses,
		self:      selfPubkey,
		interval:  time.Duration(cfg.DebounceMs) * time.Millisecond,
		log:       log.WithComponent("reaction"),
		items:     xsync.NewMapOf[string, *itemState](),
	}
}

// state returns the per-item state, creating it on first touch
func (c *Coordinator) state(target Target) *itemState {
	state, _ := c.items.LoadOrCompute(target.EventID, func() *itemState {
		return &itemState{
			target:    target,
			record:    NewRecord(),
			pending:   make(map[string]int),
			debounced: debounce.New(c.interval),
		}
	})

	if target.Author != "" {
		state.mu.Lock()
		if state.target.Author == "" {
			state.target.Author = target.Author
		}
		state.mu.Unlock()
	}

	return state
}

// AddReaction records one local reaction intent. The increment is
// applied optimistically to the visible counts right away; the network
// commit happens after the debounce window via flush. Returns the
// updated record.
func (c *Coordinator) AddReaction(target Target, category string) (*Record, error) {
	if !c.costs.Known(category) {
		return nil, ErrUnknownCategory
	}

	state := c.state(target)

	state.mu.Lock()
	if state.record.MyTotal() >= c.cfg.MaxPerUser {
		state.mu.Unlock()
		return nil, ErrCapReached
	}

	if len(state.pending) == 0 {
		// First intent of a fresh batch: snapshot for rollback
		state.snapshot = state.record.Clone()
	}

	state.pending[category]++
	state.record.TotalByCategory[category]++
	state.record.MyTotalByCategory[category]++

	result := state.record.Clone()
	state.mu.Unlock()

	// The original request context is long gone when the timer fires
	state.debounced(func() {
		c.flushItem(context.Background(), state)
	})

	return result, nil
}

// Flush commits an item's pending intents immediately, bypassing the
// debounce window. A no-op when nothing is pending.
func (c *Coordinator) Flush(ctx context.Context, itemID string) error {
	state, ok := c.items.Load(itemID)
	if !ok {
		return nil
	}
	return c.flushItem(ctx, state)
}

// flushItem snapshots and clears the pending batch, pays for paid
// categories, publishes the cumulative reaction, and retires the
// previous one. Any failure restores the pre-mutation record.
func (c *Coordinator) flushItem(ctx context.Context, state *itemState) error {
	state.mu.Lock()
	if len(state.pending) == 0 {
		state.mu.Unlock()
		return nil
	}

	pending := state.pending
	state.pending = make(map[string]int)
	snapshot := state.snapshot
	state.snapshot = nil

	counts := make(map[string]int, len(state.record.MyTotalByCategory))
	for category, count := range state.record.MyTotalByCategory {
		counts[category] = count
	}
	prevID := state.record.MyReactionEventID
	target := state.target
	state.mu.Unlock()

	cost := c.costs.Total(pending)

	if cost > 0 {
		address, err := c.addresses.PaymentAddress(ctx, target.Author)
		if err != nil || address == "" {
			// No local state may imply a payment that never happened
			c.rollback(state, snapshot)
			c.log.LogFlush(target.EventID, pending, cost, ErrNoPaymentAddress)
			return ErrNoPaymentAddress
		}

		if err := c.payer.Pay(ctx, address, cost); err != nil {
			c.rollback(state, snapshot)
			err = fmt.Errorf("payment failed: %w", err)
			c.log.LogPayment(cost, err)
			c.log.LogFlush(target.EventID, pending, cost, err)
			return err
		}
		c.log.LogPayment(cost, nil)
	}

	published, err := c.publisher.SignAndPublish(ctx, BuildReactionEvent(target, counts))
	if err != nil {
		c.rollback(state, snapshot)
		err = fmt.Errorf("failed to publish reaction: %w", err)
		c.log.LogFlush(target.EventID, pending, cost, err)
		return err
	}

	// Retract the previous reaction only after the replacement is out.
	// A failed retraction is swallowed: the stale event is superseded
	// by recency when consumers read the latest reaction per author.
	if prevID != "" {
		if _, err := c.publisher.SignAndPublish(ctx, BuildRetraction(prevID)); err != nil {
			c.log.Debug("retraction of stale reaction failed",
				"reaction_id", prevID, "error", err)
		}
	}

	state.mu.Lock()
	state.record.MyReactionEventID = published.ID
	c.upsertReactor(state.record, counts, int64(published.CreatedAt))
	state.mu.Unlock()

	c.log.LogFlush(target.EventID, pending, cost, nil)
	return nil
}

// rollback restores the pre-mutation record. A pending batch that
// accumulated re-entrantly during the failed flush is discarded with
// it; the last completed operation owns the record.
func (c *Coordinator) rollback(state *itemState, snapshot *Record) {
	if snapshot == nil {
		snapshot = NewRecord()
	}

	state.mu.Lock()
	state.record = snapshot
	state.pending = make(map[string]int)
	state.snapshot = nil
	state.mu.Unlock()
}

// RemoveReaction retracts the free-category portion of the user's
// reaction. Paid categories are non-refundable once committed and are
// left untouched. Publishes the replacement before retracting the old
// event so the item never observably has fewer recorded reactions than
// before the operation.
func (c *Coordinator) RemoveReaction(ctx context.Context, itemID string) (*Record, error) {
	state, ok := c.items.Load(itemID)
	if !ok {
		return nil, ErrNoPriorReaction
	}

	state.mu.Lock()
	if state.record.MyTotal() == 0 {
		state.mu.Unlock()
		return nil, ErrNoPriorReaction
	}

	free := state.record.MyTotalByCategory[FreeCategory]
	if free == 0 {
		state.mu.Unlock()
		return nil, ErrNotRetractable
	}

	snapshot := state.record.Clone()

	delete(state.record.MyTotalByCategory, FreeCategory)
	if total := state.record.TotalByCategory[FreeCategory] - free; total > 0 {
		state.record.TotalByCategory[FreeCategory] = total
	} else {
		delete(state.record.TotalByCategory, FreeCategory)
	}

	remaining := state.record.MyTotal()
	counts := make(map[string]int, len(state.record.MyTotalByCategory))
	for category, count := range state.record.MyTotalByCategory {
		counts[category] = count
	}
	prevID := state.record.MyReactionEventID
	target := state.target
	state.mu.Unlock()

	if remaining == 0 {
		if prevID != "" {
			if _, err := c.publisher.SignAndPublish(ctx, BuildRetraction(prevID)); err != nil {
				c.rollback(state, snapshot)
				return nil, fmt.Errorf("failed to retract reaction: %w", err)
			}
		}

		state.mu.Lock()
		state.record.MyReactionEventID = ""
		c.removeReactor(state.record)
		result := state.record.Clone()
		state.mu.Unlock()
		return result, nil
	}

	published, err := c.publisher.SignAndPublish(ctx, BuildReactionEvent(target, counts))
	if err != nil {
		c.rollback(state, snapshot)
		return nil, fmt.Errorf("failed to publish replacement reaction: %w", err)
	}

	if prevID != "" {
		if _, err := c.publisher.SignAndPublish(ctx, BuildRetraction(prevID)); err != nil {
			c.log.Debug("retraction of stale reaction failed",
				"reaction_id", prevID, "error", err)
		}
	}

	state.mu.Lock()
	state.record.MyReactionEventID = published.ID
	c.upsertReactor(state.record, counts, int64(published.CreatedAt))
	result := state.record.Clone()
	state.mu.Unlock()
	return result, nil
}

// upsertReactor replaces the caller's entry in the reactors list, or
// prepends a new one. Caller holds the state lock.
func (c *Coordinator) upsertReactor(record *Record, counts map[string]int, at int64) {
	entry := Reactor{
		Pubkey:    c.self,
		Counts:    make(map[string]int, len(counts)),
		CreatedAt: at,
	}
	for category, count := range counts {
		entry.Counts[category] = count
	}

	for i := range record.Reactors {
		if record.Reactors[i].Pubkey == c.self {
			record.Reactors[i] = entry
			return
		}
	}
	record.Reactors = append([]Reactor{entry}, record.Reactors...)
}

// removeReactor drops the caller's entry. Caller holds the state lock.
func (c *Coordinator) removeReactor(record *Record) {
	for i := range record.Reactors {
		if record.Reactors[i].Pubkey == c.self {
			record.Reactors = append(record.Reactors[:i], record.Reactors[i+1:]...)
			return
		}
	}
}

// RecordFor returns a copy of the aggregated reaction state for an item
func (c *Coordinator) RecordFor(itemID string) *Record {
	state, ok := c.items.Load(itemID)
	if !ok {
		return NewRecord()
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return state.record.Clone()
}

// Ingest reconciles records from fetched reaction events, taking the
// latest reaction per author per item. Items with un-flushed local
// intents are skipped so optimistic state is never clobbered mid-batch.
func (c *Coordinator) Ingest(events []*nostr.Event) {
	type key struct {
		target string
		author string
	}

	latest := make(map[key]*nostr.Event)
	latestCounts := make(map[key]map[string]int)
	authors := make(map[string]string) // target id -> target author from p tags

	for _, event := range events {
		targetID, counts, ok := ParseReaction(event)
		if !ok {
			continue
		}

		k := key{target: targetID, author: event.PubKey}
		if current := latest[k]; current == nil || event.CreatedAt > current.CreatedAt {
			latest[k] = event
			latestCounts[k] = counts
		}

		if authors[targetID] == "" {
			if parsed := timeline.ParseTags(event); parsed.PointerAuthor != "" {
				authors[targetID] = parsed.PointerAuthor
			}
		}
	}

	records := make(map[string]*Record)
	for k, event := range latest {
		record := records[k.target]
		if record == nil {
			record = NewRecord()
			records[k.target] = record
		}

		counts := latestCounts[k]
		for category, count := range counts {
			record.TotalByCategory[category] += count
		}

		reactorCounts := make(map[string]int, len(counts))
		for category, count := range counts {
			reactorCounts[category] = count
		}
		record.Reactors = append(record.Reactors, Reactor{
			Pubkey:    k.author,
			Counts:    reactorCounts,
			CreatedAt: int64(event.CreatedAt),
		})

		if k.author == c.self {
			record.MyReactionEventID = event.ID
			for category, count := range counts {
				record.MyTotalByCategory[category] = count
			}
		}
	}

	for targetID, record := range records {
		sort.SliceStable(record.Reactors, func(i, j int) bool {
			return record.Reactors[i].CreatedAt > record.Reactors[j].CreatedAt
		})

		state := c.state(Target{EventID: targetID, Author: authors[targetID]})

		state.mu.Lock()
		if len(state.pending) > 0 {
			state.mu.Unlock()
			continue
		}
		state.record = record
		state.mu.Unlock()
	}
}
