package reaction

import (
	"sort"
	"strconv"

	"github.com/nbd-wtf/go-nostr"

	"github.com/awayuki/lumiline/internal/config"
	"github.com/awayuki/lumiline/internal/timeline"
)

// FreeCategory is the one stella flavor that costs nothing and is the
// only individually retractable one
const FreeCategory = "yellow"

// FreeGlyph is the reaction content consumers without stella support see
const FreeGlyph = "⭐"

// Costs maps each category to its fixed unit cost in sats. The free
// category is always present with cost zero.
type Costs map[string]int64

// CostsFromConfig builds the cost table from configuration
func CostsFromConfig(cfg *config.Reactions) Costs {
	costs := make(Costs, len(cfg.CostsSats)+1)
	for category, sats := range cfg.CostsSats {
		costs[category] = sats
	}
	costs[FreeCategory] = 0
	return costs
}

// Known reports whether a category exists
func (c Costs) Known(category string) bool {
	_, ok := c[category]
	return ok
}

// UnitCost returns the per-unit cost of a category
func (c Costs) UnitCost(category string) int64 {
	return c[category]
}

// Total computes the cost of a pending batch
func (c Costs) Total(pending map[string]int) int64 {
	var total int64
	for category, count := range pending {
		total += c[category] * int64(count)
	}
	return total
}

// Reactor is one author's latest reaction to an item
type Reactor struct {
	Pubkey    string
	Counts    map[string]int
	CreatedAt int64
}

// Record is the aggregated reaction state for one timeline item
type Record struct {
	TotalByCategory   map[string]int
	MyTotalByCategory map[string]int
	MyReactionEventID string
	Reactors          []Reactor
}

// NewRecord creates an empty record
func NewRecord() *Record {
	return &Record{
		TotalByCategory:   make(map[string]int),
		MyTotalByCategory: make(map[string]int),
	}
}

// Clone deep-copies a record, for rollback snapshots and safe returns
func (r *Record) Clone() *Record {
	clone := &Record{
		TotalByCategory:   make(map[string]int, len(r.TotalByCategory)),
		MyTotalByCategory: make(map[string]int, len(r.MyTotalByCategory)),
		MyReactionEventID: r.MyReactionEventID,
		Reactors:          make([]Reactor, 0, len(r.Reactors)),
	}
	for category, count := range r.TotalByCategory {
		clone.TotalByCategory[category] = count
	}
	for category, count := range r.MyTotalByCategory {
		clone.MyTotalByCategory[category] = count
	}
	for _, reactor := range r.Reactors {
		counts := make(map[string]int, len(reactor.Counts))
		for category, count := range reactor.Counts {
			counts[category] = count
		}
		clone.Reactors = append(clone.Reactors, Reactor{
			Pubkey:    reactor.Pubkey,
			Counts:    counts,
			CreatedAt: reactor.CreatedAt,
		})
	}
	return clone
}

// MyTotal sums the user's own counts across categories
func (r *Record) MyTotal() int {
	total := 0
	for _, count := range r.MyTotalByCategory {
		total += count
	}
	return total
}

// Total sums all counts across categories
func (r *Record) Total() int {
	total := 0
	for _, count := range r.TotalByCategory {
		total += count
	}
	return total
}

// Target identifies the item a reaction applies to
type Target struct {
	EventID string
	Author  string
}

// BuildReactionEvent builds the cumulative reaction event for a target.
// The stella tags always carry the current accumulated totals, never a
// delta: the network record is the authoritative cumulative state.
func BuildReactionEvent(target Target, counts map[string]int) *nostr.Event {
	tags := nostr.Tags{
		nostr.Tag{"e", target.EventID},
		nostr.Tag{"p", target.Author},
	}

	// Deterministic tag order
	categories := make([]string, 0, len(counts))
	for category, count := range counts {
		if count > 0 {
			categories = append(categories, category)
		}
	}
	sort.Strings(categories)

	for _, category := range categories {
		tags = append(tags, nostr.Tag{"stella", category, strconv.Itoa(counts[category])})
	}

	return &nostr.Event{
		Kind:      timeline.KindReaction,
		CreatedAt: nostr.Now(),
		Content:   FreeGlyph,
		Tags:      tags,
	}
}

// BuildRetraction builds a deletion event for a prior reaction
func BuildRetraction(reactionID string) *nostr.Event {
	return &nostr.Event{
		Kind:      timeline.KindDeletion,
		CreatedAt: nostr.Now(),
		Content:   "",
		Tags: nostr.Tags{
			nostr.Tag{"e", reactionID},
			nostr.Tag{"k", strconv.Itoa(timeline.KindReaction)},
		},
	}
}

// ParseReaction decodes a fetched kind-7 event into its target and
// category counts. Reactions without stella tags count as one free
// reaction, so plain likes from other clients still aggregate.
func ParseReaction(event *nostr.Event) (targetID string, counts map[string]int, ok bool) {
	if event.Kind != timeline.KindReaction {
		return "", nil, false
	}

	parsed := timeline.ParseTags(event)
	if parsed.Pointer == "" {
		return "", nil, false
	}

	if len(parsed.Stella) > 0 {
		return parsed.Pointer, parsed.Stella, true
	}

	return parsed.Pointer, map[string]int{FreeCategory: 1}, true
}
