package timeline

import "sort"

// Direction describes which end of the view a merge inserts toward,
// which decides which end gets trimmed when the view is over capacity.
type Direction int

const (
	// MergeOlder inserts history pages at the oldest end; overflow is
	// trimmed from the newest end
	MergeOlder Direction = iota
	// MergeNewer inserts polled/accepted events at the newest end;
	// overflow is trimmed from the oldest end
	MergeNewer
)

// Merge merges a new batch of items into the existing ordered view.
// Items already present (by event id) are dropped, the result is
// stable-sorted descending by timestamp, and if it exceeds maxItems it
// is trimmed from the end opposite the insertion direction. Evicted
// items are returned so parallel metadata maps can be pruned with the
// same survivors.
func Merge(existing, batch []*Item, maxItems int, dir Direction) (merged []*Item, added int, evicted []*Item) {
	seen := make(map[string]bool, len(existing))
	for _, item := range existing {
		seen[item.ID()] = true
	}

	merged = make([]*Item, len(existing), len(existing)+len(batch))
	copy(merged, existing)

	for _, item := range batch {
		if seen[item.ID()] {
			continue
		}
		seen[item.ID()] = true
		merged = append(merged, item)
		added++
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt() > merged[j].CreatedAt()
	})

	if maxItems > 0 && len(merged) > maxItems {
		overflow := len(merged) - maxItems

		switch dir {
		case MergeOlder:
			// Favor the old end: drop the newest items
			evicted = merged[:overflow]
			merged = merged[overflow:]
		case MergeNewer:
			// Favor the new end: drop the oldest items
			evicted = merged[len(merged)-overflow:]
			merged = merged[:len(merged)-overflow]
		}
	}

	return merged, added, evicted
}

// ContainsID reports whether the ordered view already holds an event id
func ContainsID(items []*Item, id string) bool {
	for _, item := range items {
		if item.ID() == id {
			return true
		}
	}
	return false
}
