package timeline

import "fmt"

// Gap is a hole in displayed continuity: a time window the raw query
// covered but whose events were partly removed by filtering, where
// per-relay result limits may also have truncated coverage. A gap is
// filled iteratively, one narrowing step per fill call.
type Gap struct {
	ID          string
	AfterItemID string // the displayed item the gap sits below
	Since       int64  // inclusive lower bound of the unaccounted window
	Until       int64  // exclusive upper bound
}

// GapTracker owns the registered gaps for one view
type GapTracker struct {
	gaps []*Gap
	seq  int
}

// NewGapTracker creates an empty tracker
func NewGapTracker() *GapTracker {
	return &GapTracker{}
}

// Register records a new gap, ignoring degenerate windows
func (t *GapTracker) Register(afterItemID string, since, until int64) *Gap {
	if until <= since+1 {
		return nil
	}

	t.seq++
	gap := &Gap{
		ID:          fmt.Sprintf("gap-%d", t.seq),
		AfterItemID: afterItemID,
		Since:       since,
		Until:       until,
	}
	t.gaps = append(t.gaps, gap)
	return gap
}

// Get returns the gap with the given id, or nil
func (t *GapTracker) Get(id string) *Gap {
	for _, gap := range t.gaps {
		if gap.ID == id {
			return gap
		}
	}
	return nil
}

// Gaps returns the currently unresolved gaps
func (t *GapTracker) Gaps() []*Gap {
	result := make([]*Gap, len(t.gaps))
	copy(result, t.gaps)
	return result
}

// Narrow moves a gap's upper bound down after a partial fill. If the
// window becomes degenerate the gap is resolved instead.
func (t *GapTracker) Narrow(id string, newUntil int64) {
	gap := t.Get(id)
	if gap == nil {
		return
	}

	if newUntil <= gap.Since+1 {
		t.Resolve(id)
		return
	}

	gap.Until = newUntil
}

// Resolve removes a gap
func (t *GapTracker) Resolve(id string) {
	for i, gap := range t.gaps {
		if gap.ID == id {
			t.gaps = append(t.gaps[:i], t.gaps[i+1:]...)
			return
		}
	}
}

// DropAnchored removes gaps anchored to evicted items; their window is
// no longer adjacent to anything displayed
func (t *GapTracker) DropAnchored(evicted []string) {
	if len(evicted) == 0 {
		return
	}

	gone := make(map[string]bool, len(evicted))
	for _, id := range evicted {
		gone[id] = true
	}

	kept := t.gaps[:0]
	for _, gap := range t.gaps {
		if !gone[gap.AfterItemID] {
			kept = append(kept, gap)
		}
	}
	t.gaps = kept
}
