package timeline

// Frontier tracks how far back in time the view has actually searched.
// The boundary is the oldest timestamp covered by raw queries, before
// client-side filtering, so pagination keeps making progress even when
// filtering removes every event a page returned.
type Frontier struct {
	searchedUntil *int64
	hasMore       bool
}

// NewFrontier creates an empty frontier
func NewFrontier() *Frontier {
	return &Frontier{}
}

// SearchedUntil returns the oldest searched timestamp, nil before the
// first load or when the source never returned anything
func (f *Frontier) SearchedUntil() *int64 {
	return f.searchedUntil
}

// HasMore reports whether older history is believed to exist. This is
// soft: a retry after false is a legal no-op.
func (f *Frontier) HasMore() bool {
	return f.hasMore
}

// ApplyInitial records the raw boundary of the first query. History
// beyond the first page is assumed present until proven otherwise.
func (f *Frontier) ApplyInitial(searchedUntil *int64) {
	f.searchedUntil = searchedUntil
	f.hasMore = true
}

// NextUntil computes the exclusive upper bound for a load-older query.
// ok is false when no boundary exists yet, in which case the caller
// queries unbounded.
func (f *Frontier) NextUntil() (until int64, ok bool) {
	if f.searchedUntil == nil {
		return 0, false
	}
	return *f.searchedUntil - 1, true
}

// ApplyOlder records the outcome of a load-older query. An empty raw
// response clears hasMore but keeps the stored boundary, preserving
// retry after a transient empty result. A non-empty response always
// stores the new boundary, regardless of how many events survived
// filtering.
func (f *Frontier) ApplyOlder(newSearchedUntil *int64) {
	if newSearchedUntil == nil {
		f.hasMore = false
		return
	}

	if f.searchedUntil == nil {
		f.hasMore = true
	} else {
		f.hasMore = *newSearchedUntil < *f.searchedUntil
	}
	f.searchedUntil = newSearchedUntil
}
