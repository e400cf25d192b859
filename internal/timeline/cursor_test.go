package timeline

import "testing"

func int64ptr(v int64) *int64 { return &v }

func TestFrontierBeforeFirstLoad(t *testing.T) {
	f := NewFrontier()

	if f.SearchedUntil() != nil {
		t.Error("expected nil boundary before first load")
	}
	if f.HasMore() {
		t.Error("expected no history hint before first load")
	}
	if _, ok := f.NextUntil(); ok {
		t.Error("expected NextUntil to report no boundary")
	}
}

func TestApplyInitialEstablishesBoundary(t *testing.T) {
	f := NewFrontier()
	f.ApplyInitial(int64ptr(100))

	if got := f.SearchedUntil(); got == nil || *got != 100 {
		t.Errorf("expected boundary 100, got %v", got)
	}
	if !f.HasMore() {
		t.Error("expected history assumed after first page")
	}
	if until, ok := f.NextUntil(); !ok || until != 99 {
		t.Errorf("expected next until 99, got %d ok=%v", until, ok)
	}
}

func TestApplyInitialEmptyResult(t *testing.T) {
	f := NewFrontier()
	f.ApplyInitial(nil)

	if f.SearchedUntil() != nil {
		t.Error("expected nil boundary after empty first load")
	}
	if _, ok := f.NextUntil(); ok {
		t.Error("expected unbounded next query after empty first load")
	}
}

func TestApplyOlderAdvancesBoundary(t *testing.T) {
	f := NewFrontier()
	f.ApplyInitial(int64ptr(100))

	f.ApplyOlder(int64ptr(50))

	if got := f.SearchedUntil(); got == nil || *got != 50 {
		t.Errorf("expected boundary 50, got %v", got)
	}
	if !f.HasMore() {
		t.Error("expected more history after strict progress")
	}
}

func TestApplyOlderEmptyKeepsBoundaryForRetry(t *testing.T) {
	f := NewFrontier()
	f.ApplyInitial(int64ptr(100))

	f.ApplyOlder(nil)

	if f.HasMore() {
		t.Error("expected hasMore off after empty page")
	}
	if got := f.SearchedUntil(); got == nil || *got != 100 {
		t.Errorf("empty page must keep the boundary, got %v", got)
	}

	// HasMore is soft: a later retry can still make progress
	f.ApplyOlder(int64ptr(40))
	if !f.HasMore() {
		t.Error("expected hasMore back on after progress")
	}
	if got := f.SearchedUntil(); got == nil || *got != 40 {
		t.Errorf("expected boundary 40, got %v", got)
	}
}

func TestApplyOlderNoProgressClearsHasMore(t *testing.T) {
	f := NewFrontier()
	f.ApplyInitial(int64ptr(100))

	// Same boundary as before: searched but got nothing older
	f.ApplyOlder(int64ptr(100))

	if f.HasMore() {
		t.Error("expected hasMore off without strict progress")
	}
	if got := f.SearchedUntil(); got == nil || *got != 100 {
		t.Errorf("expected boundary kept at 100, got %v", got)
	}
}
