package timeline

import (
	"context"
	"testing"
	"time"

	"github.com/awayuki/lumiline/internal/config"
	"github.com/awayuki/lumiline/internal/ops"
)

func TestPollerStagesAndNotifies(t *testing.T) {
	source := &fakeSource{}
	source.enqueue(makeBatch(note("n1", "alice", 100, "one")))
	view := setupTestView(t, source, nil)
	if _, err := view.LoadInitial(context.Background()); err != nil {
		t.Fatalf("LoadInitial failed: %v", err)
	}

	source.enqueue(makeBatch(note("n2", "bob", 110, "new post")))

	logger := ops.NewLogger(&config.Logging{Level: "error", Format: "text"})
	poller := NewPoller(view, 20*time.Millisecond, logger)

	notified := make(chan int, 1)
	poller.OnPending(func(count int) {
		select {
		case notified <- count:
		default:
		}
	})

	poller.Start(context.Background())
	defer poller.Stop()

	select {
	case count := <-notified:
		if count != 1 {
			t.Errorf("expected 1 pending, got %d", count)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poller never staged the new event")
	}

	// Staged only; nothing visible moved
	assertOrder(t, view.Items(), "n1")
	if view.PendingCount() != 1 {
		t.Errorf("expected 1 staged item, got %d", view.PendingCount())
	}
}

func TestPollerStopsWhenViewCloses(t *testing.T) {
	source := &fakeSource{}
	source.enqueue(makeBatch(note("n1", "alice", 100, "one")))
	view := setupTestView(t, source, nil)
	view.LoadInitial(context.Background())

	logger := ops.NewLogger(&config.Logging{Level: "error", Format: "text"})
	poller := NewPoller(view, 10*time.Millisecond, logger)
	poller.Start(context.Background())

	view.Close()
	time.Sleep(50 * time.Millisecond)

	// Stop returns because the loop exited on the closed view
	done := make(chan struct{})
	go func() {
		poller.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after view close")
	}
}
