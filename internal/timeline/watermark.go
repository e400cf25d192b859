package timeline

import (
	"context"
	"sync"
	"time"

	"github.com/awayuki/lumiline/internal/ops"
)

// Poller drives the view's forward polling on a fixed interval,
// independent of user action. Polled events are only staged; the view
// never changes under a passive reader until AcceptNew is called.
type Poller struct {
	view     *View
	interval time.Duration
	log      *ops.Logger

	onPending func(count int) // notified after each poll that staged something

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a poller for the given view
func NewPoller(view *View, interval time.Duration, log *ops.Logger) *Poller {
	return &Poller{
		view:     view,
		interval: interval,
		log:      log.WithComponent("poller"),
	}
}

// OnPending registers a callback invoked with the pending-new count
// after every poll cycle that staged at least one event
func (p *Poller) OnPending(fn func(count int)) {
	p.onPending = fn
}

// Start begins polling until the context is cancelled or Stop is called
func (p *Poller) Start(ctx context.Context) {
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.run(pollCtx)
}

// Stop halts polling and waits for the current cycle to finish
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			before := p.view.PendingCount()
			pending, err := p.view.CheckForNew(ctx)
			if err != nil {
				// View torn down; nothing left to poll for
				return
			}
			if pending > before && p.onPending != nil {
				p.onPending(pending)
			}
		}
	}
}
