package client

import (
	"context"
	"sync"
	"time"

	"github.com/peplixcoin/cmeoi-sub001/models"
	"github.com/sirupsen/logrus"
)

// FetchFunc loads a snapshot for a Poller
type FetchFunc[T models.Document] func(ctx context.Context) ([]T, error)

// Poller re-fetches a view's snapshot on an interval as a fallback for
// missed stream events. Orders missing from a poll result are dropped from
// the view. It only polls while the view is non-empty, and resumes as soon as
// the view fills up again.
type Poller[T models.Document] struct {
	view     *View[T]
	fetch    FetchFunc[T]
	interval time.Duration
	log      logrus.FieldLogger

	mu         sync.Mutex
	parent     context.Context
	cancelLoop context.CancelFunc
	supervised bool
	wg         sync.WaitGroup
}

// NewPoller creates a poller that merges fetch results into view
func NewPoller[T models.Document](view *View[T], fetch FetchFunc[T], interval time.Duration, log logrus.FieldLogger) *Poller[T] {
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &Poller[T]{
		view:     view,
		fetch:    fetch,
		interval: interval,
		log:      log,
	}
	view.OnChange(p.reconcile)
	return p
}

// Start begins supervising the view. Polling stops for good when ctx is
// done or Stop is called.
func (p *Poller[T]) Start(ctx context.Context) {
	p.mu.Lock()
	if p.supervised {
		p.mu.Unlock()
		return
	}
	p.supervised = true
	p.parent = ctx
	p.mu.Unlock()

	p.reconcile(p.view.Len())
}

// Stop ends supervision and waits for the polling loop to exit
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	p.supervised = false
	cancel := p.cancelLoop
	p.cancelLoop = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// Running reports whether the polling loop is active
func (p *Poller[T]) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelLoop != nil
}

// reconcile starts or stops the loop to match the view's length
func (p *Poller[T]) reconcile(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.supervised {
		return
	}

	switch {
	case n > 0 && p.cancelLoop == nil:
		if p.parent.Err() != nil {
			return
		}
		ctx, cancel := context.WithCancel(p.parent)
		p.cancelLoop = cancel
		p.wg.Add(1)
		go p.loop(ctx)
	case n == 0 && p.cancelLoop != nil:
		p.cancelLoop()
		p.cancelLoop = nil
	}
}

func (p *Poller[T]) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mark := p.view.Mark()
			docs, err := p.fetch(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.log.WithError(err).Warn("poll failed")
				}
				continue
			}
			p.view.Sync(docs, mark)
		}
	}
}
