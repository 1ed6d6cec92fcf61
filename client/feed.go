package client

import (
	"context"
	"fmt"
	"time"

	"github.com/peplixcoin/cmeoi-sub001/models"
	"golang.org/x/sync/errgroup"
)

// Feed wires the pieces of one role view together: the snapshot at path
// seeds View, the stream at path+"/stream" keeps it current, and when
// pollInterval is positive a Poller backs the stream up.
type Feed[T models.Document] struct {
	View *View[T]

	client   *Client
	snapshot *SnapshotFetcher[T]
	stream   *Subscription[T]
	poller   *Poller[T]
}

// NewFeed creates a feed for the list endpoint at path, e.g. /api/v1/orders/online/approved/cook
func NewFeed[T models.Document](c *Client, path string, remove func(T) bool, pollInterval time.Duration) *Feed[T] {
	view := NewView[T](remove)
	snapshot := NewSnapshotFetcher[T](c, path)

	f := &Feed[T]{
		View:     view,
		client:   c,
		snapshot: snapshot,
		stream:   NewSubscription[T](c, path+"/stream", view.Apply),
	}
	if pollInterval > 0 {
		f.poller = NewPoller[T](view, snapshot.Fetch, pollInterval, c.logger())
	}
	return f
}

// Subscription exposes the stream so callers can watch its state
func (f *Feed[T]) Subscription() *Subscription[T] {
	return f.stream
}

// Run opens the stream, loads the snapshot and keeps the view current until
// ctx is done. The stream and the snapshot race; the merge tolerates either
// order. If the stream fails and polling is enabled, Run keeps polling until
// ctx is done and then returns the stream error; without polling it returns
// the error straight away.
func (f *Feed[T]) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := f.stream.Run(ctx)
		if err == nil || f.poller == nil {
			return err
		}
		f.client.logger().WithError(err).Warn("stream closed, falling back to polling")
		<-ctx.Done()
		return err
	})

	g.Go(func() error {
		docs, err := f.snapshot.Fetch(ctx)
		if err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}
		f.View.Seed(docs)

		if f.poller != nil {
			f.poller.Start(ctx)
			defer f.poller.Stop()
		}
		<-ctx.Done()
		return nil
	})

	return g.Wait()
}
