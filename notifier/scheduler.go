package notifier

import (
	"context"
	"golang.org/x/sync/errgroup"
)

// Scheduler runs one Poller per service, each in its own goroutine.
type Scheduler struct {
	pollers []*Poller
}

func NewScheduler(pollers ...*Poller) *Scheduler {
	return &Scheduler{pollers: pollers}
}

// Run blocks until every poller has stopped. Pollers start ticking once ready is
// closed, which lets the host finish its own startup first.
func (s *Scheduler) Run(ctx context.Context, ready <-chan struct{}) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, poller := range s.pollers {
		poller := poller
		g.Go(func() error {
			return poller.Run(ctx, ready)
		})
	}
	return g.Wait()
}
