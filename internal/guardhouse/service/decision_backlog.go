package service

import (
	"context"
	"log"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/mfeltz/guardhouse/internal/guardhouse/store"
	"github.com/mfeltz/guardhouse/internal/guardhouse/types"
)

// DecisionBacklog holds decisions whose audit write failed, and retries them
// in the background with exponential backoff. A storage outage therefore
// never withholds a decision from the hardware caller, and the gap is never
// silent: every enqueue logs the pending count, and Pending feeds the health
// surface.
type DecisionBacklog struct {
	store  store.DecisionStore
	logger *log.Logger

	mu      sync.Mutex
	pending []types.AccessDecision

	kick   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDecisionBacklog(ds store.DecisionStore, logger *log.Logger) *DecisionBacklog {
	return &DecisionBacklog{
		store:  ds,
		logger: logger,
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Add queues a decision for retried persistence.
func (b *DecisionBacklog) Add(dec types.AccessDecision) {
	b.mu.Lock()
	b.pending = append(b.pending, dec)
	n := len(b.pending)
	b.mu.Unlock()

	b.logger.Printf("decision backlog: %d pending (latest %s)", n, dec.ID)

	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// Pending returns the number of decisions awaiting persistence.
func (b *DecisionBacklog) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Start begins the retry loop. Stop cancels it and waits.
func (b *DecisionBacklog) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	go b.loop(ctx)
}

func (b *DecisionBacklog) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	<-b.done
}

func (b *DecisionBacklog) loop(ctx context.Context) {
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.kick:
		}

		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = 0 // retry until the store recovers or we shut down

		err := backoff.Retry(func() error {
			return b.Flush(ctx)
		}, backoff.WithContext(bo, ctx))
		if err != nil && ctx.Err() == nil {
			b.logger.Printf("decision backlog retry error: %v", err)
		}
	}
}

// Flush attempts to persist everything pending, oldest first, stopping at the
// first failure. Also called directly at shutdown to drain what it can.
func (b *DecisionBacklog) Flush(ctx context.Context) error {
	for {
		b.mu.Lock()
		if len(b.pending) == 0 {
			b.mu.Unlock()
			return nil
		}
		dec := b.pending[0]
		b.mu.Unlock()

		if err := b.store.Record(ctx, dec); err != nil {
			return err
		}

		b.mu.Lock()
		b.pending = b.pending[1:]
		n := len(b.pending)
		b.mu.Unlock()

		if n == 0 {
			b.logger.Printf("decision backlog drained")
		}
	}
}
