package resiliency

import (
	"context"
	"sync"

	"github.com/cardworks/appraisal/pkg/contracts"
)

// Gate bounds the number of in-flight requests to an external client and the
// number of callers allowed to queue behind them. Requests over the queue
// bound fail fast as Throttled.
type Gate struct {
	mu       sync.Mutex
	inflight chan struct{}
	queued   int
	maxQueue int
	name     string
}

// NewGate creates a gate with the given in-flight and queue bounds.
func NewGate(name string, maxInflight, maxQueue int) *Gate {
	if maxInflight < 1 {
		maxInflight = 1
	}
	return &Gate{
		inflight: make(chan struct{}, maxInflight),
		maxQueue: maxQueue,
		name:     name,
	}
}

// Acquire blocks until a slot is free or ctx is done. It fails fast with
// Throttled when the queue bound is exceeded. Callers must Release on success.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.inflight <- struct{}{}:
		return nil
	default:
	}

	g.mu.Lock()
	if g.queued >= g.maxQueue {
		g.mu.Unlock()
		return contracts.Faultf(contracts.KindThrottled, "%s: in-flight gate saturated", g.name)
	}
	g.queued++
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.queued--
		g.mu.Unlock()
	}()

	select {
	case g.inflight <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (g *Gate) Release() {
	<-g.inflight
}
