package trigger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/cardworks/appraisal/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryDeduper() *memoryDeduper {
	return &memoryDeduper{seen: make(map[string]bool)}
}

func (d *memoryDeduper) FirstDelivery(_ context.Context, requestID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[requestID] {
		return false
	}
	d.seen[requestID] = true
	return true
}

type fakeLimiter struct {
	err error
}

func (f *fakeLimiter) Allow(context.Context, string) error { return f.err }

type fakeRunner struct {
	mu    sync.Mutex
	execs []*contracts.PipelineExecution
	state contracts.TerminalState
	err   error
}

func (f *fakeRunner) Run(_ context.Context, exec *contracts.PipelineExecution) (contracts.TerminalState, error) {
	f.mu.Lock()
	f.execs = append(f.execs, exec)
	f.mu.Unlock()
	if f.err != nil {
		return contracts.TerminalFailed, f.err
	}
	return f.state, nil
}

func (f *fakeRunner) runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.execs)
}

func createdEvent() contracts.CardCreated {
	return contracts.CardCreated{
		OwnerID:   "user-1",
		CardID:    "card-1",
		FrontKey:  "uploads/user-1/front.png",
		BackKey:   "uploads/user-1/back.png",
		Hints:     &contracts.CardHints{Name: "Charizard"},
		Timestamp: time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
	}
}

// TestHandle_StartsExecution verifies the event-to-execution mapping including
// the derived request id.
func TestHandle_StartsExecution(t *testing.T) {
	runner := &fakeRunner{state: contracts.TerminalSuccess}
	tr := New(events.NewMemoryBus(), newMemoryDeduper(), &fakeLimiter{}, runner, 0)

	ev := createdEvent()
	require.NoError(t, tr.handle(context.Background(), ev))

	require.Equal(t, 1, runner.runs())
	exec := runner.execs[0]
	assert.Equal(t, RequestIDFor(ev), exec.RequestID)
	assert.Equal(t, "user-1", exec.OwnerID)
	assert.Equal(t, "uploads/user-1/back.png", exec.BackKey)
	require.NotNil(t, exec.Hints)
	assert.Equal(t, "Charizard", exec.Hints.Name)
	assert.Equal(t, ev.Timestamp, exec.CreatedAt)
}

// TestHandle_DuplicateDiscarded verifies the second delivery of one event is
// acked without a second execution.
func TestHandle_DuplicateDiscarded(t *testing.T) {
	runner := &fakeRunner{state: contracts.TerminalSuccess}
	tr := New(events.NewMemoryBus(), newMemoryDeduper(), &fakeLimiter{}, runner, 0)

	ev := createdEvent()
	require.NoError(t, tr.handle(context.Background(), ev))
	require.NoError(t, tr.handle(context.Background(), ev))
	assert.Equal(t, 1, runner.runs())
}

// TestHandle_ThrottledDefersRedelivery verifies a rate-limited event is left
// pending and the duplicate marker stays unset, so the redelivery can run.
func TestHandle_ThrottledDefersRedelivery(t *testing.T) {
	runner := &fakeRunner{state: contracts.TerminalSuccess}
	limiter := &fakeLimiter{err: contracts.Faultf(contracts.KindThrottled, "over limit")}
	dedupe := newMemoryDeduper()
	tr := New(events.NewMemoryBus(), dedupe, limiter, runner, 0)

	ev := createdEvent()
	err := tr.handle(context.Background(), ev)
	assert.Equal(t, contracts.KindThrottled, contracts.KindOf(err))
	assert.Zero(t, runner.runs())

	limiter.err = nil
	require.NoError(t, tr.handle(context.Background(), ev))
	assert.Equal(t, 1, runner.runs(), "redelivery after throttling executes")
}

// TestHandle_PipelineFailureIsAcked verifies a terminally failed execution is
// not redelivered: the failure is already persisted downstream.
func TestHandle_PipelineFailureIsAcked(t *testing.T) {
	runner := &fakeRunner{err: contracts.Faultf(contracts.KindTransient, "pipeline failed")}
	tr := New(events.NewMemoryBus(), newMemoryDeduper(), &fakeLimiter{}, runner, 0)

	assert.NoError(t, tr.handle(context.Background(), createdEvent()))
	assert.Equal(t, 1, runner.runs())
}

// TestStart_ConsumesFromBus verifies the end-to-end path through the bus.
func TestStart_ConsumesFromBus(t *testing.T) {
	bus := events.NewMemoryBus()
	runner := &fakeRunner{state: contracts.TerminalSuccess}
	tr := New(bus, newMemoryDeduper(), &fakeLimiter{}, runner, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = tr.Start(ctx)
		close(done)
	}()

	require.NoError(t, bus.PublishCardCreated(ctx, createdEvent()))
	assert.Eventually(t, func() bool { return runner.runs() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

// TestRequestIDFor is the determinism contract for the idempotency key.
func TestRequestIDFor(t *testing.T) {
	ev := createdEvent()
	assert.Equal(t, RequestIDFor(ev), RequestIDFor(ev))
	assert.Equal(t, "req-card-1-1787745600000", RequestIDFor(ev))

	other := ev
	other.Timestamp = ev.Timestamp.Add(time.Second)
	assert.NotEqual(t, RequestIDFor(ev), RequestIDFor(other))
}
