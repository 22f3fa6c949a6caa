package zone

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// guards holds the pending-operation counter. Per-zone lock depth lives on
// the zone record itself.
type guards struct {
	pending int
	// epoch counts commands started and remote windows opened, so a sync
	// can tell whether the model moved while it was fetching.
	epoch uint64
}

func newGuards() *guards {
	return &guards{}
}

// beginOperation increments the pending counter and returns its release.
// The release is idempotent.
func (e *Engine) beginOperation(label string) func() {
	e.guards.pending++
	e.guards.epoch++
	e.logger.Printf("ZONE: begin %s (pending=%d)", label, e.guards.pending)
	released := false
	return func() {
		if released {
			return
		}
		released = true
		e.guards.pending--
		if e.guards.pending < 0 {
			e.guards.pending = 0
		}
		e.logger.Printf("ZONE: end %s (pending=%d)", label, e.guards.pending)
		if e.guards.pending == 0 {
			e.requestSync("commands settled")
		}
	}
}

// lockZones opens a reconciliation window on every zone in ids.
func (e *Engine) lockZones(ids []string) {
	e.guards.epoch++
	for _, id := range ids {
		if z := e.model.Zone(id); z != nil {
			z.VolumeLockDepth++
		}
	}
}

// unlockZones closes one window on every zone in ids and reports whether
// no zone remains locked.
func (e *Engine) unlockZones(ids []string) bool {
	for _, id := range ids {
		if z := e.model.Zone(id); z != nil && z.VolumeLockDepth > 0 {
			z.VolumeLockDepth--
		}
	}
	return !e.anyLocked()
}

func (e *Engine) anyLocked() bool {
	for _, z := range e.model.All() {
		if z.VolumeLockDepth > 0 {
			return true
		}
	}
	return false
}

// deviceCall is one independent device operation in a batch.
type deviceCall struct {
	zoneID string
	op     string
	fn     func(ctx context.Context) error
}

// batch is a set of device calls observed jointly at completion.
type batch struct {
	label  string
	calls  []deviceCall
	errs   []error
	onDone func(b *batch)
}

func (b *batch) add(zoneID, op string, fn func(ctx context.Context) error) {
	b.calls = append(b.calls, deviceCall{zoneID: zoneID, op: op, fn: fn})
}

// runBatch fires every call concurrently off the loop. Completion, with
// failures collected, comes back as a batchCompleted event.
func (e *Engine) runBatch(b *batch) {
	if len(b.calls) == 0 {
		if b.onDone != nil {
			b.onDone(b)
		}
		return
	}
	calls := b.calls
	e.run(func() {
		errs := make([]error, len(calls))
		var wg sync.WaitGroup
		for i, call := range calls {
			wg.Add(1)
			e.run(func() {
				defer wg.Done()
				errs[i] = e.invoke(call)
			})
		}
		wg.Wait()
		e.post(batchCompleted{batch: b, errs: errs})
	})
}

func (e *Engine) invoke(call deviceCall) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", call.op, r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.CallTimeout)
	defer cancel()
	if err := call.fn(ctx); err != nil {
		return fmt.Errorf("%s %s: %w", call.op, call.zoneID, err)
	}
	return nil
}

// settleThen returns a batch completion hook that calls release once
// settle has elapsed after the slowest call.
func (e *Engine) settleThen(settle time.Duration, label string, release func()) func(*batch) {
	return func(*batch) {
		e.after(settle, label+" settled", release)
	}
}
