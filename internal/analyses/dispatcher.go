package analyses

import (
	"context"
	"sync"
)

// Dispatcher runs analysis jobs in-process with a bounded number of
// concurrent workflows. Jobs past the limit stay pending until a slot
// frees up.
type Dispatcher struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher allowing up to concurrency
// simultaneous jobs.
func NewDispatcher(concurrency int) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{sem: make(chan struct{}, concurrency)}
}

// Dispatch schedules fn to run once a concurrency slot is available.
// It returns immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, fn func(context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case d.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-d.sem }()
		fn(ctx)
	}()
}

// Wait blocks until all dispatched jobs have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
