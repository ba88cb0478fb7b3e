// Package scheduler runs work over a bounded pool of goroutines and emits
// results in input order, whatever order they complete in.
package scheduler

import (
	"context"
	"iter"
	"runtime"
	"sync"
)

type Options struct {
	// Workers is the pool size; <= 0 means runtime.NumCPU().
	Workers int
	// Window bounds items dispatched but not yet emitted; <= 0 means
	// four per worker.
	Window int
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}

func (o Options) window(workers int) int {
	if o.Window >= workers {
		return o.Window
	}
	if o.Window > 0 {
		return workers
	}
	return 4 * workers
}

type job[T any] struct {
	index int
	item  T
}

type done[R any] struct {
	index  int
	result R
}

// Run calls work once per item and emit once per result, in the order items
// were produced. emit runs on a single goroutine.
//
// Cancelling ctx or an emit error stops the producer. Work already
// dispatched still runs to completion; its results are emitted in order
// unless emit has failed. Run returns the first emit error, else ctx.Err().
func Run[T, R any](ctx context.Context, opts Options, items iter.Seq[T], work func(context.Context, T) R, emit func(R) error) error {
	workers := opts.workers()
	window := opts.window(workers)

	jobs := make(chan job[T])
	results := make(chan done[R], window)
	// One token per in-flight item keeps the slot ring from overflowing.
	tokens := make(chan struct{}, window)
	stop := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				results <- done[R]{index: j.index, result: work(ctx, j.item)}
			}
		}()
	}

	go func() {
		defer close(jobs)
		index := 0
		for item := range items {
			select {
			case tokens <- struct{}{}:
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
			select {
			case jobs <- job[T]{index: index, item: item}:
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
			index++
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	slots := make([]*R, window)
	next := 0
	var emitErr error

	for d := range results {
		r := d.result
		slots[d.index%window] = &r

		for {
			slot := next % window
			ready := slots[slot]
			if ready == nil {
				break
			}
			slots[slot] = nil
			next++
			<-tokens

			if emitErr != nil {
				continue
			}
			if err := emit(*ready); err != nil {
				emitErr = err
				close(stop)
			}
		}
	}

	if emitErr != nil {
		return emitErr
	}
	return ctx.Err()
}
