// Package batch runs a function over a list of items inside a per-item
// failure boundary. One item's error or panic never stops the others.
package batch

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one item. Skipped items never started because
// the batch context was cancelled first.
type Outcome[T, R any] struct {
	Item    T
	Result  R
	Err     error
	Skipped bool
}

// Options tunes Run.
type Options struct {
	// Workers bounds how many items run at once. Values below 1 mean serial.
	Workers int
	// Before gates the start of every item, e.g. a rate limiter. An error
	// marks the item as skipped.
	Before func(ctx context.Context) error
}

// Run calls fn for every item and returns one Outcome per item in input
// order. Cancellation of ctx is observed between items; an item that has
// started runs on a context detached from that cancellation.
func Run[T, R any](ctx context.Context, items []T, fn func(ctx context.Context, item T) (R, error), opts Options) []Outcome[T, R] {
	out := make([]Outcome[T, R], len(items))
	for i, it := range items {
		out[i].Item = it
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)

	detached := context.WithoutCancel(ctx)
	for i := range items {
		i := i
		// Go blocks while every worker is busy, so the cancellation check
		// inside runs only once the item actually gets a slot.
		g.Go(func() error {
			if ctx.Err() != nil || (opts.Before != nil && opts.Before(ctx) != nil) {
				out[i].Skipped = true
				return nil
			}
			out[i].Result, out[i].Err = safeCall(detached, items[i], fn)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func safeCall[T, R any](ctx context.Context, item T, fn func(context.Context, T) (R, error)) (res R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx, item)
}
