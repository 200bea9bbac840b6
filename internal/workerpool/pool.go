// Package workerpool runs slow collaborator calls (embedding, generation) on a bounded set of goroutines.
package workerpool

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many tasks run at once. Callers block until their task finishes.
type Pool struct {
	sem    *semaphore.Weighted
	size   int
	active atomic.Int64
}

// New returns a pool running at most size tasks concurrently (1 when size is not positive).
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return p.size
}

// Active returns the number of tasks currently running.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Run waits for a free slot, runs fn on a pool goroutine and returns its error.
// If ctx ends first Run returns ctx.Err(); a task that already started keeps its slot until it returns.
func (p *Pool) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire worker: %w", err)
	}
	done := make(chan error, 1)
	go func() {
		p.active.Add(1)
		err := call(ctx, fn)
		p.active.Add(-1)
		p.sem.Release(1)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func call(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Do is Run for functions returning a value.
func Do[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Run(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
