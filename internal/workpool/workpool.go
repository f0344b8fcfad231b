// Package workpool bounds how many CPU or IO heavy steps (document
// extraction and rendering) run at once across all tasks.
package workpool

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/panics"
)

// Pool is a counting semaphore shared by all tasks
type Pool struct {
	slots chan struct{}
}

// New creates a pool running at most workers jobs at a time
func New(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{slots: make(chan struct{}, workers)}
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return cap(p.slots)
}

// Do waits for a free slot and runs fn in the calling goroutine. A panic
// in fn is returned as an error.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()

	var err error
	var pc panics.Catcher
	pc.Try(func() { err = fn() })
	if r := pc.Recovered(); r != nil {
		return fmt.Errorf("worker panic: %w", r.AsError())
	}
	return err
}

// Run is Do for functions returning a value
func Run[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}
