package ai

import (
	"context"
	"errors"
	"time"
)

// ErrDeadlineExceeded is returned by RaceDeadline when the timer fires first.
var ErrDeadlineExceeded = errors.New("ai: deadline exceeded")

// RaceDeadline runs fn in its own goroutine and returns whichever settles
// first: fn, the timer or ctx. When fn loses, its context is cancelled and
// it is abandoned, not awaited. A provider that ignores cancellation keeps
// its goroutine until the underlying call returns; the buffered channel
// lets that goroutine exit without a reader.
func RaceDeadline[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type settled struct {
		val T
		err error
	}
	done := make(chan settled, 1)
	go func() {
		v, err := fn(callCtx)
		done <- settled{val: v, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	var zero T
	select {
	case s := <-done:
		return s.val, s.err
	case <-timer.C:
		return zero, ErrDeadlineExceeded
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
