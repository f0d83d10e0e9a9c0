package solana

import (
	"context"
	"errors"
	"time"
)

// errLimiterClosed is returned to callers whose operation was still queued
// when the limiter shut down.
var errLimiterClosed = errors.New("rate limiter closed")

// Limiter serializes operations through a single FIFO queue, executing at
// most one per interval. The scanner issues many independent lookups (one
// per account, one per program); without a shared queue they would hit the
// remote endpoint simultaneously. One Limiter exists per process.
//
// Operations start in submission order. Completion order is whatever the
// network gives back.
type Limiter struct {
	queue    chan limiterTask
	interval time.Duration
	done     chan struct{}
}

type limiterTask struct {
	ctx context.Context
	run func(ctx context.Context)
}

// DefaultRatePerSecond is the default global operation rate.
const DefaultRatePerSecond = 5

// NewLimiter creates a limiter allowing ratePerSecond operations per
// second and starts its drain goroutine. Call Close when done.
func NewLimiter(ratePerSecond int) *Limiter {
	if ratePerSecond <= 0 {
		ratePerSecond = DefaultRatePerSecond
	}
	l := &Limiter{
		queue:    make(chan limiterTask, 1024),
		interval: time.Second / time.Duration(ratePerSecond),
		done:     make(chan struct{}),
	}
	go l.drain()
	return l
}

// drain is the single worker: it executes queued operations one at a time,
// spacing them by the configured interval.
func (l *Limiter) drain() {
	for {
		select {
		case <-l.done:
			return
		case task := <-l.queue:
			// Skip work whose submitter already gave up.
			if task.ctx.Err() == nil {
				task.run(task.ctx)
			}
			timer := time.NewTimer(l.interval)
			select {
			case <-l.done:
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

// Close stops the drain goroutine. Queued operations that have not started
// are abandoned; their callers get errLimiterClosed.
func (l *Limiter) Close() {
	close(l.done)
}

// RateLimit enqueues op and blocks until it has run or ctx is cancelled.
func RateLimit[T any](ctx context.Context, l *Limiter, op func(ctx context.Context) (T, error)) (T, error) {
	type result struct {
		out T
		err error
	}
	ch := make(chan result, 1)

	task := limiterTask{
		ctx: ctx,
		run: func(ctx context.Context) {
			out, err := op(ctx)
			ch <- result{out: out, err: err}
		},
	}

	var zero T
	select {
	case l.queue <- task:
	case <-l.done:
		return zero, errLimiterClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case res := <-ch:
		return res.out, res.err
	case <-l.done:
		// The op may have finished in the same instant the limiter closed.
		select {
		case res := <-ch:
			return res.out, res.err
		default:
			return zero, errLimiterClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
