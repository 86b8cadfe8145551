package retry

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultMaxRetries = 3
	defaultBaseWait   = 500 * time.Millisecond
	defaultMaxWait    = 30 * time.Second
)

type options struct {
	maxRetries int
	baseWait   time.Duration
	maxWait    time.Duration
}

// Option configures the behavior of Do.
type Option func(*options)

// WithMaxRetries sets how many times the operation is retried after the
// initial attempt. Zero means a single attempt with no retries.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithBaseWait sets the wait before the first retry. Subsequent waits
// double up to the maximum.
func WithBaseWait(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.baseWait = d
		}
	}
}

// WithMaxWait caps the wait between retries.
func WithMaxWait(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxWait = d
		}
	}
}

// Do invokes fn, retrying with exponential backoff and jitter while fn
// returns a recoverable error and retries remain. The last error is
// returned on exhaustion. Non-recoverable errors return immediately.
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	o := &options{
		maxRetries: defaultMaxRetries,
		baseWait:   defaultBaseWait,
		maxWait:    defaultMaxWait,
	}
	for _, opt := range opts {
		opt(o)
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsRecoverable(err) || attempt >= o.maxRetries {
			return err
		}

		wait := o.baseWait << uint(attempt)
		if wait > o.maxWait || wait <= 0 {
			wait = o.maxWait
		}
		// Full jitter keeps concurrent callers from retrying in lockstep
		wait = time.Duration(rand.Int63n(int64(wait))) + wait/2

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
