// Package fetch wraps single request attempts with a bounded retry policy.
//
// Network errors, attempt timeouts and 5xx responses are retried with
// exponential backoff; 4xx responses and undecodable payloads fail at once.
package fetch

import (
	"context"
	"time"

	"github.com/okian/credash/pkg/logger"
	"github.com/okian/credash/pkg/metrics"
)

// Config bounds a fetch.
type Config struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	BackoffMultiplier float64
	// Timeout bounds one attempt. Zero leaves attempts unbounded.
	Timeout  time.Duration
	MaxDelay time.Duration
}

// Policy returns the backoff schedule of c.
func (c Config) Policy() Policy {
	return Policy{BaseDelay: c.BaseDelay, Multiplier: c.BackoffMultiplier, MaxDelay: c.MaxDelay}
}

// DefaultConfig mirrors the dashboard defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		BaseDelay:         500 * time.Millisecond,
		BackoffMultiplier: 2,
		Timeout:           5 * time.Second,
		MaxDelay:          30 * time.Second,
	}
}

// Fetcher retries operations according to its Config.
type Fetcher struct {
	cfg    Config
	sleep  SleepFunc
	logger logger.Logger
}

// Option applies a configuration option to the Fetcher.
type Option func(*Fetcher)

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(sleep SleepFunc) Option {
	return func(f *Fetcher) {
		if sleep != nil {
			f.sleep = sleep
		}
	}
}

// WithLogger sets a custom logger for the fetcher.
func WithLogger(l logger.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// New creates a Fetcher. MaxAttempts below 1 is treated as 1.
func New(cfg Config, opts ...Option) *Fetcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	f := &Fetcher{
		cfg:    cfg,
		sleep:  Sleep,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Config returns the fetcher's configuration.
func (f *Fetcher) Config() Config { return f.cfg }

// Do runs fn until it succeeds, fails non-transiently, or runs out of attempts.
// Failures are returned as *FetchError.
func Do[T any](ctx context.Context, f *Fetcher, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	policy := f.cfg.Policy()

	for attempt := 1; ; attempt++ {
		metrics.RecordFetchAttempt(op)
		start := time.Now()
		v, err := runAttempt(ctx, f.cfg.Timeout, fn)
		metrics.RecordFetchLatency(op, float64(time.Since(start).Milliseconds()))
		if err == nil {
			return v, nil
		}

		kind := Classify(ctx, err)
		if !kind.Transient() || attempt >= f.cfg.MaxAttempts {
			metrics.RecordFetchFailure(op, kind.String())
			return zero, &FetchError{Op: op, Kind: kind, Attempts: attempt, Cause: err}
		}

		delay := policy.Delay(attempt)
		metrics.RecordFetchRetry(op, kind.String())
		f.logger.Debug(ctx, "fetch attempt failed, retrying",
			logger.String("op", op),
			logger.Int("attempt", attempt),
			logger.String("kind", kind.String()),
			logger.Duration("delay", delay),
			logger.Error(err))

		if err := f.sleep(ctx, delay); err != nil {
			metrics.RecordFetchFailure(op, KindCanceled.String())
			return zero, &FetchError{Op: op, Kind: KindCanceled, Attempts: attempt, Cause: err}
		}
	}
}

// runAttempt runs fn once under the per-attempt timeout.
func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := fn(attemptCtx)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		// the op may report its own wrapping of the deadline; normalize it
		return v, errAttemptTimeout{cause: err}
	}
	return v, err
}

type errAttemptTimeout struct{ cause error }

func (e errAttemptTimeout) Error() string   { return "attempt timed out: " + e.cause.Error() }
func (e errAttemptTimeout) Unwrap() error   { return e.cause }
func (e errAttemptTimeout) Timeout() bool   { return true }
func (e errAttemptTimeout) Temporary() bool { return true }
