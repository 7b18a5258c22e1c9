// Package retry runs operations under bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"
)

// Defaults used when options are not supplied.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultGrowth      = 1.7
)

// Classifier decides whether an error is worth another attempt.
type Classifier func(err error) bool

// Always retries every error. It is the default policy.
func Always(error) bool { return true }

// StatusCoder is implemented by transport errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// TransientOnly retries 408, 429 and 5xx responses and any error without
// a status, such as a dropped connection. Context cancellation is terminal.
func TransientOnly(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		return code == 408 || code == 429 || code >= 500
	}
	return true
}

// Policy configures Do.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Growth      float64
	Classify    Classifier
	Sleep       func(ctx context.Context, d time.Duration) error
	OnRetry     func(attempt int, delay time.Duration, err error)
}

// Option mutates a Policy.
type Option func(*Policy)

// WithMaxAttempts bounds the total number of attempts.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) { p.MaxAttempts = n }
}

// WithBaseDelay sets the wait before the second attempt.
func WithBaseDelay(d time.Duration) Option {
	return func(p *Policy) { p.BaseDelay = d }
}

// WithGrowth sets the backoff multiplier.
func WithGrowth(g float64) Option {
	return func(p *Policy) { p.Growth = g }
}

// WithClassifier installs a retryable/terminal decision.
func WithClassifier(c Classifier) Option {
	return func(p *Policy) { p.Classify = c }
}

// WithSleep replaces the wait between attempts. Used by tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Policy) { p.Sleep = fn }
}

// WithOnRetry registers a hook called before each wait.
func WithOnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(p *Policy) { p.OnRetry = fn }
}

func newPolicy(opts []Option) Policy {
	p := Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Growth:      DefaultGrowth,
		Classify:    Always,
		Sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(&p)
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Growth < 1 {
		p.Growth = DefaultGrowth
	}
	if p.Classify == nil {
		p.Classify = Always
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// Delay returns the wait that precedes attempt+1.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Growth, float64(attempt-1)))
}

// Do calls op until it succeeds, the classifier rejects the error, or
// MaxAttempts is reached. The last error is returned unwrapped.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	p := newPolicy(opts)

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		val, err := op(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if attempt == p.MaxAttempts || !p.Classify(err) {
			break
		}

		delay := p.Delay(attempt)
		slog.Warn("operation attempt failed",
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"retry_in_ms", delay.Milliseconds(),
			"error", err,
		)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if sleepErr := p.Sleep(ctx, delay); sleepErr != nil {
			break
		}
	}
	return zero, lastErr
}

// Run is Do for operations without a result.
func Run(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	_, err := Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
