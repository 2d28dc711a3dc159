package runnable

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/aretw0/braid/pkg/domain"
)

// RetryOption configures Retry.
type RetryOption func(*retrier)

// WithMaxRetries sets how many times a failed call is repeated (default 3).
func WithMaxRetries(n uint64) RetryOption {
	return func(r *retrier) { r.maxRetries = n }
}

// WithBackoff sets the first delay of the exponential backoff (default 100ms).
func WithBackoff(base time.Duration) RetryOption {
	return func(r *retrier) { r.base = base }
}

// WithMaxDelay caps each backoff delay.
func WithMaxDelay(d time.Duration) RetryOption {
	return func(r *retrier) { r.capDelay = d }
}

type retrier struct {
	next       Runnable
	maxRetries uint64
	base       time.Duration
	capDelay   time.Duration
}

// Retry re-invokes next while it fails with a retryable ExecutionError.
// Input, configuration and partial failures are returned immediately, as are
// cancellations.
func Retry(next Runnable, opts ...RetryOption) *Unit {
	r := &retrier{next: next, maxRetries: 3, base: 100 * time.Millisecond}
	for _, opt := range opts {
		opt(r)
	}
	return New("Retry("+next.Name()+")", r)
}

func (r *retrier) backoff() retry.Backoff {
	b := retry.NewExponential(r.base)
	if r.capDelay > 0 {
		b = retry.WithCappedDuration(r.capDelay, b)
	}
	return retry.WithMaxRetries(r.maxRetries, b)
}

func (r *retrier) Invoke(ctx context.Context, input any, cfg domain.Config) (any, error) {
	var out any
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		var err error
		out, err = r.next.Invoke(ctx, input, WithConfig(cfg))
		if retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func retryable(err error) bool {
	var exec *domain.ExecutionError
	if err == nil || !errors.As(err, &exec) {
		return false
	}
	return domain.KindOf(err) == domain.KindExecution && exec.Retryable()
}
