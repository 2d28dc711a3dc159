package runnable_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/braid/pkg/domain"
	"github.com/aretw0/braid/pkg/runnable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flaky(failures int32) (*runnable.Unit, *atomic.Int32) {
	var calls atomic.Int32
	return runnable.Func("flaky", func(context.Context, any) (any, error) {
		if calls.Add(1) <= failures {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}), &calls
}

func TestRetry_RecoversTransientFailures(t *testing.T) {
	u, calls := flaky(2)
	r := runnable.Retry(u, runnable.WithMaxRetries(3), runnable.WithBackoff(time.Millisecond))

	out, err := r.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetry_GivesUp(t *testing.T) {
	u, calls := flaky(10)
	r := runnable.Retry(u, runnable.WithMaxRetries(2), runnable.WithBackoff(time.Millisecond), runnable.WithMaxDelay(2*time.Millisecond))

	_, err := r.Invoke(context.Background(), nil)
	var exec *domain.ExecutionError
	require.ErrorAs(t, err, &exec)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetry_DoesNotRetryInputErrors(t *testing.T) {
	r := runnable.Retry(upper(), runnable.WithBackoff(time.Millisecond))

	_, err := r.Invoke(context.Background(), 99)
	assert.Equal(t, domain.KindInput, domain.KindOf(err))
}
