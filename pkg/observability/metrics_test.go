package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/braid/pkg/adapters/memory"
	"github.com/aretw0/braid/pkg/domain"
	"github.com/aretw0/braid/pkg/observability"
	"github.com/aretw0/braid/pkg/runnable"
	"github.com/aretw0/braid/pkg/session"
)

func TestMetrics_UnitInvocations(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	exec := runnable.NewExecutor(runnable.WithLifecycleHooks(metrics.Hooks()))

	ok := runnable.Func("upper", func(ctx context.Context, in any) (any, error) {
		return in, nil
	}, runnable.WithExecutor(exec))
	bad := runnable.Func("broken", func(ctx context.Context, in any) (any, error) {
		return nil, errors.New("boom")
	}, runnable.WithExecutor(exec))

	ctx := context.Background()
	_, err := ok.Invoke(ctx, "a")
	require.NoError(t, err)
	_, err = ok.Invoke(ctx, "b")
	require.NoError(t, err)
	_, err = bad.Invoke(ctx, "c")
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Invocations.WithLabelValues("upper", "invoke", observability.StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Invocations.WithLabelValues("broken", "invoke", "execution")))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.Duration), "one histogram series per unit and mode")
}

func TestMetrics_HistoryAppended(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	manager := session.NewManager(memory.NewStore(), session.WithLifecycleHooks(metrics.Hooks()))

	ctx := context.Background()
	require.NoError(t, manager.Append(ctx, "s", domain.UserMessage("q"), domain.AssistantMessage("a")))
	require.NoError(t, manager.Append(ctx, "s", domain.UserMessage("q2")))

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Appended))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "braid_history_messages_appended_total")
}

func TestNewMetrics_NilRegisterer(t *testing.T) {
	assert.NotPanics(t, func() { observability.NewMetrics(nil) })
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	hooks := observability.MultiHooks(observability.LogHooks(logger), metrics.Hooks())

	unit := runnable.Func("failing", func(ctx context.Context, in any) (any, error) {
		return nil, &domain.InputError{Unit: "failing", Reason: "bad input"}
	})
	_, err := unit.Invoke(context.Background(), 1, runnable.WithHooks(hooks))
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "unit_start")
	assert.Contains(t, out, "unit_finish")
	assert.Contains(t, out, "kind=input")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Invocations.WithLabelValues("failing", "invoke", "input")))
}
