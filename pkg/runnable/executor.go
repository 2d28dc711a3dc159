package runnable

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/braid/internal/logging"
	"github.com/aretw0/braid/pkg/domain"
)

// DefaultMaxConcurrency bounds Batch when neither the call nor the Executor sets a limit.
const DefaultMaxConcurrency = 8

// Executor derives the Batch, Stream and async modes from a unit's core step.
// It is the only place where those modes are implemented.
type Executor struct {
	logger         *slog.Logger
	hooks          domain.LifecycleHooks
	maxConcurrency int
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the logger used for unit-level debug events.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers hooks fired for every unit run by this Executor.
func WithLifecycleHooks(hooks domain.LifecycleHooks) ExecutorOption {
	return func(e *Executor) {
		e.hooks = domain.ComposeHooks(e.hooks, hooks)
	}
}

// WithDefaultConcurrency sets the Batch limit used when a call does not set one.
func WithDefaultConcurrency(n int) ExecutorOption {
	return func(e *Executor) {
		e.maxConcurrency = n
	}
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger:         logging.NewNop(),
		maxConcurrency: DefaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExecutor = NewExecutor()

// DefaultExecutor returns the Executor used by units built without WithExecutor.
func DefaultExecutor() *Executor {
	return defaultExecutor
}

func (e *Executor) resolve(opts []Option) *callOptions {
	o := &callOptions{maxConcurrency: e.maxConcurrency}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxConcurrency <= 0 {
		o.maxConcurrency = DefaultMaxConcurrency
	}
	return o
}

func (e *Executor) hooksFor(ctx context.Context) domain.LifecycleHooks {
	return domain.ComposeHooks(e.hooks, callHooks(ctx))
}

func (e *Executor) begin(ctx context.Context, hooks domain.LifecycleHooks, unit string, mode domain.Mode) time.Time {
	now := time.Now()
	if hooks.OnUnitStart != nil {
		hooks.OnUnitStart(ctx, &domain.UnitEvent{
			EventBase: domain.EventBase{Timestamp: now, Type: domain.EventUnitStart},
			Unit:      unit,
			Mode:      mode,
		})
	}
	return now
}

func (e *Executor) end(ctx context.Context, hooks domain.LifecycleHooks, unit string, mode domain.Mode, start time.Time, err error) {
	elapsed := time.Since(start)
	if err != nil {
		e.logger.Debug("unit failed", "unit", unit, "mode", mode, "duration", elapsed, "err", err)
	} else {
		e.logger.Debug("unit finished", "unit", unit, "mode", mode, "duration", elapsed)
	}
	if hooks.OnUnitFinish != nil {
		hooks.OnUnitFinish(ctx, &domain.UnitEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventUnitFinish},
			Unit:      unit,
			Mode:      mode,
			Duration:  elapsed,
			Err:       err,
		})
	}
}

func (e *Executor) invoke(ctx context.Context, u *Unit, input any, opts []Option) (any, error) {
	o := e.resolve(opts)
	ctx = withCallHooks(ctx, o.hooks)
	if err := ctx.Err(); err != nil {
		return nil, &domain.ExecutionError{Unit: u.name, Err: err}
	}

	hooks := e.hooksFor(ctx)
	start := e.begin(ctx, hooks, u.name, domain.ModeInvoke)
	out, err := callStep(ctx, u, input, o.config)
	e.end(ctx, hooks, u.name, domain.ModeInvoke, start, err)
	return out, err
}

func (e *Executor) stream(ctx context.Context, u *Unit, input any, opts []Option) (*Stream, error) {
	o := e.resolve(opts)
	ctx = withCallHooks(ctx, o.hooks)
	if err := ctx.Err(); err != nil {
		return nil, &domain.ExecutionError{Unit: u.name, Err: err}
	}

	hooks := e.hooksFor(ctx)
	start := e.begin(ctx, hooks, u.name, domain.ModeStream)

	var (
		s   *Stream
		err error
	)
	if u.streamStep == nil {
		// No native stream: one chunk holding the Invoke result.
		var out any
		if out, err = callStep(ctx, u, input, o.config); err == nil {
			s = FromSlice(out)
		}
	} else {
		s, err = callStreamStep(ctx, u, input, o.config)
	}
	if err != nil {
		e.end(ctx, hooks, u.name, domain.ModeStream, start, err)
		return nil, err
	}

	s.mapErrors(func(err error) error { return classify(u.name, err) })
	s.OnDone(func(err error) {
		e.end(ctx, hooks, u.name, domain.ModeStream, start, err)
	})
	return s, nil
}

// Batch invokes r once per input with bounded concurrency and returns the
// outputs in input order. Failed elements leave a nil output and are listed in
// the returned *domain.BatchError; successful outputs are kept.
func (e *Executor) Batch(ctx context.Context, r Runnable, inputs []any, opts ...Option) ([]any, error) {
	o := e.resolve(opts)
	if len(o.batchConfigs) > 0 && len(o.batchConfigs) != len(inputs) {
		return nil, &domain.ConfigError{
			Unit:   r.Name(),
			Field:  "batch_configs",
			Reason: fmt.Sprintf("got %d configs for %d inputs", len(o.batchConfigs), len(inputs)),
		}
	}
	ctx = withCallHooks(ctx, o.hooks)
	hooks := e.hooksFor(ctx)
	start := e.begin(ctx, hooks, r.Name(), domain.ModeBatch)

	outs := make([]any, len(inputs))
	errs := make([]error, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrency)
	for i, in := range inputs {
		g.Go(func() error {
			cfg := o.config
			if len(o.batchConfigs) > 0 {
				cfg = cfg.Merge(o.batchConfigs[i])
			}
			out, err := r.Invoke(gctx, in, WithConfig(cfg))
			if err != nil {
				errs[i] = err
				if o.failFast {
					return err
				}
				return nil
			}
			outs[i] = out
			return nil
		})
	}
	_ = g.Wait()

	var failures []domain.ItemFailure
	for i, err := range errs {
		if err != nil {
			failures = append(failures, domain.ItemFailure{Index: i, Err: err})
		}
	}
	var err error
	if len(failures) > 0 {
		err = &domain.BatchError{Unit: r.Name(), Total: len(inputs), Failures: failures}
	}
	e.end(ctx, hooks, r.Name(), domain.ModeBatch, start, err)
	return outs, err
}

// Go starts r.Invoke on a new goroutine.
func (e *Executor) Go(ctx context.Context, r Runnable, input any, opts ...Option) *Future[any] {
	o := e.resolve(opts)
	ctx = withCallHooks(ctx, o.hooks)
	return Async(ctx, func(ctx context.Context) (any, error) {
		hooks := e.hooksFor(ctx)
		start := e.begin(ctx, hooks, r.Name(), domain.ModeAsync)
		// Hooks already travel in ctx; passing them again would fire them twice.
		out, err := r.Invoke(ctx, input, WithConfig(o.config))
		e.end(ctx, hooks, r.Name(), domain.ModeAsync, start, err)
		return out, err
	})
}

// GoBatch starts r.Batch on a new goroutine.
func (e *Executor) GoBatch(ctx context.Context, r Runnable, inputs []any, opts ...Option) *Future[[]any] {
	return Async(ctx, func(ctx context.Context) ([]any, error) {
		return r.Batch(ctx, inputs, opts...)
	})
}

// GoStream opens r.Stream on a new goroutine. Stream already returns before
// producing chunks, so this only helps when opening the stream itself is slow
// (Sequence invokes every stage but the last before streaming).
func (e *Executor) GoStream(ctx context.Context, r Runnable, input any, opts ...Option) *Future[*Stream] {
	return Async(ctx, func(ctx context.Context) (*Stream, error) {
		return r.Stream(ctx, input, opts...)
	})
}

func callStep(ctx context.Context, u *Unit, input any, cfg domain.Config) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &domain.ExecutionError{Unit: u.name, Err: panicError(r)}
		}
	}()
	out, err = u.step.Invoke(ctx, input, cfg)
	if err != nil {
		return nil, classify(u.name, err)
	}
	return out, nil
}

func callStreamStep(ctx context.Context, u *Unit, input any, cfg domain.Config) (s *Stream, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, &domain.ExecutionError{Unit: u.name, Err: panicError(r)}
		}
	}()
	s, err = u.streamStep.Stream(ctx, input, cfg)
	if err != nil {
		return nil, classify(u.name, err)
	}
	return s, nil
}

// classify keeps taxonomy errors as they are and wraps everything else in an
// ExecutionError naming the unit.
func classify(unit string, err error) error {
	if err == nil || domain.IsClassified(err) {
		return err
	}
	return &domain.ExecutionError{Unit: unit, Err: err}
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
