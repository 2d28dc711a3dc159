package runnable

import (
	"context"

	"github.com/aretw0/braid/pkg/domain"
)

// Runnable is anything that can be invoked in the four modes.
// Every constructor in this package returns a *Unit, which implements it.
type Runnable interface {
	Name() string
	Invoke(ctx context.Context, input any, opts ...Option) (any, error)
	Batch(ctx context.Context, inputs []any, opts ...Option) ([]any, error)
	Stream(ctx context.Context, input any, opts ...Option) (*Stream, error)
	Go(ctx context.Context, input any, opts ...Option) *Future[any]
}

// Step is the single core behaviour of a Unit.
type Step interface {
	Invoke(ctx context.Context, input any, cfg domain.Config) (any, error)
}

// StepFunc adapts a function into a Step.
type StepFunc func(ctx context.Context, input any, cfg domain.Config) (any, error)

func (f StepFunc) Invoke(ctx context.Context, input any, cfg domain.Config) (any, error) {
	return f(ctx, input, cfg)
}

// StreamStep is implemented by steps that produce output incrementally.
type StreamStep interface {
	Stream(ctx context.Context, input any, cfg domain.Config) (*Stream, error)
}

// StreamStepFunc adapts a function into a StreamStep.
type StreamStepFunc func(ctx context.Context, input any, cfg domain.Config) (*Stream, error)

func (f StreamStepFunc) Stream(ctx context.Context, input any, cfg domain.Config) (*Stream, error) {
	return f(ctx, input, cfg)
}

// Unit is an immutable invocable built around one Step.
type Unit struct {
	name       string
	step       Step
	streamStep StreamStep
	exec       *Executor
}

// UnitOption configures a Unit at construction.
type UnitOption func(*Unit)

// WithStreamStep gives the Unit a native stream implementation.
func WithStreamStep(s StreamStep) UnitOption {
	return func(u *Unit) {
		u.streamStep = s
	}
}

// WithExecutor runs the Unit on e instead of the default Executor.
func WithExecutor(e *Executor) UnitOption {
	return func(u *Unit) {
		u.exec = e
	}
}

// New builds a Unit. A Step that also implements StreamStep streams natively.
func New(name string, step Step, opts ...UnitOption) *Unit {
	if step == nil {
		panic("runnable: nil step for unit " + name)
	}
	u := &Unit{name: name, step: step, exec: defaultExecutor}
	if s, ok := step.(StreamStep); ok {
		u.streamStep = s
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.exec == nil {
		u.exec = defaultExecutor
	}
	return u
}

// Func builds a Unit from a function of the input alone.
func Func(name string, fn func(ctx context.Context, input any) (any, error), opts ...UnitOption) *Unit {
	return New(name, StepFunc(func(ctx context.Context, input any, _ domain.Config) (any, error) {
		return fn(ctx, input)
	}), opts...)
}

// Lambda builds a typed Unit. Inputs that are not an I fail with an InputError.
func Lambda[I, O any](name string, fn func(ctx context.Context, input I) (O, error), opts ...UnitOption) *Unit {
	return New(name, StepFunc(func(ctx context.Context, input any, _ domain.Config) (any, error) {
		in, ok := input.(I)
		if !ok {
			return nil, &domain.InputError{Unit: name, Reason: typeMismatch[I](input)}
		}
		return fn(ctx, in)
	}), opts...)
}

// StreamFunc builds a natively streaming Unit. produce writes chunks to w and
// returns when done; Invoke collects the same chunks, so both modes agree.
func StreamFunc(name string, produce func(ctx context.Context, input any, w *StreamWriter) error, opts ...UnitOption) *Unit {
	return New(name, &producerStep{produce: produce}, opts...)
}

type producerStep struct {
	produce func(ctx context.Context, input any, w *StreamWriter) error
}

func (p *producerStep) Invoke(ctx context.Context, input any, cfg domain.Config) (any, error) {
	s, err := p.Stream(ctx, input, cfg)
	if err != nil {
		return nil, err
	}
	return Collect(s)
}

func (p *producerStep) Stream(ctx context.Context, input any, _ domain.Config) (*Stream, error) {
	return produce(ctx, 1, func(ctx context.Context, w *StreamWriter) error {
		return p.produce(ctx, input, w)
	}), nil
}

// Name returns the unit's name.
func (u *Unit) Name() string { return u.name }

// Named returns a copy of the unit under another name.
func (u *Unit) Named(name string) *Unit {
	cp := *u
	cp.name = name
	return &cp
}

// Invoke runs the unit once and returns its output.
func (u *Unit) Invoke(ctx context.Context, input any, opts ...Option) (any, error) {
	return u.exec.invoke(ctx, u, input, opts)
}

// Batch runs Invoke for each input; see Executor.Batch.
func (u *Unit) Batch(ctx context.Context, inputs []any, opts ...Option) ([]any, error) {
	return u.exec.Batch(ctx, u, inputs, opts...)
}

// Stream runs the unit and returns its output as a stream of chunks.
func (u *Unit) Stream(ctx context.Context, input any, opts ...Option) (*Stream, error) {
	return u.exec.stream(ctx, u, input, opts)
}

// Go runs Invoke asynchronously.
func (u *Unit) Go(ctx context.Context, input any, opts ...Option) *Future[any] {
	return u.exec.Go(ctx, u, input, opts...)
}

// Pipe chains next after u; it is shorthand for MustSequence(u, next...).
func (u *Unit) Pipe(next ...Runnable) *Unit {
	return MustSequence(append([]Runnable{u}, next...)...)
}

type keyed interface {
	Keys() []string
}

// Keys returns the output keys of a ParallelMap or Assign unit in
// configuration order. Other units return nil.
func (u *Unit) Keys() []string {
	if k, ok := u.step.(keyed); ok {
		return k.Keys()
	}
	return nil
}
