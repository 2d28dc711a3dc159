package runnable

import (
	"context"
	"fmt"

	"github.com/aretw0/braid/pkg/domain"
)

// Passthrough returns its input unchanged.
func Passthrough() *Unit {
	return New("Passthrough", StepFunc(func(_ context.Context, input any, _ domain.Config) (any, error) {
		return input, nil
	}))
}

type assign struct {
	par *parallel
}

// Assign runs the branches as a ParallelMap against a mapping input and
// returns a copy of the input with each branch's output stored under its key.
// Computed keys overwrite input keys of the same name; keys not named by a
// branch are preserved. Non-mapping inputs fail with an InputError.
func Assign(branches ...Branch) (*Unit, error) {
	return NewAssign(branches)
}

// MustAssign is like Assign but panics on a construction error.
func MustAssign(branches ...Branch) *Unit {
	u, err := Assign(branches...)
	if err != nil {
		panic(err)
	}
	return u
}

// AssignMap is Assign over a map; branches are ordered by key.
func AssignMap(units map[string]Runnable, opts ...ParallelOption) (*Unit, error) {
	return NewAssign(sortedBranches(units), opts...)
}

// NewAssign builds an Assign with ParallelMap options.
func NewAssign(branches []Branch, opts ...ParallelOption) (*Unit, error) {
	pm, err := newParallel("Assign", branches, opts)
	if err != nil {
		return nil, err
	}
	return New(pm.name, &assign{par: pm}), nil
}

func (a *assign) Keys() []string { return a.par.Keys() }

func (a *assign) Invoke(ctx context.Context, input any, cfg domain.Config) (any, error) {
	in, ok := domain.AsValues(input)
	if !ok {
		return nil, &domain.InputError{Unit: a.par.name, Reason: typeMismatch[domain.Values](input)}
	}
	computed, err := a.par.Invoke(ctx, in, cfg)
	if err != nil {
		return nil, err
	}
	return in.Merge(computed.(domain.Values)), nil
}

// Pick extracts keys from a mapping input. With one key it returns that
// value; with several it returns a domain.Values holding only those keys.
// A missing key fails with an InputError.
func Pick(keys ...string) *Unit {
	name := fmt.Sprintf("Pick%v", keys)
	return New(name, StepFunc(func(_ context.Context, input any, _ domain.Config) (any, error) {
		in, ok := domain.AsValues(input)
		if !ok {
			return nil, &domain.InputError{Unit: name, Reason: typeMismatch[domain.Values](input)}
		}
		if len(keys) == 1 {
			v, ok := in[keys[0]]
			if !ok {
				return nil, &domain.InputError{Unit: name, Key: keys[0], Reason: "missing key"}
			}
			return v, nil
		}
		out := make(domain.Values, len(keys))
		for _, k := range keys {
			v, ok := in[k]
			if !ok {
				return nil, &domain.InputError{Unit: name, Key: k, Reason: "missing key"}
			}
			out[k] = v
		}
		return out, nil
	}))
}
