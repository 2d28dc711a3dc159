package runnable

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/braid/pkg/domain"
)

type sequence struct {
	name  string
	units []Runnable
}

// Sequence chains units: each stage receives the previous stage's output.
// At least two units are required. The first failing stage stops the chain
// and is reported as a *domain.StageError wrapping the stage's error.
//
// Streaming a Sequence invokes every stage but the last to completion, then
// streams the last stage.
func Sequence(units ...Runnable) (*Unit, error) {
	if len(units) < 2 {
		return nil, &domain.ConfigError{Unit: "Sequence", Reason: domain.ErrEmptySequence.Error(), Err: domain.ErrEmptySequence}
	}
	for i, u := range units {
		if u == nil {
			return nil, &domain.ConfigError{Unit: "Sequence", Field: fmt.Sprintf("units[%d]", i), Reason: "nil unit"}
		}
	}
	seq := &sequence{
		name:  "Sequence(" + strings.Join(unitNames(units), " | ") + ")",
		units: append([]Runnable(nil), units...),
	}
	return New(seq.name, seq, WithStreamStep(seq)), nil
}

// MustSequence is like Sequence but panics on a construction error.
func MustSequence(units ...Runnable) *Unit {
	u, err := Sequence(units...)
	if err != nil {
		panic(err)
	}
	return u
}

func (s *sequence) Invoke(ctx context.Context, input any, cfg domain.Config) (any, error) {
	return s.run(ctx, s.units, input, cfg)
}

func (s *sequence) Stream(ctx context.Context, input any, cfg domain.Config) (*Stream, error) {
	last := len(s.units) - 1
	head, err := s.run(ctx, s.units[:last], input, cfg)
	if err != nil {
		return nil, err
	}
	st, err := s.units[last].Stream(ctx, head, WithConfig(cfg))
	if err != nil {
		return nil, s.stageError(last, err)
	}
	st.mapErrors(func(err error) error { return s.stageError(last, err) })
	return st, nil
}

func (s *sequence) run(ctx context.Context, units []Runnable, input any, cfg domain.Config) (any, error) {
	cur := input
	for i, u := range units {
		out, err := u.Invoke(ctx, cur, WithConfig(cfg))
		if err != nil {
			return nil, s.stageError(i, err)
		}
		cur = out
	}
	return cur, nil
}

func (s *sequence) stageError(i int, err error) error {
	return &domain.StageError{Unit: s.name, Stage: s.units[i].Name(), Index: i, Err: err}
}
