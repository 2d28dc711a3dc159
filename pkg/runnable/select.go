package runnable

import (
	"context"
	"fmt"

	"github.com/ohler55/ojg/jp"

	"github.com/aretw0/braid/pkg/domain"
)

// SelectOption configures a Select unit.
type SelectOption func(*selector)

// SelectAll returns every match as a []any instead of the first one.
func SelectAll() SelectOption {
	return func(s *selector) { s.all = true }
}

// SelectDefault is returned when the expression matches nothing.
// Without a default, no match fails with an InputError.
func SelectDefault(v any) SelectOption {
	return func(s *selector) {
		s.def = v
		s.hasDef = true
	}
}

type selector struct {
	name   string
	expr   jp.Expr
	all    bool
	def    any
	hasDef bool
}

// Select evaluates a JSONPath expression (e.g. "$.docs[*].content") against
// the input. The expression is parsed once, at construction.
func Select(path string, opts ...SelectOption) (*Unit, error) {
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, &domain.ConfigError{Unit: "Select", Field: "path", Reason: fmt.Sprintf("invalid JSONPath expression %q", path), Err: err}
	}
	s := &selector{name: "Select(" + path + ")", expr: expr}
	for _, opt := range opts {
		opt(s)
	}
	return New(s.name, s), nil
}

func (s *selector) Invoke(_ context.Context, input any, _ domain.Config) (any, error) {
	results := s.expr.Get(domain.Plain(input))
	if len(results) == 0 {
		if s.hasDef {
			return s.def, nil
		}
		if s.all {
			return []any{}, nil
		}
		return nil, &domain.InputError{Unit: s.name, Reason: "expression matched nothing"}
	}
	if s.all {
		return results, nil
	}
	return results[0], nil
}
