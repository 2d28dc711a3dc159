package runnable

import (
	"context"
	"errors"

	"github.com/aretw0/braid/pkg/domain"
)

type fallbacks struct {
	units []Runnable
}

// WithFallbacks tries primary, then each fallback in order, while the previous
// one failed with an ExecutionError. Input and configuration errors are not
// retried on the fallbacks. When all fail, the errors are joined.
func WithFallbacks(primary Runnable, alternatives ...Runnable) *Unit {
	f := &fallbacks{units: append([]Runnable{primary}, alternatives...)}
	return New("Fallbacks("+primary.Name()+")", f)
}

func (f *fallbacks) Invoke(ctx context.Context, input any, cfg domain.Config) (any, error) {
	var errs []error
	for _, u := range f.units {
		out, err := u.Invoke(ctx, input, WithConfig(cfg))
		if err == nil {
			return out, nil
		}
		if domain.KindOf(err) != domain.KindExecution {
			return nil, err
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, &domain.ExecutionError{Unit: "Fallbacks(" + f.units[0].Name() + ")", Err: errors.Join(errs...)}
}
