package runnable

import (
	"context"

	"github.com/aretw0/braid/pkg/domain"
)

// Option configures a single call on a Runnable.
type Option func(*callOptions)

type callOptions struct {
	config         domain.Config
	batchConfigs   []domain.Config
	maxConcurrency int
	failFast       bool
	hooks          domain.LifecycleHooks
}

// WithConfig sets the invocation configuration, replacing any earlier one.
func WithConfig(cfg domain.Config) Option {
	return func(o *callOptions) {
		o.config = cfg
	}
}

// WithSessionID sets the session_id configurable key.
func WithSessionID(id string) Option {
	return WithConfigurable(domain.ConfigSessionID, id)
}

// WithConfigurable sets one configurable key.
func WithConfigurable(key string, value any) Option {
	return func(o *callOptions) {
		o.config = o.config.With(key, value)
	}
}

// WithTags appends tags to the invocation configuration.
func WithTags(tags ...string) Option {
	return func(o *callOptions) {
		o.config.Tags = append(o.config.Tags, tags...)
	}
}

// WithBatchConfigs gives each Batch element its own configuration, layered
// over the call configuration. The slice must match the number of inputs.
func WithBatchConfigs(cfgs ...domain.Config) Option {
	return func(o *callOptions) {
		o.batchConfigs = cfgs
	}
}

// WithMaxConcurrency bounds how many Batch elements run at once.
func WithMaxConcurrency(n int) Option {
	return func(o *callOptions) {
		o.maxConcurrency = n
	}
}

// WithFailFast makes Batch cancel the remaining elements after the first failure.
func WithFailFast() Option {
	return func(o *callOptions) {
		o.failFast = true
	}
}

// WithHooks attaches lifecycle hooks to this call. They fire for every unit
// in the tree below the called one.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(o *callOptions) {
		o.hooks = domain.ComposeHooks(o.hooks, hooks)
	}
}

type hooksKey struct{}

func withCallHooks(ctx context.Context, hooks domain.LifecycleHooks) context.Context {
	if hooks.IsZero() {
		return ctx
	}
	return context.WithValue(ctx, hooksKey{}, domain.ComposeHooks(callHooks(ctx), hooks))
}

func callHooks(ctx context.Context) domain.LifecycleHooks {
	h, _ := ctx.Value(hooksKey{}).(domain.LifecycleHooks)
	return h
}
