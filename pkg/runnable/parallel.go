package runnable

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/braid/pkg/domain"
)

// Branch is one named member of a ParallelMap or Assign.
type Branch struct {
	Key  string
	Unit Runnable
}

// FailurePolicy decides what a ParallelMap does when branches fail.
type FailurePolicy int

const (
	// CollectFailures waits for every branch and reports all failures.
	CollectFailures FailurePolicy = iota
	// FailFast cancels the remaining branches after the first failure.
	FailFast
	// TolerateFailures returns the successful branches and drops failed keys.
	TolerateFailures
)

// ParallelOption configures a ParallelMap.
type ParallelOption func(*parallel)

// WithFailurePolicy selects the policy applied to failed branches.
func WithFailurePolicy(p FailurePolicy) ParallelOption {
	return func(pm *parallel) {
		pm.policy = p
	}
}

// WithBranchConcurrency bounds how many branches run at once. Zero means all.
func WithBranchConcurrency(n int) ParallelOption {
	return func(pm *parallel) {
		pm.limit = n
	}
}

// WithParallelName overrides the generated unit name.
func WithParallelName(name string) ParallelOption {
	return func(pm *parallel) {
		pm.name = name
	}
}

type parallel struct {
	name     string
	branches []Branch
	policy   FailurePolicy
	limit    int
}

// Parallel runs every branch concurrently on the same input and returns a
// domain.Values keyed by branch. The values do not depend on completion
// order. Keys must be unique and non-empty.
func Parallel(branches ...Branch) (*Unit, error) {
	return NewParallel(branches)
}

// MustParallel is like Parallel but panics on a construction error.
func MustParallel(branches ...Branch) *Unit {
	u, err := Parallel(branches...)
	if err != nil {
		panic(err)
	}
	return u
}

// ParallelMap is Parallel over a map; branches are ordered by key.
func ParallelMap(units map[string]Runnable, opts ...ParallelOption) (*Unit, error) {
	return NewParallel(sortedBranches(units), opts...)
}

// NewParallel builds a ParallelMap with options.
func NewParallel(branches []Branch, opts ...ParallelOption) (*Unit, error) {
	pm, err := newParallel("Parallel", branches, opts)
	if err != nil {
		return nil, err
	}
	return New(pm.name, pm), nil
}

func newParallel(kind string, branches []Branch, opts []ParallelOption) (*parallel, error) {
	if len(branches) == 0 {
		return nil, &domain.ConfigError{Unit: kind, Field: "branches", Reason: "at least one branch is required"}
	}
	seen := make(map[string]struct{}, len(branches))
	keys := make([]string, len(branches))
	for i, b := range branches {
		if b.Key == "" {
			return nil, &domain.ConfigError{Unit: kind, Field: fmt.Sprintf("branches[%d]", i), Reason: "empty key"}
		}
		if b.Unit == nil {
			return nil, &domain.ConfigError{Unit: kind, Field: b.Key, Reason: "nil unit"}
		}
		if _, dup := seen[b.Key]; dup {
			return nil, &domain.ConfigError{Unit: kind, Field: b.Key, Reason: "duplicate branch key"}
		}
		seen[b.Key] = struct{}{}
		keys[i] = b.Key
	}
	pm := &parallel{
		name:     kind + "{" + strings.Join(keys, ", ") + "}",
		branches: append([]Branch(nil), branches...),
	}
	for _, opt := range opts {
		opt(pm)
	}
	return pm, nil
}

// Keys returns the branch keys in configuration order.
func (p *parallel) Keys() []string {
	keys := make([]string, len(p.branches))
	for i, b := range p.branches {
		keys[i] = b.Key
	}
	return keys
}

func (p *parallel) Invoke(ctx context.Context, input any, cfg domain.Config) (any, error) {
	results := make([]any, len(p.branches))
	errs := make([]error, len(p.branches))

	g, gctx := errgroup.WithContext(ctx)
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}
	for i, b := range p.branches {
		g.Go(func() error {
			out, err := b.Unit.Invoke(gctx, branchInput(input), WithConfig(cfg))
			if err != nil {
				errs[i] = err
				if p.policy == FailFast {
					return &branchErr{index: i}
				}
				return nil
			}
			results[i] = out
			return nil
		})
	}
	waitErr := g.Wait()

	out := make(domain.Values, len(p.branches))
	var failures []domain.BranchFailure
	for i, b := range p.branches {
		if errs[i] != nil {
			failures = append(failures, domain.BranchFailure{Key: b.Key, Err: errs[i]})
			continue
		}
		out[b.Key] = results[i]
	}

	switch {
	case len(failures) == 0:
		return out, nil
	case p.policy == TolerateFailures:
		return out, nil
	case p.policy == FailFast:
		// Siblings cancelled by the first failure are noise; report the cause.
		if be, ok := waitErr.(*branchErr); ok {
			failures = []domain.BranchFailure{{Key: p.branches[be.index].Key, Err: errs[be.index]}}
		}
	}
	return nil, &domain.PartialFailure{Unit: p.name, Failures: failures}
}

type branchErr struct{ index int }

func (e *branchErr) Error() string { return fmt.Sprintf("branch %d failed", e.index) }

// branchInput gives each branch its own copy of a mapping input, so a branch
// that mutates what it receives cannot affect its siblings.
func branchInput(input any) any {
	switch m := input.(type) {
	case domain.Values:
		return m.Clone()
	case map[string]any:
		return map[string]any(domain.Values(m).Clone())
	default:
		return input
	}
}

func sortedBranches(units map[string]Runnable) []Branch {
	keys := make([]string, 0, len(units))
	for k := range units {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	branches := make([]Branch, len(keys))
	for i, k := range keys {
		branches[i] = Branch{Key: k, Unit: units[k]}
	}
	return branches
}
