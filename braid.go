package braid

import (
	"io"
	"log/slog"

	"github.com/aretw0/braid/internal/logging"
	"github.com/aretw0/braid/pkg/adapters/memory"
	"github.com/aretw0/braid/pkg/domain"
	"github.com/aretw0/braid/pkg/ports"
	"github.com/aretw0/braid/pkg/runnable"
	"github.com/aretw0/braid/pkg/session"
)

// Version is the release of the braid module. It can be overridden at build
// time with -ldflags "-X github.com/aretw0/braid.Version=...".
var Version = "0.1.0"

// Runtime bundles the pieces a host needs to run units with session history:
// an Executor, a session Manager over one HistoryStore and the hooks
// attached to every call made through it.
type Runtime struct {
	Executor *runnable.Executor
	Sessions *session.Manager

	store  ports.HistoryStore
	hooks  domain.LifecycleHooks
	logger *slog.Logger
}

// Option defines a functional option for configuring the Runtime.
type Option func(*config)

type config struct {
	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	locker      ports.DistributedLocker
	concurrency int
}

// WithLogger sets a custom structured logger for the runtime.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithLifecycleHooks registers observability hooks for units and history.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *config) { c.hooks = hooks }
}

// WithLocker adds a distributed lock around history appends, for stores
// shared by several processes.
func WithLocker(l ports.DistributedLocker) Option {
	return func(c *config) { c.locker = l }
}

// WithMaxConcurrency bounds batch fan-out.
func WithMaxConcurrency(n int) Option {
	return func(c *config) { c.concurrency = n }
}

// New creates a Runtime over store. A nil store means an in-memory one.
func New(store ports.HistoryStore, opts ...Option) *Runtime {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.NewNop()
	}
	if store == nil {
		store = memory.NewStore()
	}

	execOpts := []runnable.ExecutorOption{runnable.WithLogger(c.logger)}
	if c.concurrency > 0 {
		execOpts = append(execOpts, runnable.WithDefaultConcurrency(c.concurrency))
	}
	sessOpts := []session.Option{
		session.WithLogger(c.logger),
		session.WithLifecycleHooks(c.hooks),
	}
	if c.locker != nil {
		sessOpts = append(sessOpts, session.WithLocker(c.locker))
	}

	return &Runtime{
		Executor: runnable.NewExecutor(execOpts...),
		Sessions: session.NewManager(store, sessOpts...),
		store:    store,
		hooks:    c.hooks,
		logger:   c.logger,
	}
}

// Store returns the underlying HistoryStore.
func (r *Runtime) Store() ports.HistoryStore {
	return r.store
}

// Logger returns the runtime logger.
func (r *Runtime) Logger() *slog.Logger {
	return r.logger
}

// WithHistory wraps base so that each call reads and extends the history of
// the session named in its configuration. The wrapper runs on the runtime's
// Executor, so its logger and concurrency limit apply.
func (r *Runtime) WithHistory(base runnable.Runnable, opts ...runnable.HistoryOption) *runnable.Unit {
	opts = append([]runnable.HistoryOption{runnable.HistoryUnitOptions(runnable.WithExecutor(r.Executor))}, opts...)
	return runnable.WithMessageHistory(base, r.Sessions.Provider(), opts...)
}

// CallOptions returns the options every call should carry: the session id
// (when not empty) and the runtime hooks, followed by extra.
func (r *Runtime) CallOptions(sessionID string, extra ...runnable.Option) []runnable.Option {
	opts := make([]runnable.Option, 0, len(extra)+2)
	if sessionID != "" {
		opts = append(opts, runnable.WithSessionID(sessionID))
	}
	if !r.hooks.IsZero() {
		opts = append(opts, runnable.WithHooks(r.hooks))
	}
	return append(opts, extra...)
}

// Close releases the store when it holds resources.
func (r *Runtime) Close() error {
	if c, ok := r.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ChatChain builds the conversational pipeline used by the braid CLI and
// server: optional retrieval into "context", prompt assembly with system
// (where "{context}" is substituted) and the model reply. Wrap it with
// Runtime.WithHistory to make it remember sessions.
func ChatChain(system string, model ports.ChatModel, retriever ports.Retriever) *runnable.Unit {
	prompt := runnable.Messages(system, runnable.KeyHistory, runnable.KeyInput)
	reply := runnable.FromChatModel("model", model)
	if retriever == nil {
		return runnable.MustSequence(prompt, reply).Named("chat")
	}
	retrieve := runnable.MustSequence(
		runnable.FromRetriever("retrieve", retriever),
		runnable.Formatter("format", runnable.JoinDocuments("\n")),
	)
	return runnable.MustSequence(
		runnable.MustAssign(runnable.Branch{Key: runnable.KeyContext, Unit: retrieve}),
		prompt,
		reply,
	).Named("chat")
}

// ChatHistoryOptions are the history options matching ChatChain's inputs.
func ChatHistoryOptions() []runnable.HistoryOption {
	return []runnable.HistoryOption{
		runnable.HistoryMessagesKey(runnable.KeyHistory),
		runnable.InputMessagesKey(runnable.KeyInput),
	}
}
