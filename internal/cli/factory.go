package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aretw0/braid"
	"github.com/aretw0/braid/internal/config"
	"github.com/aretw0/braid/internal/logging"
	"github.com/aretw0/braid/pkg/adapters/echo"
	"github.com/aretw0/braid/pkg/adapters/file"
	"github.com/aretw0/braid/pkg/adapters/memory"
	"github.com/aretw0/braid/pkg/adapters/process"
	"github.com/aretw0/braid/pkg/adapters/redis"
	"github.com/aretw0/braid/pkg/domain"
	"github.com/aretw0/braid/pkg/observability"
	"github.com/aretw0/braid/pkg/persistence/middleware"
	"github.com/aretw0/braid/pkg/ports"
	"github.com/aretw0/braid/pkg/registry"
	"github.com/aretw0/braid/pkg/runnable"
)

// Stack is everything a braid command needs, built from one Config.
type Stack struct {
	Config   config.Config
	Logger   *slog.Logger
	Runtime  *braid.Runtime
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	// Chat is the session-aware chat pipeline.
	Chat *runnable.Unit
	// Units holds Chat and its stateless building blocks by name.
	Units *registry.Registry
}

// Build validates cfg and wires store, middleware, metrics and the chat
// pipeline. Callers must Close the stack.
func Build(cfg config.Config) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := createLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	store, locker, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	opts := []braid.Option{
		braid.WithLogger(logger),
		braid.WithLifecycleHooks(observability.MultiHooks(observability.LogHooks(logger), metrics.Hooks())),
	}
	if locker != nil {
		opts = append(opts, braid.WithLocker(locker))
	}
	rt := braid.New(store, opts...)

	sanitize := runnable.Sanitize(cfg.Chat.MaxInputSize)
	complete := braid.ChatChain(cfg.Chat.System, chatModel(cfg.Chat.Model), knowledge(cfg.Chat))
	// Sanitizing ahead of the history wrapper keeps stored user turns clean.
	chat := runnable.MustSequence(sanitize, rt.WithHistory(complete, braid.ChatHistoryOptions()...)).Named("chat")
	units := registry.New(chat, sanitize)
	units.Register("complete", complete)

	logger.Debug("stack ready", "backend", cfg.Store.Backend, "model", modelName(cfg.Chat.Model), "encrypted", cfg.Security.EncryptionKey != "")
	return &Stack{
		Config:   cfg,
		Logger:   logger,
		Runtime:  rt,
		Registry: reg,
		Metrics:  metrics,
		Chat:     chat,
		Units:    units,
	}, nil
}

// Close releases the history store.
func (s *Stack) Close() error {
	return s.Runtime.Close()
}

func createLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewWithWriter(os.Stderr, level, cfg.Format), nil
}

// openStore builds the configured backend and wraps it with the security
// middleware. The locker is only set for shared backends.
func openStore(cfg config.Config) (ports.HistoryStore, ports.DistributedLocker, error) {
	var (
		store  ports.HistoryStore
		locker ports.DistributedLocker
	)
	switch cfg.Store.Backend {
	case config.BackendFile:
		store = file.New(cfg.Store.Path)
	case config.BackendRedis:
		rc := cfg.Store.Redis
		opts := []redis.Option{redis.WithTTL(rc.TTL)}
		if rc.Prefix != "" {
			opts = append(opts, redis.WithPrefix(rc.Prefix))
		}
		rs := redis.New(rc.Addr, rc.Password, rc.DB, opts...)
		store, locker = rs, redis.NewLocker(rs.Client(), rs.Prefix())
	default:
		store = memory.NewStore()
	}

	var mws []middleware.Middleware
	if len(cfg.Security.PIIPatterns) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.Security.PIIPatterns))
	}
	if cfg.Security.EncryptionKey != "" {
		enc, err := cfg.Security.Encryption()
		if err != nil {
			return nil, nil, err
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(enc))
	}
	return middleware.Chain(store, mws...), locker, nil
}

func chatModel(cfg config.ModelConfig) ports.ChatModel {
	if cfg.Command != "" {
		return process.New(
			process.Command{Command: cfg.Command, Args: cfg.Args, Env: cfg.Env},
			process.WithBaseDir(cfg.Dir),
		)
	}
	return echo.New(echo.WithPrefix(cfg.Prefix), echo.WithDelay(cfg.Delay))
}

func modelName(cfg config.ModelConfig) string {
	if cfg.Command != "" {
		return "process:" + cfg.Command
	}
	return "echo"
}

func knowledge(cfg config.ChatConfig) ports.Retriever {
	if len(cfg.Knowledge) == 0 {
		return nil
	}
	docs := make([]domain.Document, len(cfg.Knowledge))
	for i, text := range cfg.Knowledge {
		docs[i] = domain.Document{ID: strconv.Itoa(i), Content: text}
	}
	return memory.NewRetriever(cfg.TopK, docs...)
}
