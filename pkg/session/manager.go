package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/braid/internal/logging"
	"github.com/aretw0/braid/pkg/domain"
	"github.com/aretw0/braid/pkg/ports"
)

// ErrNotSupported is returned by admin operations the store does not implement.
var ErrNotSupported = ports.ErrNotSupported

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// History is the handle on one session's messages.
type History interface {
	Messages(ctx context.Context) ([]domain.Message, error)
	Append(ctx context.Context, msgs ...domain.Message) error
}

// Provider resolves a session id to its History, creating it on first use.
type Provider func(ctx context.Context, sessionID string) (History, error)

// lockEntry holds the mutex and the number of goroutines waiting on it.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates history access, serializing appends per session.
// Lock entries are reference counted and dropped once nobody holds them.
type Manager struct {
	store ports.HistoryStore

	mu    sync.Mutex            // guards locks
	locks map[string]*lockEntry // active session locks

	locker  ports.DistributedLocker
	lockTTL time.Duration
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking around appends.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the TTL requested from the distributed locker.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithLifecycleHooks registers hooks fired after each committed append.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.hooks = domain.ComposeHooks(m.hooks, hooks)
	}
}

// NewManager creates a Manager over store.
func NewManager(store ports.HistoryStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu, and call release after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and drops the entry at zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// Messages returns the history of a session. Reads take no lock: stores
// guarantee that a read never observes half of an append.
func (m *Manager) Messages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	msgs, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read history of session %q: %w", sessionID, err)
	}
	return msgs, nil
}

// Append commits msgs to a session under its lock.
func (m *Manager) Append(ctx context.Context, sessionID string, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Append(ctx, sessionID, msgs...)
	})
	if err != nil {
		return fmt.Errorf("failed to append to session %q: %w", sessionID, err)
	}

	m.logger.Debug("history appended", "session_id", sessionID, "count", len(msgs))
	if m.hooks.OnHistoryAppend != nil {
		m.hooks.OnHistoryAppend(ctx, &domain.HistoryEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventHistoryAppend},
			SessionID: sessionID,
			Appended:  len(msgs),
		})
	}
	return nil
}

// Delete removes a session, if the store supports it.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	deleter, ok := m.store.(ports.SessionDeleter)
	if !ok {
		return ErrNotSupported
	}
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return deleter.Delete(ctx, sessionID)
	})
}

// List returns the known session ids, if the store supports it.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	lister, ok := m.store.(ports.SessionLister)
	if !ok {
		return nil, ErrNotSupported
	}
	return lister.List(ctx)
}

// Store returns the underlying history store.
func (m *Manager) Store() ports.HistoryStore {
	return m.store
}

// Session returns the History handle of one session.
func (m *Manager) Session(sessionID string) History {
	return &entry{manager: m, id: sessionID}
}

// Provider returns a Provider backed by this Manager.
func (m *Manager) Provider() Provider {
	return func(_ context.Context, sessionID string) (History, error) {
		return m.Session(sessionID), nil
	}
}

// WithLock executes fn while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	e := m.acquire(sessionID)
	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// Released even when ctx was cancelled mid-commit.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

type entry struct {
	manager *Manager
	id      string
}

func (e *entry) Messages(ctx context.Context) ([]domain.Message, error) {
	return e.manager.Messages(ctx, e.id)
}

func (e *entry) Append(ctx context.Context, msgs ...domain.Message) error {
	return e.manager.Append(ctx, e.id, msgs...)
}

// StoreProvider is a Provider over a bare store, with its own Manager.
func StoreProvider(store ports.HistoryStore, opts ...Option) Provider {
	return NewManager(store, opts...).Provider()
}
