package ports

import (
	"context"
	"errors"

	"github.com/aretw0/braid/pkg/domain"
)

// ErrNotSupported is returned by admin operations a store does not implement.
var ErrNotSupported = errors.New("operation not supported by history store")

// HistoryStore persists the ordered message history of each session.
type HistoryStore interface {
	// Get returns the messages of a session, creating an empty entry when the
	// session is unknown. The returned slice is owned by the caller.
	Get(ctx context.Context, sessionID string) ([]domain.Message, error)

	// Append commits msgs to the end of the session history as one unit:
	// readers observe either none or all of them, never a prefix.
	Append(ctx context.Context, sessionID string, msgs ...domain.Message) error
}

// SessionLister is implemented by stores that can enumerate their sessions.
type SessionLister interface {
	List(ctx context.Context) ([]string, error)
}

// SessionDeleter is implemented by stores that can drop a session.
// Deleting an unknown session is not an error.
type SessionDeleter interface {
	Delete(ctx context.Context, sessionID string) error
}
