// Package middleware decorates a ports.HistoryStore with storage-side
// transformations such as encryption at rest and PII masking.
package middleware

import (
	"context"
	"io"

	"github.com/aretw0/braid/pkg/ports"
)

// Middleware allows wrapping a HistoryStore to add behavior.
type Middleware func(ports.HistoryStore) ports.HistoryStore

// Chain applies mws to store so that the first middleware is the outermost.
func Chain(store ports.HistoryStore, mws ...Middleware) ports.HistoryStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}

// admin forwards the optional store capabilities to the wrapped store.
type admin struct {
	next ports.HistoryStore
}

func (a admin) List(ctx context.Context) ([]string, error) {
	lister, ok := a.next.(ports.SessionLister)
	if !ok {
		return nil, ports.ErrNotSupported
	}
	return lister.List(ctx)
}

func (a admin) Delete(ctx context.Context, sessionID string) error {
	deleter, ok := a.next.(ports.SessionDeleter)
	if !ok {
		return ports.ErrNotSupported
	}
	return deleter.Delete(ctx, sessionID)
}

func (a admin) Close() error {
	if closer, ok := a.next.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
