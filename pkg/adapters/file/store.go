// Package file provides a HistoryStore that keeps one JSON document per
// session on the local filesystem.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/braid/pkg/domain"
)

const (
	ext    = ".json"
	tmpExt = ".tmp"
)

// document is the on-disk layout of a session.
type document struct {
	SessionID string           `json:"session_id"`
	UpdatedAt time.Time        `json:"updated_at"`
	Messages  []domain.Message `json:"messages"`
}

// Store implements ports.HistoryStore using the local filesystem.
// Writes are serialized per store and replace the session file atomically.
type Store struct {
	BasePath string

	mu sync.Mutex
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".braid/sessions".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".braid", "sessions")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.BasePath, url.PathEscape(sessionID)+ext)
}

// Get returns the stored messages, creating an empty document on first use.
func (s *Store) Get(ctx context.Context, sessionID string) ([]domain.Message, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sessionID cannot be empty")
	}

	doc, err := s.read(sessionID)
	if err == nil {
		return doc.Messages, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another writer may have created it meanwhile.
	if doc, err := s.read(sessionID); err == nil {
		return doc.Messages, nil
	}
	if err := s.write(&document{SessionID: sessionID, Messages: []domain.Message{}}); err != nil {
		return nil, err
	}
	return []domain.Message{}, nil
}

// Append adds msgs to the session in a single file replacement.
func (s *Store) Append(ctx context.Context, sessionID string, msgs ...domain.Message) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		doc, err = &document{SessionID: sessionID}, nil
	}
	if err != nil {
		return err
	}
	doc.Messages = append(doc.Messages, domain.CloneMessages(msgs)...)
	return s.write(doc)
}

// Delete removes the session file. Unknown sessions are not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// List returns all stored session IDs in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ext {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, ext))
		if err != nil {
			continue
		}
		sessions = append(sessions, id)
	}
	sort.Strings(sessions)
	return sessions, nil
}

func (s *Store) read(sessionID string) (*document, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %q: %w", sessionID, err)
	}
	if doc.Messages == nil {
		doc.Messages = []domain.Message{}
	}
	return &doc, nil
}

// write persists doc via temp file, fsync and rename.
func (s *Store) write(doc *document) error {
	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure session directory: %w", err)
	}

	doc.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// Same directory so the rename stays on one filesystem. The suffix keeps
	// temp files out of List whatever the session ids look like.
	tmpFile, err := os.CreateTemp(s.BasePath, ".*"+tmpExt)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	dest := s.path(doc.SessionID)
	if err := os.Rename(tmpPath, dest); err != nil {
		// Windows refuses to rename over an existing file.
		if _, statErr := os.Stat(dest); statErr == nil {
			if rmErr := os.Remove(dest); rmErr != nil {
				return fmt.Errorf("failed to replace session file: %w", rmErr)
			}
			if err := os.Rename(tmpPath, dest); err == nil {
				return nil
			}
		}
		return fmt.Errorf("failed to rename temp file to session file: %w", err)
	}
	return nil
}
