package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/aretw0/braid/pkg/session"
)

// ListSessions prints the ids of every stored session.
func ListSessions(ctx context.Context, m *session.Manager, out io.Writer) error {
	ids, err := m.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "No active sessions found.")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}

// ShowSession prints the history of one session.
func ShowSession(ctx context.Context, m *session.Manager, id string, out io.Writer) error {
	msgs, err := m.Messages(ctx, id)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Fprintf(out, "Session '%s' has no messages.\n", id)
		return nil
	}
	PrintMessages(out, msgs)
	return nil
}

// RemoveSessions deletes each session, stopping at the first failure.
func RemoveSessions(ctx context.Context, m *session.Manager, ids []string, out io.Writer) error {
	for _, id := range ids {
		if err := m.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete session '%s': %w", id, err)
		}
		fmt.Fprintf(out, "Session '%s' deleted.\n", id)
	}
	return nil
}
