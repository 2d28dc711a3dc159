package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/braid/internal/presentation/tui"
	"github.com/aretw0/braid/pkg/domain"
	"github.com/aretw0/braid/pkg/runnable"
)

// ChatOptions controls the interactive chat loop.
type ChatOptions struct {
	SessionID string
	// Render, when set, formats each full reply as markdown instead of
	// printing chunks as they arrive.
	Render tui.Renderer
	Quiet  bool
}

const (
	cmdQuit    = "/quit"
	cmdExit    = "/exit"
	cmdHistory = "/history"
)

// RunChat reads one user turn per line from in and writes replies to out
// until EOF, /quit or ctx cancellation.
func RunChat(ctx context.Context, stack *Stack, opts ChatOptions, in io.Reader, out io.Writer) error {
	if !opts.Quiet {
		printSystemMessage(out, "Session '%s' active. Type %s to leave, %s to review.", opts.SessionID, cmdQuit, cmdHistory)
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		if !opts.Quiet {
			fmt.Fprint(out, "> ")
		}
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case cmdQuit, cmdExit:
			return nil
		case cmdHistory:
			if err := printHistory(ctx, stack, opts.SessionID, out); err != nil {
				return err
			}
			continue
		}

		if err := chatTurn(ctx, stack, opts, line, out); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			// Collaborator failures end the turn, not the session.
			printSystemMessage(out, "error (%s): %v", domain.KindOf(err), err)
			stack.Logger.Warn("chat turn failed", "session_id", opts.SessionID, "err", err)
		}
	}
}

func chatTurn(ctx context.Context, stack *Stack, opts ChatOptions, line string, out io.Writer) error {
	s, err := stack.Chat.Stream(ctx, line, stack.Runtime.CallOptions(opts.SessionID)...)
	if err != nil {
		return err
	}
	defer s.Close()

	if opts.Render != nil {
		reply, err := runnable.Collect(s)
		if err != nil {
			return err
		}
		text, _ := runnable.ContentOf(reply)
		rendered, err := opts.Render(text)
		if err != nil {
			rendered = text + "\n"
		}
		fmt.Fprint(out, rendered)
		return nil
	}

	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			fmt.Fprintln(out)
			return err
		}
		if text, ok := runnable.ContentOf(chunk); ok {
			fmt.Fprint(out, text)
		}
	}
}

func printHistory(ctx context.Context, stack *Stack, sessionID string, out io.Writer) error {
	msgs, err := stack.Runtime.Sessions.Messages(ctx, sessionID)
	if err != nil {
		return err
	}
	PrintMessages(out, msgs)
	return nil
}

// PrintMessages writes one "role: content" line per message.
func PrintMessages(out io.Writer, msgs []domain.Message) {
	for _, m := range msgs {
		fmt.Fprintf(out, "%-9s %s\n", string(m.Role)+":", m.Content)
	}
}
