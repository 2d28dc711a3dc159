// Package echo provides a deterministic chat model for demos and tests.
package echo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/braid/pkg/domain"
)

// Model implements ports.StreamingChatModel by echoing the last user message.
type Model struct {
	prefix string
	delay  time.Duration
	fail   error
}

// Option configures the Model.
type Option func(*Model)

// WithPrefix sets the text placed before the echoed content (default "echo: ").
func WithPrefix(p string) Option {
	return func(m *Model) { m.prefix = p }
}

// WithDelay makes each Generate (and each streamed word) wait d, honouring cancellation.
func WithDelay(d time.Duration) Option {
	return func(m *Model) { m.delay = d }
}

// WithError makes every call fail with err.
func WithError(err error) Option {
	return func(m *Model) { m.fail = err }
}

// New creates an echo model.
func New(opts ...Option) *Model {
	m := &Model{prefix: "echo: "}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Generate replies with the prefix, the content of the last user message and,
// when there is prior conversation, how many messages preceded it.
func (m *Model) Generate(ctx context.Context, msgs []domain.Message) (domain.Message, error) {
	if err := m.wait(ctx); err != nil {
		return domain.Message{}, err
	}
	reply, err := m.reply(msgs)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.AssistantMessage(reply), nil
}

// GenerateStream yields the same reply as Generate, one word per chunk.
func (m *Model) GenerateStream(ctx context.Context, msgs []domain.Message, yield func(domain.Message) error) error {
	reply, err := m.reply(msgs)
	if err != nil {
		return err
	}
	for i, word := range strings.SplitAfter(reply, " ") {
		if err := m.wait(ctx); err != nil {
			return err
		}
		chunk := domain.Message{Content: word}
		if i == 0 {
			chunk.Role = domain.RoleAssistant
		}
		if err := yield(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) reply(msgs []domain.Message) (string, error) {
	if m.fail != nil {
		return "", m.fail
	}
	last := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleUser {
			last = i
			break
		}
	}
	if last < 0 {
		return "", errors.New("echo: no user message to answer")
	}

	prior := 0
	for _, msg := range msgs[:last] {
		if msg.Role != domain.RoleSystem {
			prior++
		}
	}
	reply := m.prefix + msgs[last].Content
	if prior > 0 {
		reply += fmt.Sprintf(" (after %d messages)", prior)
	}
	return reply, nil
}

func (m *Model) wait(ctx context.Context) error {
	if m.delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.delay):
		return nil
	}
}
