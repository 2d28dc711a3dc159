package runnable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aretw0/braid/pkg/domain"
	"github.com/aretw0/braid/pkg/session"
)

// HistoryOption configures WithMessageHistory.
type HistoryOption func(*historyRunner)

// InputMessagesKey names the mapping key holding the new input messages (default "input").
func InputMessagesKey(key string) HistoryOption {
	return func(h *historyRunner) { h.inputKey = key }
}

// HistoryMessagesKey names the mapping key the prior history is injected
// under (default "history"). Setting it also makes non-mapping inputs arrive
// at the base unit as a mapping {history, input} instead of one message list.
func HistoryMessagesKey(key string) HistoryOption {
	return func(h *historyRunner) {
		h.historyKey = key
		h.historyKeySet = true
	}
}

// OutputMessagesKey names the key of a mapping output holding the reply.
// Single-key mappings need no key.
func OutputMessagesKey(key string) HistoryOption {
	return func(h *historyRunner) { h.outputKey = key }
}

// SessionFields lists the configurable keys that identify a session. Their
// values are joined with ":" (default: just session_id).
func SessionFields(fields ...string) HistoryOption {
	return func(h *historyRunner) { h.fields = fields }
}

// HistoryUnitOptions configures the wrapping Unit itself, for instance to run
// it on a specific Executor.
func HistoryUnitOptions(opts ...UnitOption) HistoryOption {
	return func(h *historyRunner) { h.unitOpts = append(h.unitOpts, opts...) }
}

type historyRunner struct {
	name     string
	base     Runnable
	provider session.Provider
	unitOpts []UnitOption

	inputKey      string
	historyKey    string
	historyKeySet bool
	outputKey     string
	fields        []string
}

// WithMessageHistory wraps base in a SessionRunner. On every call it:
//
//  1. resolves the session id from the configuration (ConfigError if absent),
//  2. reads the session history through provider,
//  3. hands base the input augmented with that history,
//  4. after base succeeds, appends the input messages followed by the output
//     messages in one atomic commit.
//
// A failing call appends nothing. Streams commit once the consumer has read
// the last chunk; a stream closed early commits nothing. Batch elements each
// resolve their own session from their element configuration.
func WithMessageHistory(base Runnable, provider session.Provider, opts ...HistoryOption) *Unit {
	h := &historyRunner{
		name:       "History(" + base.Name() + ")",
		base:       base,
		provider:   provider,
		inputKey:   KeyInput,
		historyKey: KeyHistory,
		fields:     []string{domain.ConfigSessionID},
	}
	for _, opt := range opts {
		opt(h)
	}
	return New(h.name, h, h.unitOpts...)
}

// call is the per-invocation state of a history run.
type call struct {
	sessionID string
	history   session.History
	input     any
	messages  []domain.Message
}

func (h *historyRunner) prepare(ctx context.Context, input any, cfg domain.Config) (*call, error) {
	id, err := h.sessionID(cfg)
	if err != nil {
		return nil, err
	}
	msgs, err := h.inputMessages(input)
	if err != nil {
		return nil, err
	}
	hist, err := h.provider(ctx, id)
	if err != nil {
		return nil, &domain.ExecutionError{Unit: h.name, Err: fmt.Errorf("failed to open session %q: %w", id, err)}
	}
	prior, err := hist.Messages(ctx)
	if err != nil {
		return nil, &domain.ExecutionError{Unit: h.name, Err: err}
	}
	return &call{
		sessionID: id,
		history:   hist,
		input:     h.augment(input, prior, msgs),
		messages:  msgs,
	}, nil
}

func (h *historyRunner) Invoke(ctx context.Context, input any, cfg domain.Config) (any, error) {
	c, err := h.prepare(ctx, input, cfg)
	if err != nil {
		return nil, err
	}
	out, err := h.base.Invoke(ctx, c.input, WithConfig(cfg))
	if err != nil {
		return nil, err
	}
	if err := h.commit(ctx, c, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *historyRunner) Stream(ctx context.Context, input any, cfg domain.Config) (*Stream, error) {
	c, err := h.prepare(ctx, input, cfg)
	if err != nil {
		return nil, err
	}
	inner, err := h.base.Stream(ctx, c.input, WithConfig(cfg))
	if err != nil {
		return nil, err
	}

	return produce(ctx, 1, func(ctx context.Context, w *StreamWriter) error {
		defer inner.Close()
		var chunks []any
		for {
			chunk, err := inner.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			chunks = append(chunks, chunk)
			if w.Send(chunk, nil) {
				// Consumer left before the end: the turn is incomplete.
				return nil
			}
		}
		out, err := Concat(chunks)
		if err != nil {
			return &domain.ExecutionError{Unit: h.name, Err: err}
		}
		return h.commit(ctx, c, out)
	}), nil
}

// commit appends the turn. It runs detached from cancellation: once base
// succeeded, the write happens whole or not at all.
func (h *historyRunner) commit(ctx context.Context, c *call, out any) error {
	reply, err := h.outputMessages(out)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	turn := make([]domain.Message, 0, len(c.messages)+len(reply))
	for _, m := range append(append([]domain.Message(nil), c.messages...), reply...) {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		turn = append(turn, m)
	}
	if err := c.history.Append(context.WithoutCancel(ctx), turn...); err != nil {
		return &domain.ExecutionError{Unit: h.name, Err: err}
	}
	return nil
}

func (h *historyRunner) sessionID(cfg domain.Config) (string, error) {
	parts := make([]string, 0, len(h.fields))
	for _, f := range h.fields {
		v, ok := cfg.String(f)
		if !ok {
			return "", &domain.ConfigError{Unit: h.name, Field: f, Reason: "required to identify the session"}
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, ":"), nil
}

func (h *historyRunner) inputMessages(input any) ([]domain.Message, error) {
	v := input
	if vals, ok := domain.AsValues(input); ok {
		in, present := vals[h.inputKey]
		if !present {
			return nil, &domain.InputError{Unit: h.name, Key: h.inputKey, Reason: "missing input messages"}
		}
		v = in
	}
	msgs, ok := toMessages(v, domain.RoleUser)
	if !ok {
		return nil, &domain.InputError{Unit: h.name, Key: h.inputKey, Reason: typeMismatch[[]domain.Message](v)}
	}
	return msgs, nil
}

func (h *historyRunner) augment(input any, prior, msgs []domain.Message) any {
	if vals, ok := domain.AsValues(input); ok {
		out := vals.Clone()
		out[h.historyKey] = prior
		return out
	}
	if h.historyKeySet {
		return domain.Values{h.historyKey: prior, h.inputKey: input}
	}
	all := make([]domain.Message, 0, len(prior)+len(msgs))
	return append(append(all, prior...), msgs...)
}

func (h *historyRunner) outputMessages(out any) ([]domain.Message, error) {
	v := out
	if vals, ok := domain.AsValues(out); ok {
		switch {
		case h.outputKey != "":
			o, present := vals[h.outputKey]
			if !present {
				return nil, &domain.ExecutionError{Unit: h.name, Err: fmt.Errorf("output has no key %q", h.outputKey)}
			}
			v = o
		case len(vals) == 1:
			for _, o := range vals {
				v = o
			}
		default:
			return nil, &domain.ExecutionError{Unit: h.name, Err: fmt.Errorf("cannot pick reply from output with %d keys; set OutputMessagesKey", len(vals))}
		}
	}
	msgs, ok := toMessages(v, domain.RoleAssistant)
	if !ok {
		return nil, &domain.ExecutionError{Unit: h.name, Err: fmt.Errorf("output %T is not message-like", v)}
	}
	for i := range msgs {
		if msgs[i].Role == "" {
			msgs[i].Role = domain.RoleAssistant
		}
	}
	return msgs, nil
}
