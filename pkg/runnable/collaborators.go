package runnable

import (
	"context"
	"strings"

	"github.com/aretw0/braid/pkg/domain"
	"github.com/aretw0/braid/pkg/ports"
)

// Keys read from mapping inputs by the collaborator adapters.
const (
	KeyMessages = "messages"
	KeyQuestion = "question"
	KeyQuery    = "query"
	KeyInput    = "input"
	KeyContext  = "context"
	KeyHistory  = "history"
	KeyOutput   = "output"
)

// FromChatModel adapts a model collaborator into a Unit.
// Inputs may be a []domain.Message, a domain.Message, a string (sent as a
// user message) or a mapping holding one of those under "messages".
// The output is the reply domain.Message. Models implementing
// ports.StreamingChatModel stream their reply chunk by chunk.
func FromChatModel(name string, model ports.ChatModel) *Unit {
	step := &modelStep{name: name, model: model}
	if sm, ok := model.(ports.StreamingChatModel); ok {
		return New(name, step, WithStreamStep(&modelStreamStep{modelStep: step, model: sm}))
	}
	return New(name, step)
}

type modelStep struct {
	name  string
	model ports.ChatModel
}

func (m *modelStep) Invoke(ctx context.Context, input any, _ domain.Config) (any, error) {
	msgs, err := m.messages(input)
	if err != nil {
		return nil, err
	}
	return m.model.Generate(ctx, msgs)
}

func (m *modelStep) messages(input any) ([]domain.Message, error) {
	if vals, ok := domain.AsValues(input); ok {
		v, ok := vals[KeyMessages]
		if !ok {
			return nil, &domain.InputError{Unit: m.name, Key: KeyMessages, Reason: "missing key"}
		}
		input = v
	}
	msgs, ok := toMessages(input, domain.RoleUser)
	if !ok {
		return nil, &domain.InputError{Unit: m.name, Reason: typeMismatch[[]domain.Message](input)}
	}
	return msgs, nil
}

type modelStreamStep struct {
	*modelStep
	model ports.StreamingChatModel
}

func (m *modelStreamStep) Stream(ctx context.Context, input any, _ domain.Config) (*Stream, error) {
	msgs, err := m.messages(input)
	if err != nil {
		return nil, err
	}
	return produce(ctx, 1, func(ctx context.Context, w *StreamWriter) error {
		return m.model.GenerateStream(ctx, msgs, func(chunk domain.Message) error {
			if w.Send(chunk, nil) {
				return domain.ErrStreamClosed
			}
			return nil
		})
	}), nil
}

// FromRetriever adapts a retrieval collaborator into a Unit.
// Inputs may be a string or a mapping holding the query under "question",
// "query" or "input". The output is a []domain.Document.
func FromRetriever(name string, r ports.Retriever) *Unit {
	return New(name, StepFunc(func(ctx context.Context, input any, _ domain.Config) (any, error) {
		query, ok := queryOf(input)
		if !ok {
			return nil, &domain.InputError{Unit: name, Reason: "expected a query string or a mapping with question, query or input"}
		}
		docs, err := r.Retrieve(ctx, query)
		if err != nil {
			return nil, err
		}
		return docs, nil
	}))
}

func queryOf(input any) (string, bool) {
	if s, ok := input.(string); ok {
		return s, true
	}
	vals, ok := domain.AsValues(input)
	if !ok {
		return "", false
	}
	for _, k := range []string{KeyQuestion, KeyQuery, KeyInput} {
		if s, ok := vals[k].(string); ok {
			return s, true
		}
	}
	return "", false
}

// Formatter builds a Unit that renders documents into a string.
func Formatter(name string, format func([]domain.Document) string) *Unit {
	return Lambda(name, func(_ context.Context, docs []domain.Document) (string, error) {
		return format(docs), nil
	})
}

// JoinDocuments returns a deterministic formatter that joins document
// contents with sep.
func JoinDocuments(sep string) func([]domain.Document) string {
	return func(docs []domain.Document) string {
		parts := make([]string, len(docs))
		for i, d := range docs {
			parts[i] = d.Content
		}
		return strings.Join(parts, sep)
	}
}

// Messages builds a Unit that assembles a conversation from a mapping: an
// optional system message (with "{context}" replaced by the mapping's
// "context" value when present), the messages under historyKey, and the
// messages under inputKey.
func Messages(system, historyKey, inputKey string) *Unit {
	name := "Messages"
	return New(name, StepFunc(func(_ context.Context, input any, _ domain.Config) (any, error) {
		vals, ok := domain.AsValues(input)
		if !ok {
			return nil, &domain.InputError{Unit: name, Reason: typeMismatch[domain.Values](input)}
		}
		var out []domain.Message
		if system != "" {
			sys := system
			if c, ok := vals[KeyContext].(string); ok {
				sys = strings.ReplaceAll(sys, "{context}", c)
			}
			out = append(out, domain.SystemMessage(sys))
		}
		if historyKey != "" {
			if h, present := vals[historyKey]; present && h != nil {
				msgs, ok := toMessages(h, domain.RoleUser)
				if !ok {
					return nil, &domain.InputError{Unit: name, Key: historyKey, Reason: typeMismatch[[]domain.Message](h)}
				}
				out = append(out, msgs...)
			}
		}
		in, present := vals[inputKey]
		if !present {
			return nil, &domain.InputError{Unit: name, Key: inputKey, Reason: "missing key"}
		}
		msgs, ok := toMessages(in, domain.RoleUser)
		if !ok {
			return nil, &domain.InputError{Unit: name, Key: inputKey, Reason: typeMismatch[[]domain.Message](in)}
		}
		return append(out, msgs...), nil
	}))
}

// ContentOf returns the text of a string or message-like value.
func ContentOf(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case domain.Message:
		return t.Content, true
	case *domain.Message:
		return t.Content, t != nil
	}
	return "", false
}

// toMessages converts message-like values. Strings become messages of role.
func toMessages(v any, role domain.Role) ([]domain.Message, bool) {
	switch t := v.(type) {
	case string:
		return []domain.Message{{Role: role, Content: t}}, true
	case domain.Message:
		return []domain.Message{t}, true
	case *domain.Message:
		if t == nil {
			return nil, false
		}
		return []domain.Message{*t}, true
	case []domain.Message:
		return t, true
	case []any:
		out := make([]domain.Message, 0, len(t))
		for _, e := range t {
			msgs, ok := toMessages(e, role)
			if !ok {
				return nil, false
			}
			out = append(out, msgs...)
		}
		return out, true
	}
	return nil, false
}
