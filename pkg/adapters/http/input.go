package http

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/aretw0/braid/pkg/domain"
)

// inputOf restores message types lost in JSON: an object with a role and
// content becomes a domain.Message and an array of them a []domain.Message.
// Other values pass through with mappings as domain.Values.
func inputOf(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if msg, ok := messageOf(t); ok {
			return msg
		}
		out := make(domain.Values, len(t))
		for k, val := range t {
			out[k] = inputOf(val)
		}
		return out
	case []any:
		if len(t) == 0 {
			return t
		}
		msgs := make([]domain.Message, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return t
			}
			msg, ok := messageOf(m)
			if !ok {
				return t
			}
			msgs = append(msgs, msg)
		}
		return msgs
	}
	return v
}

func messageOf(m map[string]any) (domain.Message, bool) {
	role, ok := m["role"].(string)
	if !ok || role == "" {
		return domain.Message{}, false
	}
	if _, ok := m["content"].(string); !ok {
		return domain.Message{}, false
	}
	data, err := json.Marshal(m)
	if err != nil {
		return domain.Message{}, false
	}
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.Message{}, false
	}
	return msg, true
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
