package runnable

import (
	"fmt"
	"strings"

	"github.com/aretw0/braid/pkg/domain"
)

// Concat merges stream chunks into the value a single Invoke would return.
//
//   - strings are joined
//   - Messages are merged with domain.ConcatMessages
//   - mappings are merged key by key, concatenating values that share a key
//   - slices are appended
//   - other scalars (numbers, booleans) keep the last chunk
//
// Mixing chunk types is an error.
func Concat(chunks []any) (any, error) {
	switch len(chunks) {
	case 0:
		return nil, nil
	case 1:
		return chunks[0], nil
	}

	switch first := chunks[0].(type) {
	case string:
		var sb strings.Builder
		for _, c := range chunks {
			s, ok := c.(string)
			if !ok {
				return nil, mixedChunks(first, c)
			}
			sb.WriteString(s)
		}
		return sb.String(), nil

	case domain.Message:
		msgs := make([]domain.Message, len(chunks))
		for i, c := range chunks {
			m, ok := c.(domain.Message)
			if !ok {
				return nil, mixedChunks(first, c)
			}
			msgs[i] = m
		}
		return domain.ConcatMessages(msgs), nil

	case domain.Values, map[string]any:
		return concatMaps(chunks)

	case []domain.Message:
		var out []domain.Message
		for _, c := range chunks {
			m, ok := c.([]domain.Message)
			if !ok {
				return nil, mixedChunks(first, c)
			}
			out = append(out, m...)
		}
		return out, nil

	case []domain.Document:
		var out []domain.Document
		for _, c := range chunks {
			d, ok := c.([]domain.Document)
			if !ok {
				return nil, mixedChunks(first, c)
			}
			out = append(out, d...)
		}
		return out, nil

	case []any:
		var out []any
		for _, c := range chunks {
			a, ok := c.([]any)
			if !ok {
				return nil, mixedChunks(first, c)
			}
			out = append(out, a...)
		}
		return out, nil

	case nil:
		return concatSkippingNil(chunks)
	}

	// Scalars: last one wins, as long as every chunk has the same type.
	for _, c := range chunks[1:] {
		if fmt.Sprintf("%T", c) != fmt.Sprintf("%T", chunks[0]) {
			return nil, mixedChunks(chunks[0], c)
		}
	}
	return chunks[len(chunks)-1], nil
}

func concatSkippingNil(chunks []any) (any, error) {
	rest := make([]any, 0, len(chunks))
	for _, c := range chunks {
		if c != nil {
			rest = append(rest, c)
		}
	}
	return Concat(rest)
}

func concatMaps(chunks []any) (any, error) {
	grouped := make(map[string][]any)
	var order []string
	for _, c := range chunks {
		m, ok := domain.AsValues(c)
		if !ok {
			return nil, mixedChunks(chunks[0], c)
		}
		for k, v := range m {
			if _, seen := grouped[k]; !seen {
				order = append(order, k)
			}
			grouped[k] = append(grouped[k], v)
		}
	}

	out := make(domain.Values, len(grouped))
	for _, k := range order {
		v, err := Concat(grouped[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func mixedChunks(a, b any) error {
	return fmt.Errorf("cannot concat stream chunks of type %T and %T", a, b)
}
