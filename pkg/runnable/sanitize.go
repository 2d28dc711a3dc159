package runnable

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aretw0/braid/pkg/domain"
)

// DefaultMaxInputSize is 4KB (conservative default)
const DefaultMaxInputSize = 4096

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// SanitizeText enforces limit (bytes, <= 0 means DefaultMaxInputSize),
// rejects invalid UTF-8 and strips control characters other than newline,
// tab and carriage return. Oversized input is rejected, never truncated.
func SanitizeText(input string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultMaxInputSize
	}
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	// Fast path: if no control chars, return as is.
	if strings.IndexFunc(input, isUnsafeControl) < 0 {
		return input, nil
	}
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !isUnsafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func isUnsafeControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
}

// Sanitize returns a unit that applies SanitizeText to its input: a string,
// the content of a Message, user messages in a []Message, or the top-level
// string values of a mapping. Other inputs pass through unchanged. Failures
// are InputErrors wrapping ErrInputTooLarge or ErrInvalidUTF8.
func Sanitize(limit int) *Unit {
	const name = "Sanitize"
	clean := func(key, s string) (string, error) {
		out, err := SanitizeText(s, limit)
		if err != nil {
			return "", &domain.InputError{Unit: name, Key: key, Reason: err.Error(), Err: err}
		}
		return out, nil
	}
	return Func(name, func(_ context.Context, input any) (any, error) {
		switch in := input.(type) {
		case string:
			return clean("", in)
		case domain.Message:
			content, err := clean("content", in.Content)
			if err != nil {
				return nil, err
			}
			in.Content = content
			return in, nil
		case []domain.Message:
			out := make([]domain.Message, len(in))
			for i, msg := range in {
				if msg.Role == domain.RoleUser {
					content, err := clean(fmt.Sprintf("messages[%d]", i), msg.Content)
					if err != nil {
						return nil, err
					}
					msg.Content = content
				}
				out[i] = msg
			}
			return out, nil
		}
		vals, ok := domain.AsValues(input)
		if !ok {
			return input, nil
		}
		out := vals.Clone()
		for k, v := range vals {
			if s, ok := v.(string); ok {
				cleaned, err := clean(k, s)
				if err != nil {
					return nil, err
				}
				out[k] = cleaned
			}
		}
		return out, nil
	})
}
