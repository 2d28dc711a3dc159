package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/braid/pkg/domain"
	"github.com/aretw0/braid/pkg/ports"
)

// Mask replaces every sensitive match.
const Mask = "***"

type piiMiddleware struct {
	admin
	patterns []*regexp.Regexp
}

// CompilePatterns compiles PII expressions, reporting the first bad one.
func CompilePatterns(patternStrings []string) ([]*regexp.Regexp, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PII pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return patterns, nil
}

// NewPIIMiddleware creates a middleware that masks, before they are stored,
// content substrings matching the patterns and metadata values whose keys
// match them. Reads are returned as stored.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.HistoryStore) ports.HistoryStore {
		return &piiMiddleware{admin: admin{next: next}, patterns: patterns}
	}
}

func (m *piiMiddleware) Append(ctx context.Context, sessionID string, msgs ...domain.Message) error {
	masked := domain.CloneMessages(msgs)
	for i := range masked {
		for _, p := range m.patterns {
			masked[i].Content = p.ReplaceAllString(masked[i].Content, Mask)
		}
		if masked[i].Metadata != nil {
			masked[i].Metadata = deepCopyMap(msgs[i].Metadata)
			maskMap(masked[i].Metadata, m.patterns)
		}
	}
	return m.next.Append(ctx, sessionID, masked...)
}

func (m *piiMiddleware) Get(ctx context.Context, sessionID string) ([]domain.Message, error) {
	return m.next.Get(ctx, sessionID)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k := range m {
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				break
			}
		}
		if subMap, ok := m[k].(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
}
