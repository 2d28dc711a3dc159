package runnable_test

import (
	"testing"

	"github.com/aretw0/braid/pkg/domain"
	"github.com/aretw0/braid/pkg/runnable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcat(t *testing.T) {
	tests := []struct {
		name   string
		chunks []any
		want   any
	}{
		{"empty", nil, nil},
		{"single", []any{42}, 42},
		{"strings", []any{"ab", "c", ""}, "abc"},
		{"messages", []any{domain.AssistantMessage("he"), domain.Message{Content: "y"}}, domain.Message{Role: domain.RoleAssistant, Content: "hey"}},
		{"maps", []any{domain.Values{"a": "x"}, domain.Values{"a": "y", "b": 1}}, domain.Values{"a": "xy", "b": 1}},
		{"message slices", []any{[]domain.Message{domain.UserMessage("1")}, []domain.Message{domain.UserMessage("2")}},
			[]domain.Message{domain.UserMessage("1"), domain.UserMessage("2")}},
		{"scalars keep last", []any{1, 2, 3}, 3},
		{"nil chunks skipped", []any{nil, "a", "b"}, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runnable.Concat(tt.chunks)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConcat_MixedTypes(t *testing.T) {
	_, err := runnable.Concat([]any{"a", 1})
	assert.Error(t, err)

	_, err = runnable.Concat([]any{1, 2.5})
	assert.Error(t, err)
}
