package domain_test

import (
	"testing"

	"github.com/aretw0/braid/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestConcatMessages(t *testing.T) {
	chunks := []domain.Message{
		{Role: domain.RoleAssistant, Content: "Hel"},
		{Content: "lo", Metadata: map[string]any{"tokens": 1}},
		{Content: "!", Metadata: map[string]any{"tokens": 2}},
	}

	got := domain.ConcatMessages(chunks)
	assert.Equal(t, domain.RoleAssistant, got.Role)
	assert.Equal(t, "Hello!", got.Content)
	assert.Equal(t, 2, got.Metadata["tokens"])
}

func TestCloneMessages_DetachesMetadata(t *testing.T) {
	orig := []domain.Message{{Role: domain.RoleUser, Content: "hi", Metadata: map[string]any{"k": "v"}}}
	cp := domain.CloneMessages(orig)
	cp[0].Metadata["k"] = "changed"
	cp[0].Content = "bye"

	assert.Equal(t, "v", orig[0].Metadata["k"])
	assert.Equal(t, "hi", orig[0].Content)
	assert.Nil(t, domain.CloneMessages(nil))
}

func TestValues_MergeOverwrites(t *testing.T) {
	v := domain.Values{"a": 1, "b": 2}
	out := v.Merge(domain.Values{"b": 3, "c": 4})

	assert.Equal(t, domain.Values{"a": 1, "b": 3, "c": 4}, out)
	assert.Equal(t, 2, v["b"])
}

func TestPlain(t *testing.T) {
	in := domain.Values{"nested": domain.Values{"x": 1}, "list": []any{domain.Values{"y": 2}}}
	out := domain.Plain(in)

	m, ok := out.(map[string]any)
	assert.True(t, ok)
	_, ok = m["nested"].(map[string]any)
	assert.True(t, ok)
	_, ok = m["list"].([]any)[0].(map[string]any)
	assert.True(t, ok)
}
