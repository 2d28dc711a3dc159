package runnable

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/braid/pkg/domain"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		limit   int
		want    string
		wantErr error
	}{
		{name: "Clean Input", input: "hello\tworld\n", want: "hello\tworld\n"},
		{name: "Strips ANSI And NUL", input: "\x1b[31mred\x1b[0m\x00!", want: "[31mred[0m!"},
		{name: "Too Large", input: strings.Repeat("a", 11), limit: 10, wantErr: ErrInputTooLarge},
		{name: "Default Limit", input: strings.Repeat("a", DefaultMaxInputSize+1), wantErr: ErrInputTooLarge},
		{name: "Invalid UTF8", input: "bad\xff", wantErr: ErrInvalidUTF8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeText(tt.input, tt.limit)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitize_Unit(t *testing.T) {
	ctx := context.Background()
	unit := Sanitize(16)

	out, err := unit.Invoke(ctx, domain.Values{"input": "hi\x07", "n": 3})
	require.NoError(t, err)
	assert.Equal(t, domain.Values{"input": "hi", "n": 3}, out)

	out, err = unit.Invoke(ctx, []domain.Message{
		domain.SystemMessage("\x07system text is trusted"),
		domain.UserMessage("yo\x07"),
	})
	require.NoError(t, err)
	msgs := out.([]domain.Message)
	assert.Equal(t, "\x07system text is trusted", msgs[0].Content)
	assert.Equal(t, "yo", msgs[1].Content)

	_, err = unit.Invoke(ctx, domain.Values{"input": strings.Repeat("x", 17)})
	var inErr *domain.InputError
	require.ErrorAs(t, err, &inErr)
	assert.Equal(t, "input", inErr.Key)
	assert.ErrorIs(t, err, ErrInputTooLarge)

	out, err = unit.Invoke(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 42, out)
}
