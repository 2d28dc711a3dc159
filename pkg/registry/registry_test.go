package registry

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/braid/pkg/domain"
	"github.com/aretw0/braid/pkg/runnable"
)

func TestRegistry(t *testing.T) {
	upper := runnable.Lambda("upper", func(_ context.Context, s string) (string, error) {
		return strings.ToUpper(s), nil
	})
	reg := New(upper)
	reg.Register("shout", upper.Pipe(runnable.Lambda("bang", func(_ context.Context, s string) (string, error) {
		return s + "!", nil
	})))

	assert.Equal(t, []string{"shout", "upper"}, reg.Names())

	u, err := reg.Get("shout")
	require.NoError(t, err)
	out, err := u.Invoke(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "HI!", out)

	t.Run("Unknown Unit Is A Config Error", func(t *testing.T) {
		_, err := reg.Get("missing")
		var cfgErr *domain.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "missing", cfgErr.Unit)
	})

	t.Run("Register Overwrites", func(t *testing.T) {
		reg.Register("upper", runnable.Passthrough())
		u, err := reg.Get("upper")
		require.NoError(t, err)
		out, err := u.Invoke(context.Background(), "hi")
		require.NoError(t, err)
		assert.Equal(t, "hi", out)
	})
}
