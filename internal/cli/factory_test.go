package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"runtime"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/braid/internal/config"
	"github.com/aretw0/braid/pkg/domain"
	"github.com/aretw0/braid/pkg/ports"
)

func TestBuild_Backends(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cases := map[string]func(*config.Config){
		"memory": func(c *config.Config) {},
		"file": func(c *config.Config) {
			c.Store.Backend = config.BackendFile
			c.Store.Path = t.TempDir()
		},
		"redis": func(c *config.Config) {
			c.Store.Backend = config.BackendRedis
			c.Store.Redis.Addr = mr.Addr()
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(&cfg)
			stack, err := Build(cfg)
			require.NoError(t, err)
			defer stack.Close()

			ctx := context.Background()
			_, err = stack.Chat.Invoke(ctx, "hello", stack.Runtime.CallOptions("s1")...)
			require.NoError(t, err)

			msgs, err := stack.Runtime.Sessions.Messages(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, msgs, 2)
			assert.Equal(t, "echo: hello", msgs[1].Content)

			ids, err := stack.Runtime.Sessions.List(ctx)
			require.NoError(t, err)
			assert.Contains(t, ids, "s1")
		})
	}
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = "tape"
	_, err := Build(cfg)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestBuild_SecurityMiddleware(t *testing.T) {
	cfg := config.Default()
	cfg.Security.EncryptionKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	cfg.Security.PIIPatterns = []string{`\d{4}-\d{4}`}
	stack, err := Build(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = stack.Chat.Invoke(ctx, "card 1234-5678", stack.Runtime.CallOptions("s")...)
	require.NoError(t, err)

	msgs, err := stack.Runtime.Sessions.Messages(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "card ***", msgs[0].Content, "PII masked before encryption")

	// Admin capabilities pass through the middleware chain.
	raw := stack.Runtime.Store()
	inner, ok := raw.(ports.SessionLister)
	require.True(t, ok)
	ids, err := inner.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s"}, ids)
}

func TestBuild_Knowledge(t *testing.T) {
	cfg := config.Default()
	cfg.Chat.System = "Context: {context}"
	cfg.Chat.Knowledge = []string{"braid composes units", "unrelated fact"}
	stack, err := Build(cfg)
	require.NoError(t, err)

	out, err := stack.Chat.Invoke(context.Background(), "what does braid compose?", stack.Runtime.CallOptions("k")...)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.(domain.Message).Content, "echo: what does braid"))
}

func TestBuild_InputLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Chat.MaxInputSize = 8
	stack, err := Build(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = stack.Chat.Invoke(ctx, "far too long for the limit", stack.Runtime.CallOptions("lim")...)
	assert.Equal(t, domain.KindInput, domain.KindOf(err))

	msgs, err := stack.Runtime.Sessions.Messages(ctx, "lim")
	require.NoError(t, err)
	assert.Empty(t, msgs, "rejected input is never recorded")

	_, err = stack.Chat.Invoke(ctx, "ok\x1b", stack.Runtime.CallOptions("lim")...)
	require.NoError(t, err)
	msgs, err = stack.Runtime.Sessions.Messages(ctx, "lim")
	require.NoError(t, err)
	assert.Equal(t, "ok", msgs[0].Content)
}

func TestBuild_ProcessModel(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	cfg := config.Default()
	cfg.Chat.Model.Command = "sh"
	cfg.Chat.Model.Args = []string{"-c", `echo "proc: $BRAID_INPUT"`}
	stack, err := Build(cfg)
	require.NoError(t, err)

	out, err := stack.Chat.Invoke(context.Background(), "ping", stack.Runtime.CallOptions("p")...)
	require.NoError(t, err)
	assert.Equal(t, "proc: ping", out.(domain.Message).Content)
}

func TestBuild_Units(t *testing.T) {
	stack, err := Build(config.Default())
	require.NoError(t, err)
	assert.Equal(t, []string{"Sanitize", "chat", "complete"}, stack.Units.Names())

	complete, err := stack.Units.Get("complete")
	require.NoError(t, err)
	out, err := complete.Invoke(context.Background(), domain.Values{"input": "stateless"})
	require.NoError(t, err)
	assert.Equal(t, "echo: stateless", out.(domain.Message).Content)
}
