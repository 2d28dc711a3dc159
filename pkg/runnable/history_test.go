package runnable_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/braid/pkg/adapters/echo"
	"github.com/aretw0/braid/pkg/adapters/memory"
	"github.com/aretw0/braid/pkg/domain"
	"github.com/aretw0/braid/pkg/runnable"
	"github.com/aretw0/braid/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatWithHistory(t *testing.T, opts ...echo.Option) (*runnable.Unit, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	model := runnable.FromChatModel("echo", echo.New(opts...))
	return runnable.WithMessageHistory(model, session.StoreProvider(store)), store
}

func roles(msgs []domain.Message) []domain.Role {
	out := make([]domain.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func TestHistory_FirstCall(t *testing.T) {
	chat, store := chatWithHistory(t)
	ctx := context.Background()

	out, err := chat.Invoke(ctx, "hello", runnable.WithSessionID("s1"))
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", out.(domain.Message).Content)

	msgs, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []domain.Role{domain.RoleUser, domain.RoleAssistant}, roles(msgs))
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "echo: hello", msgs[1].Content)
	assert.False(t, msgs[0].CreatedAt.IsZero())
}

func TestHistory_SecondCallSeesFirst(t *testing.T) {
	chat, store := chatWithHistory(t)
	ctx := context.Background()

	_, err := chat.Invoke(ctx, "one", runnable.WithSessionID("s1"))
	require.NoError(t, err)
	out, err := chat.Invoke(ctx, "two", runnable.WithSessionID("s1"))
	require.NoError(t, err)
	assert.Equal(t, "echo: two (after 2 messages)", out.(domain.Message).Content)

	msgs, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, []domain.Role{domain.RoleUser, domain.RoleAssistant, domain.RoleUser, domain.RoleAssistant}, roles(msgs))
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "two", msgs[2].Content)
}

func TestHistory_SessionsAreIsolated(t *testing.T) {
	chat, store := chatWithHistory(t)
	ctx := context.Background()

	_, err := chat.Invoke(ctx, "for a", runnable.WithSessionID("a"))
	require.NoError(t, err)
	out, err := chat.Invoke(ctx, "for b", runnable.WithSessionID("b"))
	require.NoError(t, err)
	assert.Equal(t, "echo: for b", out.(domain.Message).Content)

	a, _ := store.Get(ctx, "a")
	b, _ := store.Get(ctx, "b")
	assert.Len(t, a, 2)
	assert.Len(t, b, 2)
}

func TestHistory_FailureAppendsNothing(t *testing.T) {
	boom := errors.New("model down")
	chat, store := chatWithHistory(t, echo.WithError(boom))
	ctx := context.Background()

	_, err := chat.Invoke(ctx, "hello", runnable.WithSessionID("s1"))
	var exec *domain.ExecutionError
	require.ErrorAs(t, err, &exec)
	assert.ErrorIs(t, err, boom)

	msgs, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestHistory_MissingSessionID(t *testing.T) {
	chat, _ := chatWithHistory(t)

	_, err := chat.Invoke(context.Background(), "hello")

	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, domain.ConfigSessionID, cfgErr.Field)
}

func TestHistory_UnsupportedInput(t *testing.T) {
	chat, _ := chatWithHistory(t)

	_, err := chat.Invoke(context.Background(), 12, runnable.WithSessionID("s"))
	var inErr *domain.InputError
	assert.ErrorAs(t, err, &inErr)
}

func TestHistory_StreamCommitsAfterLastChunk(t *testing.T) {
	chat, store := chatWithHistory(t)
	ctx := context.Background()

	s, err := chat.Stream(ctx, "stream me please", runnable.WithSessionID("s1"))
	require.NoError(t, err)

	first, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "echo: ", first.(domain.Message).Content)

	msgs, _ := store.Get(ctx, "s1")
	assert.Empty(t, msgs, "nothing is committed mid-stream")

	rest, err := runnable.Collect(s)
	require.NoError(t, err)
	assert.Equal(t, "stream me please", rest.(domain.Message).Content)

	msgs, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "echo: stream me please", msgs[1].Content)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
}

func TestHistory_StreamEqualsInvoke(t *testing.T) {
	ctx := context.Background()
	streamed, _ := chatWithHistory(t)
	invoked, _ := chatWithHistory(t)

	s, err := streamed.Stream(ctx, "same answer", runnable.WithSessionID("x"))
	require.NoError(t, err)
	got, err := runnable.Collect(s)
	require.NoError(t, err)

	want, err := invoked.Invoke(ctx, "same answer", runnable.WithSessionID("x"))
	require.NoError(t, err)
	assert.Equal(t, want.(domain.Message).Content, got.(domain.Message).Content)
}

func TestHistory_StreamClosedEarlyCommitsNothing(t *testing.T) {
	chat, store := chatWithHistory(t)
	ctx := context.Background()

	s, err := chat.Stream(ctx, "a b c d e f", runnable.WithSessionID("s1"))
	require.NoError(t, err)
	_, err = s.Recv()
	require.NoError(t, err)
	s.Close()

	time.Sleep(20 * time.Millisecond)
	msgs, _ := store.Get(ctx, "s1")
	assert.Empty(t, msgs)
}

func TestHistory_BatchUsesElementSessions(t *testing.T) {
	chat, store := chatWithHistory(t)
	ctx := context.Background()

	_, err := chat.Batch(ctx, []any{"to a", "to b"}, runnable.WithBatchConfigs(
		domain.Config{Configurable: map[string]any{"session_id": "a"}},
		domain.Config{Configurable: map[string]any{"session_id": "b"}},
	))
	require.NoError(t, err)

	a, _ := store.Get(ctx, "a")
	b, _ := store.Get(ctx, "b")
	require.Len(t, a, 2)
	require.Len(t, b, 2)
	assert.Equal(t, "to a", a[0].Content)
	assert.Equal(t, "to b", b[0].Content)
}

func TestHistory_DistinctSessionsDoNotBlock(t *testing.T) {
	delay := 60 * time.Millisecond
	chat, _ := chatWithHistory(t, echo.WithDelay(delay))
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for _, id := range []string{"s1", "s2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := chat.Invoke(ctx, "hi", runnable.WithSessionID(id))
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	assert.Less(t, time.Since(start), 2*delay, "two sessions should take about one delay")
}

func TestHistory_ConcurrentSameSessionStaysWhole(t *testing.T) {
	chat, store := chatWithHistory(t, echo.WithDelay(time.Millisecond))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := chat.Invoke(ctx, "ping", runnable.WithSessionID("shared"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs, err := store.Get(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, msgs, 12)
	for i := 0; i < len(msgs); i += 2 {
		assert.Equal(t, domain.RoleUser, msgs[i].Role)
		assert.Equal(t, domain.RoleAssistant, msgs[i+1].Role)
	}
}

func TestHistory_MappingInput(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	prompt := runnable.Messages("You answer questions.", "history", "question")
	chain := prompt.Pipe(runnable.FromChatModel("echo", echo.New()))
	chat := runnable.WithMessageHistory(chain, session.StoreProvider(store), runnable.InputMessagesKey("question"))

	_, err := chat.Invoke(ctx, domain.Values{"question": "first?"}, runnable.WithSessionID("m"))
	require.NoError(t, err)
	out, err := chat.Invoke(ctx, domain.Values{"question": "second?"}, runnable.WithSessionID("m"))
	require.NoError(t, err)
	assert.Equal(t, "echo: second? (after 2 messages)", out.(domain.Message).Content)

	msgs, _ := store.Get(ctx, "m")
	assert.Len(t, msgs, 4)
}

func TestHistory_MappingOutputKey(t *testing.T) {
	store := memory.NewStore()
	answer := runnable.Func("answer", func(context.Context, any) (any, error) {
		return domain.Values{"answer": "42", "sources": []string{"doc"}}, nil
	})

	chat := runnable.WithMessageHistory(answer, session.StoreProvider(store), runnable.OutputMessagesKey("answer"))
	_, err := chat.Invoke(context.Background(), "q", runnable.WithSessionID("o"))
	require.NoError(t, err)

	msgs, _ := store.Get(context.Background(), "o")
	require.Len(t, msgs, 2)
	assert.Equal(t, "42", msgs[1].Content)

	ambiguous := runnable.WithMessageHistory(answer, session.StoreProvider(store))
	_, err = ambiguous.Invoke(context.Background(), "q", runnable.WithSessionID("o2"))
	var exec *domain.ExecutionError
	assert.ErrorAs(t, err, &exec)
}

func TestHistory_SessionFields(t *testing.T) {
	store := memory.NewStore()
	model := runnable.FromChatModel("echo", echo.New())
	chat := runnable.WithMessageHistory(model, session.StoreProvider(store), runnable.SessionFields("user_id", "conversation_id"))
	ctx := context.Background()

	_, err := chat.Invoke(ctx, "hi", runnable.WithConfigurable("user_id", "u1"))
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "conversation_id", cfgErr.Field)

	_, err = chat.Invoke(ctx, "hi",
		runnable.WithConfigurable("user_id", "u1"),
		runnable.WithConfigurable("conversation_id", "c9"),
	)
	require.NoError(t, err)
	msgs, _ := store.Get(ctx, "u1:c9")
	assert.Len(t, msgs, 2)
}

func TestHistory_ExplicitHistoryKeyWrapsScalarInput(t *testing.T) {
	var seen any
	capture := runnable.Func("capture", func(_ context.Context, in any) (any, error) {
		seen = in
		return "ok", nil
	})
	chat := runnable.WithMessageHistory(capture, session.StoreProvider(memory.NewStore()), runnable.HistoryMessagesKey("chat_history"))

	_, err := chat.Invoke(context.Background(), "hi", runnable.WithSessionID("k"))
	require.NoError(t, err)

	vals, ok := seen.(domain.Values)
	require.True(t, ok)
	assert.Equal(t, "hi", vals["input"])
	assert.Empty(t, vals["chat_history"])
}

// cancelOnAppend cancels the caller's context the moment the turn is written.
type cancelOnAppend struct {
	*memory.Store
	cancel context.CancelFunc
}

func (c cancelOnAppend) Append(ctx context.Context, sessionID string, msgs ...domain.Message) error {
	c.cancel()
	return c.Store.Append(ctx, sessionID, msgs...)
}

func TestHistory_CancelDuringAppendKeepsTurn(t *testing.T) {
	t.Run("Invoke", func(t *testing.T) {
		store := memory.NewStore()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		chat := runnable.WithMessageHistory(
			runnable.FromChatModel("echo", echo.New()),
			session.StoreProvider(cancelOnAppend{Store: store, cancel: cancel}),
		)

		out, err := chat.Invoke(ctx, "hi", runnable.WithSessionID("s1"))
		require.NoError(t, err)
		assert.Equal(t, "echo: hi", out.(domain.Message).Content)
		assert.ErrorIs(t, ctx.Err(), context.Canceled)

		msgs, err := store.Get(context.Background(), "s1")
		require.NoError(t, err)
		assert.Equal(t, []domain.Role{domain.RoleUser, domain.RoleAssistant}, roles(msgs))
	})

	t.Run("Stream", func(t *testing.T) {
		store := memory.NewStore()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		chat := runnable.WithMessageHistory(
			runnable.FromChatModel("echo", echo.New()),
			session.StoreProvider(cancelOnAppend{Store: store, cancel: cancel}),
		)

		s, err := chat.Stream(ctx, "hi there", runnable.WithSessionID("s1"))
		require.NoError(t, err)
		out, err := runnable.Collect(s)
		require.NoError(t, err, "a committed turn is reported as success")
		assert.Equal(t, "echo: hi there", out.(domain.Message).Content)

		msgs, err := store.Get(context.Background(), "s1")
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "echo: hi there", msgs[1].Content)
	})
}
