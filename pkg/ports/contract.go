package ports

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/braid/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunHistoryStoreContract runs a suite of tests to verify that a HistoryStore implementation
// adheres to the defined interface contract. Admin capabilities are tested when present.
func RunHistoryStoreContract(t *testing.T, store HistoryStore) {
	t.Helper()
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405.000000")

	t.Run("Get Creates Empty", func(t *testing.T) {
		msgs, err := store.Get(ctx, sessionID+"-empty")
		require.NoError(t, err, "Get should not fail for unknown sessions")
		assert.Empty(t, msgs)
	})

	t.Run("Append Preserves Order", func(t *testing.T) {
		id := sessionID + "-order"
		require.NoError(t, store.Append(ctx, id, domain.UserMessage("hi"), domain.AssistantMessage("hello")))
		require.NoError(t, store.Append(ctx, id, domain.UserMessage("again")))

		msgs, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, domain.RoleUser, msgs[0].Role)
		assert.Equal(t, "hi", msgs[0].Content)
		assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
		assert.Equal(t, "hello", msgs[1].Content)
		assert.Equal(t, "again", msgs[2].Content)
	})

	t.Run("Get Returns Copy", func(t *testing.T) {
		id := sessionID + "-copy"
		require.NoError(t, store.Append(ctx, id, domain.UserMessage("original")))

		msgs, err := store.Get(ctx, id)
		require.NoError(t, err)
		msgs[0].Content = "mutated"

		again, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "original", again[0].Content)
	})

	t.Run("Sessions Are Isolated", func(t *testing.T) {
		a, b := sessionID+"-a", sessionID+"-b"
		require.NoError(t, store.Append(ctx, a, domain.UserMessage("for a")))

		msgs, err := store.Get(ctx, b)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("Concurrent Appends Stay Whole", func(t *testing.T) {
		id := sessionID + "-concurrent"
		const writers = 8

		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				tag := fmt.Sprintf("w%d", n)
				assert.NoError(t, store.Append(ctx, id,
					domain.Message{Role: domain.RoleUser, Content: tag},
					domain.Message{Role: domain.RoleAssistant, Content: tag},
				))
			}(i)
		}
		wg.Wait()

		msgs, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.Len(t, msgs, writers*2)
		for i := 0; i < len(msgs); i += 2 {
			assert.Equal(t, msgs[i].Content, msgs[i+1].Content, "pairs must not interleave")
		}
	})

	if lister, ok := store.(SessionLister); ok {
		t.Run("List", func(t *testing.T) {
			id1, id2 := sessionID+"-l1", sessionID+"-l2"
			require.NoError(t, store.Append(ctx, id1, domain.UserMessage("1")))
			require.NoError(t, store.Append(ctx, id2, domain.UserMessage("2")))

			sessions, err := lister.List(ctx)
			require.NoError(t, err)
			assert.Contains(t, sessions, id1)
			assert.Contains(t, sessions, id2)
		})
	}

	if deleter, ok := store.(SessionDeleter); ok {
		t.Run("Delete", func(t *testing.T) {
			id := sessionID + "-delete"
			require.NoError(t, store.Append(ctx, id, domain.UserMessage("bye")))
			require.NoError(t, deleter.Delete(ctx, id), "Delete should not return error")

			msgs, err := store.Get(ctx, id)
			require.NoError(t, err)
			assert.Empty(t, msgs, "Get after Delete should start a fresh history")

			assert.NoError(t, deleter.Delete(ctx, "never-existed-"+sessionID))
		})
	}
}
