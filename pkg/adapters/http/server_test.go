package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/braid/pkg/adapters/echo"
	"github.com/aretw0/braid/pkg/adapters/memory"
	"github.com/aretw0/braid/pkg/domain"
	"github.com/aretw0/braid/pkg/observability"
	"github.com/aretw0/braid/pkg/registry"
	"github.com/aretw0/braid/pkg/runnable"
	"github.com/aretw0/braid/pkg/session"
)

func upper() *runnable.Unit {
	return runnable.Lambda("upper", func(_ context.Context, s string) (string, error) {
		if s == "boom" {
			return "", errors.New("collaborator down")
		}
		return strings.ToUpper(s), nil
	})
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestInvoke(t *testing.T) {
	h := NewHandler(upper())

	w := post(t, h, "/invoke", `{"input": "hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp InvokeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "HI", resp.Output)
}

func TestInvoke_ErrorMapping(t *testing.T) {
	h := NewHandler(upper())

	tests := []struct {
		name   string
		body   string
		status int
		kind   domain.ErrorKind
	}{
		{"bad json", `{"input":`, http.StatusBadRequest, domain.KindInput},
		{"wrong type", `{"input": 42}`, http.StatusBadRequest, domain.KindInput},
		{"collaborator", `{"input": "boom"}`, http.StatusBadGateway, domain.KindExecution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, h, "/invoke", tt.body)
			assert.Equal(t, tt.status, w.Code)
			var body ErrorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.kind, body.Kind)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(&domain.ConfigError{Field: "session_id"}))
	assert.Equal(t, http.StatusBadGateway, StatusFor(&domain.PartialFailure{}))
	assert.Equal(t, http.StatusNotImplemented, StatusFor(session.ErrNotSupported))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("plain")))
}

func TestBatch(t *testing.T) {
	h := NewHandler(upper())

	w := post(t, h, "/batch", `{"inputs": ["a", "boom", "c"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []any{"A", nil, "C"}, resp.Outputs)
	require.Len(t, resp.Errors, 3)
	assert.Nil(t, resp.Errors[0])
	require.NotNil(t, resp.Errors[1])
	assert.Equal(t, domain.KindExecution, resp.Errors[1].Kind)

	w = post(t, h, "/batch", `{"inputs": ["a", "b"], "configs": [{}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "configs must pair with inputs")
}

func newChat(t *testing.T) (*runnable.Unit, *session.Manager) {
	t.Helper()
	manager := session.NewManager(memory.NewStore())
	chain := runnable.MustSequence(
		runnable.Messages("sys", runnable.KeyHistory, runnable.KeyInput),
		runnable.FromChatModel("model", echo.New()),
	)
	return runnable.WithMessageHistory(chain, manager.Provider(), runnable.HistoryMessagesKey(runnable.KeyHistory)), manager
}

func TestStream_SSE(t *testing.T) {
	chat, manager := newChat(t)
	h := NewHandler(chat, WithSessions(manager))

	w := post(t, h, "/stream", `{"input": "one two", "session_id": "s1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Equal(t, 3, strings.Count(body, "data: {\"role\""), "one event per model chunk")
	assert.True(t, strings.HasSuffix(body, "event: done\ndata: {}\n\n"))

	msgs, err := manager.Messages(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "echo: one two", msgs[1].Content)
}

func TestStream_OpenError(t *testing.T) {
	chat, _ := newChat(t)
	h := NewHandler(chat)

	w := post(t, h, "/stream", `{"input": "no session"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessions(t *testing.T) {
	chat, manager := newChat(t)
	h := NewHandler(chat, WithSessions(manager))

	w := post(t, h, "/invoke", `{"input": "hello", "config": {"configurable": {"session_id": "abc"}}}`)
	require.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sessions": ["abc"]}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/sessions/abc", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		SessionID string           `json:"session_id"`
		Messages  []domain.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "abc", got.SessionID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, domain.RoleAssistant, got.Messages[1].Role)

	req = httptest.NewRequest(http.MethodDelete, "/sessions/abc", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	msgs, err := manager.Messages(context.Background(), "abc")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

// coreOnly hides every optional store capability.
type coreOnly struct {
	get    func(context.Context, string) ([]domain.Message, error)
	append func(context.Context, string, ...domain.Message) error
}

func (c coreOnly) Get(ctx context.Context, id string) ([]domain.Message, error) { return c.get(ctx, id) }
func (c coreOnly) Append(ctx context.Context, id string, msgs ...domain.Message) error {
	return c.append(ctx, id, msgs...)
}

func TestSessions_NotSupported(t *testing.T) {
	inner := memory.NewStore()
	manager := session.NewManager(coreOnly{get: inner.Get, append: inner.Append})
	h := NewHandler(upper(), WithSessions(manager))

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestUnits(t *testing.T) {
	reverse := runnable.Lambda("reverse", func(_ context.Context, s string) (string, error) {
		r := []rune(s)
		for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
			r[i], r[j] = r[j], r[i]
		}
		return string(r), nil
	})
	h := NewHandler(upper(), WithRegistry(registry.New(upper(), reverse)))

	req := httptest.NewRequest(http.MethodGet, "/units", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.JSONEq(t, `{"units": ["reverse", "upper"]}`, rec.Body.String())

	w := post(t, h, "/units/reverse/invoke", `{"input": "abc"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"output": "cba"}`, w.Body.String())

	w = post(t, h, "/units/upper/stream", `{"input": "abc"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `data: "ABC"`)
	assert.Contains(t, w.Body.String(), "event: done")

	w = post(t, h, "/units/missing/invoke", `{"input": "abc"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, domain.KindConfig, body.Kind)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	h := NewHandler(upper(),
		WithGatherer(reg),
		WithCallOptions(runnable.WithHooks(metrics.Hooks())),
	)

	require.Equal(t, http.StatusOK, post(t, h, "/invoke", `{"input": "x"}`).Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `braid_unit_invocations_total{mode="invoke",status="ok",unit="upper"} 1`)
}

func TestHealthAndCORS(t *testing.T) {
	h := NewHandler(upper())

	req := httptest.NewRequest(http.MethodOptions, "/invoke", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.JSONEq(t, `{"status": "ok", "unit": "upper"}`, rec.Body.String())
}

func TestInputOf(t *testing.T) {
	var raw any
	require.NoError(t, json.NewDecoder(bytes.NewBufferString(`[{"role":"user","content":"hi"},{"role":"assistant","content":"yo"}]`)).Decode(&raw))
	msgs, ok := inputOf(raw).([]domain.Message)
	require.True(t, ok)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)

	vals, ok := inputOf(map[string]any{"question": "q", "nested": map[string]any{"role": "user", "content": "x"}}).(domain.Values)
	require.True(t, ok)
	assert.Equal(t, "q", vals["question"])
	assert.IsType(t, domain.Message{}, vals["nested"])

	assert.Equal(t, []any{1.0, "a"}, inputOf([]any{1.0, "a"}))
}
