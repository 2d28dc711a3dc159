// Package http exposes a Unit over HTTP: invoke, batch and SSE streaming
// endpoints plus session administration and Prometheus metrics.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/braid/internal/logging"
	"github.com/aretw0/braid/pkg/domain"
	"github.com/aretw0/braid/pkg/ports"
	"github.com/aretw0/braid/pkg/registry"
	"github.com/aretw0/braid/pkg/runnable"
	"github.com/aretw0/braid/pkg/session"
)

// Server serves one Unit, and optionally every unit of a registry.
type Server struct {
	unit     runnable.Runnable
	units    *registry.Registry
	exec     *runnable.Executor
	sessions *session.Manager
	gatherer prometheus.Gatherer
	callOpts []runnable.Option
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithSessions enables the /sessions endpoints.
func WithSessions(m *session.Manager) Option {
	return func(s *Server) { s.sessions = m }
}

// WithRegistry enables the /units endpoints.
func WithRegistry(reg *registry.Registry) Option {
	return func(s *Server) { s.units = reg }
}

// WithExecutor sets the executor used for /batch.
func WithExecutor(e *runnable.Executor) Option {
	return func(s *Server) { s.exec = e }
}

// WithGatherer exposes g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithCallOptions adds options to every unit call, such as runnable.WithHooks.
func WithCallOptions(opts ...runnable.Option) Option {
	return func(s *Server) { s.callOpts = append(s.callOpts, opts...) }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a Server for unit.
func NewServer(unit runnable.Runnable, opts ...Option) *Server {
	s := &Server{
		unit:   unit,
		exec:   runnable.DefaultExecutor(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewHandler creates a new HTTP handler serving unit.
func NewHandler(unit runnable.Runnable, opts ...Option) http.Handler {
	return NewServer(unit, opts...).Routes()
}

// Routes mounts the endpoints on a chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "unit": s.unit.Name()})
	})
	r.Post("/invoke", s.Invoke)
	r.Post("/batch", s.Batch)
	r.Post("/stream", s.Stream)

	if s.sessions != nil {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.ListSessions)
			r.Get("/{id}", s.GetSession)
			r.Delete("/{id}", s.DeleteSession)
		})
	}
	if s.units != nil {
		r.Route("/units", func(r chi.Router) {
			r.Get("/", s.ListUnits)
			r.Post("/{name}/invoke", s.InvokeUnit)
			r.Post("/{name}/stream", s.StreamUnit)
		})
	}
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// InvokeRequest is the body of /invoke and /stream.
type InvokeRequest struct {
	Input any `json:"input"`
	// SessionID is shorthand for config.configurable.session_id.
	SessionID string        `json:"session_id,omitempty"`
	Config    domain.Config `json:"config"`
}

// InvokeResponse is the body returned by /invoke.
type InvokeResponse struct {
	Output any `json:"output"`
}

// BatchRequest is the body of /batch. Configs, when set, pairs with Inputs.
type BatchRequest struct {
	Inputs         []any           `json:"inputs"`
	Config         domain.Config   `json:"config"`
	Configs        []domain.Config `json:"configs,omitempty"`
	MaxConcurrency int             `json:"max_concurrency,omitempty"`
	FailFast       bool            `json:"fail_fast,omitempty"`
}

// BatchResponse lists outputs and errors by input position.
type BatchResponse struct {
	Outputs []any        `json:"outputs"`
	Errors  []*ErrorBody `json:"errors"`
}

// ErrorBody is the JSON form of a failure.
type ErrorBody struct {
	Error string           `json:"error"`
	Kind  domain.ErrorKind `json:"kind"`
}

func (s *Server) options(cfg domain.Config, sessionID string, extra ...runnable.Option) []runnable.Option {
	if sessionID != "" {
		cfg = cfg.With(domain.ConfigSessionID, sessionID)
	}
	opts := make([]runnable.Option, 0, len(s.callOpts)+len(extra)+1)
	opts = append(opts, s.callOpts...)
	opts = append(opts, runnable.WithConfig(cfg))
	return append(opts, extra...)
}

// Invoke handles POST /invoke.
func (s *Server) Invoke(w http.ResponseWriter, r *http.Request) {
	s.invoke(w, r, s.unit)
}

// InvokeUnit handles POST /units/{name}/invoke.
func (s *Server) InvokeUnit(w http.ResponseWriter, r *http.Request) {
	if unit, ok := s.lookup(w, r); ok {
		s.invoke(w, r, unit)
	}
}

// StreamUnit handles POST /units/{name}/stream.
func (s *Server) StreamUnit(w http.ResponseWriter, r *http.Request) {
	if unit, ok := s.lookup(w, r); ok {
		s.stream(w, r, unit)
	}
}

// ListUnits handles GET /units.
func (s *Server) ListUnits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"units": s.units.Names()})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (runnable.Runnable, bool) {
	unit, err := s.units.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody(err))
		return nil, false
	}
	return unit, true
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request, unit runnable.Runnable) {
	var body InvokeRequest
	if !s.decode(w, r, &body) {
		return
	}
	out, err := unit.Invoke(r.Context(), inputOf(body.Input), s.options(body.Config, body.SessionID)...)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, InvokeResponse{Output: out})
}

// Batch handles POST /batch. Per-item failures are reported in the body with
// status 200; only request-level failures change the status.
func (s *Server) Batch(w http.ResponseWriter, r *http.Request) {
	var body BatchRequest
	if !s.decode(w, r, &body) {
		return
	}
	inputs := make([]any, len(body.Inputs))
	for i, in := range body.Inputs {
		inputs[i] = inputOf(in)
	}
	var extra []runnable.Option
	if len(body.Configs) > 0 {
		extra = append(extra, runnable.WithBatchConfigs(body.Configs...))
	}
	if body.MaxConcurrency > 0 {
		extra = append(extra, runnable.WithMaxConcurrency(body.MaxConcurrency))
	}
	if body.FailFast {
		extra = append(extra, runnable.WithFailFast())
	}

	outs, err := s.exec.Batch(r.Context(), s.unit, inputs, s.options(body.Config, "", extra...)...)
	resp := BatchResponse{Outputs: outs, Errors: make([]*ErrorBody, len(inputs))}
	var batchErr *domain.BatchError
	switch {
	case err == nil:
	case errors.As(err, &batchErr):
		for _, f := range batchErr.Failures {
			resp.Errors[f.Index] = errorBody(f.Err)
		}
	default:
		s.fail(w, r, err)
		return
	}
	if resp.Outputs == nil {
		resp.Outputs = make([]any, len(inputs))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Stream handles POST /stream as server-sent events: one "data:" event per
// chunk, then "event: done" or "event: error".
func (s *Server) Stream(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, s.unit)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, unit runnable.Runnable) {
	var body InvokeRequest
	if !s.decode(w, r, &body) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	stream, err := unit.Stream(r.Context(), inputOf(body.Input), s.options(body.Config, body.SessionID)...)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	// Closing on a dropped client stops production without a history commit.
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		chunk, err := stream.Recv()
		if err != nil {
			if isEOF(err) {
				fmt.Fprint(w, "event: done\ndata: {}\n\n")
			} else {
				s.logger.Warn("stream failed", "unit", unit.Name(), "err", err)
				data, _ := json.Marshal(errorBody(err))
				fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
			}
			flusher.Flush()
			return
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			s.logger.Error("stream chunk encode failed", "err", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msgs, err := s.sessions.Messages(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "messages": msgs})
}

// DeleteSession handles DELETE /sessions/{id}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.Warn("invalid request body", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusBadRequest, &ErrorBody{Error: "invalid request body: " + err.Error(), Kind: domain.KindInput})
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "err", err)
	} else {
		s.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorBody(err))
}

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	if errors.Is(err, ports.ErrNotSupported) {
		return http.StatusNotImplemented
	}
	if errors.Is(err, domain.ErrSessionNotFound) {
		return http.StatusNotFound
	}
	switch domain.KindOf(err) {
	case domain.KindInput, domain.KindConfig:
		return http.StatusBadRequest
	case domain.KindExecution, domain.KindPartial:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorBody(err error) *ErrorBody {
	return &ErrorBody{Error: err.Error(), Kind: domain.KindOf(err)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}
