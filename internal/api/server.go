package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DenzelPenzel/ton-agent/internal/action"
	"github.com/DenzelPenzel/ton-agent/internal/auth"
	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
	"github.com/DenzelPenzel/ton-agent/internal/llm"
	"github.com/DenzelPenzel/ton-agent/internal/observability/metrics"
	"github.com/DenzelPenzel/ton-agent/internal/task"
	"github.com/DenzelPenzel/ton-agent/internal/wallet"
	"github.com/DenzelPenzel/ton-agent/pkg/logger"
)

// ActionSource lists the actions currently exposed by the agent.
type ActionSource interface {
	GetActions(ctx context.Context) ([]action.Action, error)
	WalletProvider() wallet.Provider
}

// Invocations is the subset of task.Service the API drives.
type Invocations interface {
	Submit(ctx context.Context, req task.SubmitRequest) (*task.Task, error)
	Get(ctx context.Context, id string) (*task.Task, error)
	List(ctx context.Context, opts ...task.ListOption) ([]*task.Task, error)
	Stats(ctx context.Context, opts ...task.ListOption) (task.Stats, error)
}

// Server exposes the agent's actions and the invocation queue over HTTP.
type Server struct {
	addr         string
	actions      ActionSource
	invocations  Invocations
	auth         *auth.Service
	metrics      *metrics.Metrics
	metricsPath  string
	readTimeout  time.Duration
	writeTimeout time.Duration
	logger       *slog.Logger
}

type Option func(*Server)

func WithAuth(svc *auth.Service) Option {
	return func(s *Server) { s.auth = svc }
}

// WithMetrics instruments every route and serves the registry on path.
func WithMetrics(m *metrics.Metrics, path string) Option {
	return func(s *Server) {
		s.metrics = m
		if path != "" {
			s.metricsPath = path
		}
	}
}

func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.logger = log
		}
	}
}

func NewServer(addr string, actions ActionSource, invocations Invocations, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		actions:      actions,
		invocations:  invocations,
		metricsPath:  "/metrics",
		readTimeout:  15 * time.Second,
		writeTimeout: 120 * time.Second,
		logger:       logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.route(mux, "GET /api/v1/actions", auth.PermActionsRead, s.handleListActions)
	s.route(mux, "POST /api/v1/invocations", auth.PermInvocationsWrite, s.handleSubmit)
	s.route(mux, "GET /api/v1/invocations", auth.PermInvocationsRead, s.handleListInvocations)
	s.route(mux, "GET /api/v1/invocations/stats", auth.PermInvocationsRead, s.handleStats)
	s.route(mux, "GET /api/v1/invocations/{id}", auth.PermInvocationsRead, s.handleGetInvocation)
	s.route(mux, "GET /api/v1/wallet", auth.PermWalletRead, s.handleWallet)
	if s.metrics != nil {
		mux.Handle("GET "+s.metricsPath, s.metrics.Handler())
	}
	return mux
}

func (s *Server) route(mux *http.ServeMux, pattern, permission string, fn http.HandlerFunc) {
	var h http.Handler = fn
	if s.auth != nil {
		h = s.auth.Middleware(map[string][]string{"*": {permission}})(h)
	}
	if s.metrics != nil {
		h = s.instrument(pattern, h)
	}
	mux.Handle(pattern, h)
}

func (s *Server) instrument(pattern string, next http.Handler) http.Handler {
	label := pattern
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		label = pattern[i+1:]
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.metrics.ObserveHTTPRequest(label, r.Method, sw.status, time.Since(start))
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("api listening", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	if s.actions == nil {
		s.writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "agent is not initialised"))
		return
	}
	actions, err := s.actions.GetActions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": llm.Tools(actions)})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if s.invocations == nil {
		s.writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "invocation service is not initialised"))
		return
	}
	var req task.SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "malformed request body"))
		return
	}
	submitted, err := s.invocations.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitted)
}

func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	if s.invocations == nil {
		s.writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "invocation service is not initialised"))
		return
	}
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	tasks, err := s.invocations.List(r.Context(), opts...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invocations": tasks})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.invocations == nil {
		s.writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "invocation service is not initialised"))
		return
	}
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	stats, err := s.invocations.Stats(r.Context(), opts...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetInvocation(w http.ResponseWriter, r *http.Request) {
	if s.invocations == nil {
		s.writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "invocation service is not initialised"))
		return
	}
	found, err := s.invocations.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

type walletResponse struct {
	Provider string `json:"provider"`
	Address  string `json:"address"`
	Network  string `json:"network"`
}

func (s *Server) handleWallet(w http.ResponseWriter, _ *http.Request) {
	if s.actions == nil || s.actions.WalletProvider() == nil {
		s.writeError(w, xerrors.New(xerrors.CodeNotFound, "no wallet configured"))
		return
	}
	wp := s.actions.WalletProvider()
	writeJSON(w, http.StatusOK, walletResponse{
		Provider: wp.Name(),
		Address:  wp.Address(),
		Network:  wp.Network().String(),
	})
}

func listOptionsFromQuery(r *http.Request) ([]task.ListOption, error) {
	q := r.URL.Query()
	var opts []task.ListOption
	for _, key := range []string{"limit", "offset"} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, key+" must be a non-negative integer", xerrors.WithMetadata("field", key))
		}
		if key == "limit" {
			opts = append(opts, task.WithLimit(n))
		} else {
			opts = append(opts, task.WithOffset(n))
		}
	}
	if statuses := splitList(q["status"]); len(statuses) > 0 {
		converted := make([]task.Status, 0, len(statuses))
		for _, st := range statuses {
			if !task.IsValidStatus(task.Status(st)) {
				return nil, xerrors.New(xerrors.CodeInvalidArgument, "unknown status "+st, xerrors.WithMetadata("field", "status"))
			}
			converted = append(converted, task.Status(st))
		}
		opts = append(opts, task.WithStatuses(converted...))
	}
	if names := splitList(q["action"]); len(names) > 0 {
		opts = append(opts, task.WithActions(names...))
	}
	if query := q.Get("q"); query != "" {
		opts = append(opts, task.WithQuery(query))
	}
	if q.Get("order") == "asc" {
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	}
	return opts, nil
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// withContext rejects requests once the root context is cancelled.
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
