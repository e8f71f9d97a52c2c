package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DenzelPenzel/ton-agent/internal/action"
	"github.com/DenzelPenzel/ton-agent/internal/actions/utilaction"
	"github.com/DenzelPenzel/ton-agent/internal/agent"
	"github.com/DenzelPenzel/ton-agent/internal/auth"
	"github.com/DenzelPenzel/ton-agent/internal/llm"
	"github.com/DenzelPenzel/ton-agent/internal/observability/metrics"
	"github.com/DenzelPenzel/ton-agent/internal/task"
	"github.com/DenzelPenzel/ton-agent/internal/wallet/wallettest"
)

type fixture struct {
	handler http.Handler
	store   *task.MemoryStore
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	util, err := utilaction.NewProvider(nil, action.WithRegistry(action.NewRegistry()))
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	a := agent.New(wallettest.New(1_000_000_000), agent.WithProvider(util), agent.WithLogger(quiet), agent.WithAuditLogger(quiet))

	store := task.NewMemoryStore()
	svc := task.NewService(store, task.NewMemoryQueue(8), 3)
	m, err := metrics.New()
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	opts = append([]Option{WithLogger(quiet), WithMetrics(m, "")}, opts...)
	return fixture{
		handler: NewServer(":0", a, svc, opts...).Handler(),
		store:   store,
		metrics: m,
	}
}

func (f fixture) do(t *testing.T, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var payload map[string]errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return payload["error"]
}

func TestListActions(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/actions", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Tools []llm.Tool `json:"tools"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, tool := range payload.Tools {
		if tool.Type != "function" {
			t.Fatalf("unexpected tool type %q", tool.Type)
		}
		if tool.Function.Name == "convert_ton_units" {
			found = true
		}
	}
	if !found {
		t.Fatalf("convert_ton_units missing from %s", rec.Body.String())
	}
}

func TestSubmitAndFetchInvocation(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/invocations",
		`{"id":"inv-1","action":"convert_ton_units","arguments":{"value":"1","from":"ton"}}`, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var submitted task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if submitted.ID != "inv-1" || submitted.Status != task.StatusPending {
		t.Fatalf("unexpected task %+v", submitted)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/invocations/inv-1", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: unexpected status %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/invocations?status=pending&action=convert_ton_units&q=ton", "", "")
	var listed struct {
		Invocations []task.Task `json:"invocations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Invocations) != 1 {
		t.Fatalf("expected one invocation, got %s", rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/v1/invocations/stats", "", "")
	var stats task.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 1 || stats.Pending != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestInvocationErrors(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   string
	}{
		{"missing", http.MethodGet, "/api/v1/invocations/nope", "", http.StatusNotFound, string(task.CodeTaskNotFound)},
		{"blank action", http.MethodPost, "/api/v1/invocations", `{"action":"  "}`, http.StatusBadRequest, string(task.CodeTaskValidation)},
		{"malformed body", http.MethodPost, "/api/v1/invocations", `{`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"bad status", http.MethodGet, "/api/v1/invocations?status=done", "", http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"bad limit", http.MethodGet, "/api/v1/invocations?limit=-1", "", http.StatusBadRequest, "INVALID_ARGUMENT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, tc.method, tc.target, tc.body, "")
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if got := decodeError(t, rec); got.Code != tc.code {
				t.Fatalf("expected code %s, got %+v", tc.code, got)
			}
		})
	}
}

func TestWalletEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/wallet", "", "")
	var got walletResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Address != "EQTestWalletAddress" || got.Network != "testnet" {
		t.Fatalf("unexpected wallet %+v", got)
	}
}

func TestAuthGuardsRoutes(t *testing.T) {
	svc, err := auth.NewService(auth.Config{Enabled: true, Keys: []auth.Key{
		{Name: "reader", Secret: "read-key", Permissions: []string{auth.PermActionsRead, auth.PermInvocationsRead}},
	}})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	f := newFixture(t, WithAuth(svc))

	if rec := f.do(t, http.MethodGet, "/api/v1/actions", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/actions", "", "read-key"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/invocations", `{"action":"convert_ton_units"}`, "read-key"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("health check should stay open, got %d", rec.Code)
	}
}

func TestMetricsEndpointRecordsRoutes(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/v1/invocations/nope", "", "")

	rec := f.do(t, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: unexpected status %d", rec.Code)
	}
	want := `tonagent_http_requests_total{code="404",handler="/api/v1/invocations/{id}",method="GET"} 1`
	if !strings.Contains(rec.Body.String(), want) {
		t.Fatalf("missing %s in:\n%s", want, rec.Body.String())
	}
}
