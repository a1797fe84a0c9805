package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FocuswithJustin/hwpxreport/core/cas"
	"github.com/FocuswithJustin/hwpxreport/core/engine"
	"github.com/FocuswithJustin/hwpxreport/core/hwpx"
	"github.com/FocuswithJustin/hwpxreport/core/report"
	"github.com/FocuswithJustin/hwpxreport/internal/jobs"
	"github.com/FocuswithJustin/hwpxreport/internal/store"
	"github.com/FocuswithJustin/hwpxreport/internal/templates"
)

const testMaxSource = 1024

type testServer struct {
	srv       *Server
	jobs      *jobs.Manager
	templates *templates.Store
	handler   http.Handler
}

// envelope mirrors APIResponse with the payload left undecoded.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func outputEngine(out string) engine.Func {
	return func(context.Context, *report.Document, string) ([]byte, error) {
		return []byte(out), nil
	}
}

func newTestServer(t *testing.T, cfg Config, eng engine.Engine, opts jobs.Options) *testServer {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(context.Background(), filepath.Join(dir, "api.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	blobs, err := cas.NewStore(filepath.Join(dir, "templates"))
	if err != nil {
		t.Fatal(err)
	}
	tpls := templates.New(db, blobs, 0)

	if opts.MaxSourceBytes == 0 {
		opts.MaxSourceBytes = testMaxSource
	}
	opts.Root = filepath.Join(dir, "jobs")
	jm, err := jobs.NewManager(db, tpls, eng, opts)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	srv, err := New(cfg, jm, tpls)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testServer{srv: srv, jobs: jm, templates: tpls, handler: srv.Handler()}
}

func (ts *testServer) do(t *testing.T, method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func (ts *testServer) postJSON(t *testing.T, path string, v interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return ts.do(t, http.MethodPost, path, "application/json", bytes.NewReader(data))
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	return env
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d; body %s", w.Code, status, w.Body.String())
	}
	env := decode(t, w, nil)
	if env.Success || env.Error == nil {
		t.Fatalf("expected error envelope, got %s", w.Body.String())
	}
	if env.Error.Code != code {
		t.Errorf("error code = %q, want %q", env.Error.Code, code)
	}
}

func minimalTemplate(t *testing.T) []byte {
	t.Helper()
	data, err := hwpx.Minimal(report.Defaults())
	if err != nil {
		t.Fatalf("hwpx.Minimal() error = %v", err)
	}
	return data
}

func TestHandleRoot(t *testing.T) {
	ts := newTestServer(t, Config{}, nil, jobs.Options{})
	w := ts.do(t, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var data struct {
		Name      string   `json:"name"`
		Endpoints []string `json:"endpoints"`
	}
	env := decode(t, w, &data)
	if !env.Success || data.Name != "HWPX Report API" {
		t.Errorf("root = %s", w.Body.String())
	}
	found := false
	for _, e := range data.Endpoints {
		if e == "POST /v1/jobs" {
			found = true
		}
	}
	if !found {
		t.Errorf("endpoints missing POST /v1/jobs: %v", data.Endpoints)
	}

	expectError(t, ts.do(t, http.MethodGet, "/nonexistent", "", nil), http.StatusNotFound, codeNotFound)
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t, Config{}, nil, jobs.Options{})
	w := ts.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var info HealthInfo
	decode(t, w, &info)
	if info.Status != "healthy" || info.Version != Version || info.Templates != 0 {
		t.Errorf("health = %+v", info)
	}

	for _, h := range []string{"X-Request-ID", "X-Content-Type-Options", "Content-Security-Policy"} {
		if w.Header().Get(h) == "" {
			t.Errorf("missing %s header", h)
		}
	}

	expectError(t, ts.do(t, http.MethodPost, "/health", "", nil), http.StatusMethodNotAllowed, codeMethodNotAllowed)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, Config{AllowedOrigins: []string{"https://app.example.com"}}, nil, jobs.Options{})
	req := httptest.NewRequest(http.MethodOptions, "/v1/jobs", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestStatusFor(t *testing.T) {
	ts := newTestServer(t, Config{}, nil, jobs.Options{})
	_ = ts
	tests := []struct {
		path   string
		status int
		code   string
	}{
		{"/v1/jobs/6f1c06a0-59c2-4b5e-a0d4-8b1f0a3c0e11", http.StatusNotFound, "NOT_FOUND"},
		{"/v1/jobs/not-an-id", http.StatusNotFound, "NOT_FOUND"},
		{"/v1/templates/6f1c06a0-59c2-4b5e-a0d4-8b1f0a3c0e11", http.StatusNotFound, "NOT_FOUND"},
		{"/v1/jobs/", http.StatusBadRequest, codeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			expectError(t, ts.do(t, http.MethodGet, tt.path, "", nil), tt.status, tt.code)
		})
	}
}

func TestErrorMessagesHideStorage(t *testing.T) {
	ts := newTestServer(t, Config{}, nil, jobs.Options{})
	w := ts.postJSON(t, "/v1/jobs", SubmitRequest{Source: "# A"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var job jobs.Job
	decode(t, w, &job)

	// The nil engine is unavailable, so processing fails.
	if _, err := ts.jobs.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	w = ts.do(t, http.MethodGet, "/v1/jobs/"+job.ID, "", nil)
	if strings.Contains(w.Body.String(), t.TempDir()[:5]) && strings.Contains(w.Body.String(), "/jobs/") {
		t.Errorf("status leaks storage path: %s", w.Body.String())
	}
	var failed jobs.Job
	decode(t, w, &failed)
	if failed.Status != jobs.StatusFailed || failed.Error == nil || failed.Error.Code != "ENGINE_ERROR" {
		t.Errorf("failed job = %+v", failed)
	}
}
