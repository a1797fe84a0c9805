package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// captureLogOutput redirects the global logger to a buffer while f runs.
func captureLogOutput(f func()) string {
	var buf bytes.Buffer
	old := defaultLogger
	defaultLogger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	defer func() { defaultLogger = old }()
	f()
	return buf.String()
}

func decodeLine(t *testing.T, out string) map[string]any {
	t.Helper()
	line := strings.TrimSpace(strings.Split(strings.TrimSpace(out), "\n")[0])
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("log line is not JSON: %q (%v)", line, err)
	}
	return rec
}

func TestInitLoggerTo(t *testing.T) {
	old := defaultLogger
	defer func() { defaultLogger = old; slog.SetDefault(old) }()

	tests := []struct {
		name    string
		level   Level
		format  Format
		logFunc func()
		want    string
		empty   bool
	}{
		{"json info", LevelInfo, FormatJSON, func() { Info("hello", "k", "v") }, `"msg":"hello"`, false},
		{"text info", LevelInfo, FormatText, func() { Info("hello") }, "msg=hello", false},
		{"debug filtered at warn", LevelWarn, FormatJSON, func() { Debug("hidden") }, "", true},
		{"error at error", LevelError, FormatJSON, func() { Error("boom") }, `"level":"ERROR"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			InitLoggerTo(&buf, tt.level, tt.format)
			tt.logFunc()
			out := buf.String()
			if tt.empty {
				if out != "" {
					t.Errorf("expected no output, got %q", out)
				}
				return
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output %q missing %q", out, tt.want)
			}
		})
	}
}

func TestTimestampFormat(t *testing.T) {
	old := defaultLogger
	defer func() { defaultLogger = old; slog.SetDefault(old) }()

	var buf bytes.Buffer
	InitLoggerTo(&buf, LevelInfo, FormatJSON)
	Info("stamp")
	rec := decodeLine(t, buf.String())
	ts, _ := rec["time"].(string)
	if len(ts) < 20 || strings.Contains(ts, ".") {
		t.Errorf("time = %q, want RFC3339 without fractional seconds", ts)
	}
}

func TestParseLevelAndFormat(t *testing.T) {
	levels := map[string]Level{"debug": LevelDebug, "": LevelInfo, "INFO": LevelInfo, "warning": LevelWarn, "error": LevelError}
	for in, want := range levels {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel(loud) expected error")
	}

	if f, err := ParseFormat("text"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(text) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) expected error")
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if got := GetRequestID(ctx); got != "req-1" {
		t.Errorf("GetRequestID() = %q", got)
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID(empty) = %q", got)
	}

	out := captureLogOutput(func() { InfoContext(ctx, "scoped") })
	if !strings.Contains(out, `"request_id":"req-1"`) {
		t.Errorf("context logger missing request id: %s", out)
	}
}

func TestDomainEvents(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
		msg  string
		keys map[string]any
	}{
		{
			name: "job event",
			fn:   func() { JobEvent("job_created", "j1", "input_bytes", 12) },
			msg:  "job_event",
			keys: map[string]any{"event": "job_created", "job_id": "j1", "input_bytes": float64(12)},
		},
		{
			name: "job error",
			fn:   func() { JobError("j2", "render", errors.New("engine exit 1")) },
			msg:  "job_error",
			keys: map[string]any{"job_id": "j2", "stage": "render", "error": "engine exit 1"},
		},
		{
			name: "template event",
			fn:   func() { TemplateEvent("template_uploaded", "t1", "size", 7) },
			msg:  "template_event",
			keys: map[string]any{"event": "template_uploaded", "template_id": "t1", "size": float64(7)},
		},
		{
			name: "websocket event",
			fn:   func() { WebSocketEvent("client_connected", 3) },
			msg:  "websocket_event",
			keys: map[string]any{"event": "client_connected", "client_count": float64(3)},
		},
		{
			name: "server startup",
			fn:   func() { ServerStartup("api", "http", 8080) },
			msg:  "server_startup",
			keys: map[string]any{"server_type": "api", "port": float64(8080)},
		},
		{
			name: "security event",
			fn:   func() { SecurityEvent("origin_rejected", "websocket", "origin", "evil.example") },
			msg:  "security_event",
			keys: map[string]any{"component": "websocket", "origin": "evil.example", "level": "WARN"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := decodeLine(t, captureLogOutput(tt.fn))
			if rec["msg"] != tt.msg {
				t.Errorf("msg = %v, want %s", rec["msg"], tt.msg)
			}
			for k, want := range tt.keys {
				if rec[k] != want {
					t.Errorf("%s = %v, want %v", k, rec[k], want)
				}
			}
		})
	}
}

func TestResponseWriter(t *testing.T) {
	recorder := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: recorder, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.statusCode != http.StatusNotFound || recorder.Code != http.StatusNotFound {
		t.Errorf("status = %d/%d, want 404", rw.statusCode, recorder.Code)
	}

	rw2 := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	if _, err := rw2.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if !rw2.written || rw2.statusCode != http.StatusOK {
		t.Errorf("implicit header = %d written=%v", rw2.statusCode, rw2.written)
	}

	if _, _, err := rw2.Hijack(); err == nil {
		t.Error("recorder cannot be hijacked, expected error")
	}
	rw2.Flush()
}

func TestGenerateRequestID(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := generateRequestID()
		if len(id) != 16 {
			t.Errorf("Expected request ID length 16, got %d", len(id))
		}
		if ids[id] {
			t.Error("Generated duplicate request ID")
		}
		ids[id] = true
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if seen == "" || w.Header().Get("X-Request-ID") != seen {
		t.Errorf("generated id %q, header %q", seen, w.Header().Get("X-Request-ID"))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-7")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if seen != "upstream-7" {
		t.Errorf("upstream id not honoured: %q", seen)
	}
}

func TestCombinedMiddleware(t *testing.T) {
	handler := CombinedMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	out := captureLogOutput(func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/jobs", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	})
	rec := decodeLine(t, out)
	if rec["msg"] != "http_request" || rec["method"] != "POST" || rec["path"] != "/v1/jobs" {
		t.Errorf("record = %v", rec)
	}
	if rec["status_code"] != float64(http.StatusTeapot) {
		t.Errorf("status_code = %v", rec["status_code"])
	}
	if rec["request_id"] == nil || rec["request_id"] == "" {
		t.Error("request_id missing from http_request record")
	}
}
