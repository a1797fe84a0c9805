package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBuildCSPHeader(t *testing.T) {
	tests := []struct {
		name string
		cfg  CSPConfig
		want string
	}{
		{"empty", CSPConfig{}, ""},
		{"api", APICSPConfig(), "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"},
		{"single", CSPConfig{ImgSrc: []string{"'self'", "data:"}}, "img-src 'self' data:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.BuildCSPHeader(); got != tt.want {
				t.Errorf("BuildCSPHeader() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGuideCSPAllowsInlineStylesOnly(t *testing.T) {
	csp := GuideCSPConfig().BuildCSPHeader()
	if !strings.Contains(csp, "style-src 'self' 'unsafe-inline'") {
		t.Errorf("guide CSP missing inline styles: %q", csp)
	}
	if strings.Contains(csp, "script-src") {
		t.Errorf("guide CSP should not allow scripts: %q", csp)
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(APICSPConfig(), okHandler)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
		"Cache-Control":           "no-store",
		"Content-Security-Policy": APICSPConfig().BuildCSPHeader(),
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestSecurityHeadersHandlerOverride(t *testing.T) {
	guide := GuideCSPConfig().BuildCSPHeader()
	handler := SecurityHeaders(APICSPConfig(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", guide)
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/guide", nil))
	if got := w.Header().Get("Content-Security-Policy"); got != guide {
		t.Errorf("CSP = %q, want handler override", got)
	}
}

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		contentType string
		allowed     []string
		want        bool
	}{
		{"application/zip", TemplateUploadContentTypes, true},
		{"Application/HWP+ZIP", TemplateUploadContentTypes, true},
		{"text/plain; charset=utf-8", SourceContentTypes, true},
		{"text/markdown", SourceContentTypes, true},
		{"application/json", SourceContentTypes, false},
		{"", TemplateUploadContentTypes, false},
	}
	for _, tt := range tests {
		if got := ValidateContentType(tt.contentType, tt.allowed); got != tt.want {
			t.Errorf("ValidateContentType(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}
