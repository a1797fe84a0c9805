package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/FocuswithJustin/hwpxreport/core/report"
	"github.com/FocuswithJustin/hwpxreport/internal/guide"
	"github.com/FocuswithJustin/hwpxreport/internal/jobs"
	"github.com/FocuswithJustin/hwpxreport/internal/templates"
)

func TestHandleStyles(t *testing.T) {
	base := report.Fragment{report.KindLevel1: {Bullet: report.StringPtr("■")}}
	ts := newTestServer(t, Config{BaseStyles: base}, nil, jobs.Options{})

	w := ts.do(t, http.MethodGet, "/v1/styles", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp StylesResponse
	env := decode(t, w, &resp)
	if len(resp.Levels) != len(report.Kinds()) || env.Meta.Total != len(resp.Levels) {
		t.Fatalf("levels = %+v", resp.Levels)
	}
	byKind := make(map[report.Kind]StyleInfo)
	for _, l := range resp.Levels {
		byKind[l.Kind] = l
	}
	if got := byKind[report.KindTitle]; got.Example != "Ⅰ." || got.FontSizePt != 18 || !got.Bold {
		t.Errorf("title = %+v", got)
	}
	if got := byKind[report.KindLevel1]; got.Bullet != "■" || got.Example != "■" {
		t.Errorf("level1 = %+v, want base style bullet", got)
	}
	if got := byKind[report.KindPlain]; got.Level != -1 || got.Example != "" {
		t.Errorf("plain = %+v", got)
	}
	if len(resp.NumberingModes) == 0 || len(resp.BulletGlyphs) == 0 {
		t.Errorf("response = %+v", resp)
	}

	w = ts.do(t, http.MethodGet, "/v1/styles?template=6f1c06a0-59c2-4b5e-a0d4-8b1f0a3c0e11", "", nil)
	expectError(t, w, http.StatusNotFound, "NOT_FOUND")
	expectError(t, ts.do(t, http.MethodGet, "/v1/styles?template=x", "", nil), http.StatusNotFound, "NOT_FOUND")
	expectError(t, ts.do(t, http.MethodPost, "/v1/styles", "", nil), http.StatusMethodNotAllowed, codeMethodNotAllowed)
}

func TestHandleStylesWithTemplate(t *testing.T) {
	ts := newTestServer(t, Config{}, nil, jobs.Options{})
	settings := report.Defaults()
	data := minimalTemplate(t)
	tpl, _, err := ts.templates.Upload(context.Background(), strings.NewReader(string(data)), templates.UploadOptions{Name: "x"})
	if err != nil {
		t.Fatal(err)
	}

	w := ts.do(t, http.MethodGet, "/v1/styles?template="+tpl.ID, "", nil)
	var resp StylesResponse
	decode(t, w, &resp)
	if w.Code != http.StatusOK || len(resp.Levels) == 0 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := resp.Levels[0]; got.FontSize != settings.Level(report.KindTitle).FontSize {
		t.Errorf("title font size = %d", got.FontSize)
	}
}

func TestHandleGuide(t *testing.T) {
	ts := newTestServer(t, Config{}, nil, jobs.Options{})

	w := ts.do(t, http.MethodGet, "/v1/guide", "", nil)
	var g guide.Guide
	decode(t, w, &g)
	if w.Code != http.StatusOK || len(g.Mappings) != len(report.Kinds())-1 || g.ExampleInput == "" {
		t.Errorf("guide = %d %+v", w.Code, g)
	}

	w = ts.do(t, http.MethodGet, "/v1/guide?format=markdown", "", nil)
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/markdown") ||
		!strings.HasPrefix(w.Body.String(), "# 보고서 작성 가이드") {
		t.Errorf("markdown guide = %q", w.Body.String())
	}

	w = ts.do(t, http.MethodGet, "/v1/guide?format=html", "", nil)
	body := w.Body.String()
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") || !strings.Contains(body, "<table>") {
		t.Errorf("html guide = %q", body)
	}
	if w.Header().Get("Content-Security-Policy") == "" {
		t.Error("html guide missing CSP header")
	}

	expectError(t, ts.do(t, http.MethodGet, "/v1/guide?format=pdf", "", nil), http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestHandlePrompt(t *testing.T) {
	ts := newTestServer(t, Config{}, nil, jobs.Options{})

	w := ts.do(t, http.MethodGet, "/v1/prompt?topic="+url.QueryEscape("예산 집행 현황"), "", nil)
	var p guide.Prompt
	decode(t, w, &p)
	if p.Topic != "예산 집행 현황" || !strings.Contains(p.Prompt, "예산 집행 현황") || p.UsageGuide == "" {
		t.Errorf("GET prompt = %+v", p)
	}

	w = ts.postJSON(t, "/v1/prompt", PromptRequest{Topic: "인력 운영"})
	decode(t, w, &p)
	if w.Code != http.StatusOK || p.Topic != "인력 운영" {
		t.Errorf("POST prompt = %d %+v", w.Code, p)
	}

	expectError(t, ts.postJSON(t, "/v1/prompt", PromptRequest{}), http.StatusBadRequest, "VALIDATION_ERROR")
	long := PromptRequest{Topic: strings.Repeat("가", guide.MaxTopicLength+1)}
	expectError(t, ts.postJSON(t, "/v1/prompt", long), http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestMarkupRoundTrip(t *testing.T) {
	ts := newTestServer(t, Config{}, nil, jobs.Options{})

	w := ts.postJSON(t, "/v1/markup", MarkupRequest{
		Source:    "# 추진 배경\n## 현황\n- **핵심** 과제\n    - 세부\n> 참고",
		StyleSpec: "level1=■",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("markup status = %d: %s", w.Code, w.Body.String())
	}
	var m MarkupResponse
	decode(t, w, &m)
	wantLines := []string{"Ⅰ. 추진 배경", "① 현황", "■ **핵심** 과제", "ㅇ 세부", "* 참고"}
	if strings.Join(m.Lines, "\n") != strings.Join(wantLines, "\n") {
		t.Errorf("Lines = %q, want %q", m.Lines, wantLines)
	}
	if m.Version != "1" || !strings.Contains(m.Markup, "<b>핵심</b>") {
		t.Errorf("markup = %s", m.Markup)
	}

	w = ts.postJSON(t, "/v1/markup/source", SourceRequest{Markup: m.Markup})
	var src SourceResponse
	decode(t, w, &src)
	want := "# 추진 배경\n## 현황\n- **핵심** 과제\n    - 세부\n> 참고"
	if w.Code != http.StatusOK || src.Source != want {
		t.Errorf("source = %d %q, want %q", w.Code, src.Source, want)
	}

	w = ts.do(t, http.MethodPost, "/v1/markup/source", "application/xml", strings.NewReader(m.Markup))
	decode(t, w, &src)
	if src.Source != want {
		t.Errorf("xml body source = %q", src.Source)
	}
}

func TestMarkupRejects(t *testing.T) {
	ts := newTestServer(t, Config{}, nil, jobs.Options{})

	big := MarkupRequest{Source: strings.Repeat("a", testMaxSource+1)}
	expectError(t, ts.postJSON(t, "/v1/markup", big), http.StatusBadRequest, "VALIDATION_ERROR")
	expectError(t, ts.postJSON(t, "/v1/markup", MarkupRequest{Source: "# A", StyleSpec: "bogus=1"}), http.StatusBadRequest, "VALIDATION_ERROR")
	expectError(t, ts.do(t, http.MethodGet, "/v1/markup", "", nil), http.StatusMethodNotAllowed, codeMethodNotAllowed)

	expectError(t, ts.postJSON(t, "/v1/markup/source", SourceRequest{}), http.StatusBadRequest, "VALIDATION_ERROR")
	w := ts.do(t, http.MethodPost, "/v1/markup/source", "application/xml", strings.NewReader("<other/>"))
	expectError(t, w, http.StatusBadRequest, "PARSE_ERROR")
}
