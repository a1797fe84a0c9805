package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/FocuswithJustin/hwpxreport/core/errors"
	"github.com/FocuswithJustin/hwpxreport/core/markup"
	"github.com/FocuswithJustin/hwpxreport/core/report"
	"github.com/FocuswithJustin/hwpxreport/internal/guide"
	"github.com/FocuswithJustin/hwpxreport/internal/server"
)

// StyleInfo describes the resolved style of one block kind.
type StyleInfo struct {
	Kind       report.Kind `json:"kind"`
	Level      int         `json:"level"`
	Bullet     string      `json:"bullet"`
	Example    string      `json:"example"`
	FontSize   int         `json:"font_size"`
	FontSizePt float64     `json:"font_size_pt"`
	Bold       bool        `json:"bold"`
	Font       string      `json:"font,omitempty"`
}

// StylesResponse is the body of GET /v1/styles.
type StylesResponse struct {
	Levels         []StyleInfo `json:"levels"`
	NumberingModes []string    `json:"numbering_modes"`
	BulletGlyphs   []string    `json:"bullet_glyphs"`
}

// MarkupResponse is the body of POST /v1/markup.
type MarkupResponse struct {
	Markup  string         `json:"markup"`
	Version string         `json:"version"`
	Lines   []string       `json:"lines"`
	Stats   map[string]int `json:"stats"`
}

// SourceResponse is the body of POST /v1/markup/source.
type SourceResponse struct {
	Source string   `json:"source"`
	Lines  []string `json:"lines"`
}

// settingsFor layers the server base styles, the styles of templateID, and
// overrides.
func (s *Server) settingsFor(ctx context.Context, templateID string, overrides report.Fragment) (report.Settings, error) {
	base := s.cfg.BaseStyles
	if templateID != "" {
		frag, err := s.templates.Styles(ctx, templateID)
		if err != nil {
			return report.Settings{}, err
		}
		base = base.Merge(frag)
	}
	return report.Resolve(overrides, base)
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Only GET is allowed")
		return
	}
	templateID := r.URL.Query().Get("template")
	if err := isID(templateID); err != nil {
		respondErr(w, r, errors.NewNotFound("template", templateID))
		return
	}
	settings, err := s.settingsFor(r.Context(), templateID, nil)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	resp := StylesResponse{
		NumberingModes: report.NumberingModes(),
		BulletGlyphs:   report.BulletGlyphs,
	}
	for _, k := range report.Kinds() {
		style := settings.Level(k)
		seq := 0
		if k.Numbered() {
			seq = 1
		}
		resp.Levels = append(resp.Levels, StyleInfo{
			Kind:       k,
			Level:      k.Level(),
			Bullet:     style.Bullet,
			Example:    report.Prefix(k, seq, settings),
			FontSize:   style.FontSize,
			FontSizePt: float64(style.FontSize) / 100,
			Bold:       style.Bold,
			Font:       style.Font,
		})
	}
	respondMeta(w, http.StatusOK, resp, &APIMeta{Total: len(resp.Levels)})
}

// handleGuide serves the writing guide as JSON, or as a page with
// ?format=html or ?format=markdown.
func (s *Server) handleGuide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Only GET is allowed")
		return
	}
	settings, err := s.settingsFor(r.Context(), "", nil)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	g := guide.New(settings)

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		respond(w, http.StatusOK, g)
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		io.WriteString(w, g.Markdown())
	case "html":
		page, err := g.HTML()
		if err != nil {
			respondErr(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Security-Policy", server.GuideCSPConfig().BuildCSPHeader())
		w.Write(page)
	default:
		respondErr(w, r, errors.NewValidation("format", fmt.Sprintf("unsupported format %q", format)))
	}
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		respond(w, http.StatusOK, guide.NewPrompt(r.URL.Query().Get("topic")))
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, formOverhead)
		var req PromptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondErr(w, r, bodyError(err, "body", formOverhead))
			return
		}
		if err := req.Validate(); err != nil {
			respondErr(w, r, err)
			return
		}
		respond(w, http.StatusOK, guide.NewPrompt(req.Topic))
	default:
		respondError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Only GET and POST are allowed")
	}
}

// handleMarkup renders source text to the structural markup used by editors.
func (s *Server) handleMarkup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Only POST is allowed")
		return
	}
	maxSource := s.jobs.MaxSourceBytes()
	r.Body = http.MaxBytesReader(w, r.Body, 6*maxSource+formOverhead)
	var req MarkupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErr(w, r, bodyError(err, "source", maxSource))
		return
	}
	if err := req.Validate(); err != nil {
		respondErr(w, r, err)
		return
	}
	if int64(len(req.Source)) > maxSource {
		respondErr(w, r, errors.NewValidation("source", fmt.Sprintf("source exceeds %d bytes", maxSource)))
		return
	}
	overrides, err := req.Fragment()
	if err != nil {
		respondErr(w, r, err)
		return
	}
	settings, err := s.settingsFor(r.Context(), req.TemplateID, overrides)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	doc := report.NewDocument(s.transformer, req.Source, settings)
	respond(w, http.StatusOK, MarkupResponse{
		Markup:  string(markup.ToMarkup(doc.Blocks, settings)),
		Version: markup.Version,
		Lines:   doc.Lines(),
		Stats:   doc.Stats(),
	})
}

// handleMarkupSource converts edited markup back to source lines. It takes
// an XML body or a JSON {"markup": ...} object.
func (s *Server) handleMarkupSource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Only POST is allowed")
		return
	}
	limit := 6*s.jobs.MaxSourceBytes() + formOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var data []byte
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/xml", "text/xml":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			respondErr(w, r, bodyError(err, "markup", limit))
			return
		}
		data = body
	default:
		var req SourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondErr(w, r, bodyError(err, "markup", limit))
			return
		}
		if err := req.Validate(); err != nil {
			respondErr(w, r, err)
			return
		}
		data = []byte(req.Markup)
	}

	lines, err := markup.FromMarkup(data)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, SourceResponse{
		Source: strings.Join(lines, "\n"),
		Lines:  lines,
	})
}
