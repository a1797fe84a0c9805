package report

import (
	"encoding/json"
	"strings"
)

// Document is the structured input handed to a rendering engine.
type Document struct {
	Blocks []Block
	Styles Settings

	// Verbatim, when set, is passed to the engine unchanged instead of the
	// prefixed block rendering.
	Verbatim string
	Raw      bool
}

// NewDocument transforms text with t and binds the result to styles.
func NewDocument(t *Transformer, text string, styles Settings) *Document {
	return &Document{
		Blocks: t.TransformText(text),
		Styles: styles,
	}
}

// RawDocument wraps text that should reach the engine without preprocessing.
func RawDocument(text string, styles Settings) *Document {
	return &Document{
		Blocks:   NewTransformer().TransformText(text),
		Styles:   styles,
		Verbatim: text,
		Raw:      true,
	}
}

// Lines renders each block as a display line.
func (d *Document) Lines() []string {
	lines := make([]string, len(d.Blocks))
	for i, b := range d.Blocks {
		lines[i] = b.Render(d.Styles)
	}
	return lines
}

// Markdown renders the engine input: source markers followed by the
// rendered prefix, for example "# Ⅰ. Title" or "    - ㅇ item".
func (d *Document) Markdown() string {
	if d.Raw {
		return d.Verbatim
	}
	var sb strings.Builder
	for i, b := range d.Blocks {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if b.Spacer {
			continue
		}
		sb.WriteString(sourceMarker(b.Kind))
		sb.WriteString(b.Render(d.Styles))
	}
	return sb.String()
}

// StylesJSON encodes the style snapshot for engines that take a sidecar file.
func (d *Document) StylesJSON() ([]byte, error) {
	return json.MarshalIndent(d.Styles, "", "  ")
}

// Stats summarizes a document by kind, without its content.
func (d *Document) Stats() map[string]int {
	stats := make(map[string]int)
	for _, b := range d.Blocks {
		if b.Spacer {
			stats["spacer"]++
			continue
		}
		stats[b.Kind.String()]++
	}
	return stats
}
