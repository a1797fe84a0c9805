package report

import (
	"strings"
	"unicode"
)

// Source markers recognized at the start of a trimmed line.
const (
	TitleMarker    = "# "
	SubtitleMarker = "## "
	BulletMarker   = "- "
	NoteMarker     = "> "
)

// DefaultIndentThreshold is the indent width at which a bullet becomes Level2.
const DefaultIndentThreshold = 4

// DefaultTabWidth is the column width a leading tab advances to.
const DefaultTabWidth = 4

// Counters carries the title and subtitle numbering state of one pass.
// A zero value starts a new pass.
type Counters struct {
	Title    int `json:"title"`
	Subtitle int `json:"subtitle"`
}

// Next advances the counter for k and returns the block's sequence index.
// A title resets the subtitle scope. Unnumbered kinds return 0.
func (c *Counters) Next(k Kind) int {
	switch k {
	case KindTitle:
		c.Title++
		c.Subtitle = 0
		return c.Title
	case KindSubtitle:
		c.Subtitle++
		return c.Subtitle
	}
	return 0
}

// Transformer classifies source lines into blocks.
type Transformer struct {
	IndentThreshold int // bullet indent at or above which a bullet is Level2
	TabWidth        int // a leading tab advances to the next multiple of TabWidth
}

// NewTransformer returns a Transformer with the default thresholds.
func NewTransformer() *Transformer {
	return &Transformer{
		IndentThreshold: DefaultIndentThreshold,
		TabWidth:        DefaultTabWidth,
	}
}

// Transform classifies every line with fresh counters. It never fails and
// yields exactly one block per line, blank lines included.
func (t *Transformer) Transform(lines []string) []Block {
	var c Counters
	blocks := make([]Block, 0, len(lines))
	for _, line := range lines {
		blocks = append(blocks, t.Classify(line, &c))
	}
	return blocks
}

// TransformText splits text on newlines and transforms the result.
// A trailing carriage return on each line is dropped.
func (t *Transformer) TransformText(text string) []Block {
	return t.Transform(SplitLines(text))
}

// Classify maps one line to a block, advancing c as required. Control
// characters that XML cannot carry are dropped.
func (t *Transformer) Classify(line string, c *Counters) Block {
	line = dropNonXML(line)
	trimmed := strings.TrimSpace(line)

	switch {
	case trimmed == "":
		return Block{Kind: KindPlain, Spacer: true}

	case strings.HasPrefix(trimmed, TitleMarker):
		return t.block(KindTitle, trimmed[len(TitleMarker):], c)

	case strings.HasPrefix(trimmed, SubtitleMarker):
		return t.block(KindSubtitle, trimmed[len(SubtitleMarker):], c)

	case strings.HasPrefix(trimmed, BulletMarker):
		kind := KindLevel1
		if t.indentWidth(line) >= t.threshold() {
			kind = KindLevel2
		}
		return t.block(kind, trimmed[len(BulletMarker):], c)

	case strings.HasPrefix(trimmed, NoteMarker):
		return t.block(KindNote, trimmed[len(NoteMarker):], c)
	}

	return t.block(KindPlain, trimmed, c)
}

func (t *Transformer) block(k Kind, content string, c *Counters) Block {
	text, spans := splitEmphasis(stripWritten(k, strings.TrimSpace(content)))
	return Block{
		Kind:  k,
		Text:  text,
		Spans: spans,
		Seq:   c.Next(k),
	}
}

// stripWritten drops prefixes the author already typed, such as the "Ⅰ." in
// "# Ⅰ. 개요", so the rendered prefix is not doubled. Content that is nothing
// but a prefix is kept as text.
func stripWritten(k Kind, content string) string {
	for {
		next := strings.TrimSpace(StripPrefix(k, content))
		if next == content || next == "" {
			return content
		}
		content = next
	}
}

func dropNonXML(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t', r == '\n', r == '\r':
			return r
		case r < 0x20, r == 0xFFFE, r == 0xFFFF:
			return -1
		}
		return r
	}, s)
}

func (t *Transformer) threshold() int {
	if t.IndentThreshold <= 0 {
		return DefaultIndentThreshold
	}
	return t.IndentThreshold
}

// indentWidth measures leading whitespace in columns.
func (t *Transformer) indentWidth(line string) int {
	tab := t.TabWidth
	if tab <= 0 {
		tab = DefaultTabWidth
	}
	width := 0
	for _, r := range line {
		switch r {
		case ' ':
			width++
		case '\t':
			width += tab - width%tab
		default:
			if unicode.IsSpace(r) {
				width++
				continue
			}
			return width
		}
	}
	return width
}

// SplitLines splits text on "\n" and drops a trailing "\r" from each line.
func SplitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
