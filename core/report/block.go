package report

import "strings"

// Block is one logical unit of a leveled document.
//
// Text holds the inline content with emphasis delimiters removed; bold runs
// live in Spans. The rendered prefix is never stored on the block.
type Block struct {
	Kind   Kind   `json:"kind"`
	Text   string `json:"text"`
	Spans  []Span `json:"spans,omitempty"`
	Seq    int    `json:"seq,omitempty"`
	Spacer bool   `json:"spacer,omitempty"`
}

// Level returns the fixed depth of the block's kind.
func (b Block) Level() int {
	return b.Kind.Level()
}

// Inline returns Text with emphasis delimiters re-inserted.
func (b Block) Inline() string {
	return joinEmphasis(b.Text, b.Spans)
}

// Segments splits Text into plain and bold runs.
func (b Block) Segments() []Segment {
	return Segments(b.Text, b.Spans)
}

// Source returns the block in source marker syntax, the form Transform reads.
func (b Block) Source() string {
	if b.Spacer {
		return ""
	}
	return sourceMarker(b.Kind) + b.Inline()
}

// Render returns the block as a display line: prefix, a space, then inline text.
func (b Block) Render(s Settings) string {
	if b.Spacer {
		return ""
	}
	prefix := Prefix(b.Kind, b.Seq, s)
	if prefix == "" {
		return b.Inline()
	}
	return prefix + " " + b.Inline()
}

// Equal compares kind, sequence index, spacer flag, and text. Whitespace
// differences inside Text are ignored.
func (b Block) Equal(o Block) bool {
	return b.Kind == o.Kind &&
		b.Seq == o.Seq &&
		b.Spacer == o.Spacer &&
		normalizeSpace(b.Inline()) == normalizeSpace(o.Inline())
}

func sourceMarker(k Kind) string {
	switch k {
	case KindTitle:
		return TitleMarker
	case KindSubtitle:
		return SubtitleMarker
	case KindLevel1:
		return BulletMarker
	case KindLevel2:
		return strings.Repeat(" ", DefaultIndentThreshold) + BulletMarker
	case KindNote:
		return NoteMarker
	}
	return ""
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
