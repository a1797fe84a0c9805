package report

import "strings"

const emphasisMarker = "**"

// Span marks a bold run inside Block.Text as half-open byte offsets.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// splitEmphasis removes paired ** delimiters from s and reports the bold
// runs they enclosed. An unterminated opener and an empty pair stay literal.
func splitEmphasis(s string) (string, []Span) {
	if !strings.Contains(s, emphasisMarker) {
		return s, nil
	}

	var (
		out   strings.Builder
		spans []Span
		i     int
	)
	for {
		open := strings.Index(s[i:], emphasisMarker)
		if open < 0 {
			out.WriteString(s[i:])
			break
		}
		open += i
		rest := open + len(emphasisMarker)
		closing := strings.Index(s[rest:], emphasisMarker)
		if closing < 0 {
			out.WriteString(s[i:])
			break
		}
		closing += rest
		if closing == rest {
			// "****" carries no content.
			out.WriteString(s[i : closing+len(emphasisMarker)])
			i = closing + len(emphasisMarker)
			continue
		}

		out.WriteString(s[i:open])
		start := out.Len()
		out.WriteString(s[rest:closing])
		spans = append(spans, Span{Start: start, End: out.Len()})
		i = closing + len(emphasisMarker)
	}
	return out.String(), spans
}

// joinEmphasis is the inverse of splitEmphasis.
func joinEmphasis(text string, spans []Span) string {
	if len(spans) == 0 {
		return text
	}
	var out strings.Builder
	pos := 0
	for _, sp := range spans {
		if sp.Start < pos || sp.End > len(text) || sp.Start >= sp.End {
			continue
		}
		out.WriteString(text[pos:sp.Start])
		out.WriteString(emphasisMarker)
		out.WriteString(text[sp.Start:sp.End])
		out.WriteString(emphasisMarker)
		pos = sp.End
	}
	out.WriteString(text[pos:])
	return out.String()
}

// Segment is a run of inline text with a uniform weight.
type Segment struct {
	Text string
	Bold bool
}

// Segments splits text into plain and bold runs according to spans.
func Segments(text string, spans []Span) []Segment {
	if len(spans) == 0 {
		if text == "" {
			return nil
		}
		return []Segment{{Text: text}}
	}
	var segs []Segment
	pos := 0
	for _, sp := range spans {
		if sp.Start < pos || sp.End > len(text) || sp.Start >= sp.End {
			continue
		}
		if sp.Start > pos {
			segs = append(segs, Segment{Text: text[pos:sp.Start]})
		}
		segs = append(segs, Segment{Text: text[sp.Start:sp.End], Bold: true})
		pos = sp.End
	}
	if pos < len(text) {
		segs = append(segs, Segment{Text: text[pos:]})
	}
	return segs
}
