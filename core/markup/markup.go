// Package markup converts leveled report blocks to an annotated structural
// markup used by live editors, and back to source lines.
//
// The markup is one <p> element per block, tagged with its kind and carrying
// the rendered prefix followed by the inline content. Bold runs are <b>
// elements. The reverse path strips prefixes with kind-wide patterns, so a
// document edited against one style set exports cleanly under another.
package markup

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/hwpxreport/core/errors"
	"github.com/FocuswithJustin/hwpxreport/core/report"
	corexml "github.com/FocuswithJustin/hwpxreport/core/xml"
)

// Version is written to the root element of every document.
const Version = "1"

const (
	rootElement      = "document"
	paragraphElement = "p"
	boldElement      = "b"
)

// ToMarkup renders blocks under s. It performs no I/O and cannot fail.
func ToMarkup(blocks []report.Block, s report.Settings) []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<document version="` + Version + `">` + "\n")

	for _, b := range blocks {
		style := s.Level(b.Kind)
		buf.WriteString(`  <p kind="`)
		buf.WriteString(b.Kind.String())
		buf.WriteString(`" level="`)
		buf.WriteString(strconv.Itoa(b.Level()))
		buf.WriteByte('"')

		if b.Spacer {
			buf.WriteString(` spacer="true"/>` + "\n")
			continue
		}

		if b.Kind.Numbered() {
			writeAttr(&buf, "seq", strconv.Itoa(b.Seq))
		}
		writeAttr(&buf, "size", strconv.Itoa(style.FontSize))
		writeAttr(&buf, "bold", strconv.FormatBool(style.Bold))
		if style.Font != "" {
			writeAttr(&buf, "font", style.Font)
		}
		buf.WriteByte('>')

		if prefix := report.Prefix(b.Kind, b.Seq, s); prefix != "" {
			escape(&buf, prefix+" ")
		}
		for _, seg := range b.Segments() {
			if seg.Bold {
				buf.WriteString("<" + boldElement + ">")
				escape(&buf, seg.Text)
				buf.WriteString("</" + boldElement + ">")
				continue
			}
			escape(&buf, seg.Text)
		}
		buf.WriteString("</p>\n")
	}

	buf.WriteString("</document>\n")
	return buf.Bytes()
}

func writeAttr(buf *bytes.Buffer, name, value string) {
	buf.WriteByte(' ')
	buf.WriteString(name)
	buf.WriteString(`="`)
	escape(buf, value)
	buf.WriteByte('"')
}

func escape(buf *bytes.Buffer, s string) {
	// EscapeText only fails when the writer does; bytes.Buffer never does.
	_ = xml.EscapeText(buf, []byte(s))
}

// FromMarkup reconstructs source lines from markup. Unknown kinds degrade to
// plain text; malformed markup fails with a ParseError.
func FromMarkup(data []byte) ([]string, error) {
	doc, err := corexml.Parse(data)
	if err != nil {
		return nil, &errors.ParseError{Format: "markup", Message: "document is not well-formed XML", Err: err}
	}
	root := doc.Root()
	if root == nil || root.Name() != rootElement {
		return nil, errors.NewParse("markup", "", "missing <document> root element")
	}

	var lines []string
	for _, el := range root.Children() {
		if el.Name() != paragraphElement {
			continue
		}
		lines = append(lines, sourceLine(el))
	}
	return lines, nil
}

// Blocks parses markup and re-transforms the reconstructed source.
func Blocks(data []byte) ([]report.Block, error) {
	lines, err := FromMarkup(data)
	if err != nil {
		return nil, err
	}
	return report.NewTransformer().Transform(lines), nil
}

func sourceLine(el *corexml.Node) string {
	if el.Attr("spacer") == "true" {
		return ""
	}
	kind, ok := report.ParseKind(el.Attr("kind"))
	if !ok {
		kind = report.KindPlain
	}

	content := strings.TrimSpace(inline(el))
	content = strings.TrimSpace(report.StripPrefix(kind, content))
	if kind == report.KindPlain {
		return content
	}
	return marker(kind) + content
}

// inline flattens mixed content, turning <b> runs back into ** delimiters.
func inline(el *corexml.Node) string {
	var sb strings.Builder
	for _, n := range el.ChildNodes() {
		switch {
		case n.IsText():
			sb.WriteString(n.Data())
		case n.Name() == boldElement:
			sb.WriteString("**")
			sb.WriteString(n.InnerText())
			sb.WriteString("**")
		default:
			sb.WriteString(n.InnerText())
		}
	}
	return sb.String()
}

func marker(k report.Kind) string {
	switch k {
	case report.KindTitle:
		return report.TitleMarker
	case report.KindSubtitle:
		return report.SubtitleMarker
	case report.KindLevel1:
		return report.BulletMarker
	case report.KindLevel2:
		return strings.Repeat(" ", report.DefaultIndentThreshold) + report.BulletMarker
	case report.KindNote:
		return report.NoteMarker
	}
	return ""
}
