// Package encoding provides shared escaping for hand-built XML.
package encoding

import (
	"bytes"
	"encoding/xml"
	"strings"
)

// EscapeXML escapes text with encoding/xml, which also escapes quotes,
// apostrophes, and control whitespace as numeric references.
func EscapeXML(s string) string {
	var buf bytes.Buffer
	// Writes to a bytes.Buffer do not fail.
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

// EscapeXMLText escapes the entities that matter in element content.
func EscapeXMLText(s string) string {
	return textEscaper.Replace(s)
}

// EscapeXMLAttr escapes a value for a double-quoted attribute.
func EscapeXMLAttr(s string) string {
	return attrEscaper.Replace(s)
}
