package hwpx

import (
	"strconv"
	"strings"

	"github.com/FocuswithJustin/hwpxreport/core/errors"
	"github.com/FocuswithJustin/hwpxreport/core/report"
	corexml "github.com/FocuswithJustin/hwpxreport/core/xml"
)

// outlineKinds maps the "Outline N" paragraph styles to block kinds.
var outlineKinds = map[string]report.Kind{
	"Outline 1": report.KindTitle,
	"Outline 2": report.KindSubtitle,
	"Outline 3": report.KindLevel1,
	"Outline 4": report.KindLevel2,
	"Outline 5": report.KindNote,
	"개요 1":      report.KindTitle,
	"개요 2":      report.KindSubtitle,
	"개요 3":      report.KindLevel1,
	"개요 4":      report.KindLevel2,
	"개요 5":      report.KindNote,
	"Normal":    report.KindPlain,
	"바탕글":       report.KindPlain,
}

// ExtractStyles reads outline styles from a header.xml and returns them as a
// fragment carrying font size, weight, and face. Bullets are never taken from
// a template.
func ExtractStyles(header []byte) (report.Fragment, error) {
	doc, err := corexml.Parse(header)
	if err != nil {
		return nil, &errors.ParseError{Format: "template header", Message: "header is not well-formed XML", Err: err}
	}

	styles, err := doc.XPath("//*[local-name()='style']")
	if err != nil {
		return nil, err
	}

	frag := report.Fragment{}
	for _, st := range styles {
		kind, ok := outlineKind(st)
		if !ok {
			continue
		}
		if _, seen := frag[kind]; seen {
			continue
		}
		ref := st.Attr("charPrIDRef")
		if ref == "" {
			continue
		}
		charPr, err := doc.XPathFirst("//*[local-name()='charPr'][@id='" + quoteXPath(ref) + "']")
		if err != nil || charPr == nil {
			continue
		}
		frag[kind] = overrideFor(doc, charPr)
	}
	return frag, nil
}

func outlineKind(style *corexml.Node) (report.Kind, bool) {
	for _, attr := range []string{"engName", "name"} {
		if k, ok := outlineKinds[strings.TrimSpace(style.Attr(attr))]; ok {
			return k, true
		}
	}
	return report.KindPlain, false
}

func overrideFor(doc *corexml.Document, charPr *corexml.Node) report.Override {
	var o report.Override

	if h, err := strconv.Atoi(charPr.Attr("height")); err == nil && h >= report.MinFontSize && h <= report.MaxFontSize {
		o.FontSize = report.IntPtr(h)
	}

	bold, _ := charPr.XPath("*[local-name()='bold']")
	o.Bold = report.BoolPtr(len(bold) > 0)

	refs, _ := charPr.XPath("*[local-name()='fontRef']")
	if len(refs) > 0 {
		if id := refs[0].Attr("hangul"); id != "" {
			font, _ := doc.XPathFirst("//*[local-name()='fontface'][@lang='HANGUL']/*[local-name()='font'][@id='" + quoteXPath(id) + "']")
			if font != nil && font.Attr("face") != "" {
				o.Font = report.StringPtr(font.Attr("face"))
			}
		}
	}
	return o
}

// quoteXPath drops characters that would terminate a single-quoted literal.
func quoteXPath(s string) string {
	return strings.ReplaceAll(s, "'", "")
}
