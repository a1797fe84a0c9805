package hwpx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/FocuswithJustin/hwpxreport/core/encoding"
	"github.com/FocuswithJustin/hwpxreport/core/report"
)

var outlineOrder = []struct {
	kind report.Kind
	name string
	eng  string
}{
	{report.KindPlain, "바탕글", "Normal"},
	{report.KindTitle, "개요 1", "Outline 1"},
	{report.KindSubtitle, "개요 2", "Outline 2"},
	{report.KindLevel1, "개요 3", "Outline 3"},
	{report.KindLevel2, "개요 4", "Outline 4"},
	{report.KindNote, "개요 5", "Outline 5"},
}

// Minimal builds a small, valid HWPX archive whose outline styles follow s.
// It serves as a starter reference template.
func Minimal(s report.Settings) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	// mimetype must be first and stored uncompressed.
	w, err := zw.CreateHeader(&zip.FileHeader{Name: MimeTypeEntry, Method: zip.Store})
	if err != nil {
		return nil, err
	}
	if _, err := w.Write([]byte(MimeType)); err != nil {
		return nil, err
	}

	entries := map[string]string{
		VersionEntry: `<?xml version="1.0" encoding="UTF-8"?><hv:HCFVersion xmlns:hv="http://www.hancom.co.kr/hwpml/2011/version" major="5" minor="1"/>`,
		ContainerXML: `<?xml version="1.0" encoding="UTF-8"?><ocf:container xmlns:ocf="urn:oasis:names:tc:opendocument:xmlns:container"><ocf:rootfiles><ocf:rootfile full-path="Contents/content.hpf" media-type="application/hwpml-package+xml"/></ocf:rootfiles></ocf:container>`,
		HeaderEntry:  headerXML(s),
		SectionEntry: `<?xml version="1.0" encoding="UTF-8"?><hs:sec xmlns:hs="http://www.hancom.co.kr/hwpml/2011/section"/>`,
	}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(entries[name])); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func headerXML(s report.Settings) string {
	var fonts []string
	fontIDs := map[string]int{}
	for _, o := range outlineOrder {
		face := s.Level(o.kind).Font
		if face == "" {
			continue
		}
		if _, ok := fontIDs[face]; !ok {
			fontIDs[face] = len(fonts)
			fonts = append(fonts, face)
		}
	}

	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	sb.WriteString(`<hh:head xmlns:hh="http://www.hancom.co.kr/hwpml/2011/head" version="1.4" secCnt="1"><hh:refList>`)

	fmt.Fprintf(&sb, `<hh:fontfaces itemCnt="1"><hh:fontface lang="HANGUL" fontCnt="%d">`, len(fonts))
	for i, face := range fonts {
		fmt.Fprintf(&sb, `<hh:font id="%d" face="%s" type="TTF"/>`, i, encoding.EscapeXMLAttr(face))
	}
	sb.WriteString(`</hh:fontface></hh:fontfaces>`)

	fmt.Fprintf(&sb, `<hh:charProperties itemCnt="%d">`, len(outlineOrder))
	for i, o := range outlineOrder {
		style := s.Level(o.kind)
		fmt.Fprintf(&sb, `<hh:charPr id="%d" height="%d">`, i, style.FontSize)
		if id, ok := fontIDs[style.Font]; ok {
			fmt.Fprintf(&sb, `<hh:fontRef hangul="%d"/>`, id)
		}
		if style.Bold {
			sb.WriteString(`<hh:bold/>`)
		}
		sb.WriteString(`</hh:charPr>`)
	}
	sb.WriteString(`</hh:charProperties>`)

	fmt.Fprintf(&sb, `<hh:styles itemCnt="%d">`, len(outlineOrder))
	for i, o := range outlineOrder {
		fmt.Fprintf(&sb, `<hh:style id="%d" type="PARA" name="%s" engName="%s" paraPrIDRef="%d" charPrIDRef="%d"/>`,
			i, o.name, o.eng, i, i)
	}
	sb.WriteString(`</hh:styles></hh:refList></hh:head>`)
	return sb.String()
}
