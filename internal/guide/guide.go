// Package guide produces the writing guide and the drafting prompt that
// teach authors which source markers map to which report levels.
//
// Both are derived from a style snapshot so the rendered prefixes and
// font sizes always match what a conversion would produce.
package guide

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/FocuswithJustin/hwpxreport/core/report"
)

// Mapping describes how one source marker renders.
type Mapping struct {
	Kind        report.Kind `json:"kind"`
	Markdown    string      `json:"markdown"`
	Output      string      `json:"output"`
	FontSize    int         `json:"font_size"`
	Bold        bool        `json:"bold"`
	Description string      `json:"description"`
}

// Guide is the structured writing guide.
type Guide struct {
	Mappings     []Mapping `json:"mappings"`
	ExampleInput string    `json:"example_input"`
	Notes        []string  `json:"notes"`
}

var descriptions = map[report.Kind]string{
	report.KindTitle:    "대제목",
	report.KindSubtitle: "중제목",
	report.KindLevel1:   "1단계 항목",
	report.KindLevel2:   "2단계 항목",
	report.KindNote:     "주석",
}

// Example is a short report source exercising every level.
const Example = `# '25년 평가 및 향후 업무추진방향

## '25년 성과 및 보완점

- 교육·돌봄에 대한 **국가책임의 강화**
    - 국가책임형 유아 교육·보육 실현

> '25년 7월부터 만 5세 무상교육·보육 실시
`

var notes = []string{
	fmt.Sprintf("들여쓰기는 %d칸 공백으로 합니다. 탭은 %d칸으로 계산됩니다.", report.DefaultIndentThreshold, report.DefaultTabWidth),
	"볼드체는 **텍스트** 형식으로 표시합니다.",
	"특수문자(「」, ~ 등)는 그대로 유지됩니다.",
	"표시가 없는 줄은 본문으로 그대로 출력됩니다.",
}

// New builds the guide for the given styles.
func New(s report.Settings) Guide {
	g := Guide{
		ExampleInput: Example,
		Notes:        append([]string(nil), notes...),
	}
	for _, k := range report.Kinds() {
		if k == report.KindPlain {
			continue
		}
		style := s.Level(k)
		seq := 0
		if k.Numbered() {
			seq = 1
		}
		g.Mappings = append(g.Mappings, Mapping{
			Kind:        k,
			Markdown:    report.Block{Kind: k, Text: "항목"}.Source(),
			Output:      strings.TrimSpace(report.Prefix(k, seq, s) + " 항목"),
			FontSize:    style.FontSize,
			Bold:        style.Bold,
			Description: describe(k, style),
		})
	}
	return g
}

func describe(k report.Kind, style report.LevelStyle) string {
	d := fmt.Sprintf("%s (%gpt", descriptions[k], float64(style.FontSize)/100)
	if style.Bold {
		d += " 굵게"
	}
	return d + ")"
}

// Markdown renders the guide as a GFM document.
func (g Guide) Markdown() string {
	var b strings.Builder
	b.WriteString("# 보고서 작성 가이드\n\n")
	b.WriteString("| 입력 | 출력 | 설명 |\n")
	b.WriteString("|------|------|------|\n")
	for _, m := range g.Mappings {
		fmt.Fprintf(&b, "| `%s` | %s | %s |\n", cell(m.Markdown), cell(m.Output), cell(m.Description))
	}
	b.WriteString("\n## 예시\n\n```markdown\n")
	b.WriteString(g.ExampleInput)
	b.WriteString("```\n\n## 참고\n\n")
	for _, n := range g.Notes {
		b.WriteString("- ")
		b.WriteString(strings.ReplaceAll(n, "**", `\*\*`))
		b.WriteString("\n")
	}
	return b.String()
}

// cell keeps table cells on one row.
func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

const pageStyle = `body{font-family:"맑은 고딕",sans-serif;max-width:48rem;margin:2rem auto;line-height:1.6}` +
	`table{border-collapse:collapse}th,td{border:1px solid #ccc;padding:.3rem .6rem}` +
	`pre{background:#f5f5f5;padding:1rem;overflow:auto}`

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// HTML renders the guide as a standalone HTML page. Raw HTML in the source
// is not passed through.
func (g Guide) HTML() ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(g.Markdown()), &body); err != nil {
		return nil, fmt.Errorf("render guide: %w", err)
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html lang=\"ko\">\n<head>\n<meta charset=\"utf-8\">\n")
	page.WriteString("<title>보고서 작성 가이드</title>\n<style>")
	page.WriteString(pageStyle)
	page.WriteString("</style>\n</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}
