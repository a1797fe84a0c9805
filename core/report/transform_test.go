package report

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestTransformScenario(t *testing.T) {
	lines := []string{"# A", "## B", "- C", "    - D", "> E"}
	blocks := NewTransformer().Transform(lines)

	want := []Block{
		{Kind: KindTitle, Text: "A", Seq: 1},
		{Kind: KindSubtitle, Text: "B", Seq: 1},
		{Kind: KindLevel1, Text: "C"},
		{Kind: KindLevel2, Text: "D"},
		{Kind: KindNote, Text: "E"},
	}
	if !reflect.DeepEqual(blocks, want) {
		t.Fatalf("Transform() = %+v, want %+v", blocks, want)
	}

	doc := &Document{Blocks: blocks, Styles: Defaults()}
	rendered := doc.Lines()
	wantLines := []string{"Ⅰ. A", "① B", "□ C", "ㅇ D", "* E"}
	if !reflect.DeepEqual(rendered, wantLines) {
		t.Errorf("Lines() = %q, want %q", rendered, wantLines)
	}
}

func TestTransformIsTotal(t *testing.T) {
	inputs := [][]string{
		nil,
		{""},
		{"", "", ""},
		{"#", "##", "-", ">", "#nospace", "plain text"},
		{"   ", "\t", "# ok", "random **unterminated"},
		{"#### deep heading", "-- dash", ">> quote", "* star"},
	}
	tr := NewTransformer()
	for _, lines := range inputs {
		blocks := tr.Transform(lines)
		if len(blocks) != len(lines) {
			t.Errorf("Transform(%q) produced %d blocks, want %d", lines, len(blocks), len(lines))
		}
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		line string
		kind Kind
		text string
	}{
		{"# Title", KindTitle, "Title"},
		{"  # Indented title", KindTitle, "Indented title"},
		{"## Subtitle", KindSubtitle, "Subtitle"},
		{"### Three", KindPlain, "### Three"},
		{"- item", KindLevel1, "item"},
		{"   - three spaces", KindLevel1, "three spaces"},
		{"    - four spaces", KindLevel2, "four spaces"},
		{"\t- tab", KindLevel2, "tab"},
		{"> note", KindNote, "note"},
		{"#", KindPlain, "#"},
		{"-", KindPlain, "-"},
		{"just text  ", KindPlain, "just text"},
	}

	tr := NewTransformer()
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			var c Counters
			b := tr.Classify(tt.line, &c)
			if b.Kind != tt.kind {
				t.Errorf("Classify(%q).Kind = %s, want %s", tt.line, b.Kind, tt.kind)
			}
			if b.Text != tt.text {
				t.Errorf("Classify(%q).Text = %q, want %q", tt.line, b.Text, tt.text)
			}
		})
	}
}

func TestBlankLinesAreSpacers(t *testing.T) {
	blocks := NewTransformer().Transform([]string{"# A", "", "   ", "body"})
	for _, i := range []int{1, 2} {
		if !blocks[i].Spacer || blocks[i].Kind != KindPlain {
			t.Errorf("block %d = %+v, want plain spacer", i, blocks[i])
		}
	}
	if blocks[3].Spacer {
		t.Error("body line should not be a spacer")
	}
}

func TestSubtitleCounterResetsOnTitle(t *testing.T) {
	blocks := NewTransformer().Transform([]string{"# T1", "## S1", "## S2", "# T2", "## S3"})
	if blocks[2].Seq != 2 {
		t.Errorf("second subtitle seq = %d, want 2", blocks[2].Seq)
	}
	if blocks[3].Seq != 2 {
		t.Errorf("second title seq = %d, want 2", blocks[3].Seq)
	}
	if blocks[4].Seq != 1 {
		t.Errorf("subtitle after new title seq = %d, want 1", blocks[4].Seq)
	}
}

func TestEleventhTitleFallsBack(t *testing.T) {
	var lines []string
	for i := 1; i <= 11; i++ {
		lines = append(lines, fmt.Sprintf("# T%d", i), "## S")
	}
	doc := NewDocument(NewTransformer(), strings.Join(lines, "\n"), Defaults())
	rendered := doc.Lines()

	if got := rendered[18]; got != "Ⅹ. T10" {
		t.Errorf("10th title = %q, want %q", got, "Ⅹ. T10")
	}
	if got := rendered[20]; got != "11. T11" {
		t.Errorf("11th title = %q, want %q", got, "11. T11")
	}
}

func TestCircledFallback(t *testing.T) {
	lines := []string{"# T"}
	for i := 0; i < 11; i++ {
		lines = append(lines, "## S")
	}
	doc := &Document{Blocks: NewTransformer().Transform(lines), Styles: Defaults()}
	rendered := doc.Lines()
	if got := rendered[10]; got != "⑩ S" {
		t.Errorf("10th subtitle = %q", got)
	}
	if got := rendered[11]; got != "(11) S" {
		t.Errorf("11th subtitle = %q, want %q", got, "(11) S")
	}
}

func TestCountersArePerPass(t *testing.T) {
	tr := NewTransformer()
	first := tr.Transform([]string{"# A", "# B"})
	second := tr.Transform([]string{"# C"})
	if first[1].Seq != 2 || second[0].Seq != 1 {
		t.Errorf("counters leaked between passes: %d, %d", first[1].Seq, second[0].Seq)
	}
}

func TestEmphasis(t *testing.T) {
	tests := []struct {
		in    string
		text  string
		spans []Span
	}{
		{"plain", "plain", nil},
		{"a **b** c", "a b c", []Span{{2, 3}}},
		{"**a****b**", "ab", []Span{{0, 1}, {1, 2}}},
		{"open **never closed", "open **never closed", nil},
		{"**x** and **y", "x and **y", []Span{{0, 1}}},
		{"empty **** pair", "empty **** pair", nil},
		{"**중요** 사항", "중요 사항", []Span{{0, len("중요")}}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			text, spans := splitEmphasis(tt.in)
			if text != tt.text {
				t.Errorf("text = %q, want %q", text, tt.text)
			}
			if !reflect.DeepEqual(spans, tt.spans) {
				t.Errorf("spans = %v, want %v", spans, tt.spans)
			}
			if back := joinEmphasis(text, spans); back != tt.in {
				t.Errorf("joinEmphasis() = %q, want %q", back, tt.in)
			}
		})
	}
}

func TestEmphasisSurvivesPrefix(t *testing.T) {
	b := NewTransformer().Transform([]string{"- **key** point"})[0]
	if got := b.Render(Defaults()); got != "□ **key** point" {
		t.Errorf("Render() = %q", got)
	}
	segs := b.Segments()
	if len(segs) != 2 || !segs[0].Bold || segs[0].Text != "key" || segs[1].Text != " point" {
		t.Errorf("Segments() = %+v", segs)
	}
}

func TestSplitLinesDropsCarriageReturn(t *testing.T) {
	got := SplitLines("# A\r\n- B\r\n")
	want := []string{"# A", "- B", ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitLines() = %q, want %q", got, want)
	}
}

func TestMarkdownForEngine(t *testing.T) {
	doc := NewDocument(NewTransformer(), "# A\n## B\n- C\n    - D\n> E\n\ntext", Defaults())
	want := "# Ⅰ. A\n## ① B\n- □ C\n    - ㅇ D\n> * E\n\ntext"
	if got := doc.Markdown(); got != want {
		t.Errorf("Markdown() =\n%s\nwant\n%s", got, want)
	}

	raw := RawDocument("# untouched", Defaults())
	if got := raw.Markdown(); got != "# untouched" {
		t.Errorf("raw Markdown() = %q", got)
	}
}

func TestClassifyDropsControlCharacters(t *testing.T) {
	tests := []struct {
		line   string
		kind   Kind
		text   string
		spacer bool
	}{
		{"x\x01y", KindPlain, "xy", false},
		{"# a\x00b", KindTitle, "ab", false},
		{"-\x02 item", KindLevel1, "item", false},
		{"\x1f\x1e", KindPlain, "", true},
		{"> tab\tkept", KindNote, "tab\tkept", false},
	}
	tr := NewTransformer()
	for _, tt := range tests {
		var c Counters
		b := tr.Classify(tt.line, &c)
		if b.Kind != tt.kind || b.Text != tt.text || b.Spacer != tt.spacer {
			t.Errorf("Classify(%q) = %+v, want kind %s text %q spacer %v", tt.line, b, tt.kind, tt.text, tt.spacer)
		}
	}
	if got := tr.TransformText("a\x01\nb"); len(got) != 2 {
		t.Errorf("TransformText() = %d blocks, want 2", len(got))
	}
}

func TestWrittenPrefixesAreNotDoubled(t *testing.T) {
	tests := []struct {
		line string
		text string
		want string
	}{
		{"# Ⅰ. 개요", "개요", "Ⅰ. 개요"},
		{"# Ⅲ. Ⅳ. 중복", "중복", "Ⅰ. 중복"},
		{"## ① 배경", "배경", "① 배경"},
		{"## (12) 세부", "세부", "① 세부"},
		{"- □ 항목", "항목", "□ 항목"},
		{"- - dash", "dash", "□ dash"},
		{"    - ㅇ 하위", "하위", "ㅇ 하위"},
		{"> * 주석", "주석", "* 주석"},
		{"> ※ 참고", "참고", "* 참고"},
		{"- □", "□", "□ □"},
		{"- **굵게** 시작", "굵게 시작", "□ **굵게** 시작"},
		{"Ⅰ. plain keeps it", "Ⅰ. plain keeps it", "Ⅰ. plain keeps it"},
	}
	tr := NewTransformer()
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			var c Counters
			b := tr.Classify(tt.line, &c)
			if b.Text != tt.text {
				t.Errorf("Text = %q, want %q", b.Text, tt.text)
			}
			if got := b.Render(Defaults()); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
			again := tr.Classify(b.Source(), &Counters{})
			if !b.Equal(again) {
				t.Errorf("Source() %q re-reads as %+v", b.Source(), again)
			}
		})
	}
}

func TestSourceRoundTrip(t *testing.T) {
	src := []string{"# A", "## **B** c", "- C", "    - D", "> E", "", "plain"}
	tr := NewTransformer()
	blocks := tr.Transform(src)
	var back []string
	for _, b := range blocks {
		back = append(back, b.Source())
	}
	again := tr.Transform(back)
	for i := range blocks {
		if !blocks[i].Equal(again[i]) {
			t.Errorf("block %d: %+v != %+v", i, blocks[i], again[i])
		}
	}
}
