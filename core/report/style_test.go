package report

import (
	"encoding/json"
	"testing"

	"github.com/FocuswithJustin/hwpxreport/core/errors"
)

func TestDefaults(t *testing.T) {
	s := Defaults()
	if err := s.Validate(); err != nil {
		t.Fatalf("Defaults().Validate() = %v", err)
	}

	tests := []struct {
		kind Kind
		size int
		bold bool
		font string
	}{
		{KindTitle, 1800, true, FontHeadline},
		{KindSubtitle, 1500, true, FontBody},
		{KindLevel1, 1300, true, FontBody},
		{KindLevel2, 1200, false, FontBody},
		{KindNote, 1000, false, FontNote},
		{KindPlain, 1200, false, FontBody},
	}
	for _, tt := range tests {
		got := s.Level(tt.kind)
		if got.FontSize != tt.size || got.Bold != tt.bold || got.Font != tt.font {
			t.Errorf("%s = %+v", tt.kind, got)
		}
	}
}

func TestResolveMergeOrder(t *testing.T) {
	template := Fragment{
		KindTitle:  {FontSize: IntPtr(2000), Bold: BoolPtr(false)},
		KindLevel1: {Bullet: StringPtr("■")},
	}
	overrides := Fragment{
		KindTitle: {Bold: BoolPtr(true), Bullet: StringPtr(NumberingNumber)},
	}

	s, err := Resolve(overrides, template)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	title := s.Level(KindTitle)
	if title.FontSize != 2000 {
		t.Errorf("title size = %d, want template value 2000", title.FontSize)
	}
	if !title.Bold {
		t.Error("caller override should win over template bold=false")
	}
	if title.Bullet != NumberingNumber {
		t.Errorf("title bullet = %q", title.Bullet)
	}
	if got := s.Level(KindLevel1).Bullet; got != "■" {
		t.Errorf("level1 bullet = %q, want template glyph", got)
	}
	if got := s.Level(KindNote); got != Defaults().Level(KindNote) {
		t.Errorf("note should keep defaults, got %+v", got)
	}
}

func TestResolveRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		frag Fragment
	}{
		{"unknown numbering", Fragment{KindTitle: {Bullet: StringPtr("roman")}}},
		{"glyph outside class", Fragment{KindLevel1: {Bullet: StringPtr("@")}}},
		{"empty numbering", Fragment{KindTitle: {Bullet: StringPtr("")}}},
		{"plain bullet", Fragment{KindPlain: {Bullet: StringPtr("□")}}},
		{"tiny font", Fragment{KindLevel2: {FontSize: IntPtr(0)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.frag, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			var verr *errors.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("error = %T, want *ValidationError", err)
			}
		})
	}
}

func TestResolveAcceptsEmptyGlyph(t *testing.T) {
	s, err := Resolve(Fragment{
		KindLevel1: {Bullet: StringPtr("")},
		KindNote:   {Bullet: StringPtr("")},
	}, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	for _, k := range []Kind{KindLevel1, KindNote} {
		if got := Prefix(k, 0, s); got != "" {
			t.Errorf("Prefix(%s) = %q, want none", k, got)
		}
		b := Block{Kind: k, Text: "항목"}
		if got := b.Render(s); got != "항목" {
			t.Errorf("%s Render() = %q, want bare text", k, got)
		}
	}
}

func TestSettingsAreImmutable(t *testing.T) {
	base := Defaults()
	changed := base.With(KindLevel1, LevelStyle{Bullet: "■", FontSize: 1400})
	if base.Level(KindLevel1).Bullet != "□" {
		t.Error("With() modified the receiver")
	}
	if changed.Level(KindLevel1).Bullet != "■" {
		t.Error("With() did not apply the change")
	}

	applied := base.Apply(Fragment{KindNote: {Bullet: StringPtr("※")}})
	if base.Level(KindNote).Bullet != "*" || applied.Level(KindNote).Bullet != "※" {
		t.Error("Apply() should return a modified copy only")
	}
}

func TestPrefixIsPureFunction(t *testing.T) {
	s := Defaults()
	b := Block{Kind: KindTitle, Text: "A", Seq: 3}
	if got := b.Render(s); got != "Ⅲ. A" {
		t.Errorf("Render() = %q", got)
	}
	alpha := s.With(KindTitle, LevelStyle{Bullet: NumberingAlpha, FontSize: 1800})
	if got := b.Render(alpha); got != "C. A" {
		t.Errorf("Render() with alpha = %q", got)
	}
}

func TestNumeral(t *testing.T) {
	tests := []struct {
		mode string
		seq  int
		want string
	}{
		{NumberingOrdinal, 1, "Ⅰ."},
		{NumberingOrdinal, 10, "Ⅹ."},
		{NumberingOrdinal, 11, "11."},
		{NumberingCircled, 1, "①"},
		{NumberingCircled, 11, "(11)"},
		{NumberingNumber, 7, "7."},
		{NumberingAlpha, 2, "B."},
		{NumberingAlpha, 27, "27."},
	}
	for _, tt := range tests {
		if got := Numeral(tt.mode, tt.seq); got != tt.want {
			t.Errorf("Numeral(%s, %d) = %q, want %q", tt.mode, tt.seq, got, tt.want)
		}
	}
}

func TestStripPrefix(t *testing.T) {
	tests := []struct {
		kind Kind
		in   string
		want string
	}{
		{KindTitle, "Ⅰ. A", "A"},
		{KindTitle, "11. A", "A"},
		{KindTitle, "B. 1. nested", "1. nested"},
		{KindSubtitle, "① B", "B"},
		{KindSubtitle, "(12) B", "B"},
		{KindLevel1, "□ C", "C"},
		{KindLevel1, "■ C", "C"},
		{KindLevel2, "ㅇ D", "D"},
		{KindNote, "* E", "E"},
		{KindNote, "※ E", "E"},
		{KindPlain, "□ stays", "□ stays"},
		{KindTitle, "Ⅰ.", ""},
	}
	for _, tt := range tests {
		if got := StripPrefix(tt.kind, tt.in); got != tt.want {
			t.Errorf("StripPrefix(%s, %q) = %q, want %q", tt.kind, tt.in, got, tt.want)
		}
	}
}

func TestFragmentJSON(t *testing.T) {
	frag, err := ParseFragmentJSON([]byte(`{"title": {"bullet": "circled", "font_size": 2000}, "note": {"bold": true}}`))
	if err != nil {
		t.Fatalf("ParseFragmentJSON() error = %v", err)
	}
	if *frag[KindTitle].Bullet != NumberingCircled || *frag[KindTitle].FontSize != 2000 {
		t.Errorf("title override = %+v", frag[KindTitle])
	}
	if !*frag[KindNote].Bold {
		t.Error("note bold override missing")
	}

	if _, err := ParseFragmentJSON([]byte(`{"heading": {}}`)); err == nil {
		t.Error("expected error for unknown kind")
	}
	if frag, err := ParseFragmentJSON(nil); err != nil || frag != nil {
		t.Errorf("empty input = %v, %v", frag, err)
	}
}

func TestSettingsJSON(t *testing.T) {
	data, err := json.Marshal(Defaults())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]LevelStyle
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["title"].Bullet != NumberingOrdinal || decoded["level2"].Bullet != "ㅇ" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestFragmentMerge(t *testing.T) {
	low := Fragment{KindTitle: {FontSize: IntPtr(1000), Bold: BoolPtr(true)}}
	high := Fragment{KindTitle: {FontSize: IntPtr(2000)}}
	merged := low.Merge(high)
	if *merged[KindTitle].FontSize != 2000 || !*merged[KindTitle].Bold {
		t.Errorf("Merge() = %+v", merged[KindTitle])
	}
}

func TestFragmentFromNames(t *testing.T) {
	frag, err := FragmentFromNames(map[string]Override{
		"Title":  {FontSize: IntPtr(2000)},
		"level1": {Bullet: StringPtr("■")},
	})
	if err != nil {
		t.Fatalf("FragmentFromNames() error = %v", err)
	}
	if *frag[KindTitle].FontSize != 2000 || *frag[KindLevel1].Bullet != "■" {
		t.Errorf("fragment = %+v", frag)
	}

	if _, err := FragmentFromNames(map[string]Override{"heading": {}}); err == nil {
		t.Error("unknown kind should fail")
	}
	if f, err := FragmentFromNames(nil); f != nil || err != nil {
		t.Errorf("FragmentFromNames(nil) = %v, %v", f, err)
	}
}

func TestParseSettingsJSONRoundTrip(t *testing.T) {
	s := Defaults().
		With(KindSubtitle, LevelStyle{Bullet: NumberingNumber, FontSize: 1400}).
		With(KindPlain, LevelStyle{FontSize: 1100})

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseSettingsJSON(data)
	if err != nil {
		t.Fatalf("ParseSettingsJSON() error = %v", err)
	}
	for _, k := range Kinds() {
		if got.Level(k) != s.Level(k) {
			t.Errorf("%s = %+v, want %+v", k, got.Level(k), s.Level(k))
		}
	}

	if _, err := ParseSettingsJSON([]byte("[")); err == nil {
		t.Error("malformed snapshot should fail")
	}
}
