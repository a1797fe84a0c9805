package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/hwpxreport/core/errors"
)

// styleSpecGrammar parses compact style overrides.
// Examples: "title=circled:18:bold", "level1=■:13; note=※:\"맑은 고딕\""
//
//nolint:govet // participle grammar tags are not standard struct tags
type styleSpecGrammar struct {
	Entries []*styleEntry `parser:"@@ ( \";\" @@ )*"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type styleEntry struct {
	Kind  string       `parser:"@Ident \"=\""`
	Attrs []*styleAttr `parser:"@@ ( \":\" @@ )*"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type styleAttr struct {
	Font   *string `parser:"  @String"`
	Points *string `parser:"| @Number"`
	Word   *string `parser:"| @Ident"`
	Glyph  *string `parser:"| @Glyph"`
}

// styleSpecLexer tokenizes style specs. Glyph matches any run of non-ASCII
// or punctuation characters that is not a separator.
var styleSpecLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"[^"]*"`},
	{Name: "Ident", Pattern: `[A-Za-z][A-Za-z0-9_]*`},
	{Name: "Number", Pattern: `[0-9]+(?:\.[0-9]+)?`},
	{Name: "Punct", Pattern: `[=:;]`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Glyph", Pattern: `[^\sA-Za-z0-9=:;"]+`},
})

var styleSpecParser = participle.MustBuild[styleSpecGrammar](
	participle.Lexer(styleSpecLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
)

// ParseStyleSpec parses a compact style override string. Each entry names a
// kind and a colon-separated list of attributes: a numbering scheme or glyph,
// a point size, "bold" or "regular", or a quoted font face.
func ParseStyleSpec(spec string) (Fragment, error) {
	spec = strings.TrimSpace(spec)
	spec = strings.TrimSpace(strings.TrimSuffix(spec, ";"))
	if spec == "" {
		return Fragment{}, nil
	}

	parsed, err := styleSpecParser.ParseString("", spec)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:   "styles",
			Value:   spec,
			Message: fmt.Sprintf("invalid style spec: %v", err),
			Err:     err,
		}
	}

	frag := make(Fragment, len(parsed.Entries))
	for _, entry := range parsed.Entries {
		kind, ok := ParseKind(entry.Kind)
		if !ok {
			return nil, errors.NewValidation("styles", fmt.Sprintf("unknown block kind %q", entry.Kind))
		}
		o := frag[kind]
		for _, attr := range entry.Attrs {
			if err := attr.apply(&o); err != nil {
				return nil, err
			}
		}
		frag[kind] = o
	}
	return frag, nil
}

func (a *styleAttr) apply(o *Override) error {
	switch {
	case a.Font != nil:
		o.Font = StringPtr(*a.Font)
	case a.Points != nil:
		pt, err := strconv.ParseFloat(*a.Points, 64)
		if err != nil {
			return errors.NewValidation("styles", fmt.Sprintf("invalid size %q", *a.Points))
		}
		o.FontSize = IntPtr(int(math.Round(pt * 100)))
	case a.Word != nil:
		word := strings.ToLower(*a.Word)
		switch {
		case word == "bold":
			o.Bold = BoolPtr(true)
		case word == "regular" || word == "normal":
			o.Bold = BoolPtr(false)
		case IsNumberingMode(word):
			o.Bullet = StringPtr(word)
		default:
			return errors.NewValidation("styles", fmt.Sprintf("unknown style attribute %q", *a.Word))
		}
	case a.Glyph != nil:
		o.Bullet = StringPtr(*a.Glyph)
	}
	return nil
}
