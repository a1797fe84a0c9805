package report

import (
	"encoding/json"
	"fmt"

	"github.com/FocuswithJustin/hwpxreport/core/errors"
)

// Font faces used by the default settings.
const (
	FontHeadline = "HY헤드라인M"
	FontBody     = "함초롱바탕"
	FontNote     = "맑은 고딕"
)

// Font size bounds in HWP units (1pt = 100 units).
const (
	MinFontSize = 100
	MaxFontSize = 9600
)

// LevelStyle is the rendering style of one block kind.
//
// For Title and Subtitle, Bullet names a numbering scheme. For Level1,
// Level2, and Note it is a literal glyph. Plain has no bullet.
type LevelStyle struct {
	Bullet   string `json:"bullet"`
	FontSize int    `json:"font_size"`
	Bold     bool   `json:"bold"`
	Font     string `json:"font,omitempty"`
}

// Settings is an immutable snapshot mapping every kind to its style.
// Methods return modified copies; the receiver is never changed.
type Settings struct {
	levels [kindCount]LevelStyle
}

// Defaults returns the built-in report styles.
func Defaults() Settings {
	var s Settings
	s.levels[KindTitle] = LevelStyle{Bullet: NumberingOrdinal, FontSize: 1800, Bold: true, Font: FontHeadline}
	s.levels[KindSubtitle] = LevelStyle{Bullet: NumberingCircled, FontSize: 1500, Bold: true, Font: FontBody}
	s.levels[KindLevel1] = LevelStyle{Bullet: "□", FontSize: 1300, Bold: true, Font: FontBody}
	s.levels[KindLevel2] = LevelStyle{Bullet: "ㅇ", FontSize: 1200, Font: FontBody}
	s.levels[KindNote] = LevelStyle{Bullet: "*", FontSize: 1000, Font: FontNote}
	s.levels[KindPlain] = LevelStyle{FontSize: 1200, Font: FontBody}
	return s
}

// Level returns the style of kind k. Unknown kinds get the Plain style.
func (s Settings) Level(k Kind) LevelStyle {
	if !k.Valid() {
		return s.levels[KindPlain]
	}
	return s.levels[k]
}

// With returns a copy of s with the style of k replaced.
func (s Settings) With(k Kind, style LevelStyle) Settings {
	if k.Valid() {
		s.levels[k] = style
	}
	return s
}

// Apply returns a copy of s with every field set in f overriding s.
func (s Settings) Apply(f Fragment) Settings {
	for k, o := range f {
		if !k.Valid() {
			continue
		}
		s.levels[k] = o.apply(s.levels[k])
	}
	return s
}

// Validate checks every level for an acceptable bullet and font size.
func (s Settings) Validate() error {
	for _, k := range Kinds() {
		style := s.levels[k]
		field := k.String()
		switch {
		case k.Numbered():
			if !IsNumberingMode(style.Bullet) {
				return &errors.ValidationError{
					Field:   field + ".bullet",
					Value:   style.Bullet,
					Message: fmt.Sprintf("unknown numbering scheme %q", style.Bullet),
				}
			}
		case k == KindPlain:
			if style.Bullet != "" {
				return &errors.ValidationError{
					Field:   field + ".bullet",
					Value:   style.Bullet,
					Message: "plain text has no bullet",
				}
			}
		default:
			// An empty glyph renders the block without a prefix.
			if style.Bullet != "" && !IsBulletGlyph(style.Bullet) {
				return &errors.ValidationError{
					Field:   field + ".bullet",
					Value:   style.Bullet,
					Message: fmt.Sprintf("unsupported bullet glyph %q", style.Bullet),
				}
			}
		}
		if style.FontSize < MinFontSize || style.FontSize > MaxFontSize {
			return &errors.ValidationError{
				Field:   field + ".font_size",
				Value:   fmt.Sprint(style.FontSize),
				Message: fmt.Sprintf("font size must be between %d and %d HWP units", MinFontSize, MaxFontSize),
			}
		}
	}
	return nil
}

// Map returns the styles keyed by kind.
func (s Settings) Map() map[Kind]LevelStyle {
	m := make(map[Kind]LevelStyle, kindCount)
	for _, k := range Kinds() {
		m[k] = s.levels[k]
	}
	return m
}

// MarshalJSON encodes the settings as an object keyed by kind name.
func (s Settings) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

// Override is a partial LevelStyle. Nil fields leave the base untouched.
type Override struct {
	Bullet   *string `json:"bullet,omitempty" yaml:"bullet,omitempty"`
	FontSize *int    `json:"font_size,omitempty" yaml:"font_size,omitempty"`
	Bold     *bool   `json:"bold,omitempty" yaml:"bold,omitempty"`
	Font     *string `json:"font,omitempty" yaml:"font,omitempty"`
}

func (o Override) apply(base LevelStyle) LevelStyle {
	if o.Bullet != nil {
		base.Bullet = *o.Bullet
	}
	if o.FontSize != nil {
		base.FontSize = *o.FontSize
	}
	if o.Bold != nil {
		base.Bold = *o.Bold
	}
	if o.Font != nil {
		base.Font = *o.Font
	}
	return base
}

func (o Override) merge(top Override) Override {
	if top.Bullet != nil {
		o.Bullet = top.Bullet
	}
	if top.FontSize != nil {
		o.FontSize = top.FontSize
	}
	if top.Bold != nil {
		o.Bold = top.Bold
	}
	if top.Font != nil {
		o.Font = top.Font
	}
	return o
}

// Fragment is a partial style set keyed by kind, such as caller overrides
// or styles extracted from a reference template.
type Fragment map[Kind]Override

// Merge returns a new fragment where fields from top win over f.
func (f Fragment) Merge(top Fragment) Fragment {
	out := make(Fragment, len(f)+len(top))
	for k, o := range f {
		out[k] = o
	}
	for k, o := range top {
		out[k] = out[k].merge(o)
	}
	return out
}

// ParseFragmentJSON decodes {"title": {"bullet": "circled"}, ...}.
func ParseFragmentJSON(data []byte) (Fragment, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var f Fragment
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &errors.ValidationError{
			Field:   "styles",
			Message: "styles must be an object keyed by block kind",
			Err:     err,
		}
	}
	return f, nil
}

// FragmentFromNames converts a fragment keyed by kind name, as found in YAML
// configuration and front matter.
func FragmentFromNames(m map[string]Override) (Fragment, error) {
	if len(m) == 0 {
		return nil, nil
	}
	f := make(Fragment, len(m))
	for name, o := range m {
		k, ok := ParseKind(name)
		if !ok {
			return nil, &errors.ValidationError{
				Field:   "styles",
				Value:   name,
				Message: "unknown block kind",
			}
		}
		f[k] = o
	}
	return f, nil
}

// ParseSettingsJSON decodes a snapshot written by Settings.MarshalJSON.
// Kinds missing from data keep their defaults.
func ParseSettingsJSON(data []byte) (Settings, error) {
	var m map[Kind]LevelStyle
	if err := json.Unmarshal(data, &m); err != nil {
		return Settings{}, &errors.ValidationError{Field: "styles", Message: "invalid style snapshot", Err: err}
	}
	s := Defaults()
	for k, style := range m {
		s = s.With(k, style)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Resolve builds a validated snapshot: defaults, then template styles, then
// caller overrides. Caller overrides win per field.
func Resolve(overrides, template Fragment) (Settings, error) {
	s := Defaults().Apply(template).Apply(overrides)
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// StringPtr is a helper for building Override values.
func StringPtr(s string) *string { return &s }

// IntPtr is a helper for building Override values.
func IntPtr(n int) *int { return &n }

// BoolPtr is a helper for building Override values.
func BoolPtr(b bool) *bool { return &b }
