package report

import (
	"regexp"
	"strconv"
	"strings"
)

// Numbering schemes for Title and Subtitle blocks.
const (
	NumberingOrdinal = "ordinal" // Ⅰ. Ⅱ. ... then "11."
	NumberingCircled = "circled" // ① ② ... then "(11)"
	NumberingNumber  = "number"  // 1. 2. 3.
	NumberingAlpha   = "alpha"   // A. B. ... then "27."
)

var numberingModes = []string{NumberingOrdinal, NumberingCircled, NumberingNumber, NumberingAlpha}

var ordinalGlyphs = []string{"Ⅰ", "Ⅱ", "Ⅲ", "Ⅳ", "Ⅴ", "Ⅵ", "Ⅶ", "Ⅷ", "Ⅸ", "Ⅹ"}

var circledGlyphs = []string{"①", "②", "③", "④", "⑤", "⑥", "⑦", "⑧", "⑨", "⑩"}

// BulletGlyphs is the glyph class accepted for Level1, Level2, and Note.
var BulletGlyphs = []string{
	"□", "■", "◇", "◆", "○", "●", "◦", "•", "ㅇ", "-", "–", "·", "*", "※", "▪", "▫", "►", "▶", "✓",
}

// NumberingModes returns the accepted numbering scheme names.
func NumberingModes() []string {
	return append([]string(nil), numberingModes...)
}

// IsNumberingMode reports whether mode names a numbering scheme.
func IsNumberingMode(mode string) bool {
	for _, m := range numberingModes {
		if m == mode {
			return true
		}
	}
	return false
}

// IsBulletGlyph reports whether g belongs to the bullet glyph class.
func IsBulletGlyph(g string) bool {
	for _, b := range BulletGlyphs {
		if b == g {
			return true
		}
	}
	return false
}

// Numeral renders seq in the given numbering scheme. Indexes beyond a fixed
// glyph table fall back to arabic digits.
func Numeral(mode string, seq int) string {
	n := strconv.Itoa(seq)
	switch mode {
	case NumberingCircled:
		if seq >= 1 && seq <= len(circledGlyphs) {
			return circledGlyphs[seq-1]
		}
		return "(" + n + ")"
	case NumberingNumber:
		return n + "."
	case NumberingAlpha:
		if seq >= 1 && seq <= 26 {
			return string(rune('A'+seq-1)) + "."
		}
		return n + "."
	default:
		if seq >= 1 && seq <= len(ordinalGlyphs) {
			return ordinalGlyphs[seq-1] + "."
		}
		return n + "."
	}
}

// Prefix renders the prefix of a block of kind k with sequence index seq.
// It is a pure function of its arguments.
func Prefix(k Kind, seq int, s Settings) string {
	style := s.Level(k)
	switch {
	case k.Numbered():
		return Numeral(style.Bullet, seq)
	case k == KindPlain:
		return ""
	}
	return style.Bullet
}

// Prefix patterns cover every form Numeral and the glyph class can produce,
// so stripping never depends on the settings a document was rendered with.
var (
	numeralPrefixPattern = regexp.MustCompile(
		`^(?:[` + strings.Join(ordinalGlyphs, "") + `]\.|[` + strings.Join(circledGlyphs, "") +
			`]|\([0-9]+\)|[0-9]+\.|[A-Z]\.)(?:\s+|$)`)
	glyphPrefixPattern = regexp.MustCompile(`^(?:` + quoteAll(BulletGlyphs) + `)(?:\s+|$)`)
)

func quoteAll(glyphs []string) string {
	quoted := make([]string, len(glyphs))
	for i, g := range glyphs {
		quoted[i] = regexp.QuoteMeta(g)
	}
	return strings.Join(quoted, "|")
}

// StripPrefix removes exactly one rendered prefix of kind k from line.
func StripPrefix(k Kind, line string) string {
	switch {
	case k.Numbered():
		return numeralPrefixPattern.ReplaceAllString(line, "")
	case k == KindPlain:
		return line
	}
	return glyphPrefixPattern.ReplaceAllString(line, "")
}
