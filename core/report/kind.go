// Package report turns loosely structured text into the fixed report
// hierarchy (title, subtitle, level-1 bullet, level-2 bullet, note) and
// renders position-dependent prefixes and font metadata for each block.
//
// The package has no I/O. A transformation pass is a pure function of its
// input lines, an explicit Counters value, and an immutable Settings snapshot.
package report

import (
	"fmt"
	"strings"
)

// Kind identifies the hierarchy position of a block.
type Kind int

const (
	KindTitle Kind = iota
	KindSubtitle
	KindLevel1
	KindLevel2
	KindNote
	KindPlain

	kindCount = int(KindPlain) + 1
)

var kindNames = [kindCount]string{"title", "subtitle", "level1", "level2", "note", "plain"}

// Kinds lists every kind in hierarchy order.
func Kinds() []Kind {
	return []Kind{KindTitle, KindSubtitle, KindLevel1, KindLevel2, KindNote, KindPlain}
}

// String returns the lowercase wire name of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= kindCount {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Level returns the fixed depth of the kind: Title=0 through Note=4.
// Plain sits outside the hierarchy and reports -1.
func (k Kind) Level() int {
	if k == KindPlain || !k.Valid() {
		return -1
	}
	return int(k)
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= 0 && int(k) < kindCount
}

// Numbered reports whether the kind renders an incrementing numeral.
func (k Kind) Numbered() bool {
	return k == KindTitle || k == KindSubtitle
}

// ParseKind maps a wire name back to its Kind.
func ParseKind(s string) (Kind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range kindNames {
		if name == s {
			return Kind(i), true
		}
	}
	return KindPlain, false
}

// MarshalText implements encoding.TextMarshaler so kinds can key JSON maps.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, ok := ParseKind(string(text))
	if !ok {
		return fmt.Errorf("unknown kind %q", string(text))
	}
	*k = parsed
	return nil
}
