package views

import (
	"strings"
	"unicode"
)

// sanitizeForTerminal drops codepoints tcell cannot lay out in a fixed cell
// width: emoji skin tones, zero width joiners, and variation selectors. Other
// control characters are folded to a space so message text cannot move the
// cursor. Newlines survive.
func sanitizeForTerminal(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n':
			return r
		case dropRune(r):
			return -1
		case unicode.IsControl(r):
			return ' '
		}
		return r
	}, s)
}

// oneLine sanitizes s and collapses it onto a single line for table cells.
func oneLine(s string) string {
	return strings.Join(strings.Fields(sanitizeForTerminal(s)), " ")
}

func dropRune(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF: // skin tones
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F, r >= 0xE0100 && r <= 0xE01EF:
		return true
	}
	return false
}
