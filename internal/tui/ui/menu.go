package ui

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rivo/tview"
)

// Menu lists the key bindings of the current page in the header. Hints fill
// columns top to bottom, rows at a time.
type Menu struct {
	*tview.TextView
	theme *Theme
	rows  int
}

// NewMenu creates a menu whose columns hold at most rows hints.
func NewMenu(theme *Theme, rows int) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
		rows:     max(rows, 1),
	}
}

// Update replaces the listed hints.
func (m *Menu) Update(hints []MenuHint) {
	m.SetText(m.layout(hints))
}

func (m *Menu) layout(hints []MenuHint) string {
	if len(hints) == 0 {
		return ""
	}
	cols := (len(hints) + m.rows - 1) / m.rows
	widths := make([]int, cols)
	for i, h := range hints {
		c := i / m.rows
		widths[c] = max(widths[c], hintWidth(h))
	}

	keyColor := ColorTag(m.theme.MenuKeyColor)
	globalColor := ColorTag(m.theme.GlobalKeyColor)

	var b strings.Builder
	for r := 0; r < min(m.rows, len(hints)); r++ {
		for c := range cols {
			i := c*m.rows + r
			if i >= len(hints) {
				break
			}
			h := hints[i]
			kc := keyColor
			if h.Global {
				kc = globalColor
			}
			fmt.Fprintf(&b, "[%s::b]<%s>[-:-:-] %s", kc, tview.Escape(h.Key), tview.Escape(h.Description))
			if c < cols-1 {
				b.WriteString(strings.Repeat(" ", widths[c]-hintWidth(h)+3))
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func hintWidth(h MenuHint) int {
	return utf8.RuneCountInString(h.Key) + utf8.RuneCountInString(h.Description) + 3
}
