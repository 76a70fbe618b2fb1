package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// maxCrumbLabel bounds the chat or topic title appended to a crumb.
const maxCrumbLabel = 32

// Crumbs is the breadcrumb bar above the page area. A page may carry a label,
// such as the chat a download page was opened for, shown next to its name.
type Crumbs struct {
	*tview.TextView
	theme  *Theme
	labels map[string]string
	stack  []string
}

// NewCrumbs creates a new breadcrumb bar.
func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &Crumbs{
		TextView: tv,
		theme:    theme,
		labels:   make(map[string]string),
	}
}

// Label attaches text to a page's crumb; empty text removes it. The bar is
// redrawn with the last stack it was given.
func (c *Crumbs) Label(page, text string) {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > maxCrumbLabel {
		text = string(r[:maxCrumbLabel-1]) + "…"
	}
	if text == "" {
		delete(c.labels, page)
	} else {
		c.labels[page] = text
	}
	c.Update(c.stack)
}

// Update renders the trail for the page stack, root first.
func (c *Crumbs) Update(stack []string) {
	c.stack = append(c.stack[:0], stack...)
	c.Clear()

	parts := make([]string, 0, len(stack))
	for i, name := range stack {
		text := name
		if l, ok := c.labels[name]; ok {
			text += ": " + tview.Escape(l)
		}
		fg, bg, attr := c.theme.CrumbInactiveFg, c.theme.CrumbInactiveBg, ""
		if i == len(stack)-1 {
			fg, bg, attr = c.theme.CrumbActiveFg, c.theme.CrumbActiveBg, "b"
		}
		parts = append(parts, fmt.Sprintf("[%s:%s:%s] %s [-:-:-]", ColorTag(fg), ColorTag(bg), attr, text))
	}
	_, _ = fmt.Fprint(c, strings.Join(parts, " "))
}
