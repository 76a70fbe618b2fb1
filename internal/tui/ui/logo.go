package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// Logo displays the console banner and the backend it talks to.
type Logo struct {
	*tview.TextView
	theme *Theme
}

// NewLogo creates a new logo component.
func NewLogo(theme *Theme, backendURL string) *Logo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(1, 0, 1, 0)

	l := &Logo{
		TextView: tv,
		theme:    theme,
	}
	l.render(backendURL)
	return l
}

func (l *Logo) render(backendURL string) {
	titleColor := ColorTag(l.theme.TitleColor)
	fgColor := ColorTag(l.theme.FgColor)

	_, _ = fmt.Fprintf(l,
		"[%s::b]▀█▀ █▀▀ █▀█ ▄▀█ █▀▀[-:-:-]\n"+
			"[%s::b] █  █▄█ █▀▄ █▀█ █▄█[-:-:-]\n"+
			"[%s]%s[-:-:-]",
		titleColor, titleColor, fgColor, tview.Escape(backendURL),
	)
}
