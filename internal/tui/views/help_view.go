package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/matheus3301/tgrag/internal/tui/ui"
)

// HelpSection is one titled group of bindings on the help page.
type HelpSection struct {
	Title string
	Hints []ui.MenuHint
}

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	return &HelpView{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (hv *HelpView) Name() string { return "Help" }

// Init implements Component.
func (hv *HelpView) Init() {}

// Start implements Component.
func (hv *HelpView) Start() {}

// Stop implements Component.
func (hv *HelpView) Stop() {}

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

// Update renders the help sections, two bindings per line.
func (hv *HelpView) Update(sections []HelpSection) {
	hv.Clear()
	kc := ui.ColorTag(hv.theme.MenuKeyColor)
	for _, s := range sections {
		_, _ = fmt.Fprintf(hv, "\n  [::b]%s[-:-:-]\n\n", tview.Escape(s.Title))
		for i, h := range s.Hints {
			cell := fmt.Sprintf("[%s]%-16s[-] %-24s", kc, tview.Escape(h.Key), tview.Escape(h.Description))
			if i%2 == 0 {
				_, _ = fmt.Fprint(hv, "  "+cell)
			} else {
				_, _ = fmt.Fprintln(hv, "  "+cell)
			}
		}
		if len(s.Hints)%2 == 1 {
			_, _ = fmt.Fprintln(hv)
		}
	}
	hv.ScrollToBeginning()
}
