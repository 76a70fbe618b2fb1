package views

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/rivo/tview"

	"github.com/matheus3301/tgrag/internal/backend"
	"github.com/matheus3301/tgrag/internal/tui/ui"
)

// LinkView shows one search hit in full with a scannable QR code of its
// Telegram link, for opening the message on a phone.
type LinkView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewLinkView creates a new link view.
func NewLinkView(theme *ui.Theme) *LinkView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Message ")
	tv.SetTitleColor(theme.TitleColor)

	return &LinkView{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (lv *LinkView) Name() string { return "Message" }

// Init implements Component.
func (lv *LinkView) Init() {}

// Start implements Component.
func (lv *LinkView) Start() {}

// Stop implements Component.
func (lv *LinkView) Stop() {}

// Hints implements Component.
func (lv *LinkView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

// Update renders a hit. link overrides the message's own link when set,
// as it is for a cited hit.
func (lv *LinkView) Update(h backend.Hit, link string) {
	lv.Clear()
	if link == "" {
		link = h.Message.Link()
	}
	m := h.Message

	fg := ui.ColorTag(lv.theme.FgColor)
	ct := ui.ColorTag(lv.theme.CounterColor)
	field := func(label, value string) {
		_, _ = fmt.Fprintf(lv, " [%s::b]%-8s[-:-:-] [%s]%s[-]\n", fg, label+":", ct, tview.Escape(sanitizeForTerminal(value)))
	}

	_, _ = fmt.Fprintln(lv)
	field("Chat", chatLabel(m))
	field("Author", m.Author.DisplayName())
	field("Date", formatDate(m.Date))
	field("Score", fmt.Sprintf("%.3f", h.Score))
	field("Link", link)
	_, _ = fmt.Fprintf(lv, "\n%s\n\n", tview.Escape(sanitizeForTerminal(m.Text)))
	_, _ = fmt.Fprint(lv, renderQR(link))
	lv.SetTitle(fmt.Sprintf(" Message %d ", m.ID))
	lv.ScrollToBeginning()
}

func chatLabel(m backend.Message) string {
	label := m.ChatTitle
	if label == "" {
		label = fmt.Sprint(m.ChatID)
	}
	if m.TopicTitle != "" {
		label += " / " + m.TopicTitle
	}
	return label
}

// renderQR converts a string to a compact QR code using Unicode half-block
// characters, two modules per text row.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "  (QR generation failed: " + err.Error() + ")"
	}
	bitmap := qr.Bitmap()
	rows := len(bitmap)
	cols := 0
	if rows > 0 {
		cols = len(bitmap[0])
	}

	var sb strings.Builder
	for y := 0; y < rows; y += 2 {
		sb.WriteString("  ")
		for x := range cols {
			top := bitmap[y][x]
			bot := y+1 < rows && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
