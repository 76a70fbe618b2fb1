package ui

import (
	"fmt"
	"strconv"

	"github.com/rivo/tview"

	"github.com/matheus3301/tgrag/internal/backend"
)

// ProfileData is what the header shows about the active profile.
type ProfileData struct {
	Profile string
	Auth    *backend.AuthStatus
	Stats   *backend.Stats
	// Job is a one-line summary of the running download, empty when idle.
	Job string
}

// ProfileInfo displays profile, account, and index counters in the header.
type ProfileInfo struct {
	*tview.TextView
	theme *Theme
}

// NewProfileInfo creates a new profile info panel.
func NewProfileInfo(theme *Theme) *ProfileInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &ProfileInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the profile info.
func (pi *ProfileInfo) Update(data ProfileData) {
	pi.Clear()

	fg := ColorTag(pi.theme.FgColor)
	ct := ColorTag(pi.theme.CounterColor)
	row := func(label, value string) {
		_, _ = fmt.Fprintf(pi, "[%s::b]%-9s[-:-:-][%s]%s[-]\n", fg, label+":", ct, tview.Escape(value))
	}

	row("Profile", data.Profile)
	row("Account", accountText(data.Auth))
	if s := data.Stats; s != nil {
		row("Messages", strconv.Itoa(s.MessagesCount))
		row("Vectors", strconv.Itoa(s.EmbeddingsCount))
		row("Sources", strconv.Itoa(s.Sources))
		row("Contacts", strconv.Itoa(s.ContactsCount))
	} else {
		row("Index", "-")
	}
	if data.Job != "" {
		row("Job", data.Job)
	}
}

func accountText(a *backend.AuthStatus) string {
	switch {
	case a == nil:
		return "-"
	case !a.IsAuthorized:
		return "not authorized"
	case a.Username != "":
		return "@" + a.Username
	case a.Phone != "":
		return a.Phone
	default:
		return "authorized"
	}
}
