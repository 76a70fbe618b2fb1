package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/tgrag/internal/backend"
	"github.com/matheus3301/tgrag/internal/tui/ui"
)

// AuthView drives the backend's Telegram login: request a code, enter it,
// then the cloud password when the account has 2FA.
type AuthView struct {
	*tview.Flex
	theme     *ui.Theme
	message   *tview.TextView
	input     *tview.InputField
	twoFactor bool
	onSubmit  func(input string, twoFactor bool)
}

// NewAuthView creates a new auth view.
func NewAuthView(theme *ui.Theme) *AuthView {
	message := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetWordWrap(true)
	message.SetBackgroundColor(theme.BgColor)
	message.SetTextColor(theme.FgColor)

	input := tview.NewInputField().SetFieldWidth(24)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(tcell.ColorDarkSlateGray)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(message, 0, 1, false).
		AddItem(input, 1, 0, true)
	flex.SetBorder(true)
	flex.SetBorderColor(theme.BorderColor)
	flex.SetBackgroundColor(theme.BgColor)
	flex.SetTitle(" Telegram Login ")
	flex.SetTitleColor(theme.TitleColor)

	av := &AuthView{
		Flex:    flex,
		theme:   theme,
		message: message,
		input:   input,
	}
	input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || av.onSubmit == nil {
			return
		}
		text := input.GetText()
		input.SetText("")
		av.onSubmit(text, av.twoFactor)
	})
	av.setMode(false)
	return av
}

// Name implements Component.
func (av *AuthView) Name() string { return "Auth" }

// Init implements Component.
func (av *AuthView) Init() {}

// Start implements Component.
func (av *AuthView) Start() {}

// Stop implements Component.
func (av *AuthView) Stop() {}

// Hints implements Component.
func (av *AuthView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Submit (empty sends code)"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetOnSubmit sets the callback for an entered code or password. An empty
// input in code mode asks for a new code.
func (av *AuthView) SetOnSubmit(fn func(input string, twoFactor bool)) {
	av.onSubmit = fn
}

// Input returns the input field for focus management.
func (av *AuthView) Input() *tview.InputField { return av.input }

// ShowStatus renders the current authorization state.
func (av *AuthView) ShowStatus(st *backend.AuthStatus) {
	av.setMode(false)
	if st == nil {
		av.ShowMessage("Checking authorization...")
		return
	}
	if st.IsAuthorized {
		who := st.Username
		if who == "" {
			who = st.Phone
		}
		av.ShowMessage(fmt.Sprintf("[green]Authorized[-] as %s", tview.Escape(who)))
		return
	}
	av.ShowMessage("Not authorized.\n\nPress Enter to send a login code to the configured phone.")
}

// ShowResult renders the outcome of an auth step and switches to password
// entry when 2FA is required.
func (av *AuthView) ShowResult(res *backend.AuthResult) {
	switch res.Status {
	case backend.AuthCodeSent:
		av.setMode(false)
		av.ShowMessage("Code sent. Enter the code from Telegram.")
	case backend.Auth2FARequired:
		av.setMode(true)
		av.ShowMessage("Two-factor authentication is enabled. Enter your cloud password.")
	case backend.AuthAuthorized:
		av.setMode(false)
		av.ShowMessage("[green]Authorized.[-] Loading chats...")
	default:
		av.ShowMessage("[red]" + tview.Escape(res.Error) + "[-]")
	}
}

// ShowMessage displays a status message.
func (av *AuthView) ShowMessage(msg string) {
	av.message.Clear()
	_, _ = fmt.Fprintf(av.message, "\n\n%s", msg)
}

func (av *AuthView) setMode(twoFactor bool) {
	av.twoFactor = twoFactor
	if twoFactor {
		av.input.SetLabel(" Password: ")
		av.input.SetMaskCharacter('*')
		return
	}
	av.input.SetLabel(" Code: ")
	av.input.SetMaskCharacter(0)
}
