package ui

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode indicates the type of prompt.
type PromptMode int

const (
	PromptCommand PromptMode = iota
	PromptFilter
	// PromptConfirm asks a yes/no question; only "y" or "yes" submit.
	PromptConfirm
)

// Prompt is a command/filter input bar.
type Prompt struct {
	*tview.InputField
	theme    *Theme
	mode     PromptMode
	onSubmit func(mode PromptMode, text string)
	onCancel func()
	confirm  func()
	words    []string
}

// NewPrompt creates a new prompt input bar.
func NewPrompt(theme *Theme) *Prompt {
	input := tview.NewInputField()
	input.SetBorder(true)
	input.SetBorderColor(theme.PromptBorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	p := &Prompt{
		InputField: input,
		theme:      theme,
	}

	input.SetAutocompleteFunc(p.complete)
	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := p.GetText()
			p.SetText("")
			if p.mode == PromptConfirm {
				confirm := p.confirm
				p.confirm = nil
				if Confirmed(text) && confirm != nil {
					confirm()
				} else if p.onCancel != nil {
					p.onCancel()
				}
				return
			}
			if p.onSubmit != nil && (text != "" || p.mode == PromptFilter) {
				p.onSubmit(p.mode, text)
			}
		case tcell.KeyEscape:
			p.SetText("")
			p.confirm = nil
			if p.onCancel != nil {
				p.onCancel()
			}
		}
	})

	return p
}

// SetOnSubmit sets the callback when the prompt is submitted.
func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) {
	p.onSubmit = fn
}

// SetOnCancel sets the callback when the prompt is cancelled.
func (p *Prompt) SetOnCancel(fn func()) {
	p.onCancel = fn
}

// SetCompletions sets the command names offered while the first word of a
// command is typed.
func (p *Prompt) SetCompletions(words []string) {
	p.words = words
}

func (p *Prompt) complete(current string) []string {
	if p.mode != PromptCommand || current == "" || strings.ContainsRune(current, ' ') {
		return nil
	}
	prefix := strings.ToLower(current)
	var out []string
	for _, w := range p.words {
		if strings.HasPrefix(w, prefix) && w != prefix {
			out = append(out, w)
		}
	}
	return out
}

// Activate shows the prompt in the specified mode.
func (p *Prompt) Activate(mode PromptMode) {
	p.mode = mode
	p.SetText("")
	switch mode {
	case PromptCommand:
		p.SetLabel(":")
		p.SetTitle(" Command ")
	case PromptFilter:
		p.SetLabel("/")
		p.SetTitle(" Filter ")
	}
}

// Ask shows question in confirm mode; yes runs only on an affirmative answer.
func (p *Prompt) Ask(question string, yes func()) {
	p.mode = PromptConfirm
	p.confirm = yes
	p.SetText("")
	p.SetLabel(question + " [y/N] ")
	p.SetTitle(" Confirm ")
}

// Confirmed reports whether answer is affirmative.
func Confirmed(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// Mode returns the current prompt mode.
func (p *Prompt) Mode() PromptMode {
	return p.mode
}
