package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// FlashLevel is the severity of a flash message.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashOK
	FlashWarn
	FlashErr
)

var flashDurations = map[FlashLevel]time.Duration{
	FlashInfo: 5 * time.Second,
	FlashOK:   5 * time.Second,
	FlashWarn: 8 * time.Second,
	FlashErr:  10 * time.Second,
}

// FlashMessage is one notification and when it stops being shown.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Expires time.Time
}

// FlashModel holds the single current notification. It is written from
// background goroutines and read from the draw loop.
type FlashModel struct {
	mu      sync.RWMutex
	current FlashMessage
	watchCh chan FlashMessage
	now     func() time.Time
}

// NewFlashModel creates a new flash model.
func NewFlashModel() *FlashModel {
	return &FlashModel{
		watchCh: make(chan FlashMessage, 8),
		now:     time.Now,
	}
}

// Info shows a neutral message.
func (f *FlashModel) Info(msg string) { f.set(msg, FlashInfo) }

// OK shows a completed action, such as a finished download.
func (f *FlashModel) OK(msg string) { f.set(msg, FlashOK) }

// Warn shows a message the user should notice but need not act on.
func (f *FlashModel) Warn(msg string) { f.set(msg, FlashWarn) }

// Err shows a failure.
func (f *FlashModel) Err(err error) { f.set(err.Error(), FlashErr) }

// Errf shows a failure prefixed with what failed.
func (f *FlashModel) Errf(what string, err error) {
	f.set(fmt.Sprintf("%s: %v", what, err), FlashErr)
}

func (f *FlashModel) set(msg string, level FlashLevel) {
	fm := FlashMessage{
		Text:    msg,
		Level:   level,
		Expires: f.now().Add(flashDurations[level]),
	}
	f.mu.Lock()
	f.current = fm
	f.mu.Unlock()
	select {
	case f.watchCh <- fm:
	default:
	}
}

// Current returns the shown message, or nil once it has expired.
func (f *FlashModel) Current() *FlashMessage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current.Text == "" || f.now().After(f.current.Expires) {
		return nil
	}
	m := f.current
	return &m
}

// Watch signals every new message; sends are dropped when nobody keeps up.
func (f *FlashModel) Watch() <-chan FlashMessage {
	return f.watchCh
}

// FlashBar is the bottom line that shows the current flash message.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates a new flash notification bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &FlashBar{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders msg, or clears the bar when msg is nil. Message text comes
// from the backend and is escaped.
func (fb *FlashBar) Update(msg *FlashMessage) {
	fb.SetText(fb.render(msg))
}

func (fb *FlashBar) render(msg *FlashMessage) string {
	if msg == nil {
		return ""
	}
	icon, color := "", fb.theme.FlashInfoColor
	switch msg.Level {
	case FlashOK:
		icon, color = "✓ ", fb.theme.FlashOKColor
	case FlashWarn:
		icon, color = "⚠ ", fb.theme.FlashWarnColor
	case FlashErr:
		icon, color = "✗ ", fb.theme.FlashErrColor
	}
	return fmt.Sprintf(" [%s]%s%s[-]", ColorTag(color), icon, tview.Escape(msg.Text))
}
