package views

import (
	"fmt"
	"strconv"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/tgrag/internal/backend"
	"github.com/matheus3301/tgrag/internal/tui/ui"
	"github.com/matheus3301/tgrag/internal/view"
)

// GrowThreshold is how many rows from the end of the window the cursor may
// get before the next page of chats is revealed.
const GrowThreshold = 5

// ChatList is the main chat table. Rows come from a view.Projector, so only
// a growing window of the filtered chats is rendered at a time.
type ChatList struct {
	*tview.Table
	theme *ui.Theme
	proj  *view.Projector
	stale bool
}

// NewChatList creates a new chat list table.
func NewChatList(theme *ui.Theme) *ChatList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	cl := &ChatList{
		Table: table,
		theme: theme,
		proj:  view.NewProjector(view.DefaultFloor, view.DefaultStep),
	}
	table.SetSelectionChangedFunc(func(row, _ int) { cl.maybeGrow(row) })
	cl.render()
	return cl
}

// Name implements Component.
func (cl *ChatList) Name() string { return "Chats" }

// Init implements Component.
func (cl *ChatList) Init() {}

// Start implements Component.
func (cl *ChatList) Start() {}

// Stop implements Component.
func (cl *ChatList) Stop() {}

// Hints implements Component.
func (cl *ChatList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Download"},
		{Key: "t", Description: "Topics"},
		{Key: "r", Description: "Refresh"},
		{Key: "/", Description: "Filter"},
		{Key: "0", Description: "Clear filter"},
	}
}

// Update replaces the chats. The window size and filter survive a refresh.
// stale marks a list served from cache after a failed refresh.
func (cl *ChatList) Update(chats []backend.Chat, stale bool) {
	cl.proj.SetChats(chats)
	cl.stale = stale
	cl.render()
}

// SetFilter applies a title filter and resets the window to its floor.
func (cl *ChatList) SetFilter(text string) {
	if text == cl.proj.Filter() {
		return
	}
	cl.proj.SetFilter(text)
	cl.render()
	cl.ScrollToBeginning()
	if cl.proj.VisibleCount() > 0 {
		cl.Select(1, 0)
	}
}

// Filter returns the active filter text.
func (cl *ChatList) Filter() string { return cl.proj.Filter() }

// VisibleCount is the number of rendered chat rows.
func (cl *ChatList) VisibleCount() int { return cl.proj.VisibleCount() }

// SelectedChat returns the chat under the cursor.
func (cl *ChatList) SelectedChat() (backend.Chat, bool) {
	row, _ := cl.GetSelection()
	visible := cl.proj.Visible()
	idx := row - 1
	if idx < 0 || idx >= len(visible) {
		return backend.Chat{}, false
	}
	return visible[idx], true
}

// maybeGrow reveals the next page once the cursor nears the end of the
// window. The projector ignores repeats until the grown rows are rendered.
func (cl *ChatList) maybeGrow(row int) {
	if !cl.proj.MaybeGrow(row-1, 1, cl.proj.VisibleCount(), GrowThreshold) {
		return
	}
	cl.render()
}

func (cl *ChatList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" TITLE", 1},
		{" TYPE", 0},
		{" MEMBERS", 0},
		{" ID", 0},
	}
	for col, h := range headers {
		cell := tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp)
		cl.SetCell(0, col, cell)
	}

	for i, chat := range cl.proj.Visible() {
		row := i + 1
		title := chat.Title
		if chat.IsForum {
			title += " #"
		}
		if chat.UnreadCount > 0 {
			title = fmt.Sprintf("(%d) %s", chat.UnreadCount, title)
		}
		members := ""
		if chat.MembersCount != nil {
			members = strconv.Itoa(*chat.MembersCount)
		}
		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(oneLine(title))).SetExpansion(1).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 1, tview.NewTableCell(" "+string(chat.Type)).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(members).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
		cl.SetCell(row, 3, tview.NewTableCell(" "+strconv.FormatInt(chat.ID, 10)).SetTextColor(cl.theme.ScoreColor).SetAlign(tview.AlignRight))
	}
	cl.proj.Rendered()

	title := fmt.Sprintf(" Chats (%d/%d) ", cl.proj.VisibleCount(), cl.proj.FilteredLen())
	if f := cl.proj.Filter(); f != "" {
		title = fmt.Sprintf(" Chats (%d/%d of %d) filter: %s ", cl.proj.VisibleCount(), cl.proj.FilteredLen(), cl.proj.Total(), tview.Escape(f))
	}
	if cl.stale {
		title += tview.Escape("[stale]") + " "
	}
	cl.SetTitle(title)
}
