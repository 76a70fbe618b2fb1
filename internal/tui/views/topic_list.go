package views

import (
	"fmt"
	"strconv"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/tgrag/internal/backend"
	"github.com/matheus3301/tgrag/internal/tui/ui"
)

// TopicList shows the topics of one forum chat.
type TopicList struct {
	*tview.Table
	theme  *ui.Theme
	chat   backend.Chat
	topics []backend.Topic
}

// NewTopicList creates a new topic table.
func NewTopicList(theme *ui.Theme) *TopicList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)
	table.SetTitle(" Topics ")
	return &TopicList{Table: table, theme: theme}
}

// Name implements Component.
func (tl *TopicList) Name() string { return "Topics" }

// Init implements Component.
func (tl *TopicList) Init() {}

// Start implements Component.
func (tl *TopicList) Start() {}

// Stop implements Component.
func (tl *TopicList) Stop() {}

// Hints implements Component.
func (tl *TopicList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Download topic"},
		{Key: "Esc", Description: "Back"},
	}
}

// Update shows the topics of chat.
func (tl *TopicList) Update(chat backend.Chat, topics []backend.Topic) {
	tl.chat = chat
	tl.topics = topics
	tl.Clear()

	for col, h := range []string{" TOPIC", " MESSAGES", " ID"} {
		cell := tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(tl.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold)
		if col == 0 {
			cell.SetExpansion(1)
		}
		tl.SetCell(0, col, cell)
	}
	for i, t := range topics {
		count := ""
		if t.MessagesCount != nil {
			count = strconv.Itoa(*t.MessagesCount)
		}
		tl.SetCell(i+1, 0, tview.NewTableCell(" "+tview.Escape(oneLine(t.Title))).SetExpansion(1).SetTextColor(tl.theme.FgColor))
		tl.SetCell(i+1, 1, tview.NewTableCell(count).SetAlign(tview.AlignRight).SetTextColor(tl.theme.FgColor))
		tl.SetCell(i+1, 2, tview.NewTableCell(" "+strconv.FormatInt(t.ID, 10)).SetAlign(tview.AlignRight).SetTextColor(tl.theme.ScoreColor))
	}
	tl.SetTitle(fmt.Sprintf(" %s: topics (%d) ", tview.Escape(sanitizeForTerminal(chat.Title)), len(topics)))
	tl.ScrollToBeginning()
	if len(topics) > 0 {
		tl.Select(1, 0)
	}
}

// Chat returns the chat whose topics are shown.
func (tl *TopicList) Chat() backend.Chat { return tl.chat }

// SelectedTopic returns the topic under the cursor.
func (tl *TopicList) SelectedTopic() (backend.Topic, bool) {
	row, _ := tl.GetSelection()
	if row < 1 || row > len(tl.topics) {
		return backend.Topic{}, false
	}
	return tl.topics[row-1], true
}
