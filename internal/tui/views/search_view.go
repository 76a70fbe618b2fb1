package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/tgrag/internal/backend"
	"github.com/matheus3301/tgrag/internal/correlate"
	"github.com/matheus3301/tgrag/internal/search"
	"github.com/matheus3301/tgrag/internal/tui/ui"
)

// maxHitText bounds the hit text shown inline; the link view shows it all.
const maxHitText = 400

// SearchView is the search and answer page: selectable sources on the left,
// the conversation of turns on the right, and the query input below it.
// Citations of the newest turn can be jumped to and are highlighted briefly.
type SearchView struct {
	*tview.Flex
	theme   *ui.Theme
	sources *tview.Table
	convo   *tview.TextView
	input   *tview.InputField

	hl    *correlate.Highlighter
	queue func(func())

	srcList  []backend.Source
	selected func(chatID int64) bool
	latest   *search.Turn
	cursor   int
	current  int

	onQuery  func(query string)
	onToggle func(chatID int64)
	onOpen   func(h backend.Hit, link string)
}

// NewSearchView creates a new search view. queue runs a function on the UI
// goroutine; highlight expiry arrives from a timer and is routed through it.
func NewSearchView(theme *ui.Theme, hl *correlate.Highlighter, queue func(func())) *SearchView {
	sources := tview.NewTable().SetSelectable(true, false)
	sources.SetBorder(true)
	sources.SetBorderColor(theme.BorderColor)
	sources.SetBackgroundColor(theme.BgColor)
	sources.SetTitle(" Sources ")
	sources.SetTitleColor(theme.TitleColor)
	sources.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	convo := tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetScrollable(true).
		SetWordWrap(true)
	convo.SetBorder(true)
	convo.SetBorderColor(theme.BorderColor)
	convo.SetBackgroundColor(theme.BgColor)
	convo.SetTextColor(theme.FgColor)
	convo.SetTitle(" Conversation ")
	convo.SetTitleColor(theme.TitleColor)

	input := tview.NewInputField().
		SetLabel(" Ask: ").
		SetFieldWidth(0)
	input.SetBorder(true)
	input.SetBorderColor(theme.BorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	right := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(convo, 0, 1, false).
		AddItem(input, 3, 0, true)

	flex := tview.NewFlex().
		AddItem(sources, 36, 0, false).
		AddItem(right, 0, 1, true)

	if queue == nil {
		queue = func(f func()) { f() }
	}
	sv := &SearchView{
		Flex:     flex,
		theme:    theme,
		sources:  sources,
		convo:    convo,
		input:    input,
		hl:       hl,
		queue:    queue,
		selected: func(int64) bool { return false },
		current:  -1,
	}

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && sv.onQuery != nil {
			text := strings.TrimSpace(input.GetText())
			if text != "" {
				input.SetText("")
				sv.onQuery(text)
			}
		}
	})
	sources.SetSelectedFunc(func(row, _ int) { sv.toggle(row) })

	hl.OnScroll(func(a correlate.Anchor) {
		sv.current = a.HitIndex
		sv.convo.Highlight(hitRegion(a.HitIndex))
		sv.convo.ScrollToHighlight()
	})
	hl.OnChange(func(cid string) {
		if cid != "" {
			return
		}
		sv.queue(func() { sv.convo.Highlight() })
	})
	return sv
}

// Name implements Component.
func (sv *SearchView) Name() string { return "Search" }

// Init implements Component.
func (sv *SearchView) Init() {}

// Start implements Component.
func (sv *SearchView) Start() {}

// Stop implements Component.
func (sv *SearchView) Stop() { sv.hl.Reset() }

// Hints implements Component.
func (sv *SearchView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Ask"},
		{Key: "Tab", Description: "Switch pane"},
		{Key: "]/[", Description: "Next/prev citation"},
		{Key: "o", Description: "Open hit"},
		{Key: "Space", Description: "Toggle source"},
		{Key: "a/n", Description: "All/none"},
		{Key: "x", Description: "Clear"},
	}
}

// SetOnQuery sets the callback when a query is submitted.
func (sv *SearchView) SetOnQuery(fn func(query string)) { sv.onQuery = fn }

// SetOnToggle sets the callback when a source is toggled.
func (sv *SearchView) SetOnToggle(fn func(chatID int64)) { sv.onToggle = fn }

// SetOnOpen sets the callback that opens a hit in full.
func (sv *SearchView) SetOnOpen(fn func(h backend.Hit, link string)) { sv.onOpen = fn }

// Input returns the query input for focus management.
func (sv *SearchView) Input() *tview.InputField { return sv.input }

// Conversation returns the conversation pane for focus management.
func (sv *SearchView) Conversation() *tview.TextView { return sv.convo }

// Sources returns the sources pane for focus management.
func (sv *SearchView) Sources() *tview.Table { return sv.sources }

// SetSources renders the source list with the current selection.
func (sv *SearchView) SetSources(sources []backend.Source, selected func(chatID int64) bool) {
	sv.srcList = sources
	sv.selected = selected
	sv.renderSources()
}

func (sv *SearchView) renderSources() {
	row, _ := sv.sources.GetSelection()
	sv.sources.Clear()
	for i, s := range sv.srcList {
		mark := "[ ]"
		if sv.selected(s.ChatID) {
			mark = "[x]"
		}
		sv.sources.SetCell(i, 0, tview.NewTableCell(tview.Escape(mark)).SetTextColor(sv.theme.CitationColor))
		sv.sources.SetCell(i, 1, tview.NewTableCell(tview.Escape(oneLine(s.Label()))).SetExpansion(1).SetTextColor(sv.theme.FgColor))
		sv.sources.SetCell(i, 2, tview.NewTableCell(fmt.Sprint(s.MessagesCount)).SetAlign(tview.AlignRight).SetTextColor(sv.theme.ScoreColor))
	}
	sv.sources.SetTitle(fmt.Sprintf(" Sources (%d/%d) ", countChats(sv.srcList, sv.selected), countChats(sv.srcList, nil)))
	if row < len(sv.srcList) {
		sv.sources.Select(row, 0)
	}
}

func countChats(sources []backend.Source, keep func(int64) bool) int {
	seen := make(map[int64]bool)
	for _, s := range sources {
		if keep == nil || keep(s.ChatID) {
			seen[s.ChatID] = true
		}
	}
	return len(seen)
}

func (sv *SearchView) toggle(row int) {
	if row < 0 || row >= len(sv.srcList) || sv.onToggle == nil {
		return
	}
	sv.onToggle(sv.srcList[row].ChatID)
	sv.renderSources()
}

// ToggleSelected toggles the source under the cursor.
func (sv *SearchView) ToggleSelected() {
	row, _ := sv.sources.GetSelection()
	sv.toggle(row)
}

// RefreshSources re-renders the selection marks.
func (sv *SearchView) RefreshSources() { sv.renderSources() }

// Render draws the conversation. pending is the turn still in flight, nil
// when none. The newest finished turn becomes the jump target.
func (sv *SearchView) Render(turns []*search.Turn, pending *search.Turn) {
	sv.convo.Clear()
	var b strings.Builder
	for i, t := range turns {
		latest := pending == nil && i == len(turns)-1
		b.WriteString(RenderTurn(t, latest, sv.theme))
	}
	if pending != nil {
		b.WriteString(RenderTurn(pending, false, sv.theme))
	}
	_, _ = fmt.Fprint(sv.convo, b.String())
	sv.convo.ScrollToEnd()

	var latest *search.Turn
	if pending == nil && len(turns) > 0 {
		latest = turns[len(turns)-1]
	}
	if latest != sv.latest {
		sv.latest = latest
		sv.cursor = -1
		sv.current = -1
		var idx *correlate.Index
		if latest != nil {
			idx = latest.Index
		}
		sv.hl.SetIndex(idx)
	}
}

// JumpCitation moves through the newest turn's citations by delta and jumps
// to the one reached. Returns false when there is nothing to jump to.
func (sv *SearchView) JumpCitation(delta int) bool {
	if sv.latest == nil {
		return false
	}
	cids := sv.latest.Index.CIDs()
	if len(cids) == 0 {
		return false
	}
	sv.cursor = ((sv.cursor+delta)%len(cids) + len(cids)) % len(cids)
	return sv.hl.JumpTo(cids[sv.cursor])
}

// OpenCurrent opens the last jumped-to hit, or the first hit of the newest
// turn.
func (sv *SearchView) OpenCurrent() bool {
	if sv.latest == nil || len(sv.latest.Hits) == 0 || sv.onOpen == nil {
		return false
	}
	i := max(sv.current, 0)
	if i >= len(sv.latest.Hits) {
		return false
	}
	link := ""
	if cid, ok := sv.latest.Index.CIDForHit(i); ok {
		if a, ok := sv.latest.Index.Resolve(cid); ok {
			link = a.Link
		}
	}
	sv.onOpen(sv.latest.Hits[i], link)
	return true
}

// termText makes backend or user text safe to embed in tview markup.
func termText(s string) string { return tview.Escape(sanitizeForTerminal(s)) }

func hitRegion(i int) string { return fmt.Sprintf("hit-%d", i) }

// RenderTurn formats one turn as tview markup. Regions are only emitted for
// the latest turn, the only one whose citations can be jumped to.
func RenderTurn(t *search.Turn, latest bool, theme *ui.Theme) string {
	var b strings.Builder
	cite := ui.ColorTag(theme.CitationColor)
	dim := ui.ColorTag(theme.ScoreColor)
	errc := ui.ColorTag(theme.LogErrColor)

	fmt.Fprintf(&b, "[%s::b]> %s[-:-:-]\n\n", ui.ColorTag(theme.TitleColor), termText(t.Query.Text))

	switch {
	case !t.AnswerDone:
		fmt.Fprintf(&b, "[%s]generating answer...[-]\n\n", dim)
	case t.AnswerErr != nil:
		fmt.Fprintf(&b, "[%s]Answer failed: %s[-]\n\n", errc, termText(t.AnswerErr.Error()))
	case t.Answer != nil:
		b.WriteString(renderAnswer(t, cite, dim))
	}

	switch {
	case !t.SearchDone:
		fmt.Fprintf(&b, "[%s]searching...[-]\n\n", dim)
	case t.SearchErr != nil:
		fmt.Fprintf(&b, "[%s]Search failed: %s[-]\n\n", errc, termText(t.SearchErr.Error()))
	default:
		fmt.Fprintf(&b, "[::b]Hits[-:-:-] [%s](%d of %d)[-]\n", dim, len(t.Hits), t.TotalFound)
		for i, h := range t.Hits {
			b.WriteString(renderHit(t, i, h, latest, cite, dim))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderAnswer(t *search.Turn, cite, dim string) string {
	var b strings.Builder
	a := t.Answer
	fmt.Fprintf(&b, "[::b]Answer[-:-:-]\n%s\n", termText(a.Summary))
	for _, s := range a.Sections {
		fmt.Fprintf(&b, "\n[::u]%s[-:-:-]\n%s", tview.Escape(oneLine(s.Title)), termText(s.Text))
		for _, cid := range s.CIDs {
			if _, ok := t.Index.Resolve(cid); ok || t.Index == nil {
				fmt.Fprintf(&b, " [%s]%s[-]", cite, tview.Escape("["+cid+"]"))
			} else {
				fmt.Fprintf(&b, " [%s::s]%s[-:-:-]", dim, tview.Escape("["+cid+"]"))
			}
		}
		b.WriteString("\n")
	}
	for _, r := range a.Rejected {
		fmt.Fprintf(&b, "[%s]rejected: %s (%s)[-]\n", dim, termText(r.Claim), termText(r.Reason))
	}
	if r := t.Retrieval; r.TopK > 0 {
		fmt.Fprintf(&b, "[%s]used %d of top %d, %dms[-]\n", dim, r.Used, r.TopK, r.LatencyMS)
	}
	b.WriteString("\n")
	return b.String()
}

func renderHit(t *search.Turn, i int, h backend.Hit, latest bool, cite, dim string) string {
	var b strings.Builder
	if latest {
		fmt.Fprintf(&b, `["%s"]`, hitRegion(i))
	}
	fmt.Fprintf(&b, "%2d. ", i+1)
	if cid, ok := t.Index.CIDForHit(i); ok {
		fmt.Fprintf(&b, "[%s]%s[-] ", cite, tview.Escape("["+cid+"]"))
	}
	m := h.Message
	fmt.Fprintf(&b, "[::b]%s[-:-:-] %s [%s]%s  %.2f[-]\n",
		tview.Escape(sanitizeForTerminal(chatLabel(m))),
		tview.Escape(sanitizeForTerminal(m.Author.DisplayName())),
		dim, formatDate(m.Date), h.Score)
	text := m.Text
	if r := []rune(text); len(r) > maxHitText {
		text = string(r[:maxHitText]) + "…"
	}
	fmt.Fprintf(&b, "    %s\n", tview.Escape(sanitizeForTerminal(text)))
	if latest {
		b.WriteString(`[""]`)
	}
	return b.String()
}
