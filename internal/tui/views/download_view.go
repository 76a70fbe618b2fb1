package views

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/tgrag/internal/backend"
	"github.com/matheus3301/tgrag/internal/job"
	"github.com/matheus3301/tgrag/internal/tui/ui"
)

// DefaultLimit is the message count a new download form starts with.
const DefaultLimit = 100

// DownloadForm is the raw text of the download form fields.
type DownloadForm struct {
	Limit    string
	OffsetID string
	MinID    string
	MaxID    string
}

// Request parses the form into a download request for chat and topic.
// Empty id fields mean 0 (no bound).
func (f DownloadForm) Request(chatID int64, topicID *int64) (backend.DownloadRequest, error) {
	req := backend.DownloadRequest{ChatID: chatID, TopicID: topicID}
	limit, err := strconv.Atoi(strings.TrimSpace(f.Limit))
	if err != nil || limit < 1 {
		return req, fmt.Errorf("limit must be a positive number, got %q", f.Limit)
	}
	req.Limit = limit

	fields := []struct {
		name string
		text string
		dst  *int64
	}{
		{"offset id", f.OffsetID, &req.OffsetID},
		{"min id", f.MinID, &req.MinID},
		{"max id", f.MaxID, &req.MaxID},
	}
	for _, fl := range fields {
		text := strings.TrimSpace(fl.text)
		if text == "" {
			continue
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil || v < 0 {
			return req, fmt.Errorf("%s must be a non-negative number, got %q", fl.name, fl.text)
		}
		*fl.dst = v
	}
	return req, req.Validate()
}

// DownloadView is the download modal: request form, live counters, and the
// job log.
type DownloadView struct {
	*tview.Flex
	theme *ui.Theme
	form  *tview.Form
	stats *tview.TextView
	log   *tview.TextView

	chat  backend.Chat
	topic *backend.Topic

	jobID    string
	rendered int

	onStart  func(req backend.DownloadRequest)
	onCancel func()
	onError  func(err error)
}

// NewDownloadView creates the download modal.
func NewDownloadView(theme *ui.Theme) *DownloadView {
	form := tview.NewForm()
	form.SetBorder(true)
	form.SetBorderColor(theme.BorderColor)
	form.SetBackgroundColor(theme.BgColor)
	form.SetFieldBackgroundColor(tcell.ColorDarkSlateGray)
	form.SetFieldTextColor(theme.FgColor)
	form.SetLabelColor(theme.MenuKeyColor)
	form.SetButtonBackgroundColor(theme.BorderColor)
	form.SetTitleColor(theme.TitleColor)

	stats := tview.NewTextView().SetDynamicColors(true)
	stats.SetBackgroundColor(theme.BgColor)
	stats.SetBorderPadding(0, 0, 1, 1)

	log := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	log.SetBorder(true)
	log.SetBorderColor(theme.BorderColor)
	log.SetBackgroundColor(theme.BgColor)
	log.SetTextColor(theme.FgColor)
	log.SetTitle(" Progress ")
	log.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(form, 13, 0, true).
		AddItem(stats, 1, 0, false).
		AddItem(log, 0, 1, false)

	dv := &DownloadView{
		Flex:  flex,
		theme: theme,
		form:  form,
		stats: stats,
		log:   log,
	}
	dv.buildForm()
	return dv
}

// Name implements Component.
func (dv *DownloadView) Name() string { return "Download" }

// Init implements Component.
func (dv *DownloadView) Init() {}

// Start implements Component.
func (dv *DownloadView) Start() {}

// Stop implements Component.
func (dv *DownloadView) Stop() {}

// Hints implements Component.
func (dv *DownloadView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Tab", Description: "Next field"},
		{Key: "Enter", Description: "Start"},
		{Key: "Esc", Description: "Cancel/Close"},
	}
}

// SetOnStart sets the callback invoked with a parsed request.
func (dv *DownloadView) SetOnStart(fn func(req backend.DownloadRequest)) { dv.onStart = fn }

// SetOnCancel sets the callback for the Cancel button.
func (dv *DownloadView) SetOnCancel(fn func()) { dv.onCancel = fn }

// SetOnError sets the callback for form validation errors.
func (dv *DownloadView) SetOnError(fn func(err error)) { dv.onError = fn }

// Open resets the modal for a new target.
func (dv *DownloadView) Open(chat backend.Chat, topic *backend.Topic) {
	dv.chat = chat
	dv.topic = topic
	dv.jobID = ""
	dv.rendered = 0
	dv.buildForm()
	dv.log.Clear()
	dv.stats.Clear()

	title := chat.Title
	if topic != nil {
		title += " / " + topic.Title
	}
	dv.form.SetTitle(fmt.Sprintf(" Download: %s ", tview.Escape(sanitizeForTerminal(title))))
}

// Form returns the form primitive for focus management.
func (dv *DownloadView) Form() *tview.Form { return dv.form }

func (dv *DownloadView) buildForm() {
	dv.form.Clear(true)
	dv.form.
		AddInputField("Limit", strconv.Itoa(DefaultLimit), 12, tview.InputFieldInteger, nil).
		AddInputField("Offset ID", "", 12, tview.InputFieldInteger, nil).
		AddInputField("Min ID", "", 12, tview.InputFieldInteger, nil).
		AddInputField("Max ID", "", 12, tview.InputFieldInteger, nil).
		AddButton("Start", dv.submit).
		AddButton("Cancel", func() {
			if dv.onCancel != nil {
				dv.onCancel()
			}
		})
}

func (dv *DownloadView) values() DownloadForm {
	text := func(label string) string {
		if f, ok := dv.form.GetFormItemByLabel(label).(*tview.InputField); ok {
			return f.GetText()
		}
		return ""
	}
	return DownloadForm{
		Limit:    text("Limit"),
		OffsetID: text("Offset ID"),
		MinID:    text("Min ID"),
		MaxID:    text("Max ID"),
	}
}

func (dv *DownloadView) submit() {
	var topicID *int64
	if dv.topic != nil {
		id := dv.topic.ID
		topicID = &id
	}
	req, err := dv.values().Request(dv.chat.ID, topicID)
	if err != nil {
		if dv.onError != nil {
			dv.onError(err)
		}
		return
	}
	if dv.onStart != nil {
		dv.onStart(req)
	}
}

// Update renders a job snapshot. Log entries are appended incrementally and
// the log follows the newest entry.
func (dv *DownloadView) Update(snap job.Snapshot) {
	if snap.ID != dv.jobID || len(snap.Log) < dv.rendered {
		dv.jobID = snap.ID
		dv.rendered = 0
		dv.log.Clear()
	}
	for _, e := range snap.Log[dv.rendered:] {
		_, _ = fmt.Fprintf(dv.log, "[%s]%s[-] %s\n",
			dv.entryColor(e.Kind), e.At.Format("15:04:05"), tview.Escape(sanitizeForTerminal(e.Text)))
	}
	dv.rendered = len(snap.Log)
	dv.log.ScrollToEnd()

	dv.stats.Clear()
	_, _ = fmt.Fprint(dv.stats, StatsLine(snap))
}

// StatsLine summarizes a job snapshot on one line.
func StatsLine(snap job.Snapshot) string {
	state := string(snap.State)
	if snap.Cancelled() {
		state = "cancelled"
	}
	line := fmt.Sprintf("[::b]%s[-:-:-]  downloaded %d  indexed %d", state, snap.Stats.Downloaded, snap.Stats.Indexed)
	if snap.State == job.Complete {
		line += fmt.Sprintf("  total %d", snap.Stats.Total)
	}
	if snap.Stats.ParseErrors > 0 {
		line += fmt.Sprintf("  skipped %d malformed", snap.Stats.ParseErrors)
	}
	return line
}

func (dv *DownloadView) entryColor(k job.EntryKind) string {
	switch k {
	case job.EntrySuccess, job.EntryIndex:
		return ui.ColorTag(dv.theme.LogOKColor)
	case job.EntryError:
		return ui.ColorTag(dv.theme.LogErrColor)
	default:
		return ui.ColorTag(dv.theme.ScoreColor)
	}
}
