package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/matheus3301/tgrag/internal/backend"
	"github.com/matheus3301/tgrag/internal/bus"
	"github.com/matheus3301/tgrag/internal/cache"
	"github.com/matheus3301/tgrag/internal/correlate"
	"github.com/matheus3301/tgrag/internal/job"
	"github.com/matheus3301/tgrag/internal/search"
	"github.com/matheus3301/tgrag/internal/tui/keys"
	"github.com/matheus3301/tgrag/internal/tui/model"
	"github.com/matheus3301/tgrag/internal/tui/ui"
	"github.com/matheus3301/tgrag/internal/tui/views"
)

// Page names.
const (
	pageChats    = "chats"
	pageTopics   = "topics"
	pageDownload = "download"
	pageSearch   = "search"
	pageMessage  = "message"
	pageAuth     = "auth"
	pageHelp     = "help"
)

const (
	headerHeight = 7
	promptHeight = 3
)

// Options configures the TUI shell.
type Options struct {
	Profile    string
	BackendURL string
	Bus        *bus.Bus
	Logger     *zap.Logger
}

// App is the main TUI application shell.
type App struct {
	app     *tview.Application
	theme   *ui.Theme
	vm      *model.ViewModel
	bus     *bus.Bus
	log     *zap.Logger
	profile string

	root     *tview.Flex
	pages    *ui.Pages
	crumbs   *ui.Crumbs
	menu     *ui.Menu
	info     *ui.ProfileInfo
	logo     *ui.Logo
	prompt   *ui.Prompt
	flash    *ui.FlashModel
	flashBar *ui.FlashBar
	registry *keys.Registry

	chatList  *views.ChatList
	topicList *views.TopicList
	download  *views.DownloadView
	searchV   *views.SearchView
	message   *views.LinkView
	authView  *views.AuthView
	help      *views.HelpView
	hl        *correlate.Highlighter

	components map[string]ui.Component
	top        string

	// UI goroutine only.
	promptOpen bool
	asking     bool
	pending    *search.Turn
	jobLine    string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(vm *model.ViewModel, opts Options) *App {
	ctx, cancel := context.WithCancel(context.Background())
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	theme := ui.DefaultTheme()

	a := &App{
		app:      tview.NewApplication(),
		theme:    theme,
		vm:       vm,
		bus:      opts.Bus,
		log:      logger.Named("tui"),
		profile:  opts.Profile,
		pages:    ui.NewPages(),
		crumbs:   ui.NewCrumbs(theme),
		menu:     ui.NewMenu(theme, headerHeight),
		info:     ui.NewProfileInfo(theme),
		logo:     ui.NewLogo(theme, opts.BackendURL),
		prompt:   ui.NewPrompt(theme),
		flash:    ui.NewFlashModel(),
		flashBar: ui.NewFlashBar(theme),
		registry: keys.NewRegistry(),

		chatList:  views.NewChatList(theme),
		topicList: views.NewTopicList(theme),
		download:  views.NewDownloadView(theme),
		message:   views.NewLinkView(theme),
		authView:  views.NewAuthView(theme),
		help:      views.NewHelpView(theme),
		hl:        correlate.NewHighlighter(correlate.HighlightDuration, nil),
		ctx:       ctx,
		cancel:    cancel,
	}
	a.searchV = views.NewSearchView(theme, a.hl, func(f func()) { a.app.QueueUpdateDraw(f) })

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	r := a.registry
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: ':', Description: "Command", Visible: true, Handler: func() { a.openPrompt(ui.PromptCommand) }})
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: 's', Description: "Search", Visible: true, Handler: a.showSearch})
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: '?', Description: "Help", Visible: true, Handler: a.showHelp})
	r.AddGlobal(&keys.Action{Key: tcell.KeyEscape, Label: "Esc", Description: "Back", Visible: true, Handler: a.back})
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: 'q', Description: "Quit", Visible: true, Handler: a.Stop})

	r.AddView(pageChats, &keys.Action{Key: tcell.KeyEnter, Label: "Enter", Description: "Download", Visible: true, Handler: a.downloadSelectedChat})
	r.AddView(pageChats, &keys.Action{Key: tcell.KeyRune, Rune: 't', Description: "Topics", Visible: true, Handler: a.openTopics})
	r.AddView(pageChats, &keys.Action{Key: tcell.KeyRune, Rune: 'r', Description: "Refresh", Visible: true, Handler: func() { a.loadChats(true) }})
	r.AddView(pageChats, &keys.Action{Key: tcell.KeyRune, Rune: '/', Description: "Filter", Visible: true, Handler: func() { a.openPrompt(ui.PromptFilter) }})
	r.AddView(pageChats, &keys.Action{Key: tcell.KeyRune, Rune: '0', Description: "Clear filter", Visible: true, Handler: func() { a.chatList.SetFilter("") }})

	r.AddView(pageTopics, &keys.Action{Key: tcell.KeyEnter, Label: "Enter", Description: "Download", Visible: true, Handler: a.downloadSelectedTopic})

	r.AddView(pageSearch, &keys.Action{Key: tcell.KeyTab, Label: "Tab", Description: "Switch pane", Visible: true, Handler: a.cycleSearchFocus})
	r.AddView(pageSearch, &keys.Action{Key: tcell.KeyRune, Rune: 'i', Description: "Ask", Visible: true, Handler: func() { a.app.SetFocus(a.searchV.Input()) }})
	r.AddView(pageSearch, &keys.Action{Key: tcell.KeyRune, Rune: ']', Description: "Next citation", Visible: true, Handler: func() { a.jumpCitation(1) }})
	r.AddView(pageSearch, &keys.Action{Key: tcell.KeyRune, Rune: '[', Description: "Prev citation", Visible: true, Handler: func() { a.jumpCitation(-1) }})
	r.AddView(pageSearch, &keys.Action{Key: tcell.KeyRune, Rune: 'o', Description: "Open hit", Visible: true, Handler: a.openHit})
	r.AddView(pageSearch, &keys.Action{Key: tcell.KeyRune, Rune: ' ', Label: "Space", Description: "Toggle source", Visible: true, Handler: a.searchV.ToggleSelected})
	r.AddView(pageSearch, &keys.Action{Key: tcell.KeyRune, Rune: 'a', Description: "All sources", Visible: true, Handler: func() { a.selectAll(true) }})
	r.AddView(pageSearch, &keys.Action{Key: tcell.KeyRune, Rune: 'n', Description: "No sources", Visible: true, Handler: func() { a.selectAll(false) }})
	r.AddView(pageSearch, &keys.Action{Key: tcell.KeyRune, Rune: 'd', Description: "Delete source", Visible: true, Handler: a.deleteSelectedSource})
	r.AddView(pageSearch, &keys.Action{Key: tcell.KeyRune, Rune: 'r', Description: "Reload sources", Visible: true, Handler: a.loadSources})
	r.AddView(pageSearch, &keys.Action{Key: tcell.KeyRune, Rune: 'x', Description: "Clear", Visible: true, Handler: a.clearConversation})
}

func (a *App) setupCallbacks() {
	a.pages.SetOnChange(a.onPageChange)

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.closePrompt()
		switch mode {
		case ui.PromptFilter:
			a.chatList.SetFilter(text)
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(a.closePrompt)
	a.prompt.SetCompletions(CommandNames())

	a.download.SetOnStart(a.startDownload)
	a.download.SetOnCancel(a.closeDownload)
	a.download.SetOnError(func(err error) { a.flash.Err(err) })

	a.searchV.SetOnQuery(a.ask)
	a.searchV.SetOnToggle(a.vm.ToggleSource)
	a.searchV.SetOnOpen(func(h backend.Hit, link string) {
		a.message.Update(h, link)
		a.pages.Push(pageMessage)
	})

	a.authView.SetOnSubmit(a.authStep)
}

func (a *App) setupLayout() {
	a.components = map[string]ui.Component{
		pageChats:    a.chatList,
		pageTopics:   a.topicList,
		pageDownload: a.download,
		pageSearch:   a.searchV,
		pageMessage:  a.message,
		pageAuth:     a.authView,
		pageHelp:     a.help,
	}
	prims := map[string]tview.Primitive{
		pageChats:    a.chatList,
		pageTopics:   a.topicList,
		pageDownload: a.download,
		pageSearch:   a.searchV,
		pageMessage:  a.message,
		pageAuth:     a.authView,
		pageHelp:     a.help,
	}
	for name, p := range prims {
		a.components[name].Init()
		a.pages.AddPage(name, p, true, false)
	}

	header := tview.NewFlex().
		AddItem(a.info, 0, 2, false).
		AddItem(a.menu, 0, 3, false).
		AddItem(a.logo, 24, 0, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, headerHeight, 0, false).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.flashBar, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.app.SetInputCapture(a.handleKey)
	a.pages.Push(pageChats)
}

func (a *App) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	if ev.Key() == tcell.KeyCtrlC {
		a.Stop()
		return nil
	}
	if a.promptOpen {
		return ev
	}
	page := a.pages.Current()

	// Forms and inputs own their keys; only Esc and pane switching escape.
	_, typing := a.app.GetFocus().(*tview.InputField)
	if typing || page == pageDownload {
		switch {
		case ev.Key() == tcell.KeyEscape:
			a.back()
			return nil
		case ev.Key() == tcell.KeyTab && page == pageSearch:
			a.cycleSearchFocus()
			return nil
		}
		return ev
	}

	if a.registry.HandleEvent(page, ev) {
		return nil
	}
	return ev
}

func (a *App) onPageChange(stack []string) {
	a.crumbs.Update(stack)
	name := a.pages.Current()
	if name != a.top {
		if c, ok := a.components[a.top]; ok {
			c.Stop()
		}
		if c, ok := a.components[name]; ok {
			c.Start()
		}
		a.top = name
	}
	a.menu.Update(a.registry.Hints(name))
	a.focusPage(name)
}

func (a *App) focusPage(name string) {
	switch name {
	case pageChats:
		a.app.SetFocus(a.chatList)
	case pageTopics:
		a.app.SetFocus(a.topicList)
	case pageDownload:
		a.app.SetFocus(a.download.Form())
	case pageSearch:
		a.app.SetFocus(a.searchV.Input())
	case pageMessage:
		a.app.SetFocus(a.message)
	case pageAuth:
		a.app.SetFocus(a.authView.Input())
	case pageHelp:
		a.app.SetFocus(a.help)
	}
}

func (a *App) back() {
	switch a.pages.Current() {
	case pageDownload:
		a.closeDownload()
	default:
		a.pages.Pop()
	}
}

// background runs f off the UI goroutine and flashes its error.
func (a *App) background(what string, f func(ctx context.Context) error) {
	go func() {
		if err := f(a.ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn(what+" failed", zap.Error(err))
			a.flash.Errf(what, err)
		}
	}()
}

// Prompt.

func (a *App) openPrompt(mode ui.PromptMode) {
	a.showPrompt()
	a.prompt.Activate(mode)
}

func (a *App) confirm(question string, yes func()) {
	a.showPrompt()
	a.prompt.Ask(question, func() {
		a.closePrompt()
		yes()
	})
}

func (a *App) showPrompt() {
	a.promptOpen = true
	a.root.ResizeItem(a.prompt, promptHeight, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) closePrompt() {
	if !a.promptOpen {
		return
	}
	a.promptOpen = false
	a.root.ResizeItem(a.prompt, 0, 0)
	a.focusPage(a.pages.Current())
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "quit":
		a.Stop()
	case "help":
		a.showHelp()
	case "chats":
		a.pages.Push(pageChats)
	case "refresh":
		a.loadChats(true)
	case "filter":
		a.pages.Push(pageChats)
		a.chatList.SetFilter(cmd.Args)
	case "ask":
		a.showSearch()
		if cmd.Args != "" {
			a.ask(cmd.Args)
		}
	case "cite":
		a.showSearch()
		if !a.hl.JumpTo(cmd.Args) {
			a.flash.Warn(fmt.Sprintf("no citation %q in the last answer", cmd.Args))
		}
	case "clear":
		a.clearConversation()
	case "delete":
		chatID, topicID, err := ParseSourceRef(cmd.Args)
		if err != nil {
			a.flash.Err(err)
			return
		}
		a.confirmDelete(fmt.Sprintf("Delete indexed %s?", cmd.Args), chatID, topicID)
	case "cancel":
		if !a.vm.DownloadRunning() {
			a.flash.Info("no download running")
			return
		}
		a.vm.CancelDownload()
	case "auth":
		a.showAuth()
	default:
		a.flash.Warn("unknown command: " + cmd.Name)
	}
}

// Chats and topics.

func (a *App) loadChats(force bool) {
	a.background("load chats", func(ctx context.Context) error {
		chats, err := a.vm.LoadChats(ctx, force)
		stale := err != nil && len(chats) > 0
		if chats != nil {
			a.app.QueueUpdateDraw(func() { a.chatList.Update(chats, stale) })
		}
		return err
	})
}

func (a *App) openTopics() {
	chat, ok := a.chatList.SelectedChat()
	if !ok {
		return
	}
	if !chat.IsForum {
		a.flash.Info(chat.Title + " has no topics")
		return
	}
	a.background("load topics", func(ctx context.Context) error {
		topics, err := a.vm.LoadTopics(ctx, chat.ID)
		if err != nil {
			return err
		}
		a.app.QueueUpdateDraw(func() {
			a.topicList.Update(chat, topics)
			a.crumbs.Label(pageTopics, chat.Title)
			a.pages.Push(pageTopics)
		})
		return nil
	})
}

// Download.

func (a *App) downloadSelectedChat() {
	chat, ok := a.chatList.SelectedChat()
	if !ok {
		return
	}
	a.download.Open(chat, nil)
	a.crumbs.Label(pageDownload, chat.Title)
	a.pages.Push(pageDownload)
}

func (a *App) downloadSelectedTopic() {
	topic, ok := a.topicList.SelectedTopic()
	if !ok {
		return
	}
	a.download.Open(a.topicList.Chat(), &topic)
	a.crumbs.Label(pageDownload, topic.Title)
	a.pages.Push(pageDownload)
}

// startDownload registers the job on the UI goroutine so closeDownload always
// sees it; the stream itself opens on the job's goroutine.
func (a *App) startDownload(req backend.DownloadRequest) {
	_, err := a.vm.StartDownload(a.ctx, req, func(snap job.Snapshot) {
		a.app.QueueUpdateDraw(func() {
			a.download.Update(snap)
			a.setJobLine(snap)
		})
	})
	if err != nil {
		a.log.Warn("start download failed", zap.Error(err))
		a.flash.Errf("start download", err)
	}
}

// closeDownload leaves the modal; a job still running is cancelled with it.
func (a *App) closeDownload() {
	if a.vm.DownloadRunning() {
		a.vm.CancelDownload()
		a.flash.Warn("download cancelled")
	}
	a.pages.Pop()
}

func (a *App) setJobLine(snap job.Snapshot) {
	a.jobLine = ""
	if !snap.State.Terminal() {
		a.jobLine = fmt.Sprintf("%s, %d/%d", snap.State, snap.Stats.Indexed, snap.Stats.Downloaded)
	}
	a.updateHeader()
}

// Search.

func (a *App) showSearch() {
	a.pages.Push(pageSearch)
	a.searchV.SetSources(a.vm.Sources(), a.vm.Selected)
	a.renderConversation()
}

func (a *App) ask(text string) {
	if a.asking {
		a.flash.Warn("a question is already running")
		return
	}
	a.asking = true
	a.pending = &search.Turn{Query: search.Query{Text: text}}
	a.renderConversation()

	go func() {
		_, err := a.vm.Ask(a.ctx, text, func(_ search.Leg, t search.Turn) {
			a.app.QueueUpdateDraw(func() {
				if a.asking {
					a.pending = &t
					a.renderConversation()
				}
			})
		})
		a.app.QueueUpdateDraw(func() {
			a.asking = false
			a.pending = nil
			if err != nil && !errors.Is(err, context.Canceled) {
				a.flash.Errf("ask", err)
			}
			a.renderConversation()
		})
	}()
}

func (a *App) renderConversation() {
	a.searchV.Render(a.vm.Conversation.Turns(), a.pending)
}

func (a *App) clearConversation() {
	a.vm.Conversation.Clear()
	a.renderConversation()
}

func (a *App) jumpCitation(delta int) {
	if !a.searchV.JumpCitation(delta) {
		a.flash.Info("no citations to jump to")
	}
}

func (a *App) openHit() {
	if !a.searchV.OpenCurrent() {
		a.flash.Info("no hit to open")
	}
}

func (a *App) cycleSearchFocus() {
	switch a.app.GetFocus() {
	case a.searchV.Input():
		a.app.SetFocus(a.searchV.Conversation())
	case a.searchV.Conversation():
		a.app.SetFocus(a.searchV.Sources())
	default:
		a.app.SetFocus(a.searchV.Input())
	}
}

func (a *App) selectAll(on bool) {
	a.vm.SelectAll(on)
	a.searchV.RefreshSources()
}

func (a *App) loadSources() {
	a.background("load sources", func(ctx context.Context) error {
		sources, err := a.vm.LoadSources(ctx)
		if err != nil {
			return err
		}
		a.app.QueueUpdateDraw(func() { a.searchV.SetSources(sources, a.vm.Selected) })
		return nil
	})
}

func (a *App) deleteSelectedSource() {
	row, _ := a.searchV.Sources().GetSelection()
	sources := a.vm.Sources()
	if row < 0 || row >= len(sources) {
		return
	}
	s := sources[row]
	a.confirmDelete(fmt.Sprintf("Delete %s (%d messages)?", s.Label(), s.MessagesCount), s.ChatID, s.TopicID)
}

func (a *App) confirmDelete(question string, chatID int64, topicID *int64) {
	a.confirm(question, func() {
		a.background("delete source", func(ctx context.Context) error {
			if err := a.vm.DeleteSource(ctx, chatID, topicID); err != nil {
				return err
			}
			a.flash.OK("source deleted")
			a.app.QueueUpdateDraw(func() { a.searchV.SetSources(a.vm.Sources(), a.vm.Selected) })
			return nil
		})
	})
}

// Auth.

func (a *App) showAuth() {
	a.authView.ShowStatus(a.vm.Auth())
	a.pages.Push(pageAuth)
}

func (a *App) authStep(input string, twoFactor bool) {
	a.background("auth", func(ctx context.Context) error {
		res, err := a.vm.AuthStep(ctx, input, twoFactor)
		if res != nil {
			a.app.QueueUpdateDraw(func() {
				a.authView.ShowResult(res)
				a.updateHeader()
				if res.Status == backend.AuthAuthorized {
					a.pages.Push(pageChats)
					a.loadChats(true)
				}
			})
		}
		return err
	})
}

// Help.

func (a *App) showHelp() {
	var sections []views.HelpSection
	for _, name := range []string{pageChats, pageTopics, pageDownload, pageSearch, pageMessage} {
		c := a.components[name]
		sections = append(sections, views.HelpSection{Title: c.Name(), Hints: c.Hints()})
	}
	sections = append(sections, views.HelpSection{Title: "Global", Hints: a.registry.Hints("")})
	cmds := make([]ui.MenuHint, 0, len(commands))
	for _, c := range commands {
		cmds = append(cmds, ui.MenuHint{Key: c.Usage, Description: c.Description})
	}
	sections = append(sections, views.HelpSection{Title: "Commands", Hints: cmds})
	a.help.Update(sections)
	a.pages.Push(pageHelp)
}

// Header.

func (a *App) updateHeader() {
	a.info.Update(ui.ProfileData{
		Profile: a.profile,
		Auth:    a.vm.Auth(),
		Stats:   a.vm.Stats(),
		Job:     a.jobLine,
	})
}

// Background loops.

func (a *App) bootstrap() {
	st, err := a.vm.LoadAuth(a.ctx)
	if err != nil {
		a.flash.Errf("backend unreachable", err)
	}
	a.app.QueueUpdateDraw(func() {
		a.updateHeader()
		if st != nil && !st.IsAuthorized {
			a.showAuth()
		}
	})
	a.loadChats(false)
	a.loadSources()
	a.background("load stats", func(ctx context.Context) error {
		_, err := a.vm.LoadStats(ctx)
		return err
	})
}

func (a *App) watchFlash() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.flash.Watch():
		case <-ticker.C:
		}
		msg := a.flash.Current()
		a.app.QueueUpdateDraw(func() { a.flashBar.Update(msg) })
	}
}

func (a *App) watchBus() {
	if a.bus == nil {
		return
	}
	jobs, unsubJobs := a.bus.Subscribe("job.", 64)
	defer unsubJobs()
	stats, unsubStats := a.bus.Subscribe("stats.", 8)
	defer unsubStats()
	caches, unsubCache := a.bus.Subscribe("cache.", 8)
	defer unsubCache()

	for {
		select {
		case <-a.ctx.Done():
			return
		case ev := <-jobs:
			a.onJobEvent(ev)
		case ev := <-stats:
			if ev.Kind == bus.StatsChanged {
				a.app.QueueUpdateDraw(a.updateHeader)
			}
		case ev := <-caches:
			a.onCacheEvent(ev)
		}
	}
}

func (a *App) onJobEvent(ev bus.Event) {
	switch ev.Kind {
	case bus.JobStarted:
		if snap, ok := ev.Payload.(job.Snapshot); ok {
			a.app.QueueUpdateDraw(func() { a.setJobLine(snap) })
		}
	case bus.JobFinished:
		snap, ok := ev.Payload.(job.Snapshot)
		if !ok {
			return
		}
		switch {
		case snap.State == job.Complete:
			a.flash.OK(fmt.Sprintf("download complete: %d indexed", snap.Stats.Indexed))
		case snap.Cancelled():
		default:
			a.flash.Errf("download", errors.New(snap.Err))
		}
		a.app.QueueUpdateDraw(func() { a.setJobLine(snap) })
		a.loadSources()
		a.background("load stats", func(ctx context.Context) error {
			_, err := a.vm.LoadStats(ctx)
			return err
		})
	}
}

func (a *App) onCacheEvent(ev bus.Event) {
	switch ev.Kind {
	case bus.CacheRefreshed:
		if snap, ok := ev.Payload.(cache.Snapshot); ok {
			a.app.QueueUpdateDraw(func() { a.chatList.Update(snap.Chats, false) })
		}
	case bus.CacheInvalidated:
		a.loadChats(false)
	}
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run() error {
	go a.watchFlash()
	go a.watchBus()
	go a.bootstrap()
	err := a.app.Run()
	a.cancel()
	return err
}

// Stop shuts the TUI down.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
