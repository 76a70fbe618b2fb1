package model

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/tgrag/internal/backend"
	"github.com/matheus3301/tgrag/internal/bus"
	"github.com/matheus3301/tgrag/internal/cache"
	"github.com/matheus3301/tgrag/internal/job"
	"github.com/matheus3301/tgrag/internal/search"
)

// Backend is the part of the backend client the console calls directly.
type Backend interface {
	ListTopics(ctx context.Context, chatID int64) ([]backend.Topic, error)
	Sources(ctx context.Context) ([]backend.Source, error)
	Stats(ctx context.Context) (*backend.Stats, error)
	DeleteSource(ctx context.Context, chatID int64, topicID *int64) error
	AuthStatus(ctx context.Context) (*backend.AuthStatus, error)
	SendCode(ctx context.Context) (*backend.AuthResult, error)
	VerifyCode(ctx context.Context, code string) (*backend.AuthResult, error)
	Verify2FA(ctx context.Context, password string) (*backend.AuthResult, error)
}

// Deps bundles the collaborators of a ViewModel.
type Deps struct {
	Backend Backend
	Chats   cache.Store
	Jobs    *job.Runner
	Search  *search.Runner
	Bus     *bus.Bus
	Logger  *zap.Logger
	TopK    int
	Style   string
}

// ViewModel holds the console state shared across views. Loads run on
// background goroutines; getters return copies safe to render.
type ViewModel struct {
	backend Backend
	chats   cache.Store
	jobs    *job.Runner
	search  *search.Runner
	bus     *bus.Bus
	log     *zap.Logger
	topK    int
	style   string

	mu       sync.RWMutex
	stats    *backend.Stats
	auth     *backend.AuthStatus
	sources  []backend.Source
	selected map[int64]bool

	Conversation search.Conversation
}

// NewViewModel creates a view model over the console services.
func NewViewModel(d Deps) *ViewModel {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViewModel{
		backend:  d.Backend,
		chats:    d.Chats,
		jobs:     d.Jobs,
		search:   d.Search,
		bus:      d.Bus,
		log:      logger.Named("tui"),
		topK:     d.TopK,
		style:    d.Style,
		selected: make(map[int64]bool),
	}
}

// LoadChats reads the chat list through the entity cache. On a failed
// refresh the stale list, if any, is returned with the error.
func (vm *ViewModel) LoadChats(ctx context.Context, force bool) ([]backend.Chat, error) {
	return vm.chats.Get(ctx, force)
}

// LoadTopics fetches the topics of a forum chat.
func (vm *ViewModel) LoadTopics(ctx context.Context, chatID int64) ([]backend.Topic, error) {
	return vm.backend.ListTopics(ctx, chatID)
}

// LoadStats refreshes the aggregate counters and announces them on the bus.
func (vm *ViewModel) LoadStats(ctx context.Context) (*backend.Stats, error) {
	stats, err := vm.backend.Stats(ctx)
	if err != nil {
		return nil, err
	}
	vm.mu.Lock()
	vm.stats = stats
	vm.mu.Unlock()
	if vm.bus != nil {
		vm.bus.Publish(bus.StatsChanged, *stats)
	}
	return stats, nil
}

// Stats returns the last loaded counters, or nil.
func (vm *ViewModel) Stats() *backend.Stats {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.stats == nil {
		return nil
	}
	s := *vm.stats
	return &s
}

// LoadSources refreshes the indexed sources. Newly seen chats start selected.
func (vm *ViewModel) LoadSources(ctx context.Context) ([]backend.Source, error) {
	sources, err := vm.backend.Sources(ctx)
	if err != nil {
		return nil, err
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	known := make(map[int64]bool, len(sources))
	for _, s := range sources {
		known[s.ChatID] = true
		if _, seen := vm.selected[s.ChatID]; !seen {
			vm.selected[s.ChatID] = true
		}
	}
	for id := range vm.selected {
		if !known[id] {
			delete(vm.selected, id)
		}
	}
	vm.sources = sources
	return slices.Clone(sources), nil
}

// Sources returns the last loaded sources.
func (vm *ViewModel) Sources() []backend.Source {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return slices.Clone(vm.sources)
}

// Selected reports whether searches include chatID.
func (vm *ViewModel) Selected(chatID int64) bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.selected[chatID]
}

// ToggleSource flips the selection of every source of chatID.
func (vm *ViewModel) ToggleSource(chatID int64) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if _, ok := vm.selected[chatID]; ok {
		vm.selected[chatID] = !vm.selected[chatID]
	}
}

// SelectAll selects or clears every known source.
func (vm *ViewModel) SelectAll(on bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	for id := range vm.selected {
		vm.selected[id] = on
	}
}

// SelectedChatIDs lists the selected chats in source order.
func (vm *ViewModel) SelectedChatIDs() []int64 {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	var ids []int64
	for _, s := range vm.sources {
		if vm.selected[s.ChatID] && !slices.Contains(ids, s.ChatID) {
			ids = append(ids, s.ChatID)
		}
	}
	return ids
}

// DeleteSource removes an indexed chat or topic, then invalidates the chat
// cache and refreshes sources and counters.
func (vm *ViewModel) DeleteSource(ctx context.Context, chatID int64, topicID *int64) error {
	if err := vm.backend.DeleteSource(ctx, chatID, topicID); err != nil {
		return err
	}
	vm.chats.Invalidate()
	if _, err := vm.LoadSources(ctx); err != nil {
		vm.log.Warn("reload sources after delete failed", zap.Error(err))
	}
	if _, err := vm.LoadStats(ctx); err != nil {
		vm.log.Warn("reload stats after delete failed", zap.Error(err))
	}
	return nil
}

// LoadAuth refreshes the backend's authorization state.
func (vm *ViewModel) LoadAuth(ctx context.Context) (*backend.AuthStatus, error) {
	st, err := vm.backend.AuthStatus(ctx)
	if err != nil {
		return nil, err
	}
	vm.mu.Lock()
	vm.auth = st
	vm.mu.Unlock()
	return st, nil
}

// Auth returns the last loaded auth state, or nil.
func (vm *ViewModel) Auth() *backend.AuthStatus {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.auth == nil {
		return nil
	}
	a := *vm.auth
	return &a
}

// AuthStep runs one step of the login flow: an empty input sends the code,
// otherwise input is the code, or the password once 2FA was requested.
func (vm *ViewModel) AuthStep(ctx context.Context, input string, twoFactor bool) (*backend.AuthResult, error) {
	var (
		res *backend.AuthResult
		err error
	)
	switch {
	case input == "":
		res, err = vm.backend.SendCode(ctx)
	case twoFactor:
		res, err = vm.backend.Verify2FA(ctx, input)
	default:
		res, err = vm.backend.VerifyCode(ctx, input)
	}
	if err != nil {
		return nil, err
	}
	if res.Status == backend.AuthError {
		return res, fmt.Errorf("auth: %s", res.Error)
	}
	if res.Status == backend.AuthAuthorized {
		if _, err := vm.LoadAuth(ctx); err != nil {
			vm.log.Warn("reload auth status failed", zap.Error(err))
		}
	}
	return res, nil
}

// StartDownload starts a job, replacing any running one.
func (vm *ViewModel) StartDownload(ctx context.Context, req backend.DownloadRequest, onUpdate func(job.Snapshot)) (*job.Job, error) {
	return vm.jobs.Start(ctx, req, onUpdate)
}

// CancelDownload aborts the running job, if any.
func (vm *ViewModel) CancelDownload() {
	vm.jobs.Cancel()
}

// DownloadRunning reports whether a job is in flight.
func (vm *ViewModel) DownloadRunning() bool {
	return vm.jobs.Running()
}

// Ask runs a search turn over the selected sources and appends it to the
// conversation. onPartial receives each leg as it resolves.
func (vm *ViewModel) Ask(ctx context.Context, text string, onPartial func(search.Leg, search.Turn)) (*search.Turn, error) {
	turn, err := vm.search.Run(ctx, search.Query{
		Text:    text,
		Sources: vm.SelectedChatIDs(),
		TopK:    vm.topK,
		Style:   vm.style,
	}, onPartial)
	if err != nil {
		return nil, err
	}
	vm.Conversation.Append(turn)
	return turn, nil
}
