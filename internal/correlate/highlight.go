package correlate

import (
	"sync"
	"time"
)

// HighlightDuration is how long a jumped-to anchor stays highlighted.
const HighlightDuration = 2500 * time.Millisecond

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler func(d time.Duration, f func()) Timer

// AfterFunc is the wall-clock Scheduler.
func AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Highlighter tracks the single active highlight over an Index.
type Highlighter struct {
	duration time.Duration
	after    Scheduler

	mu     sync.Mutex
	index  *Index
	active string
	timer  Timer
	gen    uint64

	onScroll func(Anchor)
	onChange func(active string)
}

// NewHighlighter creates a highlighter. d <= 0 selects HighlightDuration and a
// nil scheduler selects AfterFunc.
func NewHighlighter(d time.Duration, after Scheduler) *Highlighter {
	if d <= 0 {
		d = HighlightDuration
	}
	if after == nil {
		after = AfterFunc
	}
	return &Highlighter{duration: d, after: after}
}

// OnScroll sets the callback asked to bring an anchor into view.
func (h *Highlighter) OnScroll(fn func(Anchor)) {
	h.mu.Lock()
	h.onScroll = fn
	h.mu.Unlock()
}

// OnChange sets the callback told which cid is highlighted ("" for none).
// It may run on a timer goroutine.
func (h *Highlighter) OnChange(fn func(string)) {
	h.mu.Lock()
	h.onChange = fn
	h.mu.Unlock()
}

// SetIndex swaps the index and clears any highlight from the previous one.
func (h *Highlighter) SetIndex(idx *Index) {
	h.mu.Lock()
	h.index = idx
	h.mu.Unlock()
	h.Reset()
}

// JumpTo scrolls to cid and highlights it, replacing any active highlight.
// Returns false when cid does not resolve.
func (h *Highlighter) JumpTo(cid string) bool {
	h.mu.Lock()
	anchor, ok := h.index.Resolve(cid)
	if !ok {
		h.mu.Unlock()
		return false
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	h.gen++
	gen := h.gen
	h.active = cid
	h.timer = h.after(h.duration, func() { h.expire(gen) })
	onScroll, onChange := h.onScroll, h.onChange
	h.mu.Unlock()

	if onScroll != nil {
		onScroll(anchor)
	}
	if onChange != nil {
		onChange(cid)
	}
	return true
}

// Active returns the highlighted cid.
func (h *Highlighter) Active() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active, h.active != ""
}

// Reset clears the highlight and cancels its pending clear.
func (h *Highlighter) Reset() {
	h.mu.Lock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.gen++
	had := h.active != ""
	h.active = ""
	onChange := h.onChange
	h.mu.Unlock()

	if had && onChange != nil {
		onChange("")
	}
}

// expire clears the highlight set by generation gen. A timer that fires after
// being superseded is a no-op.
func (h *Highlighter) expire(gen uint64) {
	h.mu.Lock()
	if gen != h.gen {
		h.mu.Unlock()
		return
	}
	h.active = ""
	h.timer = nil
	onChange := h.onChange
	h.mu.Unlock()

	if onChange != nil {
		onChange("")
	}
}
