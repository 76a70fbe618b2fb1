package view

import (
	"strings"

	"github.com/matheus3301/tgrag/internal/backend"
)

// Window defaults.
const (
	DefaultFloor = 50
	DefaultStep  = 30
)

// Projector derives a growing visible window over a filtered chat list.
// It is not safe for concurrent use; the TUI drives it from the UI goroutine.
type Projector struct {
	floor int
	step  int

	all      []backend.Chat
	filter   string
	filtered []backend.Chat
	visible  int
	pending  bool
}

// NewProjector creates a projector. Non-positive floor or step select the defaults.
func NewProjector(floor, step int) *Projector {
	if floor <= 0 {
		floor = DefaultFloor
	}
	if step <= 0 {
		step = DefaultStep
	}
	return &Projector{floor: floor, step: step, visible: floor}
}

// SetChats replaces the underlying list and reapplies the current filter.
// The window size is kept so a background refresh doesn't collapse a
// scrolled list.
func (p *Projector) SetChats(chats []backend.Chat) {
	p.all = chats
	p.filtered = applyFilter(chats, p.filter)
}

// SetFilter changes the filter text. Any change resets the window to the floor
// and discards pending growth.
func (p *Projector) SetFilter(text string) {
	if text == p.filter {
		return
	}
	p.filter = text
	p.filtered = applyFilter(p.all, text)
	p.visible = p.floor
	p.pending = false
}

// Filter returns the current filter text.
func (p *Projector) Filter() string { return p.filter }

// Visible returns filtered[0:visibleCount].
func (p *Projector) Visible() []backend.Chat {
	return p.filtered[:p.VisibleCount()]
}

// VisibleCount is min(window, len(filtered)).
func (p *Projector) VisibleCount() int {
	return min(p.visible, len(p.filtered))
}

// FilteredLen is the size of the filtered universe.
func (p *Projector) FilteredLen() int { return len(p.filtered) }

// Total is the size of the unfiltered list.
func (p *Projector) Total() int { return len(p.all) }

// HasMore reports whether growing would reveal more rows.
func (p *Projector) HasMore() bool { return p.visible < len(p.filtered) }

// Grow extends the window by one step, clamped to the filtered length.
// Returns false when already at the clamp.
func (p *Projector) Grow() bool {
	if p.visible >= len(p.filtered) {
		return false
	}
	p.visible = min(p.visible+p.step, len(p.filtered))
	return true
}

// MaybeGrow grows once when the scroll position is near the bottom and no
// growth is pending. The pending flag holds until Rendered is called, so a
// burst of scroll events grows the window a single step.
func (p *Projector) MaybeGrow(offset, viewport, content, threshold int) bool {
	if p.pending || !NearBottom(offset, viewport, content, threshold) {
		return false
	}
	if !p.Grow() {
		return false
	}
	p.pending = true
	return true
}

// Rendered acknowledges that the grown window has been drawn.
func (p *Projector) Rendered() { p.pending = false }

// Pending reports whether a growth is waiting to be rendered.
func (p *Projector) Pending() bool { return p.pending }

// NearBottom reports whether the viewport end is within threshold of the
// content end.
func NearBottom(offset, viewport, content, threshold int) bool {
	return offset+viewport >= content-threshold
}

func applyFilter(chats []backend.Chat, text string) []backend.Chat {
	if text == "" {
		return chats
	}
	needle := strings.ToLower(text)
	var out []backend.Chat
	for _, c := range chats {
		if strings.Contains(strings.ToLower(c.Title), needle) {
			out = append(out, c)
		}
	}
	return out
}
