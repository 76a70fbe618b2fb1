package job

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/tgrag/internal/bus"
)

// State is the lifecycle position of a Job.
type State string

const (
	Idle     State = "idle"
	Running  State = "running"
	Complete State = "complete"
	Failed   State = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Complete || s == Failed
}

var validTransitions = map[State][]State{
	Idle:    {Running, Failed},
	Running: {Complete, Failed},
}

// Machine enforces Job state transitions and announces each one on the bus.
type Machine struct {
	mu      sync.RWMutex
	jobID   string
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine in Idle for the given job. b may be nil.
func NewMachine(jobID string, b *bus.Bus) *Machine {
	return &Machine{
		jobID:   jobID,
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid job transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.JobStateChanged, StateChange{JobID: m.jobID, From: from, To: to})
	}
	return nil
}

// StateChange is the payload of bus.JobStateChanged.
type StateChange struct {
	JobID string
	From  State
	To    State
}
