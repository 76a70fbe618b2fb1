package job

import (
	"testing"

	"github.com/matheus3301/tgrag/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine("j1", nil)
	if m.Current() != Idle {
		t.Errorf("initial state = %s, want idle", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Idle, Running},
		{Idle, Failed},
		{Running, Complete},
		{Running, Failed},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine("j1", nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	for _, terminal := range []State{Complete, Failed} {
		for _, to := range []State{Idle, Running, Complete, Failed} {
			m := NewMachine("j1", nil)
			walkTo(t, m, terminal)
			if err := m.Transition(to); err == nil {
				t.Errorf("Transition(%s -> %s) should fail", terminal, to)
			}
		}
	}
}

func TestIdleCannotComplete(t *testing.T) {
	m := NewMachine("j1", nil)
	if err := m.Transition(Complete); err == nil {
		t.Error("Transition(idle -> complete) should fail")
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New(nil)
	ch, unsub := b.Subscribe("job.", 10)
	defer unsub()

	m := NewMachine("j1", b)
	if err := m.Transition(Running); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.JobStateChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.JobStateChanged)
	}
	change, ok := evt.Payload.(StateChange)
	if !ok {
		t.Fatalf("payload type = %T, want StateChange", evt.Payload)
	}
	if change.JobID != "j1" || change.From != Idle || change.To != Running {
		t.Errorf("change = %+v", change)
	}
}

// walkTo transitions the machine from Idle to the target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Idle:     {},
		Running:  {Running},
		Complete: {Running, Complete},
		Failed:   {Running, Failed},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): transition to %s failed: %v", target, s, err)
		}
	}
}
