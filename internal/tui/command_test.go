package tui

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  Command
	}{
		{"quit", Command{Name: "quit"}},
		{"q", Command{Name: "quit"}},
		{"  S  what did alice say ", Command{Name: "ask", Args: "what did alice say"}},
		{"filter  go ", Command{Name: "filter", Args: "go"}},
		{"cite b", Command{Name: "cite", Args: "b"}},
		{"bogus arg", Command{Name: "bogus", Args: "arg"}},
		{"", Command{}},
	}
	for _, tt := range tests {
		if got := ParseCommand(tt.input); got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestParseSourceRef(t *testing.T) {
	chat, topic, err := ParseSourceRef("-1001234 7")
	if err != nil {
		t.Fatal(err)
	}
	if chat != -1001234 || topic == nil || *topic != 7 {
		t.Errorf("got %d %v", chat, topic)
	}

	chat, topic, err = ParseSourceRef("42")
	if err != nil || chat != 42 || topic != nil {
		t.Errorf("got %d %v %v", chat, topic, err)
	}

	for _, bad := range []string{"", "x", "1 y", "1 2 3"} {
		if _, _, err := ParseSourceRef(bad); err == nil {
			t.Errorf("ParseSourceRef(%q) should fail", bad)
		}
	}
}

func TestCommandHelpCoversAliases(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range commands {
		for _, n := range append([]string{c.Name}, c.Aliases...) {
			if seen[n] {
				t.Errorf("duplicate command name %q", n)
			}
			seen[n] = true
		}
		if c.Usage == "" || c.Description == "" {
			t.Errorf("%s lacks help text", c.Name)
		}
	}
}
