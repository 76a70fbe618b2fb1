package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tgrag.log")

	logger, err := New(path, "test", Options{Level: "debug"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Debug("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(string(data))
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("log line is not JSON: %q (%v)", line, err)
	}
	if rec["msg"] != "hello" {
		t.Errorf("msg = %v, want hello", rec["msg"])
	}
	if rec["profile"] != "test" {
		t.Errorf("profile = %v, want test", rec["profile"])
	}
	if _, ok := rec["ts"]; !ok {
		t.Error("missing ts field")
	}
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tgrag.log")

	logger, err := New(path, "test", Options{Level: "warn"})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	_ = logger.Sync()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "dropped") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(string(data), "kept") {
		t.Error("warn record missing")
	}
}

func TestBadLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tgrag.log")
	if _, err := New(path, "test", Options{Level: "loud"}); err == nil {
		t.Error("New() expected error for unknown level")
	}
}
