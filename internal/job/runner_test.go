package job

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/tgrag/internal/backend"
	"github.com/matheus3301/tgrag/internal/bus"
)

// pipeStarter hands out pipes whose writers the test controls. A pipe is
// closed with the context error when its job is cancelled.
type pipeStarter struct {
	mu      sync.Mutex
	writers []*io.PipeWriter
	closed  []bool
	err     error
}

func (s *pipeStarter) StartDownload(ctx context.Context, req backend.DownloadRequest) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	pr, pw := io.Pipe()
	s.mu.Lock()
	idx := len(s.writers)
	s.writers = append(s.writers, pw)
	s.closed = append(s.closed, false)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = pw.CloseWithError(ctx.Err())
	}()
	return &trackedBody{PipeReader: pr, onClose: func() {
		s.mu.Lock()
		s.closed[idx] = true
		s.mu.Unlock()
	}}, nil
}

func (s *pipeStarter) writer(t *testing.T, i int) *io.PipeWriter {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		if len(s.writers) > i {
			w := s.writers[i]
			s.mu.Unlock()
			return w
		}
		s.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("stream %d never opened", i)
	return nil
}

func (s *pipeStarter) isClosed(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed[i]
}

type trackedBody struct {
	*io.PipeReader
	onClose func()
}

func (b *trackedBody) Close() error {
	b.onClose()
	return b.PipeReader.Close()
}

func waitDone(t *testing.T, j *Job) {
	t.Helper()
	select {
	case <-j.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("job did not finish")
	}
}

func TestRunnerCompletes(t *testing.T) {
	s := &pipeStarter{}
	b := bus.New(nil)
	events, unsub := b.Subscribe("job.", 32)
	defer unsub()
	r := NewRunner(s, b, nil)

	j, err := r.Start(context.Background(), backend.DownloadRequest{ChatID: 1, Limit: 5}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Running() {
		t.Error("Running() = false after Start")
	}

	w := s.writer(t, 0)
	_, _ = io.WriteString(w, `{"type":"progress","downloaded":1}`+"\n"+`{"type":"complete","total_downloaded":1}`+"\n")
	waitDone(t, j)

	if j.State() != Complete {
		t.Errorf("state = %s, want complete", j.State())
	}

	// Finished is published after the consumer exits.
	deadline := time.After(2 * time.Second)
	var kinds []string
	for {
		select {
		case evt := <-events:
			kinds = append(kinds, evt.Kind)
			if evt.Kind == bus.JobFinished {
				snap := evt.Payload.(Snapshot)
				if snap.ID != j.ID || snap.State != Complete {
					t.Errorf("finished payload = %+v", snap)
				}
				if !slices.Contains(kinds, bus.JobStarted) {
					t.Errorf("events = %v, missing %s before finish", kinds, bus.JobStarted)
				}
				return
			}
		case <-deadline:
			t.Fatalf("no finished event, got %v", kinds)
		}
	}
}

func TestRunnerStartCancelsPrevious(t *testing.T) {
	s := &pipeStarter{}
	r := NewRunner(s, nil, nil)

	var mu sync.Mutex
	firstUpdates := 0
	first, err := r.Start(context.Background(), backend.DownloadRequest{ChatID: 1}, func(Snapshot) {
		mu.Lock()
		firstUpdates++
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	w0 := s.writer(t, 0)
	_, _ = io.WriteString(w0, `{"type":"progress","downloaded":1}`+"\n")

	second, err := r.Start(context.Background(), backend.DownloadRequest{ChatID: 2}, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Start waits for the previous consumer, so the old job is already final.
	snap := first.Snapshot()
	if !snap.Cancelled() {
		t.Errorf("first job = %s / %q, want cancelled", snap.State, snap.Err)
	}
	if !s.isClosed(0) {
		t.Error("first stream was not closed")
	}
	mu.Lock()
	before := firstUpdates
	mu.Unlock()

	w1 := s.writer(t, 1)
	_, _ = io.WriteString(w1, `{"type":"complete","total_downloaded":0}`+"\n")
	waitDone(t, second)

	mu.Lock()
	after := firstUpdates
	mu.Unlock()
	if after != before {
		t.Error("cancelled job kept notifying")
	}
	if r.Current() != second {
		t.Error("Current() is not the second job")
	}
	if second.Snapshot().Request.ChatID != 2 {
		t.Error("second job carries the wrong request")
	}
}

func TestRunnerCancel(t *testing.T) {
	s := &pipeStarter{}
	r := NewRunner(s, nil, nil)

	j, err := r.Start(context.Background(), backend.DownloadRequest{ChatID: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.writer(t, 0)
	r.Cancel()

	waitDone(t, j)
	if !errors.Is(j.Err(), ErrCancelled) {
		t.Errorf("Err() = %v, want ErrCancelled", j.Err())
	}
	if r.Running() {
		t.Error("Running() after Cancel")
	}
	r.Cancel()
}

func TestRunnerOpenFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
		text string
	}{
		{"api error", &backend.APIError{StatusCode: 401, Detail: "Not authorized in Telegram"}, ErrBackend, "Not authorized in Telegram"},
		{"unreachable", errors.New("dial tcp: connection refused"), ErrTransport, "connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner(&pipeStarter{err: tt.err}, nil, nil)
			j, err := r.Start(context.Background(), backend.DownloadRequest{ChatID: 1}, nil)
			if err != nil {
				t.Fatal(err)
			}
			waitDone(t, j)
			if !errors.Is(j.Err(), tt.want) || !strings.Contains(j.Err().Error(), tt.text) {
				t.Errorf("Err() = %v, want %v containing %q", j.Err(), tt.want, tt.text)
			}
			if log := j.Snapshot().Log; len(log) != 1 || log[0].Kind != EntryError {
				t.Errorf("log = %+v, want a single error entry", log)
			}
		})
	}
}

func TestRunnerRejectsNegativeLimit(t *testing.T) {
	r := NewRunner(&pipeStarter{}, nil, nil)
	if _, err := r.Start(context.Background(), backend.DownloadRequest{Limit: -1}, nil); err == nil {
		t.Error("Start() with negative limit should fail")
	}
}
