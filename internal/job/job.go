package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/tgrag/internal/backend"
	"github.com/matheus3301/tgrag/internal/bus"
)

var (
	// ErrTransport is a connection-level failure before a terminal frame.
	ErrTransport = errors.New("connection error")
	// ErrTruncated means the stream closed cleanly without a terminal frame.
	ErrTruncated = errors.New("stream ended before completion")
	// ErrCancelled means the job was abandoned by its owner.
	ErrCancelled = errors.New("job cancelled")
	// ErrBackend wraps a failure reported by the backend itself.
	ErrBackend = errors.New("backend reported failure")
)

// EntryKind classifies a log entry for rendering.
type EntryKind string

const (
	EntryDownload EntryKind = "download"
	EntryIndex    EntryKind = "index"
	EntrySuccess  EntryKind = "success"
	EntryError    EntryKind = "error"
)

// Entry is one line of the job's user-visible log.
type Entry struct {
	Kind EntryKind
	Text string
	At   time.Time
}

// Stats are the running totals of a job.
type Stats struct {
	Downloaded  int
	Indexed     int
	Total       int
	Frames      int
	ParseErrors int
}

// Snapshot is a consistent copy of a job's state.
type Snapshot struct {
	ID         string
	Request    backend.DownloadRequest
	State      State
	Stats      Stats
	Log        []Entry
	Err        string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Cancelled reports whether the job ended because its owner abandoned it.
func (s Snapshot) Cancelled() bool {
	return s.State == Failed && s.Err == ErrCancelled.Error()
}

// Job is one download-and-index run and owns the cursor over its stream.
type Job struct {
	ID      string
	Request backend.DownloadRequest

	machine *Machine
	cursor  Cursor
	log     *zap.Logger
	now     func() time.Time

	onUpdate func(Snapshot)
	detached atomic.Bool

	mu         sync.RWMutex
	stats      Stats
	entries    []Entry
	err        error
	startedAt  time.Time
	finishedAt time.Time

	done     chan struct{}
	doneOnce sync.Once
}

// New creates an idle job. b and logger may be nil.
func New(req backend.DownloadRequest, b *bus.Bus, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Job{
		ID:      id,
		Request: req,
		machine: NewMachine(id, b),
		log:     logger.Named("job").With(zap.String("job_id", id), zap.Int64("chat_id", req.ChatID)),
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// OnUpdate registers a callback invoked after every accepted frame and on the
// terminal transition. It runs on the consuming goroutine. Must be set before
// the job starts.
func (j *Job) OnUpdate(fn func(Snapshot)) { j.onUpdate = fn }

// Detach stops all further OnUpdate calls.
func (j *Job) Detach() { j.detached.Store(true) }

// State returns the current lifecycle state.
func (j *Job) State() State { return j.machine.Current() }

// Done is closed once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Err is the terminal error, nil for a completed job or one still running.
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// Snapshot returns a copy of the current state.
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	snap := Snapshot{
		ID:         j.ID,
		Request:    j.Request,
		State:      j.machine.Current(),
		Stats:      j.stats,
		Log:        append([]Entry(nil), j.entries...),
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
	}
	if j.err != nil {
		snap.Err = j.err.Error()
	}
	return snap
}

// Begin moves the job from Idle to Running.
func (j *Job) Begin() error {
	j.mu.Lock()
	j.startedAt = j.now()
	j.mu.Unlock()
	return j.machine.Transition(Running)
}

// Consume reads r until a terminal frame, end of stream, or failure, folding
// every frame into the job. The returned error is nil only for a completed job.
// Consume stops reading at the first terminal frame; the caller closes r.
func (j *Job) Consume(ctx context.Context, r io.Reader) error {
	defer j.cursor.Reset()

	buf := make([]byte, 32<<10)
	for {
		if ctx.Err() != nil {
			return j.abandon()
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			for _, line := range j.cursor.Feed(buf[:n]) {
				if j.handleLine(line) {
					return j.Err()
				}
			}
		}
		if readErr == nil {
			continue
		}

		if ctx.Err() != nil {
			return j.abandon()
		}
		if errors.Is(readErr, io.EOF) {
			if tail := j.cursor.Flush(); tail != nil && j.handleLine(tail) {
				return j.Err()
			}
			j.log.Warn("stream closed without terminal frame", zap.Int("lines", j.cursor.Frames()))
			return j.Fail(ErrTruncated)
		}
		j.log.Error("stream read failed", zap.Error(readErr), zap.Int("buffered", j.cursor.Buffered()))
		return j.Fail(fmt.Errorf("%w: %v", ErrTransport, readErr))
	}
}

// handleLine folds one frame and reports whether it was terminal.
func (j *Job) handleLine(line []byte) bool {
	f, err := ParseFrame(line)
	if err != nil {
		j.mu.Lock()
		j.stats.Frames++
		j.stats.ParseErrors++
		j.mu.Unlock()
		j.log.Warn("skipping malformed frame", zap.ByteString("frame", truncate(line, 200)), zap.Error(err))
		return false
	}
	return j.Apply(f)
}

// Apply folds a decoded frame into the job and reports whether it was
// terminal. Unknown frame types are counted but otherwise ignored.
func (j *Job) Apply(f Frame) bool {
	j.mu.Lock()
	j.stats.Frames++
	if !f.Known() {
		j.mu.Unlock()
		j.log.Debug("ignoring unknown frame type", zap.String("type", string(f.Type)))
		return false
	}

	switch f.Type {
	case FrameProgress:
		j.stats.Downloaded = f.Downloaded
		j.appendLocked(EntryDownload, progressText(f))
	case FrameIndexed:
		j.stats.Indexed += f.Count
		j.appendLocked(EntryIndex, fmt.Sprintf("Indexed %d messages", f.Count))
	case FrameComplete:
		j.stats.Total = f.TotalDownloaded
		j.appendLocked(EntrySuccess, fmt.Sprintf("Done: %d messages downloaded", f.TotalDownloaded))
	case FrameError:
		j.appendLocked(EntryError, "Error: "+f.ErrorText())
	}
	j.mu.Unlock()

	switch f.Type {
	case FrameComplete:
		j.finish(Complete, nil)
		return true
	case FrameError:
		j.finish(Failed, fmt.Errorf("%w: %s", ErrBackend, f.ErrorText()))
		return true
	}
	j.notify()
	return false
}

// Fail moves a non-terminal job to Failed with a single error entry and
// returns the job's terminal error. A job that already ended is left as is.
func (j *Job) Fail(err error) error {
	if j.machine.Current().Terminal() {
		return j.Err()
	}
	j.mu.Lock()
	j.appendLocked(EntryError, "Error: "+err.Error())
	j.mu.Unlock()
	j.finish(Failed, err)
	return err
}

func (j *Job) abandon() error {
	j.Detach()
	j.log.Info("job cancelled")
	return j.Fail(ErrCancelled)
}

func (j *Job) finish(to State, err error) {
	j.mu.Lock()
	j.err = err
	j.finishedAt = j.now()
	j.mu.Unlock()

	if terr := j.machine.Transition(to); terr != nil {
		j.log.Warn("job transition rejected", zap.Error(terr))
	}
	if err != nil && !errors.Is(err, ErrCancelled) {
		j.log.Warn("job failed", zap.Error(err))
	} else if err == nil {
		j.log.Info("job complete", zap.Int("total", j.Snapshot().Stats.Total))
	}
	j.notify()
	j.doneOnce.Do(func() { close(j.done) })
}

func (j *Job) appendLocked(kind EntryKind, text string) {
	j.entries = append(j.entries, Entry{Kind: kind, Text: text, At: j.now()})
}

func (j *Job) notify() {
	if j.onUpdate == nil || j.detached.Load() {
		return
	}
	j.onUpdate(j.Snapshot())
}

func progressText(f Frame) string {
	if f.MessagePreview == "" {
		return fmt.Sprintf("Downloaded %d", f.Downloaded)
	}
	return fmt.Sprintf("Downloaded %d: %s", f.Downloaded, f.MessagePreview)
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
