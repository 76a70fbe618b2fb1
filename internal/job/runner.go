package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/tgrag/internal/backend"
	"github.com/matheus3301/tgrag/internal/bus"
)

// Starter opens the progress stream of a new download job.
type Starter interface {
	StartDownload(ctx context.Context, req backend.DownloadRequest) (io.ReadCloser, error)
}

// Runner runs at most one job at a time. Starting a job cancels the previous
// one and waits for its stream to be released.
type Runner struct {
	starter Starter
	bus     *bus.Bus
	log     *zap.Logger

	// serializes Start and Cancel so the stop-then-replace sequence is atomic
	opMu sync.Mutex

	mu  sync.Mutex
	cur *run
}

type run struct {
	job    *Job
	cancel context.CancelFunc
	exited chan struct{}
}

// stop detaches observers, aborts the stream, and waits for the consumer goroutine.
func (r *run) stop() {
	r.job.Detach()
	r.cancel()
	<-r.exited
}

// NewRunner creates a runner. b and logger may be nil.
func NewRunner(s Starter, b *bus.Bus, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{starter: s, bus: b, log: logger}
}

// Start cancels any current job and launches req in the background. onUpdate
// may be nil; see Job.OnUpdate. The job keeps running after ctx is done;
// use Cancel to stop it.
func (r *Runner) Start(ctx context.Context, req backend.DownloadRequest, onUpdate func(Snapshot)) (*Job, error) {
	if req.Limit < 0 {
		return nil, fmt.Errorf("invalid limit %d", req.Limit)
	}

	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	prev := r.cur
	r.cur = nil
	r.mu.Unlock()
	if prev != nil {
		prev.stop()
	}

	j := New(req, r.bus, r.log)
	j.OnUpdate(onUpdate)
	if err := j.Begin(); err != nil {
		return nil, err
	}
	if r.bus != nil {
		r.bus.Publish(bus.JobStarted, j.Snapshot())
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cur := &run{job: j, cancel: cancel, exited: make(chan struct{})}

	r.mu.Lock()
	r.cur = cur
	r.mu.Unlock()

	go func() {
		defer close(cur.exited)
		defer cancel()
		r.execute(runCtx, j)
		if r.bus != nil {
			r.bus.Publish(bus.JobFinished, j.Snapshot())
		}
	}()

	return j, nil
}

func (r *Runner) execute(ctx context.Context, j *Job) {
	body, err := r.starter.StartDownload(ctx, j.Request)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			_ = j.abandon()
		case isBackendError(err):
			_ = j.Fail(fmt.Errorf("%w: %v", ErrBackend, err))
		default:
			_ = j.Fail(fmt.Errorf("%w: %v", ErrTransport, err))
		}
		return
	}
	defer body.Close()
	_ = j.Consume(ctx, body)
}

// Cancel aborts the current job, if any, and waits for its stream to close.
func (r *Runner) Cancel() {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	cur := r.cur
	r.cur = nil
	r.mu.Unlock()
	if cur != nil {
		cur.stop()
	}
}

// Current returns the most recently started job, or nil.
func (r *Runner) Current() *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return nil
	}
	return r.cur.job
}

// Running reports whether a job is in flight.
func (r *Runner) Running() bool {
	j := r.Current()
	return j != nil && j.State() == Running
}

func isBackendError(err error) bool {
	var apiErr *backend.APIError
	return errors.As(err, &apiErr)
}
