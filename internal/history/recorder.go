package history

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/matheus3301/tgrag/internal/bus"
	"github.com/matheus3301/tgrag/internal/cache"
	"github.com/matheus3301/tgrag/internal/job"
	"github.com/matheus3301/tgrag/internal/store"
)

// DefaultKeep is how many jobs are retained after each finished job.
const DefaultKeep = 500

// TitleSource resolves chat titles from the last fetched chat list.
type TitleSource interface {
	Snapshot() (cache.Snapshot, bool)
}

// Recorder persists job lifecycle events into the history store.
// It subscribes to "job.*" events on the bus.
type Recorder struct {
	db     *store.DB
	bus    *bus.Bus
	titles TitleSource
	logger *zap.Logger
	keep   int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRecorder creates a recorder. titles and logger may be nil.
func NewRecorder(db *store.DB, b *bus.Bus, titles TitleSource, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		db:     db,
		bus:    b,
		titles: titles,
		logger: logger.Named("history"),
		keep:   DefaultKeep,
	}
}

// Start subscribes to job events.
func (r *Recorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	ch, unsub := r.bus.Subscribe("job.", 64)

	go func() {
		defer close(r.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				r.handleEvent(evt)
			case <-ctx.Done():
				r.drain(ch)
				return
			}
		}
	}()
}

// drain records events already queued when the recorder is stopped, so a job
// that finished during shutdown is not lost.
func (r *Recorder) drain(ch <-chan bus.Event) {
	for {
		select {
		case evt := <-ch:
			r.handleEvent(evt)
		default:
			return
		}
	}
}

// Stop unsubscribes and waits for queued events to be written.
func (r *Recorder) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *Recorder) handleEvent(evt bus.Event) {
	snap, ok := evt.Payload.(job.Snapshot)
	if !ok {
		return
	}
	switch evt.Kind {
	case bus.JobStarted:
		if err := r.RecordStarted(snap); err != nil {
			r.logger.Error("failed to record job start", zap.Error(err), zap.String("job_id", snap.ID))
		}
	case bus.JobFinished:
		if err := r.RecordFinished(snap); err != nil {
			r.logger.Error("failed to record job result", zap.Error(err), zap.String("job_id", snap.ID))
		} else {
			r.logger.Info("job recorded",
				zap.String("job_id", snap.ID),
				zap.String("state", string(snap.State)),
				zap.Int("downloaded", snap.Stats.Downloaded),
				zap.Int("indexed", snap.Stats.Indexed),
			)
		}
	}
}

// RecordStarted inserts the job row for a running job.
func (r *Recorder) RecordStarted(snap job.Snapshot) error {
	if err := r.db.InsertJob(r.toRecord(snap)); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// RecordFinished stores the final counters and log of a job, then prunes old history.
func (r *Recorder) RecordFinished(snap job.Snapshot) error {
	lines := make([]store.LogLine, len(snap.Log))
	for i, e := range snap.Log {
		lines[i] = store.LogLine{Seq: i, Kind: string(e.Kind), Text: e.Text, At: e.At.UnixMilli()}
	}
	if err := r.db.FinishJob(r.toRecord(snap), lines); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if r.keep > 0 {
		if n, err := r.db.PruneJobs(r.keep); err != nil {
			r.logger.Warn("failed to prune job history", zap.Error(err))
		} else if n > 0 {
			r.logger.Debug("pruned job history", zap.Int64("removed", n))
		}
	}
	return nil
}

func (r *Recorder) toRecord(snap job.Snapshot) *store.Job {
	rec := &store.Job{
		ID:          snap.ID,
		ChatID:      snap.Request.ChatID,
		ChatTitle:   r.title(snap.Request.ChatID),
		TopicID:     snap.Request.TopicID,
		Limit:       snap.Request.Limit,
		OffsetID:    snap.Request.OffsetID,
		MinID:       snap.Request.MinID,
		MaxID:       snap.Request.MaxID,
		State:       string(snap.State),
		Downloaded:  snap.Stats.Downloaded,
		Indexed:     snap.Stats.Indexed,
		Total:       snap.Stats.Total,
		ParseErrors: snap.Stats.ParseErrors,
		Error:       snap.Err,
		StartedAt:   snap.StartedAt.UnixMilli(),
	}
	if !snap.FinishedAt.IsZero() {
		finished := snap.FinishedAt.UnixMilli()
		rec.FinishedAt = &finished
	}
	return rec
}

func (r *Recorder) title(chatID int64) string {
	if r.titles == nil {
		return ""
	}
	snap, ok := r.titles.Snapshot()
	if !ok {
		return ""
	}
	for _, c := range snap.Chats {
		if c.ID == chatID {
			return c.Title
		}
	}
	return ""
}
