package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/tgrag/internal/backend"
	"github.com/matheus3301/tgrag/internal/bus"
	"github.com/matheus3301/tgrag/internal/cache"
	"github.com/matheus3301/tgrag/internal/job"
	"github.com/matheus3301/tgrag/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMigrated(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type staticTitles []backend.Chat

func (s staticTitles) Snapshot() (cache.Snapshot, bool) {
	return cache.Snapshot{Chats: s}, true
}

func finishedSnapshot() job.Snapshot {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return job.Snapshot{
		ID:      "job-42",
		Request: backend.DownloadRequest{ChatID: -1001, Limit: 100},
		State:   job.Complete,
		Stats:   job.Stats{Downloaded: 2, Indexed: 2, Total: 2, Frames: 4},
		Log: []job.Entry{
			{Kind: job.EntryDownload, Text: "Downloaded 1", At: start.Add(time.Second)},
			{Kind: job.EntryDownload, Text: "Downloaded 2", At: start.Add(2 * time.Second)},
			{Kind: job.EntryIndex, Text: "Indexed 2 messages", At: start.Add(3 * time.Second)},
			{Kind: job.EntrySuccess, Text: "Done: 2 messages downloaded", At: start.Add(4 * time.Second)},
		},
		StartedAt:  start,
		FinishedAt: start.Add(4 * time.Second),
	}
}

func TestRecordFinished(t *testing.T) {
	db := testDB(t)
	r := NewRecorder(db, bus.New(nil), staticTitles{{ID: -1001, Title: "Gophers"}}, nil)

	snap := finishedSnapshot()
	if err := r.RecordFinished(snap); err != nil {
		t.Fatalf("RecordFinished() error = %v", err)
	}

	got, lines, err := db.GetJob("job-42")
	if err != nil || got == nil {
		t.Fatalf("GetJob() = %v, %v", got, err)
	}
	if got.ChatTitle != "Gophers" || got.State != "complete" || got.Indexed != 2 {
		t.Errorf("job = %+v", got)
	}
	if got.FinishedAt == nil || *got.FinishedAt != snap.FinishedAt.UnixMilli() {
		t.Errorf("FinishedAt = %v", got.FinishedAt)
	}
	if len(lines) != 4 || lines[3].Kind != "success" || lines[0].Seq != 0 {
		t.Errorf("lines = %+v", lines)
	}
}

func TestRecorderFollowsBus(t *testing.T) {
	db := testDB(t)
	b := bus.New(nil)
	r := NewRecorder(db, b, nil, nil)
	r.Start(context.Background())

	snap := finishedSnapshot()
	running := snap
	running.State = job.Running
	running.Log = nil
	running.FinishedAt = time.Time{}
	b.Publish(bus.JobStarted, running)
	b.Publish(bus.JobStateChanged, job.StateChange{JobID: snap.ID, From: job.Running, To: job.Complete})
	b.Publish(bus.JobFinished, snap)

	r.Stop()

	got, lines, err := db.GetJob(snap.ID)
	if err != nil || got == nil {
		t.Fatalf("GetJob() = %v, %v", got, err)
	}
	if got.State != "complete" || len(lines) != 4 {
		t.Errorf("job = %+v, %d lines", got, len(lines))
	}
}

func TestRecordCancelled(t *testing.T) {
	db := testDB(t)
	r := NewRecorder(db, bus.New(nil), nil, nil)

	snap := finishedSnapshot()
	snap.State = job.Failed
	snap.Err = job.ErrCancelled.Error()
	if err := r.RecordFinished(snap); err != nil {
		t.Fatal(err)
	}
	got, _, _ := db.GetJob(snap.ID)
	if got.State != "failed" || got.Error != "job cancelled" {
		t.Errorf("job = %+v", got)
	}
}

func TestStopWithoutStart(t *testing.T) {
	r := NewRecorder(testDB(t), bus.New(nil), nil, nil)
	r.Stop()
}
