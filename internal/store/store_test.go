package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func ptr[T any](v T) *T { return &v }

func TestMigrateIdempotent(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	first, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if first.From != 0 || first.To != 1 || !first.Changed() {
		t.Errorf("first Migrate() = %+v", first)
	}
	second, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if second.Changed() || second.To != 1 {
		t.Errorf("second Migrate() = %+v", second)
	}
}

func TestMigrateDirty(t *testing.T) {
	db := testDB(t)
	if _, err := db.Exec(`UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); !errors.Is(err, ErrDirtySchema) {
		t.Errorf("Migrate() error = %v, want ErrDirtySchema", err)
	}
}

func TestOpenMigratedCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "profile", "history.db")
	db, err := OpenMigrated(path)
	if err != nil {
		t.Fatalf("OpenMigrated() error = %v", err)
	}
	_ = db.Close()
}

func TestInsertAndFinishJob(t *testing.T) {
	db := testDB(t)

	j := &Job{ID: "job-1", ChatID: -100123, ChatTitle: "Go", TopicID: ptr(int64(7)), Limit: 100, State: "running", StartedAt: 1000}
	if err := db.InsertJob(j); err != nil {
		t.Fatalf("InsertJob() error = %v", err)
	}
	if err := db.InsertJob(j); err != nil {
		t.Fatalf("second InsertJob() error = %v", err)
	}

	final := *j
	final.ChatTitle = ""
	final.State = "complete"
	final.Downloaded = 40
	final.Indexed = 40
	final.Total = 40
	final.FinishedAt = ptr(int64(5000))
	lines := []LogLine{
		{Seq: 0, Kind: "download", Text: "Downloaded 40", At: 2000},
		{Seq: 1, Kind: "index", Text: "Indexed 40 messages", At: 3000},
		{Seq: 2, Kind: "success", Text: "Done: 40 messages downloaded", At: 5000},
	}
	if err := db.FinishJob(&final, lines); err != nil {
		t.Fatalf("FinishJob() error = %v", err)
	}

	got, gotLines, err := db.GetJob("job-1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("GetJob() = nil")
	}
	if got.State != "complete" || got.Total != 40 || got.FinishedAt == nil || *got.FinishedAt != 5000 {
		t.Errorf("job = %+v", got)
	}
	if got.ChatTitle != "Go" {
		t.Errorf("ChatTitle = %q, empty title should not overwrite", got.ChatTitle)
	}
	if got.TopicID == nil || *got.TopicID != 7 {
		t.Errorf("TopicID = %v, want 7", got.TopicID)
	}
	if len(gotLines) != 3 || gotLines[2].Kind != "success" {
		t.Errorf("lines = %+v", gotLines)
	}

	// Finishing again replaces the log instead of duplicating it.
	if err := db.FinishJob(&final, lines[:1]); err != nil {
		t.Fatal(err)
	}
	_, gotLines, _ = db.GetJob("job-1")
	if len(gotLines) != 1 {
		t.Errorf("lines after refinish = %d, want 1", len(gotLines))
	}
}

func TestFinishWithoutInsert(t *testing.T) {
	db := testDB(t)
	j := &Job{ID: "orphan", ChatID: 1, State: "failed", Error: "connection error", StartedAt: 1}
	if err := db.FinishJob(j, nil); err != nil {
		t.Fatalf("FinishJob() error = %v", err)
	}
	got, _, err := db.GetJob("orphan")
	if err != nil || got == nil || got.Error != "connection error" {
		t.Errorf("GetJob() = %+v, %v", got, err)
	}
}

func TestGetJobMissingAndPrefix(t *testing.T) {
	db := testDB(t)

	got, _, err := db.GetJob("nope")
	if err != nil || got != nil {
		t.Errorf("GetJob(nope) = %v, %v; want nil, nil", got, err)
	}

	for _, id := range []string{"abc-111", "abc-222", "def-333"} {
		if err := db.InsertJob(&Job{ID: id, State: "running", StartedAt: 1}); err != nil {
			t.Fatal(err)
		}
	}
	got, _, err = db.GetJob("def")
	if err != nil || got == nil || got.ID != "def-333" {
		t.Errorf("GetJob(def) = %+v, %v", got, err)
	}
	if _, _, err := db.GetJob("abc"); err == nil {
		t.Error("ambiguous prefix should fail")
	}
}

func TestListAndPrune(t *testing.T) {
	db := testDB(t)
	for i := range 5 {
		j := &Job{ID: string(rune('a' + i)), State: "complete", StartedAt: int64(i)}
		if err := db.FinishJob(j, []LogLine{{Seq: 0, Kind: "success", Text: "ok", At: int64(i)}}); err != nil {
			t.Fatal(err)
		}
	}

	jobs, err := db.ListJobs(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 3 || jobs[0].ID != "e" || jobs[2].ID != "c" {
		t.Errorf("ListJobs(3) ids = %v", ids(jobs))
	}

	n, err := db.PruneJobs(2)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("pruned %d, want 3", n)
	}
	jobs, _ = db.ListJobs(0)
	if len(jobs) != 2 {
		t.Errorf("remaining = %v", ids(jobs))
	}

	var orphanLines int
	if err := db.QueryRow(`SELECT COUNT(*) FROM job_log WHERE job_id NOT IN (SELECT id FROM jobs)`).Scan(&orphanLines); err != nil {
		t.Fatal(err)
	}
	if orphanLines != 0 {
		t.Errorf("%d log lines outlived their job", orphanLines)
	}
}

func ids(jobs []Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}
