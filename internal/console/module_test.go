package console

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/fx"

	"github.com/matheus3301/tgrag/internal/backend"
	"github.com/matheus3301/tgrag/internal/cache"
	"github.com/matheus3301/tgrag/internal/job"
	"github.com/matheus3301/tgrag/internal/lock"
	"github.com/matheus3301/tgrag/internal/store"
)

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chats/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `[{"id":-1001,"title":"Gophers","type":"supergroup"}]`)
	})
	mux.HandleFunc("POST /api/messages/download", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = fmt.Fprint(w, `{"type":"progress","downloaded":1,"message_preview":"hi"}`+"\n")
		_, _ = fmt.Fprint(w, `{"type":"indexed","count":1}`+"\n")
		_, _ = fmt.Fprint(w, `{"type":"complete","total_downloaded":1}`+"\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testParams(t *testing.T, backendURL string) Params {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	cfg := fmt.Sprintf("[profiles.test]\nbackend_url = %q\nlog_level = \"debug\"\n", backendURL)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0600); err != nil {
		t.Fatal(err)
	}
	profileDir := filepath.Join(dir, "profile")
	if err := os.MkdirAll(profileDir, 0700); err != nil {
		t.Fatal(err)
	}
	return Params{Profile: "test", Interactive: true, ConfigPath: cfgPath, BaseDir: profileDir}
}

func TestModuleRecordsJobs(t *testing.T) {
	srv := fakeBackend(t)
	p := testParams(t, srv.URL)

	var (
		runner   *job.Runner
		entities cache.Store
		db       *store.DB
		client   *backend.Client
	)
	app := fx.New(
		Module(p),
		fx.NopLogger,
		fx.Populate(&runner, &entities, &db, &client),
	)
	if err := app.Err(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatal(err)
	}

	if client.BaseURL() != srv.URL {
		t.Errorf("BaseURL() = %q, want %q", client.BaseURL(), srv.URL)
	}
	if _, err := entities.Get(ctx, false); err != nil {
		t.Fatalf("cache Get() error = %v", err)
	}

	j, err := runner.Start(ctx, backend.DownloadRequest{ChatID: -1001, Limit: 10}, nil)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-j.Done():
	case <-ctx.Done():
		t.Fatal("job did not finish")
	}
	if j.State() != job.Complete {
		t.Fatalf("State() = %s, err = %v", j.State(), j.Err())
	}

	// Stop drains the recorder before the store closes.
	if err := app.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	reopened, err := store.OpenMigrated(filepath.Join(p.BaseDir, "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = reopened.Close() }()
	rec, lines, err := reopened.GetJob(j.ID)
	if err != nil || rec == nil {
		t.Fatalf("GetJob() = %v, %v", rec, err)
	}
	if rec.State != "complete" || rec.ChatTitle != "Gophers" || len(lines) != 3 {
		t.Errorf("recorded job = %+v, lines = %d", rec, len(lines))
	}
}

func TestModuleExclusiveLock(t *testing.T) {
	srv := fakeBackend(t)
	p := testParams(t, srv.URL)
	p.Exclusive = true

	first := fx.New(Module(p), fx.NopLogger)
	if err := first.Err(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatal(err)
	}

	second := fx.New(Module(p), fx.NopLogger)
	var held *lock.HeldError
	if !errors.As(second.Err(), &held) {
		t.Fatalf("second console err = %v, want HeldError", second.Err())
	}

	if err := first.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(p.BaseDir, "LOCK")); !os.IsNotExist(err) {
		t.Errorf("LOCK still present after stop: %v", err)
	}
}

func TestModuleBadConfig(t *testing.T) {
	p := testParams(t, "http://unused")
	if err := os.WriteFile(p.ConfigPath, []byte("not = [valid"), 0600); err != nil {
		t.Fatal(err)
	}
	app := fx.New(Module(p), fx.NopLogger)
	if app.Err() == nil {
		t.Fatal("expected config error")
	}
}
