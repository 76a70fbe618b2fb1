package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/tgrag/internal/backend"
	"github.com/matheus3301/tgrag/internal/bus"
)

type fakeFetcher struct {
	calls     atomic.Int32
	refreshes atomic.Int32
	gate      chan struct{}
	err       error

	mu    sync.Mutex
	chats []backend.Chat
}

// ListChats answers with the list current when the call started.
func (f *fakeFetcher) ListChats(ctx context.Context, refresh bool) ([]backend.Chat, error) {
	f.mu.Lock()
	list := f.chats
	f.mu.Unlock()
	f.calls.Add(1)
	if refresh {
		f.refreshes.Add(1)
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return list, nil
}

func (f *fakeFetcher) setChats(list []backend.Chat) {
	f.mu.Lock()
	f.chats = list
	f.mu.Unlock()
}

func waitCalls(t *testing.T, f *fakeFetcher, n int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.calls.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("fetcher calls = %d, want %d", f.calls.Load(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache(f *fakeFetcher) (*EntityCache, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(f, DefaultTTL, nil, nil)
	c.now = clk.Now
	return c, clk
}

func chats(titles ...string) []backend.Chat {
	out := make([]backend.Chat, len(titles))
	for i, title := range titles {
		out[i] = backend.Chat{ID: int64(i + 1), Title: title}
	}
	return out
}

func TestTTL(t *testing.T) {
	f := &fakeFetcher{chats: chats("a", "b")}
	c, clk := newTestCache(f)
	ctx := context.Background()

	if _, err := c.Get(ctx, false); err != nil {
		t.Fatal(err)
	}
	if f.calls.Load() != 1 {
		t.Fatalf("calls after first read = %d, want 1", f.calls.Load())
	}

	clk.Advance(4*time.Minute + 59*time.Second)
	if _, err := c.Get(ctx, false); err != nil {
		t.Fatal(err)
	}
	if f.calls.Load() != 1 {
		t.Errorf("calls at 4:59 = %d, want 1", f.calls.Load())
	}

	clk.Advance(2 * time.Second)
	if _, err := c.Get(ctx, false); err != nil {
		t.Fatal(err)
	}
	if f.calls.Load() != 2 {
		t.Errorf("calls at 5:01 = %d, want 2", f.calls.Load())
	}
}

func TestForceRefresh(t *testing.T) {
	f := &fakeFetcher{chats: chats("a")}
	c, _ := newTestCache(f)
	ctx := context.Background()

	_, _ = c.Get(ctx, false)
	_, _ = c.Get(ctx, true)
	if f.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", f.calls.Load())
	}
}

func TestSingleFlight(t *testing.T) {
	f := &fakeFetcher{chats: chats("a"), gate: make(chan struct{})}
	c, _ := newTestCache(f)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([][]backend.Chat, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = c.Get(ctx, false)
		}()
	}

	// Let both callers reach the in-flight fetch before releasing it.
	deadline := time.Now().Add(time.Second)
	for f.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	if f.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", f.calls.Load())
	}
	for i, r := range results {
		if len(r) != 1 {
			t.Errorf("caller %d got %d chats, want 1", i, len(r))
		}
	}
}

func TestFailureKeepsStale(t *testing.T) {
	f := &fakeFetcher{chats: chats("a", "b")}
	c, _ := newTestCache(f)
	ctx := context.Background()

	if _, err := c.Get(ctx, false); err != nil {
		t.Fatal(err)
	}

	f.err = errors.New("backend down")
	got, err := c.Get(ctx, true)
	if err == nil {
		t.Fatal("expected error on failed refresh")
	}
	if len(got) != 2 {
		t.Errorf("stale snapshot len = %d, want 2", len(got))
	}

	snap, ok := c.Snapshot()
	if !ok || len(snap.Chats) != 2 {
		t.Error("snapshot evicted after failed refresh")
	}
}

func TestFailureWithoutSnapshot(t *testing.T) {
	f := &fakeFetcher{err: errors.New("backend down")}
	c, _ := newTestCache(f)

	got, err := c.Get(context.Background(), false)
	if err == nil {
		t.Fatal("expected error")
	}
	if got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestInvalidate(t *testing.T) {
	f := &fakeFetcher{chats: chats("a")}
	c, _ := newTestCache(f)
	b := bus.New(nil)
	c.bus = b
	events, unsub := b.Subscribe("cache.", 10)
	defer unsub()
	ctx := context.Background()

	_, _ = c.Get(ctx, false)
	c.Invalidate()

	if snap, ok := c.Snapshot(); !ok || len(snap.Chats) != 1 {
		t.Error("invalidate dropped the readable snapshot")
	}

	_, _ = c.Get(ctx, false)
	if f.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 after invalidate", f.calls.Load())
	}

	var kinds []string
	for len(events) > 0 {
		kinds = append(kinds, (<-events).Kind)
	}
	want := []string{bus.CacheRefreshed, bus.CacheInvalidated, bus.CacheRefreshed}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestCallerCancelDoesNotAbortSharedFetch(t *testing.T) {
	f := &fakeFetcher{chats: chats("a"), gate: make(chan struct{})}
	c, _ := newTestCache(f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, false)
		done <- err
	}()
	for f.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}

	close(f.gate)
	got, err := c.Get(context.Background(), false)
	if err != nil || len(got) != 1 {
		t.Errorf("Get() = %v, %v", got, err)
	}
	if f.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", f.calls.Load())
	}
}

func TestInvalidateDuringRefresh(t *testing.T) {
	f := &fakeFetcher{chats: chats("before-delete"), gate: make(chan struct{})}
	c, _ := newTestCache(f)
	ctx := context.Background()

	first := make(chan []backend.Chat, 1)
	go func() {
		got, _ := c.Get(ctx, false)
		first <- got
	}()
	waitCalls(t, f, 1)

	c.Invalidate()
	f.setChats(chats("after-delete"))

	second := make(chan []backend.Chat, 1)
	go func() {
		got, _ := c.Get(ctx, false)
		second <- got
	}()
	// The read after Invalidate must not join the older fetch.
	waitCalls(t, f, 2)
	close(f.gate)

	if got := <-first; len(got) != 1 || got[0].Title != "before-delete" {
		t.Errorf("first read = %v, want before-delete", got)
	}
	if got := <-second; len(got) != 1 || got[0].Title != "after-delete" {
		t.Errorf("second read = %v, want after-delete", got)
	}

	got, err := c.Get(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Title != "after-delete" {
		t.Errorf("cached read = %v, want after-delete", got)
	}
	if f.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", f.calls.Load())
	}
}

func TestStaleFetchAfterInvalidateNotCached(t *testing.T) {
	f := &fakeFetcher{chats: chats("before-delete"), gate: make(chan struct{})}
	c, _ := newTestCache(f)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Get(ctx, false)
	}()
	waitCalls(t, f, 1)
	c.Invalidate()
	close(f.gate)
	<-done

	if _, ok := c.Snapshot(); ok {
		t.Error("fetch started before Invalidate was cached")
	}
	f.setChats(chats("after-delete"))
	got, _ := c.Get(ctx, false)
	if len(got) != 1 || got[0].Title != "after-delete" {
		t.Errorf("read after invalidate = %v, want after-delete", got)
	}
	if f.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", f.calls.Load())
	}
}

func TestForceDoesNotJoinPlainFetch(t *testing.T) {
	f := &fakeFetcher{chats: chats("a"), gate: make(chan struct{})}
	c, _ := newTestCache(f)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = c.Get(ctx, false)
	}()
	waitCalls(t, f, 1)
	go func() {
		defer wg.Done()
		_, _ = c.Get(ctx, true)
	}()
	waitCalls(t, f, 2)
	close(f.gate)
	wg.Wait()

	if f.refreshes.Load() != 1 {
		t.Errorf("refresh=true calls = %d, want 1", f.refreshes.Load())
	}
}
