package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New(nil)
	ch, unsub := b.Subscribe("job.", 10)
	defer unsub()

	b.Publish(JobStarted, "payload")

	select {
	case evt := <-ch:
		if evt.Kind != JobStarted {
			t.Errorf("got kind %q, want %s", evt.Kind, JobStarted)
		}
		if evt.Timestamp.IsZero() {
			t.Error("timestamp not set")
		}
		if evt.Payload != "payload" {
			t.Errorf("payload = %v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New(nil)
	ch, unsub := b.Subscribe("cache.", 10)
	defer unsub()

	b.Publish(JobFinished, nil)
	b.Publish(CacheInvalidated, nil)

	select {
	case evt := <-ch:
		if evt.Kind != CacheInvalidated {
			t.Errorf("got kind %q, want %s", evt.Kind, CacheInvalidated)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(nil)
	ch, unsub := b.Subscribe("job.", 10)
	unsub()
	unsub()

	b.Publish(JobStarted, nil)

	if _, ok := <-ch; ok {
		t.Error("received event after unsubscribe")
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New(nil)
	ch, unsub := b.Subscribe("job.", 1)
	defer unsub()

	b.Publish("job.one", nil)
	b.Publish("job.two", nil)

	evt := <-ch
	if evt.Kind != "job.one" {
		t.Errorf("got %q, want job.one", evt.Kind)
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}
}
