package hub

import (
	"log/slog"
	"sync"
	"testing"

	"go.aimuz.me/voxd/internal/types"
)

func drain(sub *Subscription) []types.Event {
	var out []types.Event
	for {
		select {
		case ev := <-sub.C:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestHubBroadcast(t *testing.T) {
	h := New()
	a := h.Subscribe()
	b := h.Subscribe()
	defer a.Close()
	defer b.Close()

	if got := h.Observers(); got != 2 {
		t.Fatalf("observers = %d, want 2", got)
	}

	h.Publish(types.StateEvent(types.ModeListening))

	for name, sub := range map[string]*Subscription{"a": a, "b": b} {
		evs := drain(sub)
		if len(evs) != 1 || evs[0].Type != types.EventState || evs[0].Value != "LISTENING" {
			t.Errorf("observer %s events = %+v", name, evs)
		}
	}
}

func TestHubSlowObserverDoesNotBlock(t *testing.T) {
	h := New()
	slow := h.Subscribe()
	defer slow.Close()

	// Publish far more than the queue holds; Publish must never block.
	for i := 0; i < defaultQueue*3; i++ {
		h.Publish(types.MicLevelEvent(0.5))
	}

	if got := len(drain(slow)); got != defaultQueue {
		t.Errorf("delivered = %d, want the queue bound %d", got, defaultQueue)
	}
}

func TestHubLogReplay(t *testing.T) {
	h := New()

	for i := 0; i < logRingSize+50; i++ {
		h.Publish(types.LogEvent("INFO", "line", "test"))
	}
	// Non-log events are not replayed.
	h.Publish(types.StateEvent(types.ModeIdle))

	sub := h.Subscribe()
	defer sub.Close()
	evs := drain(sub)
	if len(evs) != defaultQueue {
		t.Fatalf("replayed = %d, want queue-bounded %d", len(evs), defaultQueue)
	}
	for _, ev := range evs {
		if ev.Type != types.EventLog {
			t.Errorf("replayed non-log event %q", ev.Type)
		}
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h := New()
	sub := h.Subscribe()
	sub.Close()
	sub.Close() // idempotent

	if got := h.Observers(); got != 0 {
		t.Fatalf("observers = %d, want 0", got)
	}
	// Publishing after Close must not panic.
	h.Publish(types.StateEvent(types.ModeIdle))

	if _, ok := <-sub.C; ok {
		t.Error("subscription channel not closed")
	}
}

func TestLogHandlerForwards(t *testing.T) {
	h := New()
	sub := h.Subscribe()
	defer sub.Close()

	logger := slog.New(NewLogHandler(slog.NewTextHandler(discard{}, nil), h))
	logger.Info("session started", "source", "daemon")

	evs := drain(sub)
	if len(evs) != 1 {
		t.Fatalf("events = %d, want 1", len(evs))
	}
	ev := evs[0]
	if ev.Type != types.EventLog || ev.Message != "session started" || ev.Source != "daemon" {
		t.Errorf("event = %+v", ev)
	}
}

// Concurrent records must all reach observers; forwarding one record
// never suppresses another.
func TestLogHandlerForwardsConcurrentRecords(t *testing.T) {
	h := New()
	sub := h.Subscribe()
	defer sub.Close()

	logger := slog.New(NewLogHandler(slog.NewTextHandler(discard{}, nil), h))

	const records = 16
	var wg sync.WaitGroup
	for i := 0; i < records; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("concurrent record")
		}()
	}
	wg.Wait()

	if got := len(drain(sub)); got != records {
		t.Fatalf("forwarded = %d, want %d", got, records)
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
