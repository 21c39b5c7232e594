package daemon

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.aimuz.me/voxd/config"
)

func TestSessionTranscriptAccumulates(t *testing.T) {
	s := newSession(context.Background(), config.Settings{Language: "en"})
	defer s.Cancel()

	s.AddUtterance("first")
	s.AddUtterance("second")

	got := s.Transcript()
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("transcript = %v", got)
	}
}

func TestSessionCancelPropagates(t *testing.T) {
	s := newSession(context.Background(), config.Settings{})
	s.Cancel()
	select {
	case <-s.ctx.Done():
	default:
		t.Fatal("session context not cancelled")
	}
}

func TestTimerGuardFires(t *testing.T) {
	g := NewTimerGuard("test")
	fired := make(chan struct{})
	g.Arm(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestTimerGuardStopPreventsFire(t *testing.T) {
	g := NewTimerGuard("test")
	var fired atomic.Bool
	g.Arm(20*time.Millisecond, func() { fired.Store(true) })
	g.Stop()

	time.Sleep(60 * time.Millisecond)
	if fired.Load() {
		t.Fatal("timer fired after Stop")
	}
}

func TestTimerGuardRearmReplacesCountdown(t *testing.T) {
	g := NewTimerGuard("test")
	var first, second atomic.Bool
	g.Arm(20*time.Millisecond, func() { first.Store(true) })
	g.Arm(40*time.Millisecond, func() { second.Store(true) })

	time.Sleep(100 * time.Millisecond)
	if first.Load() {
		t.Fatal("replaced countdown still fired")
	}
	if !second.Load() {
		t.Fatal("replacement countdown never fired")
	}
}
