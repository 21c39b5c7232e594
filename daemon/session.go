package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.aimuz.me/voxd/config"
)

// Session is the bookkeeping of one wake-to-idle cycle. Its context is
// the root of every per-session operation, so cancelling it tears down
// the transcription stream, the reply stream and playback together.
// Settings are captured once at creation; later edits apply to the next
// session.
type Session struct {
	ID        string
	StartedAt time.Time
	Settings  config.Settings

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	transcript []string
}

func newSession(parent context.Context, st config.Settings) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Settings:  st,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// AddUtterance appends one finalized user utterance.
func (s *Session) AddUtterance(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, text)
}

// Transcript returns the accumulated utterances in order.
func (s *Session) Transcript() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.transcript...)
}

// Cancel aborts all work rooted in the session.
func (s *Session) Cancel() { s.cancel() }

// TimerGuard is a named one-shot countdown. Arm replaces any previous
// countdown; Stop disarms. The callback never fires after Stop returns
// a true disarm, and a fire that lost the race to Stop is discarded.
type TimerGuard struct {
	name string

	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
}

// NewTimerGuard creates a disarmed guard.
func NewTimerGuard(name string) *TimerGuard {
	return &TimerGuard{name: name}
}

// Arm schedules fn to run once after d, replacing any pending countdown.
func (g *TimerGuard) Arm(d time.Duration, fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	gen := g.gen
	if g.timer != nil {
		g.timer.Stop()
	}
	slog.Debug("timer armed", "timer", g.name, "duration", d)
	g.timer = time.AfterFunc(d, func() {
		g.mu.Lock()
		stale := gen != g.gen
		g.mu.Unlock()
		if !stale {
			fn()
		}
	})
}

// Stop disarms any pending countdown.
func (g *TimerGuard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}
