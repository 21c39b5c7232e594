// Package bargein watches the microphone while the daemon is speaking
// and fires when the user talks over the reply. Detection is a run of
// consecutive loud frames, with guard windows suppressing the monitor
// right after playback starts and right after each chunk begins, where
// speaker echo is strongest.
package bargein

import (
	"sync"
	"time"

	"go.aimuz.me/voxd/internal/types"
)

// Config holds barge-in detection parameters.
type Config struct {
	Threshold     float64       // RMS above which a frame counts as user speech, default 0.015
	Frames        int           // consecutive loud frames required, default 8
	StartCooldown time.Duration // blind window after the turn starts, default 700ms
	ChunkGuard    time.Duration // blind window after each chunk starts, default 250ms
}

func (c *Config) applyDefaults() {
	if c.Threshold == 0 {
		c.Threshold = 0.015
	}
	if c.Frames == 0 {
		c.Frames = 8
	}
	if c.StartCooldown == 0 {
		c.StartCooldown = 700 * time.Millisecond
	}
	if c.ChunkGuard == 0 {
		c.ChunkGuard = 250 * time.Millisecond
	}
}

// Monitor detects barge-in during one speaking turn. It fires at most
// once per turn; BeginTurn re-arms it. Observe runs on the frame pump
// goroutine, BeginTurn/ChunkStarted/EndTurn on the playback side.
type Monitor struct {
	cfg Config

	mu          sync.Mutex
	active      bool
	fired       bool
	guardUntil  time.Time
	consecutive int
}

// NewMonitor creates a barge-in monitor, initially inactive.
func NewMonitor(cfg Config) *Monitor {
	cfg.applyDefaults()
	return &Monitor{cfg: cfg}
}

// BeginTurn arms the monitor for a new speaking turn starting at now.
func (m *Monitor) BeginTurn(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = true
	m.fired = false
	m.consecutive = 0
	m.guardUntil = now.Add(m.cfg.StartCooldown)
}

// ChunkStarted opens a guard window for a new chunk's onset echo. A
// longer-lived guard (the start cooldown) is never shortened.
func (m *Monitor) ChunkStarted(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if until := now.Add(m.cfg.ChunkGuard); until.After(m.guardUntil) {
		m.guardUntil = until
	}
}

// EndTurn disarms the monitor.
func (m *Monitor) EndTurn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = false
}

// Observe classifies one frame. It returns true exactly once per armed
// turn, when the required run of loud frames completes.
func (m *Monitor) Observe(frame types.AudioFrame) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active || m.fired {
		return false
	}
	if frame.Time.Before(m.guardUntil) {
		// Echo window: frames neither count toward nor against a run.
		m.consecutive = 0
		return false
	}

	if frame.RMS >= m.cfg.Threshold {
		m.consecutive++
	} else {
		m.consecutive = 0
	}
	if m.consecutive >= m.cfg.Frames {
		m.fired = true
		return true
	}
	return false
}
