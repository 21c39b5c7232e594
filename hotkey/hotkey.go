// Package hotkey binds global keyboard shortcuts to daemon controls:
// one chord toggles push-to-talk, another is the kill switch.
package hotkey

import (
	"log/slog"
	"sync"

	hook "github.com/robotn/gohook"
)

// Manager owns the global event hook. Callbacks run on the hook's
// dispatch goroutine and must not block.
type Manager struct {
	onPushToTalk func()
	onKill       func()

	mu      sync.Mutex
	running bool
	events  chan hook.Event
}

// NewManager creates a hotkey manager. Either callback may be nil.
func NewManager(onPushToTalk, onKill func()) *Manager {
	return &Manager{onPushToTalk: onPushToTalk, onKill: onKill}
}

// Start registers the chords and begins the global hook loop.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	hook.Register(hook.KeyDown, []string{"ctrl", "shift", "space"}, func(e hook.Event) {
		if m.onPushToTalk != nil {
			m.onPushToTalk()
		}
	})
	hook.Register(hook.KeyDown, []string{"ctrl", "shift", "esc"}, func(e hook.Event) {
		if m.onKill != nil {
			m.onKill()
		}
	})

	m.events = hook.Start()
	m.running = true
	go func() {
		<-hook.Process(m.events)
		slog.Debug("hotkey hook loop ended")
	}()

	slog.Info("global hotkeys registered",
		"push_to_talk", "ctrl+shift+space", "kill", "ctrl+shift+esc")
	return nil
}

// Stop tears the global hook down.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	hook.End()
}
