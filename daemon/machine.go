// Package daemon orchestrates the voice-interaction loop: it owns the
// mode state machine and wires the microphone stream, wake detection,
// transcription, the reasoning backend chain and speech playback into
// wake-triggered spoken turns.
package daemon

import (
	"slices"
	"sync"

	"go.aimuz.me/voxd/internal/types"
)

// Machine owns the daemon's current mode. Transitions are serialized:
// a transition publishes its state event and runs its side effect while
// still holding the transition lock, so no frame router or observer can
// see the new mode before its sub-pipelines have been switched.
type Machine struct {
	mu      sync.Mutex
	mode    types.Mode
	publish func(types.Event)
}

// NewMachine creates a machine in Idle. publish must not block.
func NewMachine(publish func(types.Event)) *Machine {
	return &Machine{mode: types.ModeIdle, publish: publish}
}

// Mode returns the current mode.
func (m *Machine) Mode() types.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Apply executes a guarded transition: when the current mode is one of
// from, the mode becomes to, the state event is published and effect
// runs, all under the transition lock. Returns false when the guard
// fails; the request is ignored, not an error.
func (m *Machine) Apply(from []types.Mode, to types.Mode, effect func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(from, m.mode) {
		return false
	}
	m.mode = to
	m.publish(types.StateEvent(to))
	if effect != nil {
		effect()
	}
	return true
}

// Force moves to the given mode from any state. The effect always runs,
// so forcing Idle from Idle still cancels whatever is in flight; the
// state event is published only on an actual change.
func (m *Machine) Force(to types.Mode, effect func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != to {
		m.mode = to
		m.publish(types.StateEvent(to))
	}
	if effect != nil {
		effect()
	}
}
