// Package types provides shared type definitions for the daemon.
package types

import (
	"time"
)

// Mode is the daemon's interaction state. Exactly one Mode is current at
// any instant; it is owned by the state machine.
type Mode string

const (
	ModeIdle       Mode = "IDLE"
	ModeListening  Mode = "LISTENING"
	ModeThinking   Mode = "THINKING"
	ModeSpeaking   Mode = "SPEAKING"
	ModeConversing Mode = "CONVERSING" // follow-up listening, no wake phrase needed
)

// Valid reports whether m is a member of the defined mode set.
func (m Mode) Valid() bool {
	switch m {
	case ModeIdle, ModeListening, ModeThinking, ModeSpeaking, ModeConversing:
		return true
	}
	return false
}

// AudioFrame is a fixed-duration block of mono samples tagged with a
// monotonic sequence number and its RMS energy. Ownership transfers to
// exactly one consumer; frames are never shared between consumers.
type AudioFrame struct {
	Seq     uint64
	Samples []float32 // PCM in [-1, 1]
	RMS     float64
	Time    time.Time
}

// ─────────────────────────────────────────────────────────────────────────────
// Events
// ─────────────────────────────────────────────────────────────────────────────

// Event type tags as they appear on the wire.
const (
	EventState      = "state"
	EventMicLevel   = "mic.level"
	EventTTSLevel   = "tts.level"
	EventSTTPartial = "stt.partial"
	EventSTTFinal   = "stt.final"
	EventAgentChunk = "agent.chunk"
	EventAgentDone  = "agent.done"
	EventLanguage   = "language"
	EventSettings   = "settings"
	EventError      = "error"
	EventLog        = "log"
)

// SettingsPayload is the externally visible slice of settings carried on
// a settings event and over the settings control operation. Primary is
// the wake phrase of the first configured language, secondary of the
// second (empty for a monolingual setup).
type SettingsPayload struct {
	WakePhrasePrimary   string `json:"wake_phrase_primary"`
	WakePhraseSecondary string `json:"wake_phrase_secondary,omitempty"`
	DisplayName         string `json:"display_name"`
}

// Event is a tagged payload broadcast to observers. Immutable once built;
// the timestamp is set at construction.
type Event struct {
	Type string  `json:"type"`
	TS   float64 `json:"ts"` // unix seconds

	Value    string           `json:"value,omitempty"`   // state, language
	Text     string           `json:"text,omitempty"`    // stt.*, agent.chunk
	RMS      float64          `json:"rms,omitempty"`     // mic.level, tts.level
	Backend  string           `json:"backend,omitempty"` // agent.done
	Message  string           `json:"message,omitempty"` // error, log
	Level    string           `json:"level,omitempty"`   // log
	Source   string           `json:"source,omitempty"`  // log
	Settings *SettingsPayload `json:"settings,omitempty"`
}

func nowTS() float64 { return float64(time.Now().UnixMilli()) / 1000 }

// StateEvent builds a state change event.
func StateEvent(m Mode) Event { return Event{Type: EventState, TS: nowTS(), Value: string(m)} }

// MicLevelEvent builds a microphone level event.
func MicLevelEvent(rms float64) Event { return Event{Type: EventMicLevel, TS: nowTS(), RMS: rms} }

// TTSLevelEvent builds a playback level event.
func TTSLevelEvent(rms float64) Event { return Event{Type: EventTTSLevel, TS: nowTS(), RMS: rms} }

// PartialEvent builds an interim transcript event.
func PartialEvent(text string) Event { return Event{Type: EventSTTPartial, TS: nowTS(), Text: text} }

// FinalEvent builds a final transcript event. An empty text means the
// utterance produced no usable speech.
func FinalEvent(text string) Event { return Event{Type: EventSTTFinal, TS: nowTS(), Text: text} }

// ChunkEvent builds a reply chunk event.
func ChunkEvent(text string) Event { return Event{Type: EventAgentChunk, TS: nowTS(), Text: text} }

// DoneEvent builds a reply completion event naming the serving backend.
func DoneEvent(backend string) Event {
	return Event{Type: EventAgentDone, TS: nowTS(), Backend: backend}
}

// LanguageEvent builds an active language change event.
func LanguageEvent(code string) Event { return Event{Type: EventLanguage, TS: nowTS(), Value: code} }

// SettingsEvent builds a settings change event.
func SettingsEvent(p SettingsPayload) Event {
	return Event{Type: EventSettings, TS: nowTS(), Settings: &p}
}

// ErrorEvent builds a user-visible error event.
func ErrorEvent(msg string) Event { return Event{Type: EventError, TS: nowTS(), Message: msg} }

// LogEvent builds a log line event.
func LogEvent(level, msg, source string) Event {
	return Event{Type: EventLog, TS: nowTS(), Level: level, Message: msg, Source: source}
}

// ─────────────────────────────────────────────────────────────────────────────
// Conversation
// ─────────────────────────────────────────────────────────────────────────────

// Turn is one entry of conversation history.
type Turn struct {
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	At        time.Time `json:"at"`
}

// StatusSnapshot is the response of the status control operation.
type StatusSnapshot struct {
	Mode        Mode    `json:"state"`
	SessionID   string  `json:"session_id,omitempty"`
	Language    string  `json:"language"`
	STTBackend  string  `json:"stt_backend"`
	TTSBackend  string  `json:"tts_backend"`
	Observers   int     `json:"observers"`
	MicDevice   string  `json:"mic_device"`
	MicFrames   uint64  `json:"mic_frames"`
	MicDropped  uint64  `json:"mic_dropped"`
	MicRMS      float64 `json:"mic_rms"`
	MicHealthy  bool    `json:"mic_healthy"`
	LastBackend string  `json:"last_backend,omitempty"`
}
