// Package wake detects the spoken wake phrase in the microphone stream.
// The monitor is the frame consumer while the daemon is idle: it gathers
// short speech bursts, asks a Spotter for their text on a worker
// goroutine, and matches the text against the active phrase and its
// known phonetic variants.
package wake

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.aimuz.me/voxd/internal/types"
)

// Spotter turns a short utterance into text for phrase matching.
type Spotter interface {
	SpotText(ctx context.Context, samples []float32, language string) (string, error)
}

// Config holds wake detection parameters.
type Config struct {
	SampleRate      int           // default 16000
	SpeechThreshold float64       // RMS above which a frame counts as speech, default 0.01
	MinUtterance    time.Duration // shortest burst worth transcribing, default 300ms
	MaxUtterance    time.Duration // longest burst that can be a wake phrase, default 2s
	EndSilence      time.Duration // trailing silence that closes a burst, default 300ms
	Cooldown        time.Duration // retrigger suppression after a detection, default 1.2s
}

func (c *Config) applyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.SpeechThreshold == 0 {
		c.SpeechThreshold = 0.01
	}
	if c.MinUtterance == 0 {
		c.MinUtterance = 300 * time.Millisecond
	}
	if c.MaxUtterance == 0 {
		c.MaxUtterance = 2 * time.Second
	}
	if c.EndSilence == 0 {
		c.EndSilence = 300 * time.Millisecond
	}
	if c.Cooldown == 0 {
		c.Cooldown = 1200 * time.Millisecond
	}
}

// Monitor accumulates speech bursts and fires the detection callback on
// a matched phrase. Feed is called from a single goroutine and never
// blocks: closed bursts are transcribed on a worker goroutine, so frame
// routing keeps flowing while the spotter is on the network. SetPhrase
// may be called concurrently and takes effect on the next burst.
type Monitor struct {
	cfg     Config
	spotter Spotter

	mu       sync.Mutex
	matcher  *Matcher
	language string
	lastFire time.Time
	onDetect func()
	spotting bool

	// burst accumulation, single-goroutine
	speechBuf  []float32
	inSpeech   bool
	silenceDur time.Duration
}

// NewMonitor creates a wake monitor for the given phrase.
func NewMonitor(cfg Config, spotter Spotter, phrase string, variants []string, language string) *Monitor {
	cfg.applyDefaults()
	return &Monitor{
		cfg:      cfg,
		spotter:  spotter,
		matcher:  NewMatcher(phrase, variants),
		language: language,
	}
}

// OnDetect registers fn to run once per detection. fn is invoked from
// the spotting goroutine, never from Feed's caller.
func (m *Monitor) OnDetect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDetect = fn
}

// SetPhrase swaps the active phrase, variant table and language. The
// swap is observed between bursts, never mid-burst evaluation.
func (m *Monitor) SetPhrase(phrase string, variants []string, language string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matcher = NewMatcher(phrase, variants)
	m.language = language
}

// Reset discards any partial burst. Called when the monitor regains the
// frame stream so stale audio never triggers a wake.
func (m *Monitor) Reset() {
	m.speechBuf = m.speechBuf[:0]
	m.inSpeech = false
	m.silenceDur = 0
}

// Feed processes one frame, handing any completed burst to the spotting
// worker. Feed itself never blocks on recognition.
func (m *Monitor) Feed(ctx context.Context, frame types.AudioFrame) {
	frameDur := time.Duration(len(frame.Samples)) * time.Second / time.Duration(m.cfg.SampleRate)
	speech := frame.RMS >= m.cfg.SpeechThreshold

	if speech {
		if !m.inSpeech {
			m.inSpeech = true
			m.speechBuf = m.speechBuf[:0]
		}
		m.speechBuf = append(m.speechBuf, frame.Samples...)
		m.silenceDur = 0

		// Too long to be a wake phrase.
		if m.burstDur() > m.cfg.MaxUtterance {
			m.Reset()
		}
		return
	}

	if !m.inSpeech {
		return
	}
	m.speechBuf = append(m.speechBuf, frame.Samples...)
	m.silenceDur += frameDur
	if m.silenceDur < m.cfg.EndSilence {
		return
	}

	// The worker owns its copy; the accumulator reuses the buffer.
	burst := append([]float32(nil), m.speechBuf...)
	burstDur := m.burstDur()
	m.Reset()

	if burstDur < m.cfg.MinUtterance {
		return
	}
	m.spot(ctx, burst)
}

func (m *Monitor) burstDur() time.Duration {
	return time.Duration(len(m.speechBuf)) * time.Second / time.Duration(m.cfg.SampleRate)
}

// spot transcribes one burst on a worker goroutine. At most one spot is
// in flight; bursts arriving meanwhile are dropped, and the cooldown
// suppresses retriggers.
func (m *Monitor) spot(ctx context.Context, burst []float32) {
	m.mu.Lock()
	if m.spotting || time.Since(m.lastFire) < m.cfg.Cooldown {
		m.mu.Unlock()
		return
	}
	m.spotting = true
	matcher := m.matcher
	language := m.language
	m.mu.Unlock()

	go func() {
		matched := m.evaluate(ctx, burst, matcher, language)

		m.mu.Lock()
		m.spotting = false
		if matched && time.Since(m.lastFire) >= m.cfg.Cooldown {
			m.lastFire = time.Now()
		} else {
			matched = false
		}
		fire := m.onDetect
		m.mu.Unlock()

		if matched && fire != nil {
			fire()
		}
	}()
}

func (m *Monitor) evaluate(ctx context.Context, burst []float32, matcher *Matcher, language string) bool {
	text, err := m.spotter.SpotText(ctx, burst, language)
	if err != nil {
		// Recognition faults never escalate past the monitor.
		slog.Debug("wake spot failed", "error", err)
		return false
	}
	if !matcher.Match(text) {
		return false
	}
	slog.Info("wake phrase detected", "text", text)
	return true
}
