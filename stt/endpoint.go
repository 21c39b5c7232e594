package stt

import (
	"sort"
	"time"

	"go.aimuz.me/voxd/internal/types"
)

// Decision is the endpointer's terminal verdict for an utterance.
type Decision int

const (
	DecisionNone        Decision = iota
	DecisionEndOfSpeech          // speech happened and trailing silence closed it
	DecisionTimeout              // no speech arrived before the timeout
)

// Verdict is the per-frame endpointer output.
type Verdict struct {
	Silent       bool // frame is below the silence threshold
	SpeechActive bool // the utterance has accumulated real speech
	End          Decision
}

// EndpointConfig holds the energy endpointer parameters.
type EndpointConfig struct {
	SampleRate        int
	CalibrationFrames int           // frames used to estimate the noise floor
	SilenceFactor     float64       // floor multiplier below which a frame is silent
	SpeechFactor      float64       // floor multiplier above which a frame is speech
	MinSpeech         time.Duration // speech shorter than this never starts an utterance
	Hangover          time.Duration // trailing silence that ends the utterance
	NoSpeechTimeout   time.Duration // give up waiting for speech after this long
	MaxUtterance      time.Duration // hard cap on utterance length
}

func (c *EndpointConfig) applyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.CalibrationFrames == 0 {
		c.CalibrationFrames = 8
	}
	if c.SilenceFactor == 0 {
		c.SilenceFactor = 4
	}
	if c.SpeechFactor == 0 {
		c.SpeechFactor = 6
	}
	if c.MinSpeech == 0 {
		c.MinSpeech = 300 * time.Millisecond
	}
	if c.Hangover == 0 {
		c.Hangover = 900 * time.Millisecond
	}
	if c.NoSpeechTimeout == 0 {
		c.NoSpeechTimeout = 5 * time.Second
	}
	if c.MaxUtterance == 0 {
		c.MaxUtterance = 30 * time.Second
	}
}

// noiseFloorMin keeps thresholds sane in a dead-quiet room.
const noiseFloorMin = 1e-4

// Endpointer tracks speech/silence over one utterance. The first frames
// calibrate the noise floor; thresholds derive from it with hysteresis:
// a frame is speech above floor*SpeechFactor, silent below
// floor*SilenceFactor, and keeps the previous classification in between.
type Endpointer struct {
	cfg EndpointConfig

	calibration []float64
	floor       float64
	calibrated  bool

	total        time.Duration
	speechDur    time.Duration
	trailingSil  time.Duration
	speechActive bool
	lastSpeech   bool
	decision     Decision // sticky once terminal
}

// NewEndpointer creates an endpointer for one utterance.
func NewEndpointer(cfg EndpointConfig) *Endpointer {
	cfg.applyDefaults()
	return &Endpointer{cfg: cfg}
}

// Process classifies one frame and advances the utterance state.
// After a terminal decision, further frames keep returning it.
func (e *Endpointer) Process(frame types.AudioFrame) Verdict {
	frameDur := time.Duration(len(frame.Samples)) * time.Second / time.Duration(e.cfg.SampleRate)
	e.total += frameDur

	if !e.calibrated {
		e.calibration = append(e.calibration, frame.RMS)
		if len(e.calibration) >= e.cfg.CalibrationFrames {
			e.floor = median(e.calibration)
			if e.floor < noiseFloorMin {
				e.floor = noiseFloorMin
			}
			e.calibrated = true
		}
		if e.decision == DecisionNone {
			e.decision = e.checkTimeout()
		}
		return Verdict{Silent: true, End: e.decision}
	}

	speechThreshold := e.floor * e.cfg.SpeechFactor
	silenceThreshold := e.floor * e.cfg.SilenceFactor

	speech := e.lastSpeech
	switch {
	case frame.RMS >= speechThreshold:
		speech = true
	case frame.RMS < silenceThreshold:
		speech = false
	}
	e.lastSpeech = speech

	if speech {
		e.speechDur += frameDur
		e.trailingSil = 0
		if e.speechDur >= e.cfg.MinSpeech {
			e.speechActive = true
		}
	} else if e.speechActive {
		e.trailingSil += frameDur
	}

	v := Verdict{Silent: !speech, SpeechActive: e.speechActive}
	if e.decision != DecisionNone {
		v.End = e.decision
		return v
	}

	switch {
	case e.speechActive && e.trailingSil >= e.cfg.Hangover:
		e.decision = DecisionEndOfSpeech
	case e.speechActive && e.total >= e.cfg.MaxUtterance:
		e.decision = DecisionEndOfSpeech
	default:
		e.decision = e.checkTimeout()
	}
	v.End = e.decision
	return v
}

func (e *Endpointer) checkTimeout() Decision {
	if !e.speechActive && e.total >= e.cfg.NoSpeechTimeout {
		return DecisionTimeout
	}
	return DecisionNone
}

// NoiseFloor returns the calibrated floor, or 0 before calibration.
func (e *Endpointer) NoiseFloor() float64 { return e.floor }

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
