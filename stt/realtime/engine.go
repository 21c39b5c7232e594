package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.aimuz.me/voxd/stt"
)

// Engine streams utterance audio to the realtime transcription API.
// Each utterance dials a fresh WebRTC session; transcript deltas become
// partials and the completed transcript becomes the final.
type Engine struct {
	apiKey     string
	sampleRate int // microphone rate, audio is resampled to the opus rate
}

// Config holds realtime engine parameters.
type Config struct {
	APIKey     string
	SampleRate int // default 16000
}

// NewEngine creates a realtime recognition engine.
func NewEngine(cfg Config) *Engine {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	return &Engine{apiKey: cfg.APIKey, sampleRate: cfg.SampleRate}
}

// Name implements stt.Engine.
func (e *Engine) Name() string { return "realtime" }

// Start implements stt.Engine.
func (e *Engine) Start(ctx context.Context, language string) (stt.Stream, error) {
	if e.apiKey == "" {
		return nil, fmt.Errorf("realtime: API key required")
	}

	t := newTransport(e.apiKey)
	if err := t.connect(ctx, language); err != nil {
		_ = t.close()
		return nil, fmt.Errorf("connect realtime transport: %w", err)
	}
	if err := t.waitOpen(ctx); err != nil {
		_ = t.close()
		return nil, fmt.Errorf("open data channel: %w", err)
	}

	s := &stream{
		engine:  e,
		t:       t,
		ctx:     ctx,
		results: make(chan stt.Result, 16),
		stopped: make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// stream is one utterance exchange over an open transport.
type stream struct {
	engine *Engine
	t      *transport
	ctx    context.Context

	mu       sync.Mutex
	pending  []float32 // 48 kHz mono awaiting a full opus frame
	partial  string
	stopOnce sync.Once

	results chan stt.Result
	stopped chan struct{}
}

func (s *stream) Feed(samples []float32, silent bool) error {
	// Silent frames ride along: the endpointer decides utterance bounds,
	// the API's VAD just sees the natural pauses.
	up := resampleTo48k(samples, s.engine.sampleRate)

	s.mu.Lock()
	s.pending = append(s.pending, up...)
	frameSamples := int(opusRate * opusFrame / time.Second)
	var frames [][]float32
	for len(s.pending) >= frameSamples {
		frame := make([]float32, frameSamples)
		copy(frame, s.pending[:frameSamples])
		s.pending = s.pending[frameSamples:]
		frames = append(frames, frame)
	}
	s.mu.Unlock()

	for _, frame := range frames {
		if err := s.t.sendAudio(frame); err != nil {
			return fmt.Errorf("send audio: %w", err)
		}
	}
	return nil
}

func (s *stream) Results() <-chan stt.Result { return s.results }

// Stop commits the buffered audio; the final arrives as a completed
// transcription event handled by run.
func (s *stream) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		err = s.t.send(commitEvent())
		close(s.stopped)
	})
	return err
}

// finalGrace bounds how long a committed utterance may wait for its
// completed transcript before the stream gives up with an empty final.
const finalGrace = 10 * time.Second

func (s *stream) run() {
	defer close(s.results)
	defer func() { _ = s.t.close() }()

	stopped := s.stopped
	var deadline <-chan time.Time
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-stopped:
			stopped = nil // arm the grace timer once
			deadline = time.After(finalGrace)
		case <-deadline:
			slog.Warn("realtime final transcript timed out")
			s.emit(stt.Result{Final: true})
			return
		case err := <-s.t.errs:
			slog.Warn("realtime transport failed", "error", err)
			s.emit(stt.Result{Final: true})
			return
		case ev := <-s.t.events:
			switch ev.Type {
			case eventTranscriptionDelta:
				s.mu.Lock()
				s.partial += ev.Delta
				text := s.partial
				s.mu.Unlock()
				s.emit(stt.Result{Text: text})
			case eventTranscriptionCompleted:
				s.emit(stt.Result{Text: ev.Transcript, Final: true})
				return
			case eventError:
				if ev.Error != nil {
					slog.Warn("realtime api error",
						"code", ev.Error.Code, "message", ev.Error.Message)
				}
			}
		}
	}
}

func (s *stream) emit(r stt.Result) {
	select {
	case s.results <- r:
	case <-s.ctx.Done():
	}
}

// resampleTo48k upsamples mono PCM to 48 kHz by linear interpolation.
// Rates that divide 48000 evenly (8k, 16k, 24k) are exact.
func resampleTo48k(samples []float32, rate int) []float32 {
	if rate == opusRate || len(samples) == 0 {
		return samples
	}
	factor := opusRate / rate
	if factor < 1 {
		factor = 1
	}
	out := make([]float32, 0, len(samples)*factor)
	for i, s := range samples {
		next := s
		if i+1 < len(samples) {
			next = samples[i+1]
		}
		for k := 0; k < factor; k++ {
			frac := float32(k) / float32(factor)
			out = append(out, s+(next-s)*frac)
		}
	}
	return out
}
