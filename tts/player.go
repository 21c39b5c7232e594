package tts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.aimuz.me/voxd/audio"
)

// levelBlock is the granularity of playback: level events fire and
// cancellation is observed once per block.
const levelBlock = 100 * time.Millisecond

// TurnReport summarizes one speaking turn.
type TurnReport struct {
	Spoken      []string  // chunks fully consumed (played, or skipped on error), in order
	Interrupted string    // chunk cut off mid-playback, if any
	LastSample  time.Time // when the final played sample left the sink
}

// Player speaks reply chunks strictly in order through the audio sink.
// One Speak call is one speaking turn; cancelling its context stops
// playback at block granularity and clears the sink.
type Player struct {
	synth Synthesizer
	sink  audio.Sink

	onLevel      func(rms float64)
	onChunkStart func()
}

// NewPlayer creates a player. onLevel and onChunkStart may be nil.
func NewPlayer(synth Synthesizer, sink audio.Sink, onLevel func(float64), onChunkStart func()) *Player {
	return &Player{synth: synth, sink: sink, onLevel: onLevel, onChunkStart: onChunkStart}
}

// SynthesizerName returns the active synthesis backend name.
func (p *Player) SynthesizerName() string { return p.synth.Name() }

// Speak consumes chunks until the channel closes, synthesizing and
// playing each in order. A synthesis failure skips that chunk; a
// cancelled context ends the turn. The returned report always carries a
// usable LastSample time.
func (p *Player) Speak(ctx context.Context, chunks <-chan string) TurnReport {
	report := TurnReport{LastSample: time.Now()}

	for {
		select {
		case <-ctx.Done():
			p.sink.Clear()
			report.LastSample = time.Now()
			return report
		case text, ok := <-chunks:
			if !ok {
				// Let the tail of the last chunk reach the speaker.
				if err := p.sink.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
					slog.Warn("playback drain failed", "error", err)
				}
				if ctx.Err() != nil {
					p.sink.Clear()
				}
				report.LastSample = time.Now()
				return report
			}
			if interrupted := p.playChunk(ctx, text, &report); interrupted {
				p.sink.Clear()
				report.Interrupted = text
				report.LastSample = time.Now()
				return report
			}
			report.Spoken = append(report.Spoken, text)
		}
	}
}

// playChunk synthesizes and writes one chunk. Returns true if the turn
// was cancelled mid-chunk.
func (p *Player) playChunk(ctx context.Context, text string, report *TurnReport) bool {
	if p.onChunkStart != nil {
		p.onChunkStart()
	}

	pcm, rate, err := p.synth.Synthesize(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		// Skip the chunk; the rest of the reply still plays.
		slog.Warn("synthesis failed, skipping chunk",
			"backend", p.synth.Name(), "error", err, "len", len(text))
		return false
	}

	block := rate * int(levelBlock/time.Millisecond) / 1000
	for start := 0; start < len(pcm); start += block {
		if ctx.Err() != nil {
			return true
		}
		end := min(start+block, len(pcm))
		seg := pcm[start:end]
		if p.onLevel != nil {
			p.onLevel(audio.RMS(seg))
		}
		if err := p.sink.Write(ctx, seg); err != nil {
			if ctx.Err() != nil {
				return true
			}
			slog.Warn("playback write failed", "error", err)
			return false
		}
	}
	return false
}
