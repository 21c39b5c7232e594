// Package tts turns reply chunks into audible speech. A Synthesizer
// produces PCM for one chunk; Player plays chunks strictly in order
// through the audio sink, reporting playback level and supporting
// cancellation for barge-in.
package tts

import "context"

// Synthesizer converts one text chunk to mono PCM.
type Synthesizer interface {
	Name() string
	// Synthesize returns samples in [-1, 1] and their sample rate.
	Synthesize(ctx context.Context, text string) ([]float32, int, error)
}
