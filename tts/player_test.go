package tts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeSynth returns a short PCM buffer per chunk, failing on texts in
// the fail set.
type fakeSynth struct {
	fail map[string]bool
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Synthesize(_ context.Context, text string) ([]float32, int, error) {
	if f.fail[text] {
		return nil, 0, errors.New("synthesis unavailable")
	}
	pcm := make([]float32, 2400) // 100ms at 24kHz
	for i := range pcm {
		pcm[i] = 0.1
	}
	return pcm, 24000, nil
}

// fakeSink records written samples.
type fakeSink struct {
	mu      sync.Mutex
	written int
	cleared int
}

func (f *fakeSink) Write(_ context.Context, pcm []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written += len(pcm)
	return nil
}

func (f *fakeSink) Drain(_ context.Context) error { return nil }

func (f *fakeSink) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
}

func (f *fakeSink) SampleRate() int { return 24000 }

func chunkChannel(chunks ...string) <-chan string {
	ch := make(chan string, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func TestPlayerSpeaksInOrder(t *testing.T) {
	sink := &fakeSink{}
	var levels int
	var starts int
	p := NewPlayer(&fakeSynth{}, sink,
		func(float64) { levels++ },
		func() { starts++ })

	report := p.Speak(context.Background(), chunkChannel("First.", "Second.", "Third."))

	want := []string{"First.", "Second.", "Third."}
	if len(report.Spoken) != len(want) {
		t.Fatalf("spoken = %q, want %q", report.Spoken, want)
	}
	for i := range want {
		if report.Spoken[i] != want[i] {
			t.Errorf("spoken[%d] = %q, want %q", i, report.Spoken[i], want[i])
		}
	}
	if report.Interrupted != "" {
		t.Errorf("interrupted = %q, want none", report.Interrupted)
	}
	if sink.written == 0 {
		t.Error("nothing reached the sink")
	}
	if levels == 0 {
		t.Error("no level callbacks")
	}
	if starts != 3 {
		t.Errorf("chunk starts = %d, want 3", starts)
	}
	if report.LastSample.IsZero() {
		t.Error("LastSample not set")
	}
}

func TestPlayerSkipsFailedChunk(t *testing.T) {
	sink := &fakeSink{}
	synth := &fakeSynth{fail: map[string]bool{"Second.": true}}
	p := NewPlayer(synth, sink, nil, nil)

	report := p.Speak(context.Background(), chunkChannel("First.", "Second.", "Third."))

	want := []string{"First.", "Second.", "Third."}
	if len(report.Spoken) != len(want) {
		t.Fatalf("spoken = %q, want all chunks consumed", report.Spoken)
	}
}

func TestPlayerCancelClearsSink(t *testing.T) {
	sink := &fakeSink{}
	p := NewPlayer(&fakeSynth{}, sink, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := make(chan string, 1)
	ch <- "Never spoken."
	// channel stays open: cancellation must end the turn anyway
	done := make(chan TurnReport, 1)
	go func() { done <- p.Speak(ctx, ch) }()

	select {
	case report := <-done:
		if len(report.Spoken) != 0 {
			t.Errorf("spoken = %q after pre-cancelled context", report.Spoken)
		}
		if sink.cleared == 0 {
			t.Error("sink not cleared on cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Speak did not return after cancellation")
	}
}
