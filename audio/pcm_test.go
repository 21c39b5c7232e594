package audio

import (
	"math"
	"testing"
)

func TestRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []float32
		want    float64
	}{
		{"empty", nil, 0},
		{"silence", make([]float32, 512), 0},
		{"full scale", []float32{1, -1, 1, -1}, 1},
		{"half scale", []float32{0.5, -0.5}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RMS(tt.samples)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("RMS() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestS16LERoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 0.99, -0.99}
	out := S16LEToFloat32(Float32ToS16LE(in))
	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if math.Abs(float64(out[i]-in[i])) > 1.0/32768 {
			t.Errorf("sample %d = %v, want ~%v", i, out[i], in[i])
		}
	}
}

func TestFloat32ToS16LEClamps(t *testing.T) {
	out := S16LEToFloat32(Float32ToS16LE([]float32{2.0, -2.0}))
	if out[0] < 0.99 || out[1] > -0.99 {
		t.Errorf("clamped samples = %v, want near ±1", out)
	}
}

func TestCaptureFraming(t *testing.T) {
	c := NewCapture(CaptureConfig{SampleRate: 16000, FrameSize: 4, QueueDepth: 8})

	// Deliver 10 samples in odd-sized callbacks: exactly two full frames
	// should come out, with the remainder pending.
	c.onSamples([]float32{0.1, 0.2, 0.3})
	c.onSamples([]float32{0.4, 0.5})
	c.onSamples([]float32{0.6, 0.7, 0.8, 0.9, 1.0})

	if got := len(c.Frames()); got != 2 {
		t.Fatalf("queued frames = %d, want 2", got)
	}

	f1 := <-c.Frames()
	f2 := <-c.Frames()
	if f1.Seq != 1 || f2.Seq != 2 {
		t.Errorf("sequence numbers = %d, %d, want 1, 2", f1.Seq, f2.Seq)
	}
	if f1.Samples[0] != 0.1 || f2.Samples[0] != 0.5 {
		t.Errorf("frame boundaries wrong: %v / %v", f1.Samples, f2.Samples)
	}
	if f1.RMS == 0 {
		t.Error("frame RMS not computed")
	}
}

func TestCaptureDropsWhenFull(t *testing.T) {
	c := NewCapture(CaptureConfig{SampleRate: 16000, FrameSize: 2, QueueDepth: 1})

	c.onSamples([]float32{0.1, 0.2}) // fills the queue
	c.onSamples([]float32{0.3, 0.4}) // must drop, not block

	if got := c.Stats().Dropped; got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
	f := <-c.Frames()
	if f.Samples[0] != 0.1 {
		t.Errorf("oldest frame survived wrong: %v", f.Samples)
	}
}
