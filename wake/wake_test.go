package wake

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.aimuz.me/voxd/internal/types"
)

func TestMatcher(t *testing.T) {
	m := NewMatcher("hey lieutenant", []string{"hey leftenant", "a lieutenant"})

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"exact", "hey lieutenant", true},
		{"case and punctuation", "Hey, Lieutenant!", true},
		{"with trailing words", "hey lieutenant what time is it", true},
		{"variant", "hey leftenant", true},
		{"variant with article", "a lieutenant", true},
		{"close misspelling", "hey lieutenent", true},
		{"unrelated", "what a nice day", false},
		{"empty", "", false},
		{"partial phrase", "lieutenant", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Match(tt.text); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

// fakeSpotter returns a canned transcript for every burst. Spotting
// happens on the monitor's worker goroutine, so calls is atomic.
type fakeSpotter struct {
	text  string
	calls atomic.Int32
}

func (f *fakeSpotter) SpotText(_ context.Context, _ []float32, _ string) (string, error) {
	f.calls.Add(1)
	return f.text, nil
}

const testRate = 16000

// speechFrame is 100ms of loud audio; silenceFrame is 100ms of quiet.
func speechFrame(seq uint64) types.AudioFrame {
	samples := make([]float32, testRate/10)
	for i := range samples {
		samples[i] = 0.3
	}
	return types.AudioFrame{Seq: seq, Samples: samples, RMS: 0.3, Time: time.Now()}
}

func silenceFrame(seq uint64) types.AudioFrame {
	return types.AudioFrame{Seq: seq, Samples: make([]float32, testRate/10), RMS: 0.001, Time: time.Now()}
}

// feedBurst feeds one speech/silence burst and reports whether the
// detection callback fired within a short window.
func feedBurst(t *testing.T, m *Monitor, speechFrames, silenceFrames int) bool {
	t.Helper()
	ctx := context.Background()
	fired := make(chan struct{}, 1)
	m.OnDetect(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	var seq uint64
	for i := 0; i < speechFrames; i++ {
		seq++
		m.Feed(ctx, speechFrame(seq))
	}
	for i := 0; i < silenceFrames; i++ {
		seq++
		m.Feed(ctx, silenceFrame(seq))
	}

	select {
	case <-fired:
		return true
	case <-time.After(300 * time.Millisecond):
		return false
	}
}

func TestMonitorDetectsPhrase(t *testing.T) {
	sp := &fakeSpotter{text: "hey lieutenant"}
	m := NewMonitor(Config{SampleRate: testRate}, sp, "hey lieutenant", nil, "en")

	// 500ms of speech then 400ms of silence closes the burst.
	if !feedBurst(t, m, 5, 4) {
		t.Fatal("wake phrase not detected")
	}
	if got := sp.calls.Load(); got != 1 {
		t.Errorf("spotter calls = %d, want 1", got)
	}
}

func TestMonitorIgnoresNonPhrase(t *testing.T) {
	sp := &fakeSpotter{text: "open the window"}
	m := NewMonitor(Config{SampleRate: testRate}, sp, "hey lieutenant", nil, "en")

	if feedBurst(t, m, 5, 4) {
		t.Fatal("unexpected detection")
	}
}

func TestMonitorSkipsShortBursts(t *testing.T) {
	sp := &fakeSpotter{text: "hey lieutenant"}
	m := NewMonitor(Config{SampleRate: testRate}, sp, "hey lieutenant", nil, "en")

	// 100ms of speech is below the minimum utterance; the spotter must
	// not even be consulted.
	if feedBurst(t, m, 1, 4) {
		t.Fatal("unexpected detection")
	}
	if got := sp.calls.Load(); got != 0 {
		t.Errorf("spotter calls = %d, want 0", got)
	}
}

func TestMonitorDiscardsLongBursts(t *testing.T) {
	sp := &fakeSpotter{text: "hey lieutenant"}
	m := NewMonitor(Config{SampleRate: testRate, MaxUtterance: 400 * time.Millisecond}, sp,
		"hey lieutenant", nil, "en")

	// A burst longer than MaxUtterance is not a wake phrase.
	if feedBurst(t, m, 10, 4) {
		t.Fatal("unexpected detection")
	}
	if got := sp.calls.Load(); got != 0 {
		t.Errorf("spotter calls = %d, want 0", got)
	}
}

func TestMonitorCooldown(t *testing.T) {
	sp := &fakeSpotter{text: "hey lieutenant"}
	m := NewMonitor(Config{SampleRate: testRate, Cooldown: time.Hour}, sp,
		"hey lieutenant", nil, "en")

	if !feedBurst(t, m, 5, 4) {
		t.Fatal("first detection missed")
	}
	if feedBurst(t, m, 5, 4) {
		t.Fatal("second detection inside cooldown window")
	}
}

func TestMonitorPhraseSwap(t *testing.T) {
	sp := &fakeSpotter{text: "γεια σου υπολοχαγέ"}
	m := NewMonitor(Config{SampleRate: testRate}, sp, "hey lieutenant", nil, "en")

	if feedBurst(t, m, 5, 4) {
		t.Fatal("greek phrase matched english matcher")
	}

	m.SetPhrase("γεια σου υπολοχαγέ", nil, "el")
	if !feedBurst(t, m, 5, 4) {
		t.Fatal("swapped phrase not detected")
	}
}

// Feed must return promptly even while the spotter is blocked on a slow
// recognition round-trip; only the worker goroutine waits on it.
func TestMonitorFeedDoesNotBlockOnSlowSpotter(t *testing.T) {
	sp := &slowSpotter{release: make(chan struct{})}
	m := NewMonitor(Config{SampleRate: testRate}, sp, "hey lieutenant", nil, "en")

	fired := make(chan struct{}, 1)
	m.OnDetect(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	ctx := context.Background()
	var seq uint64
	for i := 0; i < 5; i++ {
		seq++
		m.Feed(ctx, speechFrame(seq))
	}
	done := make(chan struct{})
	go func() {
		for i := 0; i < 4; i++ {
			seq++
			m.Feed(ctx, silenceFrame(seq))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Feed blocked on the spotter")
	}

	close(sp.release)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("detection never fired after spotter returned")
	}
}

type slowSpotter struct {
	release chan struct{}
}

func (s *slowSpotter) SpotText(_ context.Context, _ []float32, _ string) (string, error) {
	<-s.release
	return "hey lieutenant", nil
}
