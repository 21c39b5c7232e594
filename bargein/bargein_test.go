package bargein

import (
	"testing"
	"time"

	"go.aimuz.me/voxd/internal/types"
)

func testConfig() Config {
	return Config{
		Threshold:     0.02,
		Frames:        3,
		StartCooldown: 500 * time.Millisecond,
		ChunkGuard:    200 * time.Millisecond,
	}
}

func frameAt(at time.Time, rms float64) types.AudioFrame {
	return types.AudioFrame{Samples: make([]float32, 1024), RMS: rms, Time: at}
}

func TestMonitorFiresExactlyOnce(t *testing.T) {
	m := NewMonitor(testConfig())
	start := time.Now()
	m.BeginTurn(start)

	at := start.Add(time.Second) // past the cooldown
	fires := 0
	for i := 0; i < 10; i++ {
		if m.Observe(frameAt(at.Add(time.Duration(i)*64*time.Millisecond), 0.1)) {
			fires++
		}
	}
	if fires != 1 {
		t.Fatalf("fires = %d, want exactly 1", fires)
	}
}

func TestMonitorNeedsConsecutiveFrames(t *testing.T) {
	m := NewMonitor(testConfig())
	start := time.Now()
	m.BeginTurn(start)
	at := start.Add(time.Second)

	// Loud, loud, quiet resets the run; never three in a row.
	pattern := []float64{0.1, 0.1, 0.001, 0.1, 0.1, 0.001, 0.1, 0.1}
	for i, rms := range pattern {
		if m.Observe(frameAt(at.Add(time.Duration(i)*64*time.Millisecond), rms)) {
			t.Fatalf("fired on broken run at frame %d", i)
		}
	}
}

func TestMonitorStartCooldown(t *testing.T) {
	m := NewMonitor(testConfig())
	start := time.Now()
	m.BeginTurn(start)

	// Loud frames inside the cooldown are echo, not barge-in.
	for i := 0; i < 5; i++ {
		if m.Observe(frameAt(start.Add(time.Duration(i)*64*time.Millisecond), 0.1)) {
			t.Fatal("fired inside the start cooldown")
		}
	}
	// After the cooldown the same loudness fires.
	at := start.Add(time.Second)
	fired := false
	for i := 0; i < 5; i++ {
		if m.Observe(frameAt(at.Add(time.Duration(i)*64*time.Millisecond), 0.1)) {
			fired = true
		}
	}
	if !fired {
		t.Fatal("did not fire after the cooldown")
	}
}

func TestMonitorChunkGuard(t *testing.T) {
	m := NewMonitor(testConfig())
	start := time.Now()
	m.BeginTurn(start)

	chunkAt := start.Add(time.Second)
	m.ChunkStarted(chunkAt)

	if m.Observe(frameAt(chunkAt.Add(50*time.Millisecond), 0.1)) {
		t.Fatal("fired inside the chunk guard")
	}
	// A run begun before the guard must not carry across it.
	at := chunkAt.Add(300 * time.Millisecond)
	for i := 0; i < 2; i++ {
		if m.Observe(frameAt(at.Add(time.Duration(i)*64*time.Millisecond), 0.1)) {
			t.Fatal("fired without a full run after the guard")
		}
	}
}

func TestMonitorInactiveIgnoresFrames(t *testing.T) {
	m := NewMonitor(testConfig())
	at := time.Now().Add(time.Hour)
	for i := 0; i < 10; i++ {
		if m.Observe(frameAt(at, 0.5)) {
			t.Fatal("fired while disarmed")
		}
	}

	m.BeginTurn(time.Now())
	m.EndTurn()
	for i := 0; i < 10; i++ {
		if m.Observe(frameAt(at, 0.5)) {
			t.Fatal("fired after EndTurn")
		}
	}
}

func TestMonitorRearmsPerTurn(t *testing.T) {
	m := NewMonitor(testConfig())

	start := time.Now()
	m.BeginTurn(start)
	at := start.Add(time.Second)
	fired := false
	for i := 0; i < 5; i++ {
		if m.Observe(frameAt(at.Add(time.Duration(i)*64*time.Millisecond), 0.1)) {
			fired = true
		}
	}
	if !fired {
		t.Fatal("first turn did not fire")
	}

	m.BeginTurn(at.Add(time.Second))
	at2 := at.Add(3 * time.Second)
	fired = false
	for i := 0; i < 5; i++ {
		if m.Observe(frameAt(at2.Add(time.Duration(i)*64*time.Millisecond), 0.1)) {
			fired = true
		}
	}
	if !fired {
		t.Fatal("re-armed turn did not fire")
	}
}
