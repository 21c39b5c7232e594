package audio

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// Stop must not hold the capture mutex while tearing the device down:
// the data callback takes the same mutex, and device teardown waits for
// any in-flight callback to return. Exercised here with callbacks
// hammering the mutex while Stop runs.
func TestCaptureStopWithCallbackInFlight(t *testing.T) {
	c := NewCapture(CaptureConfig{FrameSize: 256, QueueDepth: 2})
	c.mu.Lock()
	c.capturing = true
	c.mu.Unlock()
	c.healthy.Store(true)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		samples := make([]float32, 384)
		for {
			select {
			case <-stop:
				return
			default:
				c.onSamples(samples)
			}
		}
	}()

	done := make(chan error, 1)
	go func() { done <- c.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked with a callback in flight")
	}
	close(stop)
	wg.Wait()

	if c.IsCapturing() {
		t.Fatal("still capturing after Stop")
	}
	if c.Healthy() {
		t.Fatal("still healthy after Stop")
	}
	if err := c.Stop(); !errors.Is(err, ErrNotCapturing) {
		t.Fatalf("second Stop = %v, want ErrNotCapturing", err)
	}
}
