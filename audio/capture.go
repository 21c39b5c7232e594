package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"go.aimuz.me/voxd/internal/types"
)

// ErrNotCapturing is returned when stopping a capture that is not running.
var ErrNotCapturing = errors.New("not capturing audio")

// ErrAlreadyCapturing is returned when starting a capture that is running.
var ErrAlreadyCapturing = errors.New("already capturing audio")

// Source produces the daemon's single microphone frame stream. Exactly
// one consumer reads Frames at a time; switching consumers is the
// caller's job.
type Source interface {
	Start() error
	Stop() error
	// EnsureRunning restarts the device after a fault; healthy running
	// sources are left alone.
	EnsureRunning() error
	Frames() <-chan types.AudioFrame
	SampleRate() int
	Healthy() bool
	Stats() CaptureStats
}

// CaptureStats is a point-in-time view of the capture pipeline.
type CaptureStats struct {
	Device  string
	Frames  uint64
	Dropped uint64
	LastRMS float64
}

// CaptureConfig holds microphone capture parameters.
type CaptureConfig struct {
	SampleRate int // default 16000
	FrameSize  int // samples per frame, default 1024
	QueueDepth int // frames buffered toward the consumer, default 32
}

// Capture reads the default input device through miniaudio, slices the
// callback stream into fixed-size frames and publishes them on a bounded
// channel. When the consumer lags, the newest frame is dropped and
// counted rather than blocking the device callback.
type Capture struct {
	cfg CaptureConfig

	mu        sync.Mutex
	ctx       *malgo.AllocatedContext
	device    *malgo.Device
	capturing bool
	pending   []float32 // partial frame accumulated across callbacks

	frames chan types.AudioFrame

	seq     atomic.Uint64
	dropped atomic.Uint64
	lastRMS atomic.Uint64 // math.Float64bits
	healthy atomic.Bool
}

// NewCapture creates a microphone capture. The device is not opened
// until Start.
func NewCapture(cfg CaptureConfig) *Capture {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FrameSize == 0 {
		cfg.FrameSize = 1024
	}
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = 32
	}
	return &Capture{
		cfg:    cfg,
		frames: make(chan types.AudioFrame, cfg.QueueDepth),
	}
}

// Start opens the default input device and begins producing frames.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capturing {
		return ErrAlreadyCapturing
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(c.cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, framecount uint32) {
			c.onSamples(S16LEToFloat32(pInput))
		},
		Stop: func() {
			// Device-initiated stop (unplug, backend fault). A user Stop
			// clears healthy separately; flag it so the daemon can
			// re-acquire on the next wake.
			if c.IsCapturing() {
				c.healthy.Store(false)
				slog.Warn("capture device stopped unexpectedly")
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("init capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("start capture device: %w", err)
	}

	c.ctx = mctx
	c.device = device
	c.capturing = true
	c.pending = c.pending[:0]
	c.healthy.Store(true)
	slog.Info("microphone capture started",
		"sample_rate", c.cfg.SampleRate, "frame_size", c.cfg.FrameSize)
	return nil
}

// Stop closes the input device. The frame channel stays open so a
// subsequent Start resumes the same stream. The device is detached
// under the mutex but torn down outside it: uninit waits for the
// in-flight data callback, and that callback takes the same mutex.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return ErrNotCapturing
	}
	c.capturing = false
	c.healthy.Store(false)
	device, mctx := c.device, c.ctx
	c.device, c.ctx = nil, nil
	c.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
	if mctx != nil {
		_ = mctx.Uninit()
		mctx.Free()
	}
	return nil
}

// EnsureRunning restarts capture after a device fault. A healthy running
// capture is left alone.
func (c *Capture) EnsureRunning() error {
	if c.IsCapturing() && c.Healthy() {
		return nil
	}
	if c.IsCapturing() {
		if err := c.Stop(); err != nil && !errors.Is(err, ErrNotCapturing) {
			return err
		}
	}
	return c.Start()
}

// IsCapturing reports whether the device is open.
func (c *Capture) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// Healthy reports whether the device is open and delivering samples.
func (c *Capture) Healthy() bool { return c.healthy.Load() }

// Frames returns the bounded frame channel.
func (c *Capture) Frames() <-chan types.AudioFrame { return c.frames }

// SampleRate returns the configured sample rate.
func (c *Capture) SampleRate() int { return c.cfg.SampleRate }

// Stats returns capture counters.
func (c *Capture) Stats() CaptureStats {
	return CaptureStats{
		Device:  "default",
		Frames:  c.seq.Load(),
		Dropped: c.dropped.Load(),
		LastRMS: floatFromBits(c.lastRMS.Load()),
	}
}

func (c *Capture) onSamples(samples []float32) {
	c.mu.Lock()
	c.pending = append(c.pending, samples...)
	var ready [][]float32
	for len(c.pending) >= c.cfg.FrameSize {
		frame := make([]float32, c.cfg.FrameSize)
		copy(frame, c.pending[:c.cfg.FrameSize])
		c.pending = c.pending[c.cfg.FrameSize:]
		ready = append(ready, frame)
	}
	c.mu.Unlock()

	for _, frame := range ready {
		rms := RMS(frame)
		c.lastRMS.Store(floatBits(rms))
		f := types.AudioFrame{
			Seq:     c.seq.Add(1),
			Samples: frame,
			RMS:     rms,
			Time:    time.Now(),
		}
		select {
		case c.frames <- f:
		default:
			c.dropped.Add(1)
		}
	}
}
