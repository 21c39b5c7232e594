package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// ErrSinkClosed is returned when writing to a closed playback sink.
var ErrSinkClosed = errors.New("playback sink closed")

// Sink accepts PCM for the output device. Write blocks while the device
// buffer is full, Drain blocks until everything written has been played,
// and Clear drops whatever has not reached the speaker yet.
type Sink interface {
	Write(ctx context.Context, pcm []float32) error
	Drain(ctx context.Context) error
	Clear()
	SampleRate() int
}

// PlaybackConfig holds speaker parameters.
type PlaybackConfig struct {
	SampleRate int           // default 24000 (synthesis output rate)
	MaxBuffer  time.Duration // backpressure bound on queued audio, default 2s
}

// Playback drives the default output device through miniaudio. Audio is
// staged in an internal buffer that the device callback consumes; when
// the buffer runs dry the callback emits silence.
type Playback struct {
	cfg PlaybackConfig

	mu     sync.Mutex
	buf    []byte // S16LE mono
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	closed bool
}

// NewPlayback opens the default output device and starts it. The device
// plays silence until audio is written.
func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 24000
	}
	if cfg.MaxBuffer == 0 {
		cfg.MaxBuffer = 2 * time.Second
	}
	p := &Playback{cfg: cfg}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, framecount uint32) {
			p.fill(pOutput)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("init playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("start playback device: %w", err)
	}

	p.ctx = mctx
	p.device = device
	return p, nil
}

func (p *Playback) fill(out []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := copy(out, p.buf)
	p.buf = p.buf[n:]
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
}

// Write queues pcm for playback, blocking while the staged buffer
// exceeds the configured bound.
func (p *Playback) Write(ctx context.Context, pcm []float32) error {
	data := Float32ToS16LE(pcm)
	maxBytes := int(p.cfg.MaxBuffer.Seconds()*float64(p.cfg.SampleRate)) * 2

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return ErrSinkClosed
		}
		if len(p.buf) < maxBytes {
			p.buf = append(p.buf, data...)
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// Drain blocks until the staged buffer has been consumed by the device.
func (p *Playback) Drain(ctx context.Context) error {
	for {
		p.mu.Lock()
		remaining := len(p.buf)
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return ErrSinkClosed
		}
		if remaining == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Clear drops all staged audio. In-flight device period finishes
// naturally; everything else is discarded.
func (p *Playback) Clear() {
	p.mu.Lock()
	p.buf = p.buf[:0]
	p.mu.Unlock()
}

// SampleRate returns the output sample rate.
func (p *Playback) SampleRate() int { return p.cfg.SampleRate }

// Close stops the device and releases it.
func (p *Playback) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.buf = nil
	device, mctx := p.device, p.ctx
	p.device, p.ctx = nil, nil
	p.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
	if mctx != nil {
		_ = mctx.Uninit()
		mctx.Free()
	}
	return nil
}
