package stt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.aimuz.me/voxd/internal/types"
)

// Session runs one utterance: it gates microphone frames through the
// endpointer, forwards them to an engine stream, and guarantees the
// Results channel carries zero or more partials followed by exactly one
// final before closing. Cancel tears the utterance down without a final.
//
// Engines close their Results channel once the final has been emitted or
// the start context is cancelled; Session relies on that.
type Session struct {
	engine Engine
	stream Stream
	ep     *Endpointer
	cancel context.CancelFunc

	out       chan Result
	cancelled chan struct{} // closed by Cancel, never by timeout

	mu         sync.Mutex
	finished   bool // terminal endpoint decision reached
	emptyFinal bool // timeout: forward loop owes an empty final
	cancelOnce sync.Once
}

// NewSession starts an engine stream and the result forwarding loop.
func NewSession(ctx context.Context, engine Engine, epCfg EndpointConfig, language string) (*Session, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := engine.Start(ctx, language)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start %s stream: %w", engine.Name(), err)
	}

	s := &Session{
		engine:    engine,
		stream:    stream,
		ep:        NewEndpointer(epCfg),
		cancel:    cancel,
		out:       make(chan Result, 16),
		cancelled: make(chan struct{}),
	}
	go s.forward()
	return s, nil
}

// forward relays engine results; it is the sole closer of out.
func (s *Session) forward() {
	defer close(s.out)

	for r := range s.stream.Results() {
		if r.Final {
			r.Text = FilterHallucination(r.Text)
		}
		if !s.emit(r) {
			return
		}
		if r.Final {
			return
		}
	}

	// Stream ended without a final: either the session was cancelled or
	// the endpointer timed out waiting for speech. The timeout still
	// owes the consumer its empty final.
	s.mu.Lock()
	owed := s.emptyFinal
	s.mu.Unlock()
	if owed {
		s.emit(Result{Final: true})
	}
}

func (s *Session) emit(r Result) bool {
	select {
	case s.out <- r:
		return true
	case <-s.cancelled:
		return false
	}
}

// Results yields partials then exactly one final, unless cancelled.
func (s *Session) Results() <-chan Result { return s.out }

// Feed routes one frame into the utterance. After the endpointer reaches
// a terminal decision further frames are ignored.
func (s *Session) Feed(frame types.AudioFrame) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	v := s.ep.Process(frame)
	if v.End != DecisionNone {
		s.finished = true
		if v.End == DecisionTimeout {
			s.emptyFinal = true
		}
	}
	s.mu.Unlock()

	switch v.End {
	case DecisionNone:
		if err := s.stream.Feed(frame.Samples, v.Silent); err != nil {
			slog.Warn("engine feed failed", "engine", s.engine.Name(), "error", err)
		}
	case DecisionTimeout:
		// Nothing worth transcribing; drop the engine, the forward loop
		// emits the empty final when the stream closes.
		s.cancel()
	case DecisionEndOfSpeech:
		// Stop flushes the engine's final through the forward loop.
		// Engines may block on the network here, keep it off the frame
		// pump goroutine.
		go func() {
			if err := s.stream.Stop(); err != nil {
				slog.Warn("engine stop failed", "engine", s.engine.Name(), "error", err)
			}
		}()
	}
}

// Finish ends input early and flushes the final, as if the endpointer
// had closed the utterance. Used by push-to-talk release.
func (s *Session) Finish() {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.mu.Unlock()

	go func() {
		if err := s.stream.Stop(); err != nil {
			slog.Warn("engine stop failed", "engine", s.engine.Name(), "error", err)
		}
	}()
}

// Cancel abandons the utterance. No final is emitted and Results closes
// once the engine stream winds down.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() {
		s.mu.Lock()
		s.finished = true
		s.mu.Unlock()
		close(s.cancelled)
		s.cancel()
	})
}
