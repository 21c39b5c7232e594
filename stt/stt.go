// Package stt provides streaming speech recognition for spoken turns.
// An Engine is the raw recognition capability; a Session wraps an engine
// stream with energy endpointing so every utterance yields zero or more
// partials and exactly one final result.
package stt

import (
	"context"
)

// Result is one recognition output. A Result with Final set ends the
// utterance; an empty final means no usable speech was heard.
type Result struct {
	Text  string
	Final bool
}

// Transcriber converts one complete utterance to text.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio []float32, language string) (string, error)
}

// Engine is a streaming recognition backend.
type Engine interface {
	Name() string
	Start(ctx context.Context, language string) (Stream, error)
}

// Stream is one live recognition exchange. Feed pushes audio in, Results
// yields partials and the final, Stop ends input and flushes the final
// (after which Results is closed). Cancel-like teardown goes through the
// context passed to Engine.Start.
type Stream interface {
	Feed(samples []float32, silent bool) error
	Results() <-chan Result
	Stop() error
}

// Registry holds the configured recognition engines by name.
type Registry struct {
	engines map[string]Engine
}

// NewRegistry creates an empty engine registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// Register adds an engine to the registry.
func (r *Registry) Register(e Engine) {
	r.engines[e.Name()] = e
}

// Get returns an engine by name, or nil.
func (r *Registry) Get(name string) Engine {
	return r.engines[name]
}

// List returns all registered engines.
func (r *Registry) List() []Engine {
	out := make([]Engine, 0, len(r.engines))
	for _, e := range r.engines {
		out = append(out, e)
	}
	return out
}
