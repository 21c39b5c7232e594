// Package agent streams spoken-reply text from reasoning backends. A
// Streamer is one backend; Chain tries backends in priority order,
// advancing only when a backend fails before producing any content.
package agent

import (
	"context"
	"net/http"
	"time"
)

// Message is one chat turn sent to a backend.
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// Streamer streams a reply for the given conversation. emit is called
// once per text delta, in order. A nil error means the reply completed.
type Streamer interface {
	Name() string
	Stream(ctx context.Context, messages []Message, emit func(delta string)) error
}

// Options configures a backend built by New.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// BackendConfig describes one backend to construct.
type BackendConfig struct {
	Name    string
	Type    string // "openai" or "openai-compatible"
	BaseURL string
	APIKey  string
	Model   string
	Options Options
}

// New creates a Streamer for the given backend type.
func New(cfg BackendConfig) Streamer {
	switch cfg.Type {
	case "openai-compatible":
		return &sseStreamer{
			cfg:  cfg,
			http: &http.Client{Timeout: 5 * time.Minute},
		}
	default:
		return newOpenAIStreamer(cfg)
	}
}
