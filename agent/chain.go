package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllBackendsFailed is returned when no backend produced any content.
var ErrAllBackendsFailed = errors.New("all backends failed")

// Chain tries backends in priority order. A backend that fails before
// emitting any content is skipped; once content has flowed, its backend
// owns the turn and a later failure aborts the reply rather than
// restarting it elsewhere (the user already heard the beginning).
type Chain struct {
	backends []Streamer
}

// NewChain builds a fallback chain, highest priority first.
func NewChain(backends ...Streamer) *Chain {
	return &Chain{backends: backends}
}

// Names lists the chain's backends in order.
func (c *Chain) Names() []string {
	out := make([]string, len(c.backends))
	for i, b := range c.backends {
		out[i] = b.Name()
	}
	return out
}

// Stream streams a reply, returning the name of the backend that served
// it. Context cancellation aborts immediately without trying further
// backends.
func (c *Chain) Stream(ctx context.Context, messages []Message, emit func(delta string)) (string, error) {
	if len(c.backends) == 0 {
		return "", ErrAllBackendsFailed
	}

	var lastErr error
	for _, b := range c.backends {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		contentSeen := false
		err := b.Stream(ctx, messages, func(delta string) {
			contentSeen = true
			emit(delta)
		})
		if err == nil {
			return b.Name(), nil
		}
		if contentSeen || errors.Is(err, context.Canceled) {
			return b.Name(), err
		}

		slog.Warn("backend failed before content, falling back",
			"backend", b.Name(), "error", err)
		lastErr = err
	}
	return "", fmt.Errorf("%w: %w", ErrAllBackendsFailed, lastErr)
}
