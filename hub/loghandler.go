package hub

import (
	"context"
	"log/slog"
	"reflect"
	"runtime"
	"strings"

	"go.aimuz.me/voxd/internal/types"
)

// hubMethodPrefix is the function-name prefix of the Hub's own methods.
// Records logged inside the broadcast path are not forwarded back into
// the hub, which would amplify an observer write failure into more
// events for that same observer.
var hubMethodPrefix = reflect.TypeOf(Hub{}).PkgPath() + ".(*Hub)."

// LogHandler is a slog.Handler that forwards records to an inner
// handler and mirrors them into the hub as log events, so observers see
// the daemon's log stream live. Records originating from the hub's own
// broadcast path are not mirrored.
type LogHandler struct {
	inner slog.Handler
	hub   *Hub
}

// NewLogHandler wraps inner with hub forwarding.
func NewLogHandler(inner slog.Handler, h *Hub) *LogHandler {
	return &LogHandler{inner: inner, hub: h}
}

// Enabled implements slog.Handler.
func (l *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return l.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (l *LogHandler) Handle(ctx context.Context, r slog.Record) error {
	if !hubOrigin(r.PC) {
		var source string
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "source" {
				source = a.Value.String()
				return false
			}
			return true
		})
		l.hub.Publish(types.LogEvent(r.Level.String(), r.Message, source))
	}
	return l.inner.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (l *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandler{inner: l.inner.WithAttrs(attrs), hub: l.hub}
}

// WithGroup implements slog.Handler.
func (l *LogHandler) WithGroup(name string) slog.Handler {
	return &LogHandler{inner: l.inner.WithGroup(name), hub: l.hub}
}

func hubOrigin(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	return fn != nil && strings.HasPrefix(fn.Name(), hubMethodPrefix)
}
