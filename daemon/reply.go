package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.aimuz.me/voxd/agent"
	"go.aimuz.me/voxd/bargein"
	"go.aimuz.me/voxd/internal/types"
	"go.aimuz.me/voxd/tts"
)

// runReply drives one Thinking turn: stream the reply through the
// backend chain, chunk it at sentence boundaries, and hand chunks to
// playback as they become ready. The move to Speaking happens on the
// first chunk; reply done is marked only after the backend finished AND
// the last fragment has been played.
func (d *Daemon) runReply(ctx context.Context, s *Session, text string) {
	defer d.wg.Done()

	st := s.Settings
	messages := d.buildMessages(st.DisplayName, text)

	chunker := agent.NewChunker(0, 0)
	chunks := make(chan string, chunkQueue)
	playDone := make(chan tts.TurnReport, 1)
	started := false // playback turn began
	aborted := false // move to Speaking refused, the turn was killed

	deliver := func(chunk string) {
		if chunk == "" || aborted {
			return
		}
		if !started {
			ok := d.machine.Apply([]types.Mode{types.ModeThinking}, types.ModeSpeaking, func() {
				b := bargein.NewMonitor(bargein.Config{
					Threshold:     st.BargeInThreshold,
					Frames:        st.BargeInFrames,
					StartCooldown: st.BargeInCooldown,
					ChunkGuard:    st.ChunkGuard,
				})
				b.BeginTurn(time.Now())
				d.mu.Lock()
				d.barge = b
				d.mu.Unlock()

				d.wg.Add(1)
				go func() {
					defer d.wg.Done()
					playDone <- d.player.Speak(ctx, chunks)
				}()
			})
			if !ok {
				aborted = true
				return
			}
			started = true
		}
		d.hub.Publish(types.ChunkEvent(chunk))
		select {
		case chunks <- chunk:
		case <-ctx.Done():
		}
	}

	backend, err := d.chain.Stream(ctx, messages, func(delta string) {
		for _, c := range chunker.Write(delta) {
			deliver(c)
		}
	})
	if err == nil {
		deliver(chunker.Flush())
	}
	close(chunks)

	if !started {
		if aborted || ctx.Err() != nil {
			return // kill switch already restored Idle
		}
		// Every backend failed before producing content: no Speaking
		// state, straight back to Idle.
		slog.Error("reply failed", "error", err)
		d.hub.Publish(types.ErrorEvent(fmt.Sprintf("assistant unavailable: %v", err)))
		d.toIdle(types.ModeThinking)
		return
	}

	report := <-playDone
	d.mu.Lock()
	if d.barge != nil {
		d.barge.EndTurn()
	}
	d.lastBackend = backend
	d.mu.Unlock()

	spoken := strings.Join(report.Spoken, "")

	if ctx.Err() != nil {
		// Barge-in or kill switch. The reply is kept in history up to
		// the interruption point, marked as cut off.
		if spoken != "" {
			d.record(s, text, spoken+" …")
		}
		return
	}

	if err != nil {
		// Content flowed before the stream broke; the turn ends with
		// what was already spoken rather than restarting elsewhere.
		slog.Warn("reply stream aborted mid-turn", "backend", backend, "error", err)
		d.hub.Publish(types.ErrorEvent("reply interrupted"))
	} else {
		d.hub.Publish(types.DoneEvent(backend))
	}
	d.record(s, text, spoken)

	// Echo guard: the microphone stays unclaimed until the room has
	// gone quiet after the last played sample.
	select {
	case <-s.ctx.Done():
		return
	case <-time.After(time.Until(report.LastSample.Add(st.EchoGuard))):
	}

	if st.ConversationMode {
		d.machine.Apply([]types.Mode{types.ModeSpeaking}, types.ModeConversing, func() {
			d.mu.Lock()
			d.barge = nil
			d.mu.Unlock()
			d.startUtterance(s, 0)
			d.converse.Arm(st.ConversationTimeout, d.onConverseTimeout)
		})
	} else {
		d.toIdle(types.ModeSpeaking)
	}
}

// buildMessages assembles the backend conversation: system prompt,
// recent history, then the new user utterance.
func (d *Daemon) buildMessages(displayName, text string) []agent.Message {
	prompt := d.cfg.SystemPrompt
	if prompt == "" {
		prompt = fmt.Sprintf(
			"You are %s, a spoken voice assistant. Answer in the language of the question, in short sentences suitable for speech.",
			displayName)
	}
	messages := []agent.Message{{Role: "system", Content: prompt}}

	if d.hist != nil {
		turns, err := d.hist.Recent(d.cfg.HistorySend)
		if err != nil {
			slog.Warn("load history failed", "error", err)
		}
		for _, t := range turns {
			messages = append(messages, agent.Message{Role: t.Role, Content: t.Content})
		}
	}
	return append(messages, agent.Message{Role: "user", Content: text})
}

// record appends the turn to conversation history and enforces the
// retention bound. History faults never affect the session.
func (d *Daemon) record(s *Session, user, assistant string) {
	if d.hist == nil {
		return
	}
	now := time.Now()
	if err := d.hist.Append(types.Turn{SessionID: s.ID, Role: "user", Content: user, At: now}); err != nil {
		slog.Warn("record user turn failed", "error", err)
		return
	}
	if assistant != "" {
		err := d.hist.Append(types.Turn{SessionID: s.ID, Role: "assistant", Content: assistant, At: now.Add(time.Nanosecond)})
		if err != nil {
			slog.Warn("record assistant turn failed", "error", err)
		}
	}
	if err := d.hist.Trim(d.cfg.HistoryKeep, d.cfg.HistoryKeep); err != nil {
		slog.Warn("trim history failed", "error", err)
	}
}
