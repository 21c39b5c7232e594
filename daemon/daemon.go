package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.aimuz.me/voxd/agent"
	"go.aimuz.me/voxd/audio"
	"go.aimuz.me/voxd/bargein"
	"go.aimuz.me/voxd/config"
	"go.aimuz.me/voxd/history"
	"go.aimuz.me/voxd/hub"
	"go.aimuz.me/voxd/internal/types"
	"go.aimuz.me/voxd/langdetect"
	"go.aimuz.me/voxd/stt"
	"go.aimuz.me/voxd/tts"
	"go.aimuz.me/voxd/wake"
)

const (
	// frameQueue bounds frames buffered toward the active utterance.
	frameQueue = 32
	// chunkQueue bounds reply chunks buffered toward playback.
	chunkQueue = 8
)

// Deps are the daemon's collaborators. History and Detector may be nil.
type Deps struct {
	Config   *config.Config
	Settings *config.Store
	Hub      *hub.Hub
	Source   audio.Source
	Sink     audio.Sink
	Wake     *wake.Monitor
	Engine   stt.Engine
	Chain    *agent.Chain
	Synth    tts.Synthesizer
	History  *history.Store
	Detector *langdetect.Detector
}

// utterance is the frame funnel of one listening turn. The pump writes
// frames without blocking; the utterance goroutine feeds them to the
// recognition session once it is up.
type utterance struct {
	frames chan types.AudioFrame

	mu            sync.Mutex
	sess          *stt.Session
	finishPending bool
}

func (u *utterance) install(s *stt.Session) {
	u.mu.Lock()
	u.sess = s
	pending := u.finishPending
	u.finishPending = false
	u.mu.Unlock()
	if pending {
		s.Finish()
	}
}

// finish ends the turn. A finish arriving before the recognition
// session is installed, such as a push-to-talk release inside the echo
// guard window, is remembered and applied by install.
func (u *utterance) finish() {
	u.mu.Lock()
	s := u.sess
	if s == nil {
		u.finishPending = true
	}
	u.mu.Unlock()
	if s != nil {
		s.Finish()
	}
}

// Daemon runs the voice-interaction loop. All mode changes go through
// its Machine; the daemon is the only writer of the session, utterance,
// reply and barge-in slots.
type Daemon struct {
	cfg     *config.Config
	store   *config.Store
	hub     *hub.Hub
	source  audio.Source
	wakeMon *wake.Monitor
	engine  stt.Engine
	chain   *agent.Chain
	player  *tts.Player
	hist    *history.Store
	detect  *langdetect.Detector

	machine  *Machine
	converse *TimerGuard

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	sess        *Session
	utt         *utterance
	replyCancel context.CancelFunc
	barge       *bargein.Monitor
	lastBackend string
}

// New wires a daemon from its collaborators.
func New(deps Deps) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		cfg:     deps.Config,
		store:   deps.Settings,
		hub:     deps.Hub,
		source:  deps.Source,
		wakeMon: deps.Wake,
		engine:  deps.Engine,
		chain:   deps.Chain,
		hist:    deps.History,
		detect:  deps.Detector,
		ctx:     ctx,
		cancel:  cancel,
	}
	d.machine = NewMachine(deps.Hub.Publish)
	d.converse = NewTimerGuard("conversation")
	d.player = tts.NewPlayer(deps.Synth, deps.Sink, d.onTTSLevel, d.onChunkStart)

	deps.Settings.OnChange(func(st config.Settings) {
		d.wakeMon.SetPhrase(st.WakePhrase, st.WakeVariants, st.Language)
		d.hub.Publish(types.SettingsEvent(d.store.Payload()))
	})
	deps.Wake.OnDetect(d.wakeDetected)
	return d
}

// Start acquires the microphone and begins routing frames. A capture
// failure is not fatal here: the daemon stays up and retries device
// acquisition on the next wake attempt.
func (d *Daemon) Start() {
	if err := d.source.Start(); err != nil {
		slog.Error("microphone unavailable", "error", err)
		d.hub.Publish(types.ErrorEvent("microphone unavailable"))
	}
	d.wg.Add(1)
	go d.pump()
}

// Close cancels in-flight work, releases the microphone and waits for
// the daemon's goroutines to drain.
func (d *Daemon) Close() {
	d.Kill()
	d.cancel()
	if err := d.source.Stop(); err != nil && !errors.Is(err, audio.ErrNotCapturing) {
		slog.Warn("stop capture failed", "error", err)
	}
	d.wg.Wait()
}

// Mode returns the current mode.
func (d *Daemon) Mode() types.Mode { return d.machine.Mode() }

// pump routes every captured frame to the consumer the current mode
// designates. Exactly one consumer sees a given frame.
func (d *Daemon) pump() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case f, ok := <-d.source.Frames():
			if !ok {
				return
			}
			d.route(f)
		}
	}
}

func (d *Daemon) route(f types.AudioFrame) {
	d.hub.Publish(types.MicLevelEvent(f.RMS))

	switch d.machine.Mode() {
	case types.ModeIdle:
		d.wakeMon.Feed(d.ctx, f)
	case types.ModeListening, types.ModeConversing:
		d.mu.Lock()
		u := d.utt
		d.mu.Unlock()
		if u != nil {
			select {
			case u.frames <- f:
			default:
				// Consumer lagging; losing a frame beats stalling capture.
			}
		}
	case types.ModeSpeaking:
		d.mu.Lock()
		b := d.barge
		d.mu.Unlock()
		if b != nil && b.Observe(f) {
			d.onBargeIn()
		}
	}
}

// TriggerWake behaves exactly like hearing the wake phrase: it opens a
// listening turn when Idle and is a no-op in every other mode.
func (d *Daemon) TriggerWake() error {
	if d.machine.Mode() != types.ModeIdle {
		return nil
	}
	if err := d.source.EnsureRunning(); err != nil {
		d.hub.Publish(types.ErrorEvent("microphone unavailable"))
		return fmt.Errorf("acquire microphone: %w", err)
	}
	d.wakeDetected()
	return nil
}

func (d *Daemon) wakeDetected() {
	st := d.store.Snapshot()
	d.machine.Apply([]types.Mode{types.ModeIdle}, types.ModeListening, func() {
		s := newSession(d.ctx, st)
		slog.Info("session started", "session", s.ID, "language", st.Language)
		d.mu.Lock()
		d.sess = s
		d.mu.Unlock()
		d.startUtterance(s, 0)
	})
}

// Kill is the kill switch: from any state, cancel everything in flight
// and return to Idle. Safe to call repeatedly, including from Idle.
func (d *Daemon) Kill() {
	d.machine.Force(types.ModeIdle, d.teardown)
}

// teardown clears the session and cancels all work rooted in it. Runs
// under the transition lock.
func (d *Daemon) teardown() {
	d.converse.Stop()
	d.mu.Lock()
	s := d.sess
	cancelReply := d.replyCancel
	d.sess, d.utt, d.replyCancel, d.barge = nil, nil, nil, nil
	d.mu.Unlock()

	if cancelReply != nil {
		cancelReply()
	}
	if s != nil {
		s.Cancel()
	}
	d.wakeMon.Reset()
}

func (d *Daemon) toIdle(from ...types.Mode) {
	d.machine.Apply(from, types.ModeIdle, d.teardown)
}

// startUtterance opens the frame funnel for one listening turn. delay
// is the echo guard: frames arriving inside it are discarded so the
// daemon's own speech cannot transcribe itself.
func (d *Daemon) startUtterance(s *Session, delay time.Duration) {
	u := &utterance{frames: make(chan types.AudioFrame, frameQueue)}
	d.mu.Lock()
	d.utt = u
	d.mu.Unlock()

	d.wg.Add(1)
	go d.runUtterance(s, u, delay)
}

func (d *Daemon) runUtterance(s *Session, u *utterance, delay time.Duration) {
	defer d.wg.Done()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
	guard:
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-u.frames:
				// Echo window: the room may still carry our own speech.
			case <-t.C:
				break guard
			}
		}
	}

	lang := d.store.Snapshot().Language
	sess, err := stt.NewSession(s.ctx, d.engine, d.endpointConfig(), lang)
	if err != nil {
		slog.Error("transcription start failed", "engine", d.engine.Name(), "error", err)
		d.hub.Publish(types.ErrorEvent("speech recognition unavailable"))
		d.toIdle(types.ModeListening, types.ModeConversing)
		return
	}
	u.install(sess)

	for {
		select {
		case <-s.ctx.Done():
			sess.Cancel()
			return
		case f := <-u.frames:
			sess.Feed(f)
		case r, ok := <-sess.Results():
			if !ok {
				return
			}
			if !r.Final {
				d.hub.Publish(types.PartialEvent(r.Text))
				continue
			}
			d.handleFinal(s, strings.TrimSpace(r.Text))
			return
		}
	}
}

func (d *Daemon) endpointConfig() stt.EndpointConfig {
	ep := d.cfg.Endpointing
	return stt.EndpointConfig{
		SampleRate:        d.source.SampleRate(),
		CalibrationFrames: ep.CalibrationFrames,
		SilenceFactor:     ep.SilenceFactor,
		SpeechFactor:      ep.SpeechFactor,
		MinSpeech:         ep.MinSpeech,
		Hangover:          ep.Hangover,
		NoSpeechTimeout:   ep.NoSpeechTimeout,
		MaxUtterance:      ep.MaxUtterance,
	}
}

func (d *Daemon) handleFinal(s *Session, text string) {
	d.hub.Publish(types.FinalEvent(text))

	if text == "" {
		// No usable speech this turn; nothing to think about.
		d.toIdle(types.ModeListening, types.ModeConversing)
		return
	}

	d.maybeSwitchLanguage(text)

	d.machine.Apply([]types.Mode{types.ModeListening, types.ModeConversing}, types.ModeThinking, func() {
		d.converse.Stop()
		s.AddUtterance(text)

		ctx, cancel := context.WithCancel(s.ctx)
		d.mu.Lock()
		d.utt = nil
		d.replyCancel = cancel
		d.mu.Unlock()

		d.wg.Add(1)
		go d.runReply(ctx, s, text)
	})
}

func (d *Daemon) maybeSwitchLanguage(text string) {
	if d.detect == nil {
		return
	}
	code, name, ok := d.detect.Detect(text)
	if !ok || code == d.store.Snapshot().Language {
		return
	}
	if _, err := d.store.SetLanguage(code); err != nil {
		return
	}
	slog.Info("language switched", "language", code, "name", name)
	d.hub.Publish(types.LanguageEvent(code))
}

// onBargeIn interrupts playback and reopens listening: the reply stream
// and the current chunk are cancelled, and a fresh utterance starts
// after the echo guard.
func (d *Daemon) onBargeIn() {
	st := d.store.Snapshot()
	d.machine.Apply([]types.Mode{types.ModeSpeaking}, types.ModeListening, func() {
		slog.Info("barge-in detected")
		d.mu.Lock()
		s := d.sess
		cancelReply := d.replyCancel
		d.replyCancel = nil
		if d.barge != nil {
			d.barge.EndTurn()
			d.barge = nil
		}
		d.mu.Unlock()

		if cancelReply != nil {
			cancelReply()
		}
		if s != nil {
			d.startUtterance(s, st.EchoGuard)
		}
	})
}

func (d *Daemon) onConverseTimeout() {
	if d.machine.Apply([]types.Mode{types.ModeConversing}, types.ModeIdle, d.teardown) {
		slog.Info("conversation window expired")
	}
}

// PushToTalkStart opens a listening turn without the wake phrase.
func (d *Daemon) PushToTalkStart() error { return d.TriggerWake() }

// PushToTalkStop ends the push-to-talk turn, flushing the final
// transcript for whatever was heard.
func (d *Daemon) PushToTalkStop() {
	switch d.machine.Mode() {
	case types.ModeListening, types.ModeConversing:
	default:
		return
	}
	d.mu.Lock()
	u := d.utt
	d.mu.Unlock()
	if u != nil {
		u.finish()
	}
}

// TogglePushToTalk flips between opening and closing a push-to-talk
// turn; bound to the global hotkey.
func (d *Daemon) TogglePushToTalk() {
	switch d.machine.Mode() {
	case types.ModeIdle:
		if err := d.PushToTalkStart(); err != nil {
			slog.Warn("push-to-talk start failed", "error", err)
		}
	case types.ModeListening, types.ModeConversing:
		d.PushToTalkStop()
	}
}

// Language returns the active language code.
func (d *Daemon) Language() string { return d.store.Snapshot().Language }

// SetLanguage switches the active language; the wake phrase follows.
func (d *Daemon) SetLanguage(code string) error {
	if _, err := d.store.SetLanguage(code); err != nil {
		return err
	}
	d.hub.Publish(types.LanguageEvent(code))
	return nil
}

// Settings returns the externally editable settings.
func (d *Daemon) Settings() types.SettingsPayload { return d.store.Payload() }

// UpdateSettings applies edits and persists them, returning the result.
func (d *Daemon) UpdateSettings(p types.SettingsPayload) types.SettingsPayload {
	d.store.ApplyPayload(p)
	if err := d.store.SaveConfig(); err != nil {
		slog.Warn("persist settings failed", "error", err)
	}
	return d.store.Payload()
}

// Status reports a point-in-time snapshot for the status operation.
func (d *Daemon) Status() types.StatusSnapshot {
	st := d.store.Snapshot()
	stats := d.source.Stats()

	d.mu.Lock()
	sess := d.sess
	last := d.lastBackend
	d.mu.Unlock()

	snap := types.StatusSnapshot{
		Mode:        d.machine.Mode(),
		Language:    st.Language,
		STTBackend:  d.engine.Name(),
		TTSBackend:  d.player.SynthesizerName(),
		Observers:   d.hub.Observers(),
		MicDevice:   stats.Device,
		MicFrames:   stats.Frames,
		MicDropped:  stats.Dropped,
		MicRMS:      stats.LastRMS,
		MicHealthy:  d.source.Healthy(),
		LastBackend: last,
	}
	if sess != nil {
		snap.SessionID = sess.ID
	}
	return snap
}

func (d *Daemon) onTTSLevel(rms float64) {
	d.hub.Publish(types.TTSLevelEvent(rms))
}

func (d *Daemon) onChunkStart() {
	d.mu.Lock()
	b := d.barge
	d.mu.Unlock()
	if b != nil {
		b.ChunkStarted(time.Now())
	}
}
