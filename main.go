package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.aimuz.me/voxd/agent"
	"go.aimuz.me/voxd/audio"
	"go.aimuz.me/voxd/config"
	"go.aimuz.me/voxd/daemon"
	"go.aimuz.me/voxd/history"
	"go.aimuz.me/voxd/hotkey"
	"go.aimuz.me/voxd/hub"
	"go.aimuz.me/voxd/langdetect"
	"go.aimuz.me/voxd/server"
	"go.aimuz.me/voxd/stt"
	"go.aimuz.me/voxd/stt/realtime"
	"go.aimuz.me/voxd/tts"
	"go.aimuz.me/voxd/wake"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// spotAdapter lets the one-shot transcriber serve as the wake spotter.
type spotAdapter struct {
	t stt.Transcriber
}

func (a spotAdapter) SpotText(ctx context.Context, samples []float32, language string) (string, error) {
	return a.t.Transcribe(ctx, samples, language)
}

func main() {
	if err := run(); err != nil {
		slog.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "", "listen address (overrides config)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	h := hub.New()
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(hub.NewLogHandler(inner, h)))
	slog.Info("voxd starting", "version", version, "commit", commit, "built", date)

	store := config.NewStore(cfg)

	capture := audio.NewCapture(audio.CaptureConfig{
		SampleRate: cfg.Audio.SampleRate,
		FrameSize:  cfg.Audio.FrameSize,
		QueueDepth: cfg.Audio.QueueDepth,
	})
	playback, err := audio.NewPlayback(audio.PlaybackConfig{})
	if err != nil {
		return fmt.Errorf("open playback device: %w", err)
	}
	defer playback.Close()

	whisper := stt.NewWhisper(stt.WhisperConfig{
		APIKey:          cfg.OpenAIAPIKey,
		Model:           cfg.WhisperModel,
		SampleRate:      cfg.Audio.SampleRate,
		PartialInterval: cfg.Endpointing.PartialInterval,
	})
	engines := stt.NewRegistry()
	engines.Register(whisper)
	engines.Register(realtime.NewEngine(realtime.Config{
		APIKey:     cfg.OpenAIAPIKey,
		SampleRate: cfg.Audio.SampleRate,
	}))
	engine := engines.Get(cfg.STTBackend)
	if engine == nil {
		return fmt.Errorf("unknown stt backend %q", cfg.STTBackend)
	}

	st := store.Snapshot()
	wakeMon := wake.NewMonitor(wake.Config{
		SampleRate: cfg.Audio.SampleRate,
		Cooldown:   cfg.WakeCooldown,
	}, spotAdapter{whisper}, st.WakePhrase, st.WakeVariants, st.Language)

	backends := make([]agent.Streamer, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		apiKey := b.APIKey
		if apiKey == "" {
			apiKey = cfg.OpenAIAPIKey
		}
		backends = append(backends, agent.New(agent.BackendConfig{
			Name:    b.Name,
			Type:    b.Type,
			BaseURL: b.BaseURL,
			APIKey:  apiKey,
			Model:   b.Model,
			Options: agent.Options{MaxTokens: b.MaxTokens, Temperature: b.Temp},
		}))
	}
	chain := agent.NewChain(backends...)

	synth := tts.NewOpenAI(tts.OpenAIConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.TTSModel,
		Voice:  cfg.TTSVoice,
	})

	hist, err := history.Open(cfg.HistoryPath)
	if err != nil {
		slog.Warn("history store unavailable, running without it", "error", err)
		hist = nil
	} else {
		defer hist.Close()
	}

	d := daemon.New(daemon.Deps{
		Config:   cfg,
		Settings: store,
		Hub:      h,
		Source:   capture,
		Sink:     playback,
		Wake:     wakeMon,
		Engine:   engine,
		Chain:    chain,
		Synth:    synth,
		History:  hist,
		Detector: langdetect.New(cfg.Languages),
	})
	d.Start()
	defer d.Close()

	keys := hotkey.NewManager(d.TogglePushToTalk, d.Kill)
	if err := keys.Start(); err != nil {
		slog.Warn("global hotkeys unavailable", "error", err)
	} else {
		defer keys.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(d, h)
	if err := srv.Run(ctx, cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve control API: %w", err)
	}
	slog.Info("voxd stopped")
	return nil
}
