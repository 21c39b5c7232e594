// Package config handles daemon configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const (
	appName        = "voxd"
	configFileName = "config.json"
)

// Backend describes one reasoning backend in the fallback chain.
// Backends are tried in slice order; the first that streams content wins.
type Backend struct {
	Name      string  `json:"name"`
	Type      string  `json:"type"` // "openai" or "openai-compatible"
	BaseURL   string  `json:"base_url,omitempty"`
	APIKey    string  `json:"api_key,omitempty"`
	Model     string  `json:"model"`
	MaxTokens int     `json:"max_tokens,omitempty"`
	Temp      float64 `json:"temperature,omitempty"`
}

// Audio holds capture and playback device parameters.
type Audio struct {
	SampleRate int `json:"sample_rate"` // Hz
	FrameSize  int `json:"frame_size"`  // samples per frame
	QueueDepth int `json:"queue_depth"` // frames buffered between device and consumer
}

// Endpointing holds the energy endpointer parameters.
type Endpointing struct {
	CalibrationFrames int           `json:"calibration_frames"`
	SilenceFactor     float64       `json:"silence_factor"` // floor multiplier below which a frame is silent
	SpeechFactor      float64       `json:"speech_factor"`  // floor multiplier above which a frame is speech
	MinSpeech         time.Duration `json:"min_speech"`
	Hangover          time.Duration `json:"hangover"` // trailing silence that ends the utterance
	NoSpeechTimeout   time.Duration `json:"no_speech_timeout"`
	MaxUtterance      time.Duration `json:"max_utterance"`
	PartialInterval   time.Duration `json:"partial_interval"`
}

// Config is the durable on-disk configuration.
type Config struct {
	ListenAddr string `json:"listen_addr"`

	Audio       Audio       `json:"audio"`
	Endpointing Endpointing `json:"endpointing"`

	// Wake
	WakePhrases  map[string]string   `json:"wake_phrases"`  // language code -> phrase
	WakeVariants map[string][]string `json:"wake_variants"` // phrase -> phonetic spellings
	WakeCooldown time.Duration       `json:"wake_cooldown"`

	// Languages the daemon operates in; the first is the startup language.
	Languages []string `json:"languages"`

	// Speech recognition: "whisper" or "realtime".
	STTBackend   string `json:"stt_backend"`
	OpenAIAPIKey string `json:"openai_api_key,omitempty"`
	WhisperModel string `json:"whisper_model,omitempty"`

	// Reasoning fallback chain, highest priority first.
	Backends     []Backend `json:"backends"`
	SystemPrompt string    `json:"system_prompt,omitempty"`

	// Speech synthesis.
	TTSModel string `json:"tts_model,omitempty"`
	TTSVoice string `json:"tts_voice,omitempty"`

	// Interaction tuning.
	DisplayName         string        `json:"display_name"`
	ConversationMode    bool          `json:"conversation_mode"`
	ConversationTimeout time.Duration `json:"conversation_timeout"`
	BargeInThreshold    float64       `json:"barge_in_threshold"`
	BargeInFrames       int           `json:"barge_in_frames"`
	BargeInCooldown     time.Duration `json:"barge_in_cooldown"`
	ChunkGuard          time.Duration `json:"chunk_guard"`
	EchoGuard           time.Duration `json:"echo_guard"`

	// Conversation history store.
	HistoryPath string `json:"history_path,omitempty"`
	HistoryKeep int    `json:"history_keep"` // trim threshold
	HistorySend int    `json:"history_send"` // turns sent to the backend
}

// Load loads configuration from the config file.
// Returns default config if the file doesn't exist.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	path, err := configPath()
	if err != nil {
		return fmt.Errorf("get config path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks invariants that would otherwise surface as runtime faults.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.FrameSize <= 0 {
		return fmt.Errorf("audio frame_size must be positive, got %d", c.Audio.FrameSize)
	}
	if len(c.Languages) == 0 {
		return fmt.Errorf("at least one language is required")
	}
	for _, lang := range c.Languages {
		if _, ok := c.WakePhrases[lang]; !ok {
			return fmt.Errorf("no wake phrase configured for language %q", lang)
		}
	}
	switch c.STTBackend {
	case "whisper", "realtime":
	default:
		return fmt.Errorf("unknown stt_backend %q", c.STTBackend)
	}
	for _, b := range c.Backends {
		if b.Name == "" || b.Model == "" {
			return fmt.Errorf("backend entries need name and model")
		}
		switch b.Type {
		case "openai", "openai-compatible":
		default:
			return fmt.Errorf("backend %s: unknown type %q", b.Name, b.Type)
		}
	}
	if c.BargeInFrames <= 0 {
		return fmt.Errorf("barge_in_frames must be positive, got %d", c.BargeInFrames)
	}
	return nil
}

// HasLanguage reports whether lang is in the configured language set.
func (c *Config) HasLanguage(lang string) bool {
	return slices.Contains(c.Languages, lang)
}

// Default returns the built-in configuration.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:8575"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.FrameSize == 0 {
		c.Audio.FrameSize = 1024
	}
	if c.Audio.QueueDepth == 0 {
		c.Audio.QueueDepth = 32
	}
	if c.Endpointing.CalibrationFrames == 0 {
		c.Endpointing.CalibrationFrames = 8
	}
	if c.Endpointing.SilenceFactor == 0 {
		c.Endpointing.SilenceFactor = 4
	}
	if c.Endpointing.SpeechFactor == 0 {
		c.Endpointing.SpeechFactor = 6
	}
	if c.Endpointing.MinSpeech == 0 {
		c.Endpointing.MinSpeech = 300 * time.Millisecond
	}
	if c.Endpointing.Hangover == 0 {
		c.Endpointing.Hangover = 900 * time.Millisecond
	}
	if c.Endpointing.NoSpeechTimeout == 0 {
		c.Endpointing.NoSpeechTimeout = 5 * time.Second
	}
	if c.Endpointing.MaxUtterance == 0 {
		c.Endpointing.MaxUtterance = 30 * time.Second
	}
	if c.Endpointing.PartialInterval == 0 {
		c.Endpointing.PartialInterval = 1500 * time.Millisecond
	}
	if c.WakePhrases == nil {
		c.WakePhrases = map[string]string{"en": "hey lieutenant"}
	}
	if c.WakeVariants == nil {
		c.WakeVariants = map[string][]string{
			"hey lieutenant": {"hey leftenant", "a lieutenant", "hey lieutenant's"},
		}
	}
	if c.WakeCooldown == 0 {
		c.WakeCooldown = 1200 * time.Millisecond
	}
	if len(c.Languages) == 0 {
		c.Languages = []string{"en"}
	}
	if c.STTBackend == "" {
		c.STTBackend = "whisper"
	}
	if c.WhisperModel == "" {
		c.WhisperModel = "whisper-1"
	}
	if c.TTSModel == "" {
		c.TTSModel = "gpt-4o-mini-tts"
	}
	if c.TTSVoice == "" {
		c.TTSVoice = "alloy"
	}
	if len(c.Backends) == 0 {
		c.Backends = []Backend{{Name: "openai", Type: "openai", Model: "gpt-4o-mini"}}
	}
	if c.DisplayName == "" {
		c.DisplayName = "Lieutenant"
	}
	if c.ConversationTimeout == 0 {
		c.ConversationTimeout = 5 * time.Second
		c.ConversationMode = true
	}
	if c.BargeInThreshold == 0 {
		c.BargeInThreshold = 0.015
	}
	if c.BargeInFrames == 0 {
		c.BargeInFrames = 8
	}
	if c.BargeInCooldown == 0 {
		c.BargeInCooldown = 700 * time.Millisecond
	}
	if c.ChunkGuard == 0 {
		c.ChunkGuard = 250 * time.Millisecond
	}
	if c.EchoGuard == 0 {
		c.EchoGuard = 350 * time.Millisecond
	}
	if c.HistoryKeep == 0 {
		c.HistoryKeep = 20
	}
	if c.HistorySend == 0 {
		c.HistorySend = 10
	}
	if c.HistoryPath == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			c.HistoryPath = filepath.Join(dir, appName, "history")
		}
	}
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}
