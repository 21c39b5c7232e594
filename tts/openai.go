package tts

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"go.aimuz.me/voxd/audio"
)

// speechSampleRate is the fixed PCM output rate of the speech API.
const speechSampleRate = 24000

// OpenAI synthesizes speech through the hosted speech API, requesting
// raw PCM so chunks start playing without container parsing.
type OpenAI struct {
	client openai.Client
	model  string
	voice  string
}

// OpenAIConfig holds speech synthesis parameters.
type OpenAIConfig struct {
	APIKey string
	Model  string // default gpt-4o-mini-tts
	Voice  string // default alloy
}

// NewOpenAI creates a speech synthesis backend.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini-tts"
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	return &OpenAI{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
		voice:  cfg.Voice,
	}
}

// Name implements Synthesizer.
func (o *OpenAI) Name() string { return "openai" }

// Synthesize implements Synthesizer.
func (o *OpenAI) Synthesize(ctx context.Context, text string) ([]float32, int, error) {
	resp, err := o.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(o.model),
		Voice:          openai.AudioSpeechNewParamsVoice(o.voice),
		Input:          text,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read speech body: %w", err)
	}
	return audio.S16LEToFloat32(raw), speechSampleRate, nil
}
