package agent

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// openaiStreamer streams chat completions through the official SDK.
type openaiStreamer struct {
	cfg    BackendConfig
	client openai.Client
}

func newOpenAIStreamer(cfg BackendConfig) *openaiStreamer {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &openaiStreamer{
		cfg:    cfg,
		client: openai.NewClient(opts...),
	}
}

func (s *openaiStreamer) Name() string { return s.cfg.Name }

func (s *openaiStreamer) Stream(ctx context.Context, messages []Message, emit func(delta string)) error {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(s.cfg.Model),
		Messages: toParams(messages),
	}
	if s.cfg.Options.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(s.cfg.Options.MaxTokens))
	}
	if s.cfg.Options.Temperature > 0 {
		params.Temperature = openai.Float(s.cfg.Options.Temperature)
	}

	stream := s.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			emit(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("%s stream: %w", s.cfg.Name, err)
	}
	return nil
}

func toParams(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
