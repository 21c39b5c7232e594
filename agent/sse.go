package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// sseStreamer streams chat completions from any OpenAI-compatible
// endpoint (self-hosted gateways, local runtimes) over server-sent
// events, ending at the [DONE] sentinel.
type sseStreamer struct {
	cfg  BackendConfig
	http *http.Client
}

type sseRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (s *sseStreamer) Name() string { return s.cfg.Name }

func (s *sseStreamer) Stream(ctx context.Context, messages []Message, emit func(delta string)) error {
	url := strings.TrimSuffix(s.cfg.BaseURL, "/") + "/chat/completions"

	body, err := json.Marshal(sseRequest{
		Model:       s.cfg.Model,
		Messages:    messages,
		Stream:      true,
		MaxTokens:   s.cfg.Options.MaxTokens,
		Temperature: s.cfg.Options.Temperature,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s api error %d: %s", s.cfg.Name, resp.StatusCode, string(msg))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return nil
		}

		var chunk sseChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Keep-alives and vendor extensions are not fatal.
			continue
		}
		for _, c := range chunk.Choices {
			if c.Delta.Content != "" {
				emit(c.Delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%s stream read: %w", s.cfg.Name, err)
	}
	return nil
}
