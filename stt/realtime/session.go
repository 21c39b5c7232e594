// Package realtime streams microphone audio to the hosted realtime
// transcription API over WebRTC and surfaces its transcript events as a
// recognition engine.
package realtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/realtime"
)

// sdpEndpoint is the endpoint for WebRTC SDP exchange.
const sdpEndpoint = "https://api.openai.com/v1/realtime/calls"

// SessionManager creates ephemeral transcription sessions and performs
// the SDP exchange the SDK does not cover.
type SessionManager struct {
	client     *openai.Client
	httpClient *http.Client
}

// NewSessionManager creates a session manager.
func NewSessionManager(apiKey string) *SessionManager {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &SessionManager{
		client:     &client,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ClientSecret is the ephemeral key for one WebRTC session.
type ClientSecret struct {
	Value     string
	ExpiresAt int64
}

// CreateSession mints an ephemeral transcription-only session token.
// Turn detection is disabled: the daemon runs its own endpointing and
// commits the audio buffer explicitly.
func (sm *SessionManager) CreateSession(ctx context.Context, language string) (*ClientSecret, error) {
	params := realtime.ClientSecretNewParams{
		Session: realtime.ClientSecretNewParamsSessionUnion{
			OfTranscription: &realtime.RealtimeTranscriptionSessionCreateRequestParam{
				Audio: realtime.RealtimeTranscriptionSessionAudioParam{
					Input: realtime.RealtimeTranscriptionSessionAudioInputParam{
						Transcription: realtime.AudioTranscriptionParam{
							Model:    realtime.AudioTranscriptionModelGPT4oTranscribe,
							Language: openai.String(language),
						},
					},
				},
			},
		},
	}

	resp, err := sm.client.Realtime.ClientSecrets.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create client secret: %w", err)
	}
	return &ClientSecret{Value: resp.Value, ExpiresAt: resp.ExpiresAt}, nil
}

// ExchangeSDP posts the local SDP offer and returns the remote answer.
func (sm *SessionManager) ExchangeSDP(ctx context.Context, offer, ephemeralKey string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sdpEndpoint, bytes.NewBufferString(offer))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+ephemeralKey)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := sm.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("SDP exchange error (status %d): %s", resp.StatusCode, string(body))
	}
	return string(body), nil
}
