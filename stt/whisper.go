package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"
)

const defaultWhisperURL = "https://api.openai.com/v1/audio/transcriptions"

// Whisper transcribes utterances through the hosted transcription API.
// It is both a Transcriber (one-shot, used for wake phrase spotting) and
// a streaming Engine: the stream buffers speech and re-transcribes the
// accumulated audio on a cadence to produce partials, with one last
// request on Stop for the final.
type Whisper struct {
	apiKey     string
	baseURL    string
	model      string
	sampleRate int
	partialGap time.Duration
	http       *http.Client
}

// WhisperConfig holds transcription API parameters.
type WhisperConfig struct {
	APIKey          string
	BaseURL         string        // optional, defaults to the hosted API
	Model           string        // optional, defaults to whisper-1
	SampleRate      int           // optional, defaults to 16000
	PartialInterval time.Duration // optional, defaults to 1.5s of fed speech
}

// NewWhisper creates a whisper recognition backend.
func NewWhisper(cfg WhisperConfig) *Whisper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultWhisperURL
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.PartialInterval == 0 {
		cfg.PartialInterval = 1500 * time.Millisecond
	}
	return &Whisper{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		sampleRate: cfg.SampleRate,
		partialGap: cfg.PartialInterval,
		http:       &http.Client{Timeout: 60 * time.Second},
	}
}

// Name implements Engine.
func (w *Whisper) Name() string { return "whisper" }

// Transcribe sends one utterance to the API and returns its text.
func (w *Whisper) Transcribe(ctx context.Context, audio []float32, language string) (string, error) {
	if w.apiKey == "" {
		return "", fmt.Errorf("whisper: API key required")
	}

	wav := float32ToWAV(audio, w.sampleRate)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}
	if err := writer.WriteField("model", w.model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if language != "" && language != "auto" {
		if err := writer.WriteField("language", language); err != nil {
			return "", fmt.Errorf("write language field: %w", err)
		}
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("write response_format field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+w.apiKey)

	resp, err := w.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription API error %d: %s", resp.StatusCode, string(body))
	}

	var apiResp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	return apiResp.Text, nil
}

// Start implements Engine.
func (w *Whisper) Start(ctx context.Context, language string) (Stream, error) {
	if w.apiKey == "" {
		return nil, fmt.Errorf("whisper: API key required")
	}
	s := &whisperStream{
		w:        w,
		ctx:      ctx,
		language: language,
		results:  make(chan Result, 16),
		kick:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// whisperStream accumulates speech audio; run re-transcribes the buffer
// for partials and performs the final transcription on Stop.
type whisperStream struct {
	w        *Whisper
	ctx      context.Context
	language string

	mu        sync.Mutex
	buf       []float32
	speechDur time.Duration
	stopped   bool

	results chan Result
	kick    chan struct{}
	stop    chan struct{}
}

func (s *whisperStream) Feed(samples []float32, silent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.buf = append(s.buf, samples...)
	if !silent {
		s.speechDur += time.Duration(len(samples)) * time.Second / time.Duration(s.w.sampleRate)
		if s.speechDur >= s.w.partialGap {
			s.speechDur = 0
			select {
			case s.kick <- struct{}{}:
			default:
			}
		}
	}
	return nil
}

func (s *whisperStream) Results() <-chan Result { return s.results }

func (s *whisperStream) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()
	close(s.stop)
	return nil
}

func (s *whisperStream) run() {
	defer close(s.results)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.kick:
			if text, err := s.transcribeBuffer(); err == nil && text != "" {
				select {
				case s.results <- Result{Text: text}:
				case <-s.ctx.Done():
					return
				}
			}
		case <-s.stop:
			text, err := s.transcribeBuffer()
			if err != nil {
				// The utterance still ends; an empty final tells the
				// caller nothing usable was heard.
				text = ""
			}
			select {
			case s.results <- Result{Text: text, Final: true}:
			case <-s.ctx.Done():
			}
			return
		}
	}
}

func (s *whisperStream) transcribeBuffer() (string, error) {
	s.mu.Lock()
	audio := append([]float32(nil), s.buf...)
	s.mu.Unlock()
	if len(audio) == 0 {
		return "", nil
	}
	return s.w.Transcribe(s.ctx, audio, s.language)
}

// float32ToWAV wraps mono float32 PCM in a 16-bit WAV container.
func float32ToWAV(samples []float32, sampleRate int) []byte {
	dataSize := len(samples) * 2
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))

	buf.WriteString("RIFF")
	writeUint32LE(buf, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	writeUint32LE(buf, 16)
	writeUint16LE(buf, 1) // PCM
	writeUint16LE(buf, 1) // mono
	writeUint32LE(buf, uint32(sampleRate))
	writeUint32LE(buf, uint32(sampleRate*2))
	writeUint16LE(buf, 2)
	writeUint16LE(buf, 16)

	buf.WriteString("data")
	writeUint32LE(buf, uint32(dataSize))

	for _, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		writeInt16LE(buf, int16(s*32767))
	}
	return buf.Bytes()
}

func writeUint16LE(w *bytes.Buffer, v uint16) {
	w.WriteByte(byte(v))
	w.WriteByte(byte(v >> 8))
}

func writeUint32LE(w *bytes.Buffer, v uint32) {
	w.WriteByte(byte(v))
	w.WriteByte(byte(v >> 8))
	w.WriteByte(byte(v >> 16))
	w.WriteByte(byte(v >> 24))
}

func writeInt16LE(w *bytes.Buffer, v int16) {
	w.WriteByte(byte(v))
	w.WriteByte(byte(v >> 8))
}
