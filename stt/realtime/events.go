package realtime

import "encoding/json"

// Transcription event types delivered on the data channel.
const (
	eventTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	eventTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	eventError                  = "error"
)

// ServerEvent is a message received from the API over the data channel.
type ServerEvent struct {
	EventID string    `json:"event_id,omitempty"`
	Type    string    `json:"type"`
	Delta   string    `json:"delta,omitempty"`
	ItemID  string    `json:"item_id,omitempty"`
	Error   *APIError `json:"error,omitempty"`

	// Completed transcription carries the full text.
	Transcript string `json:"transcript,omitempty"`
}

// APIError is an error payload from the realtime API.
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// parseServerEvent decodes one data channel message.
func parseServerEvent(data []byte) (ServerEvent, error) {
	var ev ServerEvent
	err := json.Unmarshal(data, &ev)
	return ev, err
}

// commitEvent asks the API to transcribe whatever audio is buffered.
func commitEvent() map[string]any {
	return map[string]any{"type": "input_audio_buffer.commit"}
}
