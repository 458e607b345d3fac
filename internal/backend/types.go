package backend

import "VoiceChat/internal/session"

// HistoryResponse represents the response from GET /agent/history/{id}
type HistoryResponse struct {
	SessionID    string         `json:"session_id"`
	History      []session.Turn `json:"history"`
	MessageCount int            `json:"message_count"`
}

// ChatResponse represents the response from POST /agent/chat/{id}.
// AudioURL is empty when the backend could not synthesize speech.
type ChatResponse struct {
	SessionID          string `json:"session_id"`
	UserMessage        string `json:"user_message"`
	AssistantResponse  string `json:"assistant_response"`
	AudioURL           string `json:"audio_url"`
	ConversationLength int    `json:"conversation_length"`
	Model              string `json:"model"`
}

// GenerateAudioRequest represents the request body for POST /generate-audio
type GenerateAudioRequest struct {
	Text string `json:"text"`
}

// generateAudioResponse accepts both field names the endpoint has used.
type generateAudioResponse struct {
	AudioFile string `json:"audioFile"`
	AudioURL  string `json:"audio_url"`
	Error     string `json:"error"`
}

// EchoResponse represents the response from POST /tts/echo
type EchoResponse struct {
	AudioURL   string `json:"audio_url"`
	Transcript string `json:"transcript"`
}

type echoResponse struct {
	EchoResponse
	Error string `json:"error"`
}

// errorBody is the {"error": ...} shape any endpoint may return.
type errorBody struct {
	Error  string `json:"error"`
	Detail any    `json:"detail"`
}
