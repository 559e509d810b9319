package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/grovesolutions/sapling-live/internal/session"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types. Commands flow client to server; state, audio and
// error frames flow server to client.
const (
	MessageTypeConnect        MessageType = "connect"
	MessageTypeDisconnect     MessageType = "disconnect"
	MessageTypeSendText       MessageType = "send_text"
	MessageTypeStartRecording MessageType = "start_recording"
	MessageTypeStopRecording  MessageType = "stop_recording"
	MessageTypeStopAudio      MessageType = "stop_audio"
	MessageTypeClearMessages  MessageType = "clear_messages"
	MessageTypePing           MessageType = "ping"

	MessageTypeState      MessageType = "state"
	MessageTypeAudioChunk MessageType = "audio_chunk"
	MessageTypeError      MessageType = "error"
	MessageTypePong       MessageType = "pong"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
}

// CommandMessage is the envelope for every client-to-server control frame.
// Which fields matter depends on Type.
type CommandMessage struct {
	BaseMessage
	SystemInstruction string `json:"system_instruction,omitempty"`
	VoiceName         string `json:"voice_name,omitempty"`
	Text              string `json:"text,omitempty"`
}

// StateMessage carries the full session snapshot after every state change.
type StateMessage struct {
	BaseMessage
	State session.Snapshot `json:"state"`
}

// AudioChunkMessage carries one chunk of assistant audio as base64 PCM.
type AudioChunkMessage struct {
	BaseMessage
	AudioData  string `json:"audio_data"` // base64 encoded s16le PCM
	SampleRate int    `json:"sample_rate"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ParseCommand parses and validates an incoming control frame.
func ParseCommand(messageBytes []byte) (*CommandMessage, error) {
	var cmd CommandMessage
	if err := json.Unmarshal(messageBytes, &cmd); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}
	if cmd.Timestamp == "" {
		cmd.Timestamp = time.Now().Format(time.RFC3339)
	}

	switch cmd.Type {
	case MessageTypeConnect,
		MessageTypeDisconnect,
		MessageTypeStartRecording,
		MessageTypeStopRecording,
		MessageTypeStopAudio,
		MessageTypeClearMessages,
		MessageTypePing:
		return &cmd, nil

	case MessageTypeSendText:
		if cmd.Text == "" {
			return nil, fmt.Errorf("send_text requires a non-empty text field")
		}
		return &cmd, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", cmd.Type)
	}
}

// CreateStateMessage wraps a snapshot in a state frame.
func CreateStateMessage(snapshot session.Snapshot) *StateMessage {
	return &StateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeState,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		State: snapshot,
	}
}

// CreateAudioChunkMessage wraps encoded assistant audio in an audio frame.
func CreateAudioChunkMessage(audioData string, sampleRate int) *AudioChunkMessage {
	return &AudioChunkMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeAudioChunk,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		AudioData:  audioData,
		SampleRate: sampleRate,
	}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeError,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Code:    code,
		Message: message,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePong,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Data: data,
	}
}
