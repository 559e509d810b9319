package repositories

import "context"

// LiveConfig holds everything needed to open the remote streaming channel.
type LiveConfig struct {
	Token             string `json:"token"`
	Model             string `json:"model"`
	SystemInstruction string `json:"system_instruction"`
	VoiceName         string `json:"voice_name"`
}

// LiveServerMessage is one inbound event from the remote conversational
// endpoint. Any combination of fields may be set on a single message: a text
// fragment, an audio fragment (raw 16-bit little-endian PCM, already decoded
// from the wire), a turn-complete flag, or a transcription of captured user
// audio.
type LiveServerMessage struct {
	Text               string
	Audio              []byte
	TurnComplete       bool
	InputTranscription string
}

// LiveHandlers carries the callbacks a live stream invokes as the connection
// progresses. Callbacks are invoked serially, in event-arrival order.
type LiveHandlers struct {
	OnOpen    func()
	OnMessage func(msg LiveServerMessage)
	OnError   func(err error)
	OnClose   func(reason string)
}

// LiveStream is the open bidirectional channel to the remote conversational
// endpoint. Exclusively owned by the session controller that dialed it.
type LiveStream interface {
	// SendText transmits a complete text turn.
	SendText(text string) error
	// SendAudio transmits one raw PCM frame tagged with its mime type,
	// e.g. "audio/pcm;rate=16000".
	SendAudio(pcm []byte, mimeType string) error
	Close() error
}

// LiveDialer opens a streaming connection to the remote endpoint.
type LiveDialer interface {
	Dial(ctx context.Context, config LiveConfig, handlers LiveHandlers) (LiveStream, error)
}
