// Package gemini adapts the Gemini Live API to the domain's live streaming
// and credential interfaces.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/grovesolutions/sapling-live/domain/repositories"
)

// Dialer opens bidirectional Gemini Live sessions authenticated with an
// ephemeral token. Each Dial builds a fresh client because the token is
// single-session.
type Dialer struct {
	logger *zap.Logger
}

// NewDialer creates a Gemini live dialer.
func NewDialer(logger *zap.Logger) *Dialer {
	return &Dialer{logger: logger}
}

// Dial implements repositories.LiveDialer. The returned stream is live once
// Dial returns; handlers fire from a dedicated receive goroutine until the
// session ends.
func (d *Dialer) Dial(ctx context.Context, config repositories.LiveConfig, handlers repositories.LiveHandlers) (repositories.LiveStream, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      config.Token,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1alpha"},
	})
	if err != nil {
		return nil, fmt.Errorf("create live client: %w", err)
	}

	live := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if config.SystemInstruction != "" {
		live.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: config.SystemInstruction}},
		}
	}
	if config.VoiceName != "" {
		live.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: config.VoiceName},
			},
		}
	}

	session, err := client.Live.Connect(ctx, config.Model, live)
	if err != nil {
		return nil, fmt.Errorf("connect live session: %w", err)
	}

	s := &stream{session: session, logger: d.logger}
	go s.receive(handlers)

	if handlers.OnOpen != nil {
		handlers.OnOpen()
	}
	d.logger.Info("Gemini live session opened",
		zap.String("model", config.Model),
		zap.String("voice", config.VoiceName))
	return s, nil
}

type stream struct {
	session *genai.Session
	logger  *zap.Logger
}

// SendText transmits one complete user text turn.
func (s *stream) SendText(text string) error {
	return s.session.SendClientContent(genai.LiveClientContentInput{
		Turns: []*genai.Content{
			{Role: genai.RoleUser, Parts: []*genai.Part{{Text: text}}},
		},
		TurnComplete: genai.Ptr(true),
	})
}

// SendAudio transmits one block of raw PCM tagged with its mime type.
func (s *stream) SendAudio(pcm []byte, mimeType string) error {
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: pcm, MIMEType: mimeType},
	})
}

func (s *stream) Close() error {
	return s.session.Close()
}

// receive pumps provider messages into the domain handlers until the session
// ends. End-of-stream surfaces as a clean OnClose; anything else is OnError.
func (s *stream) receive(handlers repositories.LiveHandlers) {
	for {
		msg, err := s.session.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				if handlers.OnClose != nil {
					handlers.OnClose(err.Error())
				}
			} else if handlers.OnError != nil {
				handlers.OnError(err)
			}
			return
		}
		if msg == nil || msg.ServerContent == nil {
			continue
		}

		out := repositories.LiveServerMessage{
			TurnComplete: msg.ServerContent.TurnComplete,
		}
		if turn := msg.ServerContent.ModelTurn; turn != nil {
			for _, part := range turn.Parts {
				if part.Text != "" {
					out.Text += part.Text
				}
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					out.Audio = append(out.Audio, part.InlineData.Data...)
				}
			}
		}
		if tr := msg.ServerContent.OutputTranscription; tr != nil && tr.Text != "" {
			// Audio-only responses carry their text here instead of in the
			// model turn.
			out.Text += tr.Text
		}
		if tr := msg.ServerContent.InputTranscription; tr != nil {
			out.InputTranscription = tr.Text
		}

		if handlers.OnMessage != nil {
			handlers.OnMessage(out)
		}
	}
}
