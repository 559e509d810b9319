// Package session implements the live voice session controller: a state
// machine coordinating credential acquisition, the remote streaming
// connection, the capture pipeline and the playback queue, and assembling the
// conversation transcript at turn boundaries.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/grovesolutions/sapling-live/domain/entities"
	"github.com/grovesolutions/sapling-live/domain/repositories"
	"github.com/grovesolutions/sapling-live/internal/capture"
	"github.com/grovesolutions/sapling-live/internal/playback"
)

// Status is the connection lifecycle state of a controller.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// DefaultVoice is the voice identity used when the caller picks none.
const DefaultVoice = "Aoede"

// outboundMimeType tags microphone blocks with their PCM sample rate.
const outboundMimeType = "audio/pcm;rate=16000"

// Config carries the per-connect options.
type Config struct {
	SystemInstruction string `json:"system_instruction,omitempty"`
	VoiceName         string `json:"voice_name,omitempty"`
}

// Snapshot is an immutable view of the controller's observable state,
// published on every change through the subscribe/notify path.
type Snapshot struct {
	Status           Status                     `json:"status"`
	Connected        bool                       `json:"connected"`
	Connecting       bool                       `json:"connecting"`
	Recording        bool                       `json:"recording"`
	AISpeaking       bool                       `json:"ai_speaking"`
	VoiceName        string                     `json:"voice_name,omitempty"`
	Transcript       []entities.TranscriptEntry `json:"transcript"`
	Error            string                     `json:"error,omitempty"`
	CredentialExpiry time.Time                  `json:"credential_expiry"`
}

// Dependencies are the controller's collaborators, injected at construction.
type Dependencies struct {
	Credentials repositories.CredentialService
	Dialer      repositories.LiveDialer
	Capture     repositories.CaptureOpener
	Playback    repositories.PlaybackSink
}

// Controller orchestrates one live voice session at a time. All mutations of
// observable state go through the controller mutex and end in a notify, so
// observers never race the audio or network callbacks.
type Controller struct {
	deps   Dependencies
	logger *zap.Logger

	recorder *capture.Recorder
	queue    *playback.Queue

	mu         sync.Mutex
	status     Status
	stream     repositories.LiveStream
	credential entities.Credential
	voiceName  string
	transcript []entities.TranscriptEntry
	textBuf    strings.Builder
	recording  bool
	aiSpeaking bool
	lastErr    string
	disposed   bool
	// gen invalidates in-flight asynchronous work: a connect or a capture
	// block that resolves after a newer teardown must not resurrect the
	// session.
	gen uint64
	// recGen invalidates an in-flight recording start: a device grant that
	// resolves after StopRecording must release the device, not start it.
	recGen uint64
	subs   map[chan Snapshot]struct{}
}

// NewController creates a controller in the disconnected state.
func NewController(deps Dependencies, logger *zap.Logger) *Controller {
	c := &Controller{
		deps:   deps,
		logger: logger,
		status: StatusDisconnected,
		subs:   make(map[chan Snapshot]struct{}),
	}
	c.recorder = capture.NewRecorder(deps.Capture, capture.DefaultConfig(), logger)
	c.queue = playback.NewQueue(deps.Playback, c.speakingStarted, c.speakingStopped, logger)
	return c
}

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	transcript := make([]entities.TranscriptEntry, len(c.transcript))
	copy(transcript, c.transcript)
	return Snapshot{
		Status:           c.status,
		Connected:        c.status == StatusConnected,
		Connecting:       c.status == StatusConnecting,
		Recording:        c.recording,
		AISpeaking:       c.aiSpeaking,
		VoiceName:        c.voiceName,
		Transcript:       transcript,
		Error:            c.lastErr,
		CredentialExpiry: c.credential.ExpireTime,
	}
}

// Subscribe registers an observer. The channel carries the latest snapshot;
// a slow observer sees intermediate states collapsed, never a stale final
// state. The returned cancel releases the subscription.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	ch <- c.snapshotLocked()
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			// Sends in notifyLocked hold the same mutex, so closing here
			// cannot race a publish. Range loops over the channel terminate.
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// notifyLocked publishes the current state to every subscriber, replacing any
// undelivered snapshot so observers always converge on the latest state.
func (c *Controller) notifyLocked() {
	snap := c.snapshotLocked()
	for ch := range c.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Connect requests an ephemeral credential and opens the remote streaming
// connection. A connect while already connecting or connected is a no-op.
func (c *Controller) Connect(ctx context.Context, config Config) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return fmt.Errorf("session: controller disposed")
	}
	if c.status != StatusDisconnected {
		c.mu.Unlock()
		c.logger.Warn("Connect ignored: session already active",
			zap.String("status", string(c.status)))
		return nil
	}
	c.status = StatusConnecting
	c.lastErr = ""
	c.gen++
	gen := c.gen
	c.notifyLocked()
	c.mu.Unlock()

	cred, err := c.deps.Credentials.CreateToken(ctx, config.SystemInstruction)
	if err != nil {
		return c.failConnect(gen, &CredentialError{Cause: err})
	}

	voice := config.VoiceName
	if voice == "" {
		voice = DefaultVoice
	}

	c.mu.Lock()
	if gen != c.gen || c.status != StatusConnecting {
		// Superseded by a disconnect while the credential fetch was in
		// flight.
		c.mu.Unlock()
		return nil
	}
	c.credential = cred
	c.voiceName = voice
	c.mu.Unlock()

	stream, err := c.deps.Dialer.Dial(ctx, repositories.LiveConfig{
		Token:             cred.Token,
		Model:             cred.Model,
		SystemInstruction: cred.SystemInstruction,
		VoiceName:         voice,
	}, repositories.LiveHandlers{
		OnMessage: func(msg repositories.LiveServerMessage) { c.handleServerMessage(gen, msg) },
		OnError:   func(err error) { c.handleStreamError(gen, err) },
		OnClose:   func(reason string) { c.handleStreamClose(gen, reason) },
	})
	if err != nil {
		return c.failConnect(gen, &ConnectionError{Cause: err})
	}

	c.mu.Lock()
	if gen != c.gen || c.status != StatusConnecting {
		c.mu.Unlock()
		stream.Close()
		return nil
	}
	// Reopen the queue only once the connect is known to stand, so a
	// superseding teardown's Stop stays final.
	c.queue.Reset()
	c.stream = stream
	c.status = StatusConnected
	c.transcript = append(c.transcript, entities.NewTranscriptEntry(entities.RoleSystem, "Connected to Sapling AI"))
	c.notifyLocked()
	c.mu.Unlock()

	c.logger.Info("Live session connected",
		zap.String("model", cred.Model),
		zap.String("voice", voice),
		zap.Time("credentialExpiry", cred.ExpireTime))
	return nil
}

// failConnect rolls a failed connect attempt back to disconnected, unless a
// newer operation already superseded it.
func (c *Controller) failConnect(gen uint64, cause error) error {
	c.mu.Lock()
	if gen != c.gen || c.status != StatusConnecting {
		c.mu.Unlock()
		return nil
	}
	c.status = StatusDisconnected
	c.lastErr = scrub(cause.Error())
	c.notifyLocked()
	c.mu.Unlock()

	c.logger.Error("Live connect failed", zap.Error(cause))
	return cause
}

// Disconnect tears down capture, playback, and the connection, in that order.
// Always safe to call repeatedly.
func (c *Controller) Disconnect() {
	c.teardown("", entities.NewTranscriptEntry(entities.RoleSystem, "Disconnected from Sapling AI"))
}

// teardown is the single teardown path shared by Disconnect, remote close,
// and fatal errors. Consumer and producer stop first, then the channel.
func (c *Controller) teardown(errText string, entries ...entities.TranscriptEntry) {
	c.mu.Lock()
	wasActive := c.status != StatusDisconnected
	stream := c.stream
	c.stream = nil
	c.gen++
	c.status = StatusDisconnected
	c.recording = false
	c.aiSpeaking = false
	c.credential = entities.Credential{}
	if errText != "" {
		c.lastErr = scrub(errText)
	}
	if wasActive {
		c.transcript = append(c.transcript, entries...)
	}
	c.notifyLocked()
	c.mu.Unlock()

	c.recorder.Stop()
	c.queue.Stop()
	if stream != nil {
		if err := stream.Close(); err != nil {
			c.logger.Debug("Live stream close", zap.Error(err))
		}
	}
}

// Dispose releases the controller and its audio resources. The controller is
// unusable afterwards.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.mu.Unlock()

	c.teardown("")
	if err := c.deps.Playback.Close(); err != nil {
		c.logger.Debug("Playback sink close", zap.Error(err))
	}
}

// SendText transmits a complete text turn. Sending new input always
// interrupts whatever the agent was saying: queued audio is discarded and the
// speaking flag drops before anything touches the network.
func (c *Controller) SendText(text string) {
	c.mu.Lock()
	if c.status != StatusConnected || c.stream == nil {
		c.mu.Unlock()
		c.logger.Warn("SendText ignored: not connected")
		return
	}
	stream := c.stream
	c.mu.Unlock()

	c.queue.Clear()
	c.queue.Reset()

	c.mu.Lock()
	c.aiSpeaking = false
	c.transcript = append(c.transcript, entities.NewTranscriptEntry(entities.RoleUser, text))
	c.notifyLocked()
	c.mu.Unlock()

	if err := stream.SendText(text); err != nil {
		c.logger.Error("Failed to send text turn", zap.Error(err))
		c.setError("Failed to send message")
	}
}

// StartRecording acquires the microphone and begins streaming fixed-size PCM
// blocks over the connection. State misuse is a logged no-op; device failures
// surface through the error slot and the returned error while the session
// stays connected for text.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusConnected || c.stream == nil {
		c.mu.Unlock()
		c.logger.Warn("StartRecording ignored: not connected")
		return nil
	}
	if c.recording {
		c.mu.Unlock()
		c.logger.Warn("StartRecording ignored: already recording")
		return nil
	}
	gen := c.gen
	recGen := c.recGen
	c.mu.Unlock()

	err := c.recorder.Start(ctx, func(pcm []byte) { c.sendAudioBlock(gen, pcm) })
	if err != nil {
		devErr := &DeviceError{Cause: err}
		c.setError(scrub(devErr.Error()))
		c.logger.Error("Failed to start recording", zap.Error(err))
		return devErr
	}

	c.mu.Lock()
	if gen != c.gen || recGen != c.recGen {
		// Disconnected or stopped while the permission prompt was pending.
		c.mu.Unlock()
		c.recorder.Stop()
		return nil
	}
	c.recording = true
	c.notifyLocked()
	c.mu.Unlock()
	return nil
}

// StopRecording tears down the capture graph and releases the microphone.
// Safe to call when not recording, including while a start is still waiting
// on the device grant.
func (c *Controller) StopRecording() {
	c.mu.Lock()
	c.recGen++
	if c.recording {
		c.recording = false
		c.notifyLocked()
	}
	c.mu.Unlock()

	c.recorder.Stop()
}

// sendAudioBlock relays one captured block over the connection, unless the
// session it belonged to is gone.
func (c *Controller) sendAudioBlock(gen uint64, pcm []byte) {
	c.mu.Lock()
	if gen != c.gen || c.stream == nil {
		c.mu.Unlock()
		return
	}
	stream := c.stream
	c.mu.Unlock()

	if err := stream.SendAudio(pcm, outboundMimeType); err != nil {
		c.logger.Warn("Failed to send audio block", zap.Error(err))
	}
}

// StopAudio discards queued assistant audio without touching the connection.
// User-initiated "stop talking".
func (c *Controller) StopAudio() {
	c.queue.Clear()
	c.queue.Reset()

	c.mu.Lock()
	c.aiSpeaking = false
	c.notifyLocked()
	c.mu.Unlock()
}

// ClearMessages empties the transcript and the partial assistant-text
// accumulator. Connection state is untouched.
func (c *Controller) ClearMessages() {
	c.mu.Lock()
	c.transcript = nil
	c.textBuf.Reset()
	c.notifyLocked()
	c.mu.Unlock()
}

// handleServerMessage processes one inbound event from the connection's
// receive callback. Audio plays incrementally; text accumulates until the
// turn-complete boundary flushes it into a single assistant entry.
func (c *Controller) handleServerMessage(gen uint64, msg repositories.LiveServerMessage) {
	c.mu.Lock()
	if gen != c.gen || c.status != StatusConnected {
		c.mu.Unlock()
		return
	}

	if msg.Text != "" {
		c.textBuf.WriteString(msg.Text)
	}

	changed := false
	if msg.TurnComplete {
		if text := strings.TrimSpace(c.textBuf.String()); text != "" {
			c.transcript = append(c.transcript, entities.NewTranscriptEntry(entities.RoleAssistant, text))
			changed = true
		}
		c.textBuf.Reset()
	}
	if msg.InputTranscription != "" {
		c.transcript = append(c.transcript, entities.NewTranscriptEntry(entities.RoleUser, msg.InputTranscription))
		changed = true
	}
	if changed {
		c.notifyLocked()
	}
	c.mu.Unlock()

	if len(msg.Audio) > 0 {
		c.queue.EnqueueBytes(msg.Audio)
	}
}

// handleStreamError runs full teardown on an unrecoverable stream error.
func (c *Controller) handleStreamError(gen uint64, err error) {
	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()
	if stale {
		return
	}
	msg := scrub(err.Error())
	c.logger.Error("Live stream error", zap.String("cause", msg))
	c.teardown(msg, entities.NewTranscriptEntry(entities.RoleError, "Connection error: "+msg))
}

// handleStreamClose mirrors a remote-initiated close onto the local state.
func (c *Controller) handleStreamClose(gen uint64, reason string) {
	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()
	if stale {
		return
	}
	c.logger.Info("Live stream closed by remote", zap.String("reason", reason))
	c.teardown("", entities.NewTranscriptEntry(entities.RoleSystem, "Disconnected from Sapling AI"))
}

// setError records a user-facing error in the observable error slot.
func (c *Controller) setError(msg string) {
	c.mu.Lock()
	c.lastErr = msg
	c.notifyLocked()
	c.mu.Unlock()
}

// speakingStarted and speakingStopped are the playback queue's audible-output
// signals, funneled through the same notify path as every other state change.
func (c *Controller) speakingStarted() {
	c.mu.Lock()
	if !c.aiSpeaking {
		c.aiSpeaking = true
		c.notifyLocked()
	}
	c.mu.Unlock()
}

func (c *Controller) speakingStopped() {
	c.mu.Lock()
	if c.aiSpeaking {
		c.aiSpeaking = false
		c.notifyLocked()
	}
	c.mu.Unlock()
}
