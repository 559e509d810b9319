package websocket

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/grovesolutions/sapling-live/domain/entities"
	"github.com/grovesolutions/sapling-live/domain/repositories"
	"github.com/grovesolutions/sapling-live/internal/session"
	"github.com/grovesolutions/sapling-live/usecase"
)

type stubCredentials struct {
	expireTime time.Time
}

func (s *stubCredentials) CreateToken(ctx context.Context, systemInstruction string) (entities.Credential, error) {
	return entities.Credential{
		Token:             "tok",
		Model:             "model",
		SystemInstruction: systemInstruction,
		ExpireTime:        s.expireTime,
	}, nil
}

type stubStream struct{}

func (stubStream) SendText(string) error          { return nil }
func (stubStream) SendAudio([]byte, string) error { return nil }
func (stubStream) Close() error                   { return nil }

type stubDialer struct{}

func (stubDialer) Dial(ctx context.Context, config repositories.LiveConfig, handlers repositories.LiveHandlers) (repositories.LiveStream, error) {
	return stubStream{}, nil
}

type nullSink struct{}

func (nullSink) Play(samples []float32, done func()) error { return nil }
func (nullSink) Halt()                                     {}
func (nullSink) Close() error                              { return nil }

type nullRepo struct{}

func (nullRepo) Save(context.Context, *entities.Conversation) error { return nil }
func (nullRepo) ListByClient(context.Context, string, int64) ([]*entities.Conversation, error) {
	return nil, nil
}

func newTestHub() *Hub {
	logger := zap.NewNop()
	return NewHub(
		&stubCredentials{expireTime: time.Now().Add(time.Hour)},
		stubDialer{},
		usecase.NewTranscriptService(nullRepo{}, logger),
		logger,
	)
}

func newTestClient(hub *Hub, clientID string, creds repositories.CredentialService) *Client {
	client := &Client{
		hub:      hub,
		send:     make(chan WriteData, 16),
		clientID: clientID,
		logger:   zap.NewNop(),
		audioIn:  make(chan []float32, 8),
	}
	client.ctrl = session.NewController(session.Dependencies{
		Credentials: creds,
		Dialer:      stubDialer{},
		Capture:     &wsCaptureOpener{client: client},
		Playback:    nullSink{},
	}, zap.NewNop())
	client.cancelSub = func() {}
	return client
}

func TestSweepExpiredDisconnectsLapsedSessions(t *testing.T) {
	hub := newTestHub()

	expired := newTestClient(hub, "lapsed", &stubCredentials{expireTime: time.Now().Add(-time.Minute)})
	fresh := newTestClient(hub, "fresh", &stubCredentials{expireTime: time.Now().Add(time.Hour)})

	for _, c := range []*Client{expired, fresh} {
		if err := c.ctrl.Connect(context.Background(), session.Config{}); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
	}
	hub.mu.Lock()
	hub.clients["lapsed"] = expired
	hub.clients["fresh"] = fresh
	hub.mu.Unlock()

	if swept := hub.SweepExpired(); swept != 1 {
		t.Errorf("expected 1 swept session, got %d", swept)
	}
	if expired.ctrl.Snapshot().Connected {
		t.Error("lapsed session still connected after sweep")
	}
	if !fresh.ctrl.Snapshot().Connected {
		t.Error("fresh session was swept")
	}
}

func TestCaptureSourceCarriesOversizedFrames(t *testing.T) {
	hub := newTestHub()
	client := newTestClient(hub, "c1", &stubCredentials{expireTime: time.Now().Add(time.Hour)})

	opener := &wsCaptureOpener{client: client}
	source, err := opener.Open(context.Background(), repositories.CaptureConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer source.Close()

	frame := make([]float32, 10)
	for i := range frame {
		frame[i] = float32(i)
	}
	client.audioIn <- frame

	buf := make([]float32, 4)
	var got []float32
	for len(got) < 10 {
		n, err := source.Read(buf)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	for i, v := range got {
		if v != float32(i) {
			t.Fatalf("sample %d out of order: %v", i, got)
		}
	}
}

func TestCaptureSourceCloseUnblocksRead(t *testing.T) {
	hub := newTestHub()
	client := newTestClient(hub, "c1", &stubCredentials{expireTime: time.Now().Add(time.Hour)})

	source, err := (&wsCaptureOpener{client: client}).Open(context.Background(), repositories.CaptureConfig{})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := source.Read(make([]float32, 4))
		done <- err
	}()
	source.Close()

	select {
	case err := <-done:
		if err != io.EOF {
			t.Errorf("expected EOF on closed source, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("read did not unblock on close")
	}
}

func TestOpenDropsStaleFrames(t *testing.T) {
	hub := newTestHub()
	client := newTestClient(hub, "c1", &stubCredentials{expireTime: time.Now().Add(time.Hour)})

	// Frames arriving before recording starts must not be replayed.
	client.audioIn <- []float32{0.1, 0.2}
	client.audioIn <- []float32{0.3}

	source, err := (&wsCaptureOpener{client: client}).Open(context.Background(), repositories.CaptureConfig{})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer source.Close()

	client.audioIn <- []float32{0.9}
	buf := make([]float32, 4)
	n, err := source.Read(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if n != 1 || buf[0] != 0.9 {
		t.Errorf("stale frames replayed: n=%d buf=%v", n, buf[:n])
	}
}

func TestPlaybackSinkSendsAudioFrame(t *testing.T) {
	hub := newTestHub()
	client := newTestClient(hub, "c1", &stubCredentials{expireTime: time.Now().Add(time.Hour)})
	sink := newWSPlaybackSink(client)
	defer sink.Close()

	fired := make(chan struct{})
	err := sink.Play([]float32{0.5, -0.5}, func() { close(fired) })
	if err != nil {
		t.Fatalf("play failed: %v", err)
	}

	select {
	case frame := <-client.send:
		var msg AudioChunkMessage
		if err := json.Unmarshal(frame.Payload, &msg); err != nil {
			t.Fatalf("audio frame not JSON: %v", err)
		}
		if msg.Type != MessageTypeAudioChunk || msg.AudioData == "" {
			t.Errorf("unexpected audio frame: %+v", msg)
		}
		if msg.SampleRate != playbackSampleRate {
			t.Errorf("expected %d sample rate, got %d", playbackSampleRate, msg.SampleRate)
		}
	case <-time.After(time.Second):
		t.Fatal("no audio frame enqueued")
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("completion never fired")
	}
}

func TestPlaybackSinkHaltCancelsCompletion(t *testing.T) {
	hub := newTestHub()
	client := newTestClient(hub, "c1", &stubCredentials{expireTime: time.Now().Add(time.Hour)})
	sink := newWSPlaybackSink(client)
	defer sink.Close()

	fired := make(chan struct{}, 1)
	// A full second of audio so the timer is comfortably pending at Halt.
	if err := sink.Play(make([]float32, playbackSampleRate), func() { fired <- struct{}{} }); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	sink.Halt()

	select {
	case <-fired:
		t.Error("completion fired for a halted chunk")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPlaybackSinkRejectsAfterClose(t *testing.T) {
	hub := newTestHub()
	client := newTestClient(hub, "c1", &stubCredentials{expireTime: time.Now().Add(time.Hour)})
	sink := newWSPlaybackSink(client)
	sink.Close()

	if err := sink.Play([]float32{0.1}, nil); err == nil {
		t.Error("play on closed sink succeeded")
	}
}

func TestProcessBinaryAudioFrameDropsWhenFull(t *testing.T) {
	hub := newTestHub()
	client := newTestClient(hub, "c1", &stubCredentials{expireTime: time.Now().Add(time.Hour)})

	// Fill the buffer, then overflow it; the overflow frame is dropped, not
	// blocking the read loop.
	frame := []byte{0x00, 0x10}
	for i := 0; i < cap(client.audioIn)+4; i++ {
		client.processBinaryAudioFrame(frame)
	}
	if len(client.audioIn) != cap(client.audioIn) {
		t.Errorf("expected full buffer, got %d", len(client.audioIn))
	}
}
