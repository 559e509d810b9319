package websocket

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/grovesolutions/sapling-live/domain/repositories"
	"github.com/grovesolutions/sapling-live/internal/codec"
)

// wsCaptureOpener exposes the peer's binary microphone frames as a capture
// device. "Acquiring" the device just means attaching to the client's inbound
// audio channel; the peer owns the real microphone.
type wsCaptureOpener struct {
	client *Client
}

func (o *wsCaptureOpener) Open(ctx context.Context, config repositories.CaptureConfig) (repositories.CaptureSource, error) {
	// Drop frames that arrived before recording started.
	for {
		select {
		case <-o.client.audioIn:
			continue
		default:
		}
		break
	}
	return &wsCaptureSource{client: o.client, closed: make(chan struct{})}, nil
}

type wsCaptureSource struct {
	client *Client
	closed chan struct{}
	once   sync.Once
	// pending holds the tail of a peer frame larger than the read buffer.
	pending []float32
}

func (s *wsCaptureSource) Read(buf []float32) (int, error) {
	if len(s.pending) > 0 {
		n := copy(buf, s.pending)
		s.pending = s.pending[n:]
		return n, nil
	}

	select {
	case samples := <-s.client.audioIn:
		n := copy(buf, samples)
		if n < len(samples) {
			s.pending = samples[n:]
		}
		return n, nil
	case <-s.closed:
		return 0, io.EOF
	}
}

func (s *wsCaptureSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// wsPlaybackSink relays assistant audio to the peer as base64 frames. The
// peer does the actual audible playback; completion is estimated from the
// chunk's duration so the speaking flag tracks real output closely enough.
type wsPlaybackSink struct {
	client *Client

	mu    sync.Mutex
	timer *time.Timer
	// epoch invalidates a scheduled completion cut short by Halt.
	epoch  uint64
	closed bool
}

func newWSPlaybackSink(client *Client) *wsPlaybackSink {
	return &wsPlaybackSink{client: client}
}

// playbackSampleRate is the PCM rate of assistant audio frames.
const playbackSampleRate = 24000

func (s *wsPlaybackSink) Play(samples []float32, done func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}

	encoded := codec.BytesToBase64(codec.FloatToBytes(samples))
	s.client.enqueueJSON(CreateAudioChunkMessage(encoded, playbackSampleRate))

	duration := time.Duration(len(samples)) * time.Second / playbackSampleRate
	epoch := s.epoch
	s.timer = time.AfterFunc(duration, func() {
		s.mu.Lock()
		stale := epoch != s.epoch
		s.mu.Unlock()
		if !stale && done != nil {
			done()
		}
	})
	return nil
}

func (s *wsPlaybackSink) Halt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *wsPlaybackSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.epoch++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return nil
}
