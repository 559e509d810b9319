// Package capture turns a live microphone stream into fixed-size 16-bit PCM
// blocks for transmission. It is the controller-thread half of the capture
// pipeline; the accumulator mirrors the audio-thread worklet.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/grovesolutions/sapling-live/domain/repositories"
)

// ErrAlreadyRecording is returned by Start when the capture graph is already
// running.
var ErrAlreadyRecording = errors.New("capture: already recording")

// SampleRate is the fixed outbound sample rate requested from the device.
const SampleRate = 16000

// DefaultConfig returns the microphone constraints used for live sessions:
// mono 16 kHz with echo cancellation and noise suppression on.
func DefaultConfig() repositories.CaptureConfig {
	return repositories.CaptureConfig{
		SampleRate:       SampleRate,
		Channels:         1,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

// Recorder owns the capture graph: device source, block accumulator, and the
// goroutine pumping frames between them. One Recorder backs one session
// controller.
type Recorder struct {
	opener    repositories.CaptureOpener
	config    repositories.CaptureConfig
	blockSize int
	logger    *zap.Logger

	mu     sync.Mutex
	source repositories.CaptureSource
	cancel context.CancelFunc
}

// NewRecorder creates a recorder that acquires devices through opener.
func NewRecorder(opener repositories.CaptureOpener, config repositories.CaptureConfig, logger *zap.Logger) *Recorder {
	return &Recorder{
		opener:    opener,
		config:    config,
		blockSize: DefaultBlockSize,
		logger:    logger,
	}
}

// Start acquires the microphone and begins delivering completed blocks to
// onBlock as raw 16-bit little-endian PCM. It suspends on the device
// permission grant and returns the opener's error when access is denied or
// the device is unavailable. Returns ErrAlreadyRecording when the graph is
// already running.
func (r *Recorder) Start(ctx context.Context, onBlock func(pcm []byte)) error {
	r.mu.Lock()
	if r.source != nil {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	r.mu.Unlock()

	source, err := r.opener.Open(ctx, r.config)
	if err != nil {
		return fmt.Errorf("acquire capture device: %w", err)
	}

	r.mu.Lock()
	if r.source != nil {
		// A concurrent Start won the race while we were waiting on the
		// permission grant.
		r.mu.Unlock()
		source.Close()
		return ErrAlreadyRecording
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	r.source = source
	r.cancel = cancel
	r.mu.Unlock()

	go r.pump(loopCtx, source, onBlock)

	r.logger.Info("Recording started",
		zap.Int("sampleRate", r.config.SampleRate),
		zap.Int("blockSize", r.blockSize))
	return nil
}

// pump reads frames from the device and feeds the block accumulator until the
// recorder is stopped or the device fails. Samples below one block boundary
// are dropped on teardown, not flushed.
func (r *Recorder) pump(ctx context.Context, source repositories.CaptureSource, onBlock func(pcm []byte)) {
	acc := NewAccumulator(r.blockSize, onBlock)
	frame := make([]float32, 256)

	for {
		n, err := source.Read(frame)
		if n > 0 {
			acc.Write(frame[:n])
		}
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Warn("Capture source ended", zap.Error(err))
				r.Stop()
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Stop tears down the capture graph and releases the device. Safe to call
// when not recording and safe to call repeatedly.
func (r *Recorder) Stop() {
	r.mu.Lock()
	source := r.source
	cancel := r.cancel
	r.source = nil
	r.cancel = nil
	r.mu.Unlock()

	if source == nil {
		return
	}
	cancel()
	if err := source.Close(); err != nil {
		r.logger.Warn("Failed to close capture device", zap.Error(err))
	}
	r.logger.Info("Recording stopped")
}

// Recording reports whether the capture graph is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.source != nil
}
