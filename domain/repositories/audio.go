package repositories

import "context"

// CaptureConfig describes the microphone constraints requested from the
// capture device: mono, a fixed sample rate hint, echo cancellation and noise
// suppression on.
type CaptureConfig struct {
	SampleRate       int  `json:"sample_rate"`
	Channels         int  `json:"channels"`
	EchoCancellation bool `json:"echo_cancellation"`
	NoiseSuppression bool `json:"noise_suppression"`
}

// CaptureSource delivers mono floating-point microphone frames. Read blocks
// until at least one sample is available or the device is closed.
type CaptureSource interface {
	Read(buf []float32) (int, error)
	Close() error
}

// CaptureOpener acquires microphone access. It suspends on the device
// permission grant and fails with a device error when access is denied or the
// device is unavailable.
type CaptureOpener interface {
	Open(ctx context.Context, config CaptureConfig) (CaptureSource, error)
}

// PlaybackSink renders one chunk of mono floating-point samples. Play must not
// block for the duration of the audio; done is invoked exactly once, when the
// chunk's audible output ends, unless the chunk is cut short by Halt.
type PlaybackSink interface {
	Play(samples []float32, done func()) error
	// Halt stops the currently playing chunk immediately. The halted chunk's
	// done callback must not fire afterwards.
	Halt()
	Close() error
}
