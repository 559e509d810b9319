// Package ffaudio provides microphone capture and PCM playback through the
// ffmpeg toolchain, for running sessions on a host with local audio devices.
package ffaudio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"

	"github.com/grovesolutions/sapling-live/domain/repositories"
	"github.com/grovesolutions/sapling-live/internal/codec"
)

// Opener acquires the default microphone through an ffmpeg child process
// emitting raw s16le PCM on stdout. Implements repositories.CaptureOpener.
type Opener struct{}

// NewOpener creates an ffmpeg-backed capture opener.
func NewOpener() *Opener {
	return &Opener{}
}

// Open implements repositories.CaptureOpener.
func (o *Opener) Open(ctx context.Context, config repositories.CaptureConfig) (repositories.CaptureSource, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg is required for mic capture (install ffmpeg and ensure it is in PATH)")
	}
	args, err := micArgs(runtime.GOOS, config.SampleRate, config.Channels)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg mic capture: %w", err)
	}
	return &micSource{cmd: cmd, stdout: stdout}, nil
}

func micArgs(goos string, sampleRate, channels int) ([]string, error) {
	base := []string{"-hide_banner", "-loglevel", "error"}
	switch goos {
	case "darwin":
		base = append(base, "-f", "avfoundation", "-i", ":0")
	case "linux":
		base = append(base, "-f", "pulse", "-i", "default")
	default:
		return nil, fmt.Errorf("mic capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
	return append(base,
		"-ac", fmt.Sprintf("%d", channels),
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-f", "s16le", "-",
	), nil
}

type micSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	// leftover holds the odd trailing byte of a read that split a sample.
	leftover []byte
}

// Read fills buf with normalized samples decoded from the ffmpeg byte stream.
func (m *micSource) Read(buf []float32) (int, error) {
	raw := make([]byte, len(m.leftover)+len(buf)*2)
	copy(raw, m.leftover)

	n, err := m.stdout.Read(raw[len(m.leftover):])
	total := len(m.leftover) + n
	if total < 2 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}

	samples := codec.BytesToFloat(raw[:total])
	copied := copy(buf, samples)

	if total%2 != 0 {
		m.leftover = []byte{raw[total-1]}
	} else {
		m.leftover = nil
	}
	return copied, err
}

func (m *micSource) Close() error {
	if m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
		_ = m.cmd.Wait()
	}
	return nil
}
