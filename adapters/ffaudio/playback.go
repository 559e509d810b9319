package ffaudio

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/grovesolutions/sapling-live/internal/codec"
)

// PlaybackSampleRate is the PCM rate of assistant audio.
const PlaybackSampleRate = 24000

// Sink plays raw PCM through an ffplay child process. ffplay gives no
// per-write completion signal, so chunk completion is scheduled from the
// chunk's duration at the known sample rate. Implements
// repositories.PlaybackSink.
type Sink struct {
	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	timer *time.Timer
	// epoch invalidates a scheduled completion cut short by Halt.
	epoch uint64
}

// NewSink starts the ffplay process and returns the sink.
func NewSink() (*Sink, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, errors.New("ffplay is required for playback (install ffmpeg/ffplay and ensure it is in PATH)")
	}
	s := &Sink{}
	if err := s.startLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sink) startLocked() error {
	s.cmd = exec.Command("ffplay",
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", PlaybackSampleRate),
		"-ac", "1",
		"-i", "pipe:0",
	)
	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open ffplay stdin: %w", err)
	}
	s.cmd.Stdout = io.Discard
	s.cmd.Stderr = io.Discard
	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}
	s.stdin = stdin
	return nil
}

// Play writes one chunk to the player and schedules done for when its audible
// output should end. Returns an error without scheduling when the player pipe
// is gone.
func (s *Sink) Play(samples []float32, done func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stdin == nil {
		return errors.New("ffplay stdin is not initialized")
	}
	if _, err := s.stdin.Write(codec.FloatToBytes(samples)); err != nil {
		return fmt.Errorf("write to ffplay: %w", err)
	}

	duration := time.Duration(len(samples)) * time.Second / PlaybackSampleRate
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

// Halt cuts audible output immediately by restarting the player, discarding
// anything buffered in its pipe. The cut chunk's completion never fires.
func (s *Sink) Halt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.killLocked()
	if err := s.startLocked(); err != nil {
		s.stdin = nil
	}
}

// Close releases the player process.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.killLocked()
	return nil
}

func (s *Sink) killLocked() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	s.stdin = nil
}
