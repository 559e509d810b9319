package playback

import (
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/grovesolutions/sapling-live/internal/codec"
)

// fakeSink records played chunks and lets the test drive completion callbacks
// manually, so chunk boundaries are fully deterministic.
type fakeSink struct {
	mu      sync.Mutex
	played  [][]float32
	pending []func()
	halts   int
	failAll bool
}

func (s *fakeSink) Play(samples []float32, done func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errSinkClosed
	}
	s.played = append(s.played, samples)
	s.pending = append(s.pending, done)
	return nil
}

func (s *fakeSink) Halt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halts++
	// A halted chunk's done must never fire.
	s.pending = nil
}

func (s *fakeSink) Close() error { return nil }

// completeNext fires the oldest outstanding completion callback.
func (s *fakeSink) completeNext(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		t.Fatal("no pending chunk to complete")
	}
	done := s.pending[0]
	s.pending = s.pending[1:]
	s.mu.Unlock()
	done()
}

func (s *fakeSink) playedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.played)
}

type sinkError string

func (e sinkError) Error() string { return string(e) }

const errSinkClosed = sinkError("sink closed")

func chunk(vals ...float32) []float32 { return vals }

func TestFIFOOrderAndNoOverlap(t *testing.T) {
	sink := &fakeSink{}
	q := NewQueue(sink, nil, nil, zap.NewNop())

	a, b, c := chunk(0.1), chunk(0.2), chunk(0.3)
	q.Enqueue(a)
	q.Enqueue(b)
	q.Enqueue(c)

	// Only the head chunk may be in flight until its completion fires.
	if got := sink.playedCount(); got != 1 {
		t.Fatalf("expected 1 chunk in flight, got %d", got)
	}

	sink.completeNext(t)
	if got := sink.playedCount(); got != 2 {
		t.Fatalf("expected 2 chunks played after first completion, got %d", got)
	}
	sink.completeNext(t)
	sink.completeNext(t)

	if got := sink.playedCount(); got != 3 {
		t.Fatalf("expected 3 chunks played, got %d", got)
	}
	if sink.played[0][0] != 0.1 || sink.played[1][0] != 0.2 || sink.played[2][0] != 0.3 {
		t.Errorf("chunks played out of order: %v", sink.played)
	}
}

func TestStartAndEndSignals(t *testing.T) {
	sink := &fakeSink{}
	var starts, ends int
	q := NewQueue(sink, func() { starts++ }, func() { ends++ }, zap.NewNop())

	q.Enqueue(chunk(0.1))
	q.Enqueue(chunk(0.2))
	if starts != 1 {
		t.Errorf("expected one start signal after first chunk, got %d", starts)
	}
	if ends != 0 {
		t.Errorf("expected no end signal while playing, got %d", ends)
	}

	sink.completeNext(t)
	sink.completeNext(t)
	if ends != 1 {
		t.Errorf("expected one end signal after drain, got %d", ends)
	}

	// A fresh chunk after idle signals start again.
	q.Enqueue(chunk(0.3))
	if starts != 2 {
		t.Errorf("expected second start signal after idle, got %d", starts)
	}
}

func TestClearDropsPendingButStaysOpen(t *testing.T) {
	sink := &fakeSink{}
	q := NewQueue(sink, nil, nil, zap.NewNop())

	q.Enqueue(chunk(0.1))
	q.Enqueue(chunk(0.2))
	q.Clear()

	if sink.halts != 1 {
		t.Errorf("expected the in-flight chunk to be halted, got %d halts", sink.halts)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue after clear, got %d", q.Len())
	}

	// The queue stays open: new chunks play normally.
	q.Enqueue(chunk(0.3))
	if got := sink.playedCount(); got != 2 {
		t.Fatalf("expected chunk after clear to play, played=%d", got)
	}
	if sink.played[1][0] != 0.3 {
		t.Errorf("expected chunk 0.3 after clear, got %v", sink.played[1])
	}
}

func TestStopDropsUntilReset(t *testing.T) {
	sink := &fakeSink{}
	q := NewQueue(sink, nil, nil, zap.NewNop())

	q.Enqueue(chunk(0.1))
	q.Stop()

	q.Enqueue(chunk(0.2))
	if got := sink.playedCount(); got != 1 {
		t.Fatalf("expected enqueue after stop to be dropped, played=%d", got)
	}

	q.Reset()
	q.Enqueue(chunk(0.3))
	if got := sink.playedCount(); got != 2 {
		t.Fatalf("expected enqueue after reset to play, played=%d", got)
	}
}

func TestStopSignalsEnd(t *testing.T) {
	sink := &fakeSink{}
	var ends int
	q := NewQueue(sink, nil, func() { ends++ }, zap.NewNop())

	q.Enqueue(chunk(0.1))
	q.Stop()
	if ends == 0 {
		t.Error("expected end signal on stop")
	}
}

func TestStaleCompletionAfterClearIsIgnored(t *testing.T) {
	sink := &fakeSink{}
	q := NewQueue(sink, nil, nil, zap.NewNop())

	q.Enqueue(chunk(0.1))
	q.Enqueue(chunk(0.2))

	sink.mu.Lock()
	staleDone := sink.pending[0]
	sink.pending = nil
	sink.mu.Unlock()

	q.Clear()

	// The halted chunk's completion arriving late must not restart playback
	// of state that no longer exists.
	staleDone()
	if got := sink.playedCount(); got != 1 {
		t.Errorf("stale completion advanced the scheduler: played=%d", got)
	}
	if q.Playing() {
		t.Error("queue reports playing after clear and stale completion")
	}
}

func TestEnqueueBytesDecodesPCM(t *testing.T) {
	sink := &fakeSink{}
	q := NewQueue(sink, nil, nil, zap.NewNop())

	pcm := codec.Int16ToBytes([]int16{16384, -16384})
	q.EnqueueBytes(pcm)

	if got := sink.playedCount(); got != 1 {
		t.Fatalf("expected decoded chunk to play, played=%d", got)
	}
	got := sink.played[0]
	if len(got) != 2 || got[0] != 0.5 || got[1] != -0.5 {
		t.Errorf("unexpected decoded samples: %v", got)
	}
}

func TestEmptyChunkIgnored(t *testing.T) {
	sink := &fakeSink{}
	q := NewQueue(sink, nil, nil, zap.NewNop())

	q.Enqueue(nil)
	q.Enqueue([]float32{})
	if got := sink.playedCount(); got != 0 {
		t.Errorf("expected empty chunks to be ignored, played=%d", got)
	}
}

func TestSinkErrorSkipsChunk(t *testing.T) {
	sink := &fakeSink{failAll: true}
	q := NewQueue(sink, nil, nil, zap.NewNop())

	q.Enqueue(chunk(0.1))
	if q.Playing() {
		t.Error("queue stuck playing after sink rejected every chunk")
	}
}
