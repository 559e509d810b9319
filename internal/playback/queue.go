// Package playback implements the ordered queue and gapless scheduler for
// assistant audio. Chunks arrive with arbitrary timing and size from the
// network receive callback; the scheduler plays them strictly FIFO,
// back-to-back, chaining each chunk off the previous chunk's completion
// callback rather than polling the clock.
package playback

import (
	"sync"

	"go.uber.org/zap"

	"github.com/grovesolutions/sapling-live/domain/repositories"
	"github.com/grovesolutions/sapling-live/internal/codec"
)

// Queue buffers decoded audio chunks and drains them through a PlaybackSink.
//
// Enqueue, Clear, Stop and Reset are the only mutation entry points and are
// safe to call from any goroutine, including while the sink is mid-chunk.
type Queue struct {
	sink   repositories.PlaybackSink
	logger *zap.Logger

	onStart func()
	onEnd   func()

	mu      sync.Mutex
	chunks  [][]float32
	playing bool
	stopped bool
	// epoch invalidates completion callbacks from chunks that were cut short
	// by Clear or Stop; a stale done must not advance the scheduler.
	epoch uint64
}

// NewQueue creates a playback queue draining into sink. onStart fires the
// first time a chunk begins playing after an idle period; onEnd fires when the
// queue drains with nothing more scheduled, and on Stop. Either callback may
// be nil.
func NewQueue(sink repositories.PlaybackSink, onStart, onEnd func(), logger *zap.Logger) *Queue {
	return &Queue{
		sink:    sink,
		logger:  logger,
		onStart: onStart,
		onEnd:   onEnd,
	}
}

// Enqueue appends a chunk of normalized samples to the tail of the queue and
// kicks the scheduler if it is idle. Chunks enqueued after Stop are dropped
// until Reset reopens the queue.
func (q *Queue) Enqueue(samples []float32) {
	if len(samples) == 0 {
		return
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		q.logger.Debug("Dropping chunk enqueued on stopped queue",
			zap.Int("samples", len(samples)))
		return
	}
	q.chunks = append(q.chunks, samples)
	if q.playing {
		q.mu.Unlock()
		return
	}
	q.playing = true
	q.mu.Unlock()

	if q.onStart != nil {
		q.onStart()
	}
	q.playNext()
}

// EnqueueBytes accepts raw 16-bit little-endian PCM, normalizes it to floats
// and enqueues it.
func (q *Queue) EnqueueBytes(pcm []byte) {
	q.Enqueue(codec.BytesToFloat(pcm))
}

// playNext dequeues the head chunk and hands it to the sink. The next chunk
// starts from the sink's completion callback, so consecutive chunks play with
// no gap and no overlap.
func (q *Queue) playNext() {
	for {
		q.mu.Lock()
		if q.stopped || len(q.chunks) == 0 {
			stopped := q.stopped
			q.playing = false
			q.mu.Unlock()
			if !stopped && q.onEnd != nil {
				q.onEnd()
			}
			return
		}

		chunk := q.chunks[0]
		q.chunks = q.chunks[1:]
		epoch := q.epoch
		q.mu.Unlock()

		err := q.sink.Play(chunk, func() { q.chunkDone(epoch) })
		if err == nil {
			return
		}
		q.logger.Warn("Playback sink rejected chunk, skipping",
			zap.Int("samples", len(chunk)),
			zap.Error(err))
	}
}

// chunkDone advances the scheduler when a chunk's audible output ends.
// Completions belonging to a superseded epoch are ignored.
func (q *Queue) chunkDone(epoch uint64) {
	q.mu.Lock()
	if epoch != q.epoch || !q.playing {
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()
	q.playNext()
}

// Clear drops all queued chunks and forcibly stops the one currently playing,
// but leaves the queue open for future chunks. Used on user interruption.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.chunks = nil
	q.playing = false
	q.epoch++
	q.mu.Unlock()

	q.sink.Halt()
}

// Stop clears the queue and additionally marks it closed: subsequent Enqueue
// calls are dropped until Reset. Used on session teardown.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.chunks = nil
	q.playing = false
	q.stopped = true
	q.epoch++
	q.mu.Unlock()

	q.sink.Halt()
	if q.onEnd != nil {
		q.onEnd()
	}
}

// Reset reopens a stopped queue for reuse without recreating it.
func (q *Queue) Reset() {
	q.mu.Lock()
	q.chunks = nil
	q.playing = false
	q.stopped = false
	q.epoch++
	q.mu.Unlock()

	q.sink.Halt()
}

// Playing reports whether a chunk is currently scheduled or audible.
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Len reports how many chunks are queued but not yet playing.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}
