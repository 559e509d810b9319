package capture

import "github.com/grovesolutions/sapling-live/internal/codec"

// DefaultBlockSize is the number of samples accumulated before a block is
// emitted, matching the fixed block length of the capture worklet.
const DefaultBlockSize = 2048

// Accumulator gathers incoming microphone frames into fixed-size blocks and
// emits each completed block as 16-bit little-endian PCM. It never emits a
// partial block; whatever is buffered when the pipeline tears down is
// discarded, which is acceptable for a continuous stream.
type Accumulator struct {
	block []float32
	fill  int
	emit  func(pcm []byte)
}

// NewAccumulator creates an accumulator emitting blockSize-sample blocks
// through emit. A non-positive blockSize falls back to DefaultBlockSize.
func NewAccumulator(blockSize int, emit func(pcm []byte)) *Accumulator {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Accumulator{
		block: make([]float32, blockSize),
		emit:  emit,
	}
}

// Write appends one frame of samples, emitting a block every time the buffer
// fills.
func (a *Accumulator) Write(frame []float32) {
	for _, s := range frame {
		a.block[a.fill] = s
		a.fill++
		if a.fill == len(a.block) {
			a.emit(codec.FloatToBytes(a.block))
			a.fill = 0
		}
	}
}

// Pending reports how many samples are buffered below one block boundary.
func (a *Accumulator) Pending() int {
	return a.fill
}
