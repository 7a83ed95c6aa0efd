package audio

import (
	"sync"
)

// FrameBuffer is a thread-safe ring buffer of float samples that re-chunks
// arbitrary-length writes into fixed-size frames.
type FrameBuffer struct {
	buffer    []float32
	size      int
	frameSize int
	read      int
	write     int
	mu        sync.RWMutex
}

// NewFrameBuffer creates a buffer able to hold capacity samples and emitting
// frames of frameSize samples. Capacity is raised to at least two frames.
func NewFrameBuffer(capacity, frameSize int) *FrameBuffer {
	if frameSize <= 0 {
		frameSize = FrameSize
	}
	if capacity < 2*frameSize {
		capacity = 2 * frameSize
	}
	return &FrameBuffer{
		// one slot stays empty to tell full from empty
		buffer:    make([]float32, capacity+1),
		size:      capacity + 1,
		frameSize: frameSize,
	}
}

// Write appends samples and returns how many were stored (less than
// len(samples) if the buffer is full).
func (fb *FrameBuffer) Write(samples []float32) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	written := 0
	for i := 0; i < len(samples); i++ {
		if (fb.write+1)%fb.size == fb.read {
			break
		}

		fb.buffer[fb.write] = samples[i]
		fb.write = (fb.write + 1) % fb.size
		written++
	}

	return written
}

// NextFrame removes and returns one full frame, or nil if fewer than
// frameSize samples are buffered.
func (fb *FrameBuffer) NextFrame() []float32 {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.available() < fb.frameSize {
		return nil
	}

	frame := make([]float32, fb.frameSize)
	for i := range frame {
		frame[i] = fb.buffer[fb.read]
		fb.read = (fb.read + 1) % fb.size
	}
	return frame
}

// Available returns the number of buffered samples.
func (fb *FrameBuffer) Available() int {
	fb.mu.RLock()
	defer fb.mu.RUnlock()
	return fb.available()
}

func (fb *FrameBuffer) available() int {
	if fb.write >= fb.read {
		return fb.write - fb.read
	}
	return fb.size - fb.read + fb.write
}

// Space returns the number of samples that can still be written.
func (fb *FrameBuffer) Space() int {
	fb.mu.RLock()
	defer fb.mu.RUnlock()

	return fb.size - fb.available() - 1
}

// FrameSize returns the size of emitted frames.
func (fb *FrameBuffer) FrameSize() int {
	return fb.frameSize
}

// Clear drops all buffered samples.
func (fb *FrameBuffer) Clear() {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	fb.read = 0
	fb.write = 0
}
