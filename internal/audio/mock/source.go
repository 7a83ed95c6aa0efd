// Package mock provides a scripted implementation of [audio.Source] for tests.
//
// Frames are only delivered when the test calls Emit, EmitAll or Push, so a
// test fully controls the interleaving of audio with timers and inbound
// messages:
//
//	src := &mock.Source{Frames: [][]float32{loud, quiet}}
//	session.Start(ctx)
//	src.Emit() // delivers loud
package mock

import (
	"context"
	"math"
	"sync"

	"github.com/lexiqai/live-captions/internal/audio"
)

// Source replays scripted frames. Safe for concurrent use.
type Source struct {
	mu sync.Mutex

	// Frames are delivered in order by Emit.
	Frames [][]float32

	// OpenError is returned by Open.
	OpenError error

	// Sensitivity scales levels; zero means audio.DefaultSensitivity.
	Sensitivity float64

	// DeviceID records the argument of the last Open call.
	DeviceID string

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	onFrame func([]float32)
	next    int
	level   float64
	open    bool
	buffer  *audio.FrameBuffer
}

// Open records the call and returns OpenError.
func (s *Source) Open(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountOpen++
	s.DeviceID = deviceID
	if s.OpenError != nil {
		return s.OpenError
	}
	s.open = true
	return nil
}

// OnFrame registers the frame callback.
func (s *Source) OnFrame(fn func(samples []float32)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrame = fn
}

// Level returns the level of the last delivered frame.
func (s *Source) Level() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// Close marks the source closed; later Emit calls deliver nothing.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	s.open = false
	return nil
}

// IsOpen reports whether Open succeeded and Close has not been called.
func (s *Source) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Emit delivers the next scripted frame and reports whether one was delivered.
func (s *Source) Emit() bool {
	s.mu.Lock()
	if !s.open || s.next >= len(s.Frames) {
		s.mu.Unlock()
		return false
	}
	frame := s.Frames[s.next]
	s.next++
	fn := s.deliverLocked(frame)
	s.mu.Unlock()

	if fn != nil {
		fn(frame)
	}
	return true
}

// EmitAll delivers every remaining scripted frame and returns the count.
func (s *Source) EmitAll() int {
	n := 0
	for s.Emit() {
		n++
	}
	return n
}

// Push re-chunks arbitrary samples into audio.FrameSize frames and delivers
// every complete frame. It returns the number of frames delivered.
func (s *Source) Push(samples []float32) int {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return 0
	}
	if s.buffer == nil {
		s.buffer = audio.NewFrameBuffer(4*audio.FrameSize, audio.FrameSize)
	}
	s.buffer.Write(samples)
	var frames [][]float32
	for f := s.buffer.NextFrame(); f != nil; f = s.buffer.NextFrame() {
		frames = append(frames, f)
	}
	s.mu.Unlock()

	for _, f := range frames {
		s.mu.Lock()
		fn := s.deliverLocked(f)
		s.mu.Unlock()
		if fn != nil {
			fn(f)
		}
	}
	return len(frames)
}

func (s *Source) deliverLocked(frame []float32) func([]float32) {
	sensitivity := s.Sensitivity
	if sensitivity <= 0 {
		sensitivity = audio.DefaultSensitivity
	}
	s.level = audio.Level(frame, sensitivity)
	return s.onFrame
}

// Tone returns a constant-amplitude frame of audio.FrameSize samples whose
// level at the default sensitivity is approximately level.
func Tone(level float64) []float32 {
	amp := float32(math.Min(level/audio.DefaultSensitivity, 1))
	frame := make([]float32, audio.FrameSize)
	for i := range frame {
		if i%2 == 0 {
			frame[i] = amp
		} else {
			frame[i] = -amp
		}
	}
	return frame
}

// Silence returns a zeroed frame of audio.FrameSize samples.
func Silence() []float32 {
	return make([]float32, audio.FrameSize)
}
