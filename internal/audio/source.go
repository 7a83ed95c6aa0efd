// Package audio captures microphone audio and converts it to the wire format
// expected by the transcription service.
package audio

import (
	"context"
	"errors"
	"fmt"
)

const (
	// SampleRate is negotiated explicitly; some hosts default to 44.1 kHz
	// and the service rejects anything but 48 kHz.
	SampleRate = 48000

	// FrameSize is the number of samples per emitted frame (~85 ms at 48 kHz).
	FrameSize = 4096

	// Encoding names the PCM format of encoded frames.
	Encoding = "LINEAR16"

	// DefaultSensitivity scales frame RMS into the [0,1] level range.
	DefaultSensitivity = 5.0
)

// ErrNoInputDevice is wrapped in a PermissionError when no capture device exists.
var ErrNoInputDevice = errors.New("no input device available")

// Frame is one block of encoded samples ready for delivery.
type Frame struct {
	Samples    []int16
	SampleRate int
	Encoding   string
}

// NewFrame encodes float samples into a Frame.
func NewFrame(samples []float32) Frame {
	return Frame{
		Samples:    EncodeFloat32(samples),
		SampleRate: SampleRate,
		Encoding:   Encoding,
	}
}

// NewSilentFrame returns FrameSize samples of digital silence.
func NewSilentFrame() Frame {
	return Frame{
		Samples:    SilentFrame(FrameSize),
		SampleRate: SampleRate,
		Encoding:   Encoding,
	}
}

// Base64 returns the frame's little-endian PCM bytes, base64 encoded.
func (f Frame) Base64() string {
	return EncodeBase64(f.Samples)
}

// Size returns the encoded size in bytes.
func (f Frame) Size() int {
	return len(f.Samples) * 2
}

// Device describes a capture device.
type Device struct {
	ID    string
	Label string
}

// Source is a microphone capability. Frames are delivered on a goroutine
// owned by the source; consumers must hand them to their own event loop.
type Source interface {
	// Open acquires the device. An empty deviceID selects the default input.
	// Access or enumeration failures are returned as *PermissionError.
	Open(ctx context.Context, deviceID string) error

	// OnFrame registers the frame callback. Must be called before Open.
	OnFrame(fn func(samples []float32))

	// Level returns the level of the most recent frame in [0,1].
	Level() float64

	// Close releases the device. Safe to call more than once.
	Close() error
}

// PermissionError reports that the microphone could not be acquired. It is
// fatal to a recording session.
type PermissionError struct {
	Op     string
	Device string
	Err    error
}

func (e *PermissionError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("audio: %s default microphone: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("audio: %s microphone %q: %v", e.Op, e.Device, e.Err)
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}
