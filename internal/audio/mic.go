package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

// hardwareBufferSize is the PortAudio read size; reads are re-chunked into
// FrameSize frames so the device can run at low latency.
const hardwareBufferSize = 1024

// MicSource captures mono 48 kHz audio through PortAudio.
type MicSource struct {
	sensitivity float64
	logger      zerolog.Logger

	mu      sync.Mutex
	onFrame func([]float32)
	stream  *portaudio.Stream
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	open    bool

	level atomic.Uint64
}

// NewMicSource creates a microphone source. sensitivity <= 0 uses DefaultSensitivity.
func NewMicSource(sensitivity float64, logger zerolog.Logger) *MicSource {
	if sensitivity <= 0 {
		sensitivity = DefaultSensitivity
	}
	return &MicSource{
		sensitivity: sensitivity,
		logger:      logger.With().Str("component", "microphone").Logger(),
	}
}

// OnFrame registers the frame callback.
func (m *MicSource) OnFrame(fn func(samples []float32)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFrame = fn
}

// Open initializes PortAudio and starts capturing from deviceID (an index
// returned by ListDevices) or the default input device.
func (m *MicSource) Open(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open {
		return fmt.Errorf("audio: microphone already open")
	}

	if err := portaudio.Initialize(); err != nil {
		return &PermissionError{Op: "initialize", Device: deviceID, Err: err}
	}

	device, err := resolveInputDevice(deviceID)
	if err != nil {
		portaudio.Terminate()
		return &PermissionError{Op: "enumerate", Device: deviceID, Err: err}
	}

	// PortAudio has no echo-cancellation or noise-suppression controls; the
	// host's default input processing applies.
	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = 1
	params.SampleRate = SampleRate
	params.FramesPerBuffer = hardwareBufferSize

	buffer := make([]float32, hardwareBufferSize)
	stream, err := portaudio.OpenStream(params, buffer)
	if err != nil {
		portaudio.Terminate()
		return &PermissionError{Op: "open", Device: deviceID, Err: err}
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return &PermissionError{Op: "start", Device: deviceID, Err: err}
	}

	readCtx, cancel := context.WithCancel(ctx)
	m.stream = stream
	m.cancel = cancel
	m.open = true

	m.logger.Info().
		Str("device", device.Name).
		Int("sample_rate", SampleRate).
		Int("frame_size", FrameSize).
		Msg("Microphone capture started")

	m.wg.Add(1)
	go m.readLoop(readCtx, stream, buffer, m.onFrame)
	return nil
}

func (m *MicSource) readLoop(ctx context.Context, stream *portaudio.Stream, buffer []float32, onFrame func([]float32)) {
	defer m.wg.Done()

	frames := NewFrameBuffer(4*FrameSize, FrameSize)
	for {
		if ctx.Err() != nil {
			return
		}

		if err := stream.Read(); err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, portaudio.InputOverflowed) {
				m.logger.Warn().Msg("Microphone input overflowed, samples dropped")
				continue
			}
			m.logger.Error().Err(err).Msg("Microphone read failed, stopping capture")
			return
		}

		if written := frames.Write(buffer); written < len(buffer) {
			m.logger.Warn().Int("dropped", len(buffer)-written).Msg("Frame buffer overflow")
		}

		for frame := frames.NextFrame(); frame != nil; frame = frames.NextFrame() {
			m.level.Store(math.Float64bits(Level(frame, m.sensitivity)))
			if onFrame != nil {
				onFrame(frame)
			}
		}
	}
}

// Level returns the level of the most recent frame.
func (m *MicSource) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

// Close stops capture and releases PortAudio.
func (m *MicSource) Close() error {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return nil
	}
	m.open = false
	stream := m.stream
	m.cancel()
	m.mu.Unlock()

	stopErr := stream.Stop()
	m.wg.Wait()
	closeErr := stream.Close()
	termErr := portaudio.Terminate()

	m.logger.Info().Msg("Microphone capture stopped")
	return errors.Join(stopErr, closeErr, termErr)
}

// ListDevices enumerates capture devices. IDs are PortAudio device indexes.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &PermissionError{Op: "initialize", Err: err}
	}
	defer portaudio.Terminate()

	all, err := portaudio.Devices()
	if err != nil {
		return nil, &PermissionError{Op: "enumerate", Err: err}
	}

	var devices []Device
	for i, info := range all {
		if info.MaxInputChannels > 0 {
			devices = append(devices, Device{ID: strconv.Itoa(i), Label: info.Name})
		}
	}
	return devices, nil
}

func resolveInputDevice(deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoInputDevice, err)
		}
		return device, nil
	}

	index, err := strconv.Atoi(deviceID)
	if err != nil {
		return nil, fmt.Errorf("invalid device id %q: %w", deviceID, err)
	}
	all, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(all) {
		return nil, fmt.Errorf("%w: index %d out of range", ErrNoInputDevice, index)
	}
	if all[index].MaxInputChannels < 1 {
		return nil, fmt.Errorf("%w: device %q has no input channels", ErrNoInputDevice, all[index].Name)
	}
	return all[index], nil
}
