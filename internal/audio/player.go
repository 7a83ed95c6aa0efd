package audio

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

const playbackBufferSize = 1024

// Player plays mono PCM16 through the default output device.
type Player struct {
	sampleRate int
}

// NewPlayer creates a player for audio at sampleRate Hz.
func NewPlayer(sampleRate int) *Player {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &Player{sampleRate: sampleRate}
}

// Play blocks until pcm has been written to the device or ctx is cancelled.
func (p *Player) Play(ctx context.Context, pcm []int16) error {
	if len(pcm) == 0 {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	out := make([]int16, playbackBufferSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(p.sampleRate), len(out), out)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	defer stream.Stop()

	for offset := 0; offset < len(pcm); offset += len(out) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(out, pcm[offset:])
		for i := n; i < len(out); i++ {
			out[i] = 0
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("failed to write audio: %w", err)
		}
	}
	return nil
}
