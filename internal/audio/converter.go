package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeFloat32 converts normalized float samples (-1..1) to 16-bit signed PCM.
// Out-of-range input is clamped so the conversion never overflows.
func EncodeFloat32(samples []float32) []int16 {
	pcm := make([]int16, len(samples))
	for i, s := range samples {
		pcm[i] = floatToPCM16(s)
	}
	return pcm
}

// floatToPCM16 scales negative samples by 32768 and positive samples by 32767
// so both ends of the range map exactly onto the int16 limits.
func floatToPCM16(s float32) int16 {
	if s != s { // NaN
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(math.Round(float64(s) * 32768))
	}
	return int16(math.Round(float64(s) * 32767))
}

// EncodePCM16 serializes samples as little-endian bytes.
func EncodePCM16(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// EncodeBase64 is the wire form of a frame: base64 of little-endian PCM16.
func EncodeBase64(pcm []int16) string {
	return base64.StdEncoding.EncodeToString(EncodePCM16(pcm))
}

// DecodePCM16 parses little-endian 16-bit PCM bytes.
func DecodePCM16(data []byte) ([]int16, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty PCM data")
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples)")
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples, nil
}

// CalculateRMS calculates the root mean square of normalized samples.
func CalculateRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// Level maps a frame to an advisory loudness in [0,1]: RMS scaled by
// sensitivity and clamped.
func Level(samples []float32, sensitivity float64) float64 {
	level := CalculateRMS(samples) * sensitivity
	if level > 1 {
		return 1
	}
	if level < 0 || level != level {
		return 0
	}
	return level
}

// SilentFrame returns a zeroed PCM frame of the given size.
func SilentFrame(size int) []int16 {
	return make([]int16, size)
}
