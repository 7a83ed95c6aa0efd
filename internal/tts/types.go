// Package tts speaks translated captions through the text-to-speech service.
package tts

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyText is returned when there is nothing to synthesize.
var ErrEmptyText = errors.New("tts: empty text")

// Request is the body of POST /tts.
type Request struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode"`
}

// Audio is synthesized speech as mono LINEAR16 samples.
type Audio struct {
	PCM        []int16
	SampleRate int
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, languageCode string) (*Audio, error)
}

// Player plays PCM samples.
type Player interface {
	Play(ctx context.Context, pcm []int16) error
}

// StatusError reports a non-2xx response from the TTS service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("tts: service returned status %d", e.Code)
	}
	return fmt.Sprintf("tts: service returned status %d: %s", e.Code, e.Body)
}
