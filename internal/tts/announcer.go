package tts

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Announcer synthesizes text and plays it.
type Announcer struct {
	synth  Synthesizer
	player Player
	logger zerolog.Logger
}

// NewAnnouncer pairs a synthesizer with a player.
func NewAnnouncer(synth Synthesizer, player Player, logger zerolog.Logger) *Announcer {
	return &Announcer{
		synth:  synth,
		player: player,
		logger: logger.With().Str("component", "announcer").Logger(),
	}
}

// Speak synthesizes text in languageCode and blocks until playback ends.
func (a *Announcer) Speak(ctx context.Context, text, languageCode string) error {
	speech, err := a.synth.Synthesize(ctx, text, languageCode)
	if err != nil {
		return err
	}
	if len(speech.PCM) == 0 {
		a.logger.Warn().Str("language", languageCode).Msg("TTS returned no audio")
		return nil
	}
	if err := a.player.Play(ctx, speech.PCM); err != nil {
		return fmt.Errorf("failed to play speech: %w", err)
	}
	return nil
}
