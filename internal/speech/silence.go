package speech

import "strings"

// pollSilence is the local finalization fallback. When the service has not
// finalized an utterance whose speech ended SpeechEndTimeout ago, the
// accumulated interim text is finalized locally.
func (s *Session) pollSilence() {
	if !s.recording {
		return
	}

	silenceStart := s.lifecycle.SilenceStart()
	if silenceStart.IsZero() {
		return
	}
	if s.sched.Now().Sub(silenceStart) < s.opts.SpeechEndTimeout {
		return
	}
	s.finalizeLocally("silence")
}

// finalizeLocally finalizes pending interim text. The lifecycle's
// finalized flag makes this a no-op when the service got there first.
func (s *Session) finalizeLocally(trigger string) {
	current, ok := s.lifecycle.Current()
	if !ok || current.Finalized || strings.TrimSpace(current.Text) == "" {
		return
	}

	u, ok := s.lifecycle.Finalize()
	if !ok {
		return
	}

	s.logger.Info().
		Str("utterance_id", u.ID).
		Str("trigger", trigger).
		Int("word_count", u.WordCount).
		Msg("Finalizing utterance locally")

	s.deliverFinal(u, 0, true)
	if s.recording {
		s.nextUtterance()
	}
}
