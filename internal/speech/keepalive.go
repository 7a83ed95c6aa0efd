package speech

import "github.com/lexiqai/live-captions/internal/audio"

// keepAlive sends one silent frame when no real audio has been handed to the
// queue for KeepAliveIdle, so the service does not time the stream out.
func (s *Session) keepAlive() {
	if !s.recording {
		return
	}
	if s.sched.Now().Sub(s.lastAudioSent) < s.opts.KeepAliveIdle {
		return
	}

	s.logger.Debug().Dur("idle", s.sched.Now().Sub(s.lastAudioSent)).Msg("Sending keep-alive frame")
	s.sendAudio(audio.NewSilentFrame(), true)
}
