package speech

import (
	"github.com/lexiqai/live-captions/internal/observability"
	"github.com/lexiqai/live-captions/internal/protocol"
)

// Discard reasons reported to metrics.
const (
	discardStaleInterim     = "stale_interim"
	discardAlreadyFinalized = "already_finalized"
	discardUnknownUtterance = "unknown_utterance"
)

// handleEvent applies the acceptance policy to one inbound event.
func (s *Session) handleEvent(ev protocol.Event) {
	if !s.recording {
		return
	}

	switch e := ev.(type) {
	case protocol.InterimUpdate:
		s.handleInterim(e)
	case protocol.FinalUpdate:
		s.handleFinal(e)
	case protocol.StreamRestartPending:
		s.handleRestartPending(e)
	case protocol.StreamRestarted:
		s.lifecycle.Restarted(e.NewUtteranceID)
	case protocol.TranslationResult, protocol.TranslationAck, protocol.RequestMissedResults:
		// Display-side traffic, handled by results.Receiver.
	case protocol.AudioChunk, protocol.StopStreaming:
		s.protocolError(ev, "outbound event received from service")
	default:
		s.protocolError(ev, "unexpected event")
	}
}

func (s *Session) handleInterim(e protocol.InterimUpdate) {
	if !s.lifecycle.AcceptInterim(e.UtteranceID) {
		s.metrics.RecordDiscarded(discardStaleInterim)
		s.logger.Debug().
			Str("utterance_id", e.UtteranceID).
			Str("current_id", s.lifecycle.CurrentID()).
			Msg("Discarding interim for non-current utterance")
		return
	}

	s.lifecycle.UpdateText(e.Transcript)
	s.lifecycle.MarkSpeech(s.sched.Now())
	s.metrics.RecordInterim()

	if s.cb.OnInterim != nil {
		s.cb.OnInterim(Transcript{
			Text:        e.Transcript,
			UtteranceID: e.UtteranceID,
			Confidence:  e.Confidence,
		})
	}
}

func (s *Session) handleFinal(e protocol.FinalUpdate) {
	u, wasCurrent, ok := s.lifecycle.CommitFinal(e.UtteranceID, e.Transcript)
	if !ok {
		reason := discardUnknownUtterance
		if s.lifecycle.IsFinalized(e.UtteranceID) {
			reason = discardAlreadyFinalized
		}
		s.metrics.RecordDiscarded(reason)
		s.logger.Debug().
			Str("utterance_id", e.UtteranceID).
			Str("reason", reason).
			Msg("Discarding final")
		return
	}

	s.deliverFinal(u, e.Confidence, false)
	if wasCurrent {
		s.nextUtterance()
	}
}

func (s *Session) handleRestartPending(e protocol.StreamRestartPending) {
	u, ok := s.lifecycle.RestartPending(e.Reason)
	if !ok {
		return
	}
	s.metrics.RecordUtteranceStart(u.ID, u.CreatedAt)
}

func (s *Session) protocolError(ev protocol.Event, msg string) {
	name := ev.EventName()
	observability.RecordProtocolError(name)
	s.logger.Warn().Str("event", name).Msg(msg)
}
