package results

import (
	"context"

	"github.com/lexiqai/live-captions/internal/observability"
	"github.com/lexiqai/live-captions/internal/protocol"
	"github.com/lexiqai/live-captions/internal/scheduler"
	"github.com/lexiqai/live-captions/internal/transport"
	"github.com/rs/zerolog"
)

// Speaker reads a displayed translation aloud.
type Speaker interface {
	Speak(ctx context.Context, text, languageCode string) error
}

// Options configures a Receiver.
type Options struct {
	DeliveryIDCapacity int
	ContentKeyCapacity int
	SpeakQueueSize     int
}

// DefaultOptions returns the default receiver options.
func DefaultOptions() Options {
	return Options{
		DeliveryIDCapacity: DefaultDeliveryIDCapacity,
		ContentKeyCapacity: DefaultContentKeyCapacity,
		SpeakQueueSize:     16,
	}
}

type speakJob struct {
	text     string
	language string
}

// Receiver consumes translationResult events from the transport, displays
// each one at most once and acknowledges every delivery.
type Receiver struct {
	tr        transport.Transport
	sched     scheduler.Scheduler
	dedup     *Deduplicator
	onDisplay func(protocol.TranslationResult)
	speaker   Speaker
	speak     chan speakJob
	logger    zerolog.Logger
}

// NewReceiver wires a receiver onto tr. Inbound events and reconnects are
// handled on sched. speaker may be nil.
func NewReceiver(tr transport.Transport, sched scheduler.Scheduler, opts Options, onDisplay func(protocol.TranslationResult), speaker Speaker, logger zerolog.Logger) *Receiver {
	if opts.SpeakQueueSize <= 0 {
		opts.SpeakQueueSize = DefaultOptions().SpeakQueueSize
	}

	r := &Receiver{
		tr:        tr,
		sched:     sched,
		dedup:     NewDeduplicator(opts.DeliveryIDCapacity, opts.ContentKeyCapacity),
		onDisplay: onDisplay,
		speaker:   speaker,
		logger:    logger.With().Str("component", "receiver").Logger(),
	}
	if speaker != nil {
		r.speak = make(chan speakJob, opts.SpeakQueueSize)
	}

	tr.OnMessage(func(ev protocol.Event) {
		if res, ok := ev.(protocol.TranslationResult); ok {
			sched.Post(func() { r.handle(res) })
		}
	})
	tr.OnConnect(func() {
		sched.Post(r.requestMissed)
	})

	return r
}

// Run plays queued translations through the speaker until ctx is done.
func (r *Receiver) Run(ctx context.Context) error {
	if r.speaker == nil {
		<-ctx.Done()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-r.speak:
			if err := r.speaker.Speak(ctx, job.text, job.language); err != nil && ctx.Err() == nil {
				observability.RecordError("speak_failed", "receiver")
				r.logger.Warn().Err(err).Str("language", job.language).Msg("Failed to speak translation")
			}
		}
	}
}

func (r *Receiver) handle(res protocol.TranslationResult) {
	if res.DeliveryID != "" {
		r.ack(res.DeliveryID)
	}

	decision := r.dedup.Accept(res)
	switch decision {
	case DuplicateDelivery:
		observability.RecordResultDuplicate("delivery_id")
		r.logger.Debug().Str("delivery_id", res.DeliveryID).Msg("Ignoring redelivered result")
		return
	case DuplicateContent:
		observability.RecordResultDuplicate("content")
		r.logger.Debug().Str("utterance_id", res.UtteranceID).Msg("Ignoring duplicate result")
		return
	}

	observability.RecordResultDisplayed()
	if r.onDisplay != nil {
		r.onDisplay(res)
	}
	r.enqueueSpeech(res)
}

func (r *Receiver) ack(deliveryID string) {
	if err := r.tr.Send(protocol.TranslationAck{DeliveryID: deliveryID}); err != nil {
		// The service redelivers unacknowledged results; the next copy is acked.
		r.logger.Debug().Err(err).Str("delivery_id", deliveryID).Msg("Failed to send ack")
	}
}

func (r *Receiver) requestMissed() {
	if err := r.tr.Send(protocol.RequestMissedResults{}); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to request missed results")
		return
	}
	r.logger.Info().Msg("Requested missed results")
}

func (r *Receiver) enqueueSpeech(res protocol.TranslationResult) {
	if r.speak == nil || res.TranslatedText == "" {
		return
	}
	select {
	case r.speak <- speakJob{text: res.TranslatedText, language: res.TargetLanguage}:
	default:
		r.logger.Warn().Str("utterance_id", res.UtteranceID).Msg("Speech queue full, skipping playback")
	}
}
