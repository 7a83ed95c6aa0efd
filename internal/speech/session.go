// Package speech runs one live-captioning recording session: it streams
// microphone audio to the transcription service and reconciles the service's
// interim and final transcripts into one ordered stream per utterance.
//
// All session state lives on the scheduler goroutine. Audio frames, inbound
// events and timers are posted to the scheduler and run one at a time, so
// the session needs no locks.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lexiqai/live-captions/internal/audio"
	"github.com/lexiqai/live-captions/internal/delivery"
	"github.com/lexiqai/live-captions/internal/observability"
	"github.com/lexiqai/live-captions/internal/protocol"
	"github.com/lexiqai/live-captions/internal/scheduler"
	"github.com/lexiqai/live-captions/internal/transport"
	"github.com/lexiqai/live-captions/internal/utterance"
	"github.com/rs/zerolog"
)

var (
	// ErrAlreadyRecording is returned by Start on a running session.
	ErrAlreadyRecording = errors.New("speech: session already recording")
	// ErrSessionClosed is returned by Start once the session has been
	// stopped. Each recording needs a new Session.
	ErrSessionClosed = errors.New("speech: session closed")
)

// Transcript is one transcript update handed to the caller.
type Transcript struct {
	Text        string
	UtteranceID string
	Confidence  float64
	// Local is set when the silence fallback produced the final.
	Local bool
}

// Callbacks receive session output. All run on the scheduler goroutine and
// any may be nil.
type Callbacks struct {
	OnInterim    func(Transcript)
	OnFinal      func(Transcript)
	OnError      func(error)
	OnStart      func(utteranceID string)
	OnEnd        func()
	OnAudioLevel func(level float64)
}

// Options configures a session.
type Options struct {
	SourceLanguage string
	DeviceID       string

	SpeechEndTimeout     time.Duration // Silence before the local fallback finalizes
	SilencePollInterval  time.Duration
	KeepAliveInterval    time.Duration
	KeepAliveIdle        time.Duration // No real audio for this long triggers a silent frame
	SpeechLevelThreshold float64
	SilenceFrames        int // Consecutive quiet frames before silence begins
	FlushOnStop          bool

	Delivery  delivery.Config
	Utterance utterance.Config
}

// DefaultOptions returns the standard session settings.
func DefaultOptions() Options {
	return Options{
		SourceLanguage:       "en-US",
		SpeechEndTimeout:     1 * time.Second,
		SilencePollInterval:  100 * time.Millisecond,
		KeepAliveInterval:    2 * time.Second,
		KeepAliveIdle:        5 * time.Second,
		SpeechLevelThreshold: 0.05,
		SilenceFrames:        2,
		FlushOnStop:          true,
		Delivery:             delivery.DefaultConfig(),
		Utterance:            utterance.DefaultConfig(),
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions()
	if o.SpeechEndTimeout <= 0 {
		o.SpeechEndTimeout = def.SpeechEndTimeout
	}
	if o.SilencePollInterval <= 0 {
		o.SilencePollInterval = def.SilencePollInterval
	}
	if o.KeepAliveInterval <= 0 {
		o.KeepAliveInterval = def.KeepAliveInterval
	}
	if o.KeepAliveIdle <= 0 {
		o.KeepAliveIdle = def.KeepAliveIdle
	}
	if o.SpeechLevelThreshold <= 0 {
		o.SpeechLevelThreshold = def.SpeechLevelThreshold
	}
	if o.SilenceFrames <= 0 {
		o.SilenceFrames = def.SilenceFrames
	}
}

// Session is one recording. Construct a new Session per recording.
type Session struct {
	id     string
	opts   Options
	cb     Callbacks
	sched  scheduler.Scheduler
	source audio.Source
	logger zerolog.Logger

	queue     *delivery.Queue
	lifecycle *utterance.Lifecycle
	detector  *audio.SpeechDetector
	metrics   *observability.SessionMetrics

	recording      bool
	recordingFlag  atomic.Bool
	closed         atomic.Bool
	lastAudioSent  time.Time
	silenceTimer   scheduler.Timer
	keepAliveTimer scheduler.Timer
}

// NewSession wires a session to its audio source and transport. Handlers are
// registered on both immediately; they are inert until Start.
func NewSession(src audio.Source, tr transport.Transport, sched scheduler.Scheduler, opts Options, cb Callbacks, logger zerolog.Logger) *Session {
	opts.applyDefaults()
	id := observability.NewCorrelationID()
	logger = logger.With().Str("session_id", id).Logger()

	metrics := observability.NewSessionMetrics(id)
	onForget := opts.Utterance.OnForget
	opts.Utterance.OnForget = func(uid string) {
		metrics.ForgetUtterance(uid)
		if onForget != nil {
			onForget(uid)
		}
	}

	s := &Session{
		id:        id,
		opts:      opts,
		cb:        cb,
		sched:     sched,
		source:    src,
		logger:    logger,
		queue:     delivery.NewQueue(tr, sched, opts.Delivery, logger),
		lifecycle: utterance.New(sched, opts.Utterance, logger),
		detector: audio.NewSpeechDetector(&audio.VADConfig{
			LevelThreshold: opts.SpeechLevelThreshold,
			SilenceFrames:  opts.SilenceFrames,
		}),
		metrics: metrics,
	}

	src.OnFrame(func(samples []float32) {
		level := src.Level()
		sched.Post(func() { s.handleFrame(samples, level) })
	})
	tr.OnMessage(func(ev protocol.Event) {
		sched.Post(func() { s.handleEvent(ev) })
	})
	tr.OnConnect(func() {
		sched.Post(s.handleReconnect)
	})
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// Recording reports whether the session is capturing. Safe from any goroutine.
func (s *Session) Recording() bool {
	return s.recordingFlag.Load()
}

// Start opens the microphone and begins streaming. A microphone failure is
// returned as *audio.PermissionError and also reported through OnError; it
// is fatal to the session.
func (s *Session) Start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if s.recordingFlag.Load() {
		return ErrAlreadyRecording
	}

	if err := s.source.Open(ctx, s.opts.DeviceID); err != nil {
		var perr *audio.PermissionError
		if !errors.As(err, &perr) {
			err = &audio.PermissionError{Op: "open", Device: s.opts.DeviceID, Err: err}
		}
		s.metrics.RecordError("permission", "audio")
		s.logger.Error().Err(err).Msg("Failed to acquire microphone")
		s.sched.Post(func() { s.emitError(err) })
		return err
	}

	s.recordingFlag.Store(true)
	s.sched.Post(s.begin)
	return nil
}

func (s *Session) begin() {
	s.recording = true
	s.metrics.RecordSessionStart()

	u := s.lifecycle.Start()
	s.metrics.RecordUtteranceStart(u.ID, u.CreatedAt)
	s.detector.Reset()
	s.lastAudioSent = s.sched.Now()

	s.silenceTimer = s.sched.Every(s.opts.SilencePollInterval, s.pollSilence)
	s.keepAliveTimer = s.sched.Every(s.opts.KeepAliveInterval, s.keepAlive)

	s.logger.Info().
		Str("utterance_id", u.ID).
		Str("source_language", s.opts.SourceLanguage).
		Msg("Recording started")

	if s.cb.OnStart != nil {
		s.cb.OnStart(u.ID)
	}
}

// Stop ends the recording: it stops the timers, sends stopStreaming ahead
// of anything still buffered, and releases the microphone. Stop waits for
// the scheduler to run the teardown, so the scheduler must be running.
func (s *Session) Stop(ctx context.Context) error {
	done := make(chan struct{})
	s.sched.Post(func() {
		s.stop()
		close(done)
	})

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Closed off the loop: the capture goroutine may be blocked posting a
	// frame, and Close waits for it.
	if err := s.source.Close(); err != nil {
		return fmt.Errorf("failed to close audio source: %w", err)
	}
	return nil
}

func (s *Session) stop() {
	if !s.recording {
		return
	}
	s.recording = false
	s.closed.Store(true)
	s.recordingFlag.Store(false)

	s.silenceTimer.Stop()
	s.keepAliveTimer.Stop()

	if s.opts.FlushOnStop {
		s.finalizeLocally("stop")
	}

	if err := s.queue.SendDirect(protocol.StopStreaming{}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to send stopStreaming")
	}
	s.queue.Close()
	s.lifecycle.Stop()
	s.detector.Reset()
	s.metrics.RecordSessionEnd()

	s.logger.Info().Msg("Recording stopped")
	if s.cb.OnEnd != nil {
		s.cb.OnEnd()
	}
}

// handleFrame encodes one captured frame and hands it to the delivery queue.
func (s *Session) handleFrame(samples []float32, level float64) {
	if !s.recording {
		return
	}

	if s.cb.OnAudioLevel != nil {
		s.cb.OnAudioLevel(level)
	}

	now := s.sched.Now()
	if speaking, _, _ := s.detector.ProcessLevel(level); speaking {
		s.lifecycle.MarkSpeech(now)
	} else {
		s.lifecycle.MarkSilence(now)
	}

	s.sendAudio(audio.NewFrame(samples), false)
}

func (s *Session) sendAudio(frame audio.Frame, keepalive bool) {
	u, ok := s.lifecycle.Current()
	if !ok {
		return
	}

	chunk := protocol.AudioChunk{
		AudioData:      frame.Base64(),
		SourceLanguage: s.opts.SourceLanguage,
		UtteranceID:    u.ID,
		WordCount:      u.WordCount,
		SampleRate:     frame.SampleRate,
		Format:         frame.Encoding,
	}
	if err := s.queue.Send(chunk); err != nil {
		s.logger.Debug().Err(err).Msg("Audio chunk not queued")
		return
	}

	if !keepalive {
		s.lastAudioSent = s.sched.Now()
	}
	s.metrics.RecordChunk(keepalive, frame.Size())
}

func (s *Session) handleReconnect() {
	if !s.recording {
		return
	}
	s.queue.OnReconnect()
}

// deliverFinal hands a final to the caller and starts the next utterance.
func (s *Session) deliverFinal(u utterance.Utterance, confidence float64, local bool) {
	now := s.sched.Now()
	s.metrics.RecordFinal(u.ID, local, now)

	if strings.TrimSpace(u.Text) != "" && s.cb.OnFinal != nil {
		s.cb.OnFinal(Transcript{
			Text:        u.Text,
			UtteranceID: u.ID,
			Confidence:  confidence,
			Local:       local,
		})
	}
}

func (s *Session) nextUtterance() {
	next := s.lifecycle.Next()
	s.metrics.RecordUtteranceStart(next.ID, next.CreatedAt)
	s.logger.Debug().Str("utterance_id", next.ID).Msg("Started next utterance")
}

func (s *Session) emitError(err error) {
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
}
