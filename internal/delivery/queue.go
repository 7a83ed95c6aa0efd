// Package delivery implements at-least-once delivery of outbound events over
// a transport that may drop at any time.
//
// A Queue sends immediately while the channel is up and buffers otherwise.
// Buffered messages are retried by a flush ticker and flushed at once on
// reconnect. Every buffered message is eventually sent, dropped after its
// retry budget, or dropped once it is older than the TTL.
//
// Queue is confined to the session's scheduler goroutine and holds no locks.
package delivery

import (
	"errors"
	"time"

	"github.com/lexiqai/live-captions/internal/observability"
	"github.com/lexiqai/live-captions/internal/protocol"
	"github.com/lexiqai/live-captions/internal/scheduler"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("delivery: queue closed")

// Drop reasons reported to metrics.
const (
	dropTTL     = "ttl"
	dropRetries = "retries"
	dropClosed  = "closed"
)

// Sender is the part of the transport the queue needs.
type Sender interface {
	Send(ev protocol.Event) error
	IsConnected() bool
}

// Config holds queue timing and budgets.
type Config struct {
	TTL           time.Duration // Maximum age of a buffered message
	MaxRetries    int           // Send attempts before a message is dropped
	RetryCooldown time.Duration // Minimum age before a ticker flush attempts a message
	FlushInterval time.Duration // Ticker period while messages are buffered
}

// DefaultConfig returns the standard delivery settings.
func DefaultConfig() Config {
	return Config{
		TTL:           30 * time.Second,
		MaxRetries:    3,
		RetryCooldown: 1 * time.Second,
		FlushInterval: 1 * time.Second,
	}
}

// Message is one buffered event.
type Message struct {
	Event      protocol.Event
	EnqueuedAt time.Time
	RetryCount int
}

// Queue buffers outbound events while the transport is unavailable.
type Queue struct {
	cfg    Config
	sender Sender
	sched  scheduler.Scheduler
	logger zerolog.Logger

	pending []*Message
	ticker  scheduler.Timer
	closed  bool
}

// NewQueue creates a queue. Zero fields in cfg take their defaults.
func NewQueue(sender Sender, sched scheduler.Scheduler, cfg Config, logger zerolog.Logger) *Queue {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryCooldown < 0 {
		cfg.RetryCooldown = 0
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	return &Queue{
		cfg:    cfg,
		sender: sender,
		sched:  sched,
		logger: logger.With().Str("component", "delivery").Logger(),
	}
}

// Send delivers ev immediately when connected, otherwise buffers it. A failed
// immediate send is buffered and counts as the first attempt.
func (q *Queue) Send(ev protocol.Event) error {
	if q.closed {
		return ErrClosed
	}

	msg := &Message{Event: ev, EnqueuedAt: q.sched.Now()}
	if q.sender.IsConnected() {
		msg.RetryCount++
		err := q.sender.Send(ev)
		if err == nil {
			observability.RecordDeliverySent("direct")
			return nil
		}
		q.logger.Debug().Err(err).Str("event", ev.EventName()).Msg("Immediate send failed, buffering")
	}

	q.enqueue(msg)
	return nil
}

// SendDirect writes ev straight to the transport, bypassing the buffer. Use
// it for order-sensitive events such as stopStreaming.
func (q *Queue) SendDirect(ev protocol.Event) error {
	if err := q.sender.Send(ev); err != nil {
		return err
	}
	observability.RecordDeliverySent("direct")
	return nil
}

// OnReconnect flushes immediately, ignoring the retry cool-down.
func (q *Queue) OnReconnect() {
	if q.closed || len(q.pending) == 0 {
		return
	}
	q.logger.Info().Int("pending", len(q.pending)).Msg("Transport reconnected, flushing")
	q.flush(true)
}

// Flush runs one ticker-style flush pass.
func (q *Queue) Flush() {
	q.flush(false)
}

// Len returns the number of buffered messages.
func (q *Queue) Len() int {
	return len(q.pending)
}

// Pending returns a copy of the buffered messages in insertion order.
func (q *Queue) Pending() []Message {
	out := make([]Message, len(q.pending))
	for i, m := range q.pending {
		out[i] = *m
	}
	return out
}

// Close stops the ticker and discards buffered messages.
func (q *Queue) Close() {
	if q.closed {
		return
	}
	q.closed = true
	q.stopTicker()
	for range q.pending {
		observability.RecordDeliveryDropped(dropClosed)
	}
	if len(q.pending) > 0 {
		q.logger.Debug().Int("discarded", len(q.pending)).Msg("Queue closed with pending messages")
	}
	q.pending = nil
	observability.SetQueueDepth(0)
}

func (q *Queue) enqueue(msg *Message) {
	q.pending = append(q.pending, msg)
	observability.SetQueueDepth(len(q.pending))
	if q.ticker == nil {
		q.ticker = q.sched.Every(q.cfg.FlushInterval, q.Flush)
	}
}

func (q *Queue) stopTicker() {
	if q.ticker != nil {
		q.ticker.Stop()
		q.ticker = nil
	}
}

// flush attempts every eligible message in insertion order. TTL eviction
// runs even while disconnected; send attempts do not.
func (q *Queue) flush(ignoreCooldown bool) {
	if q.closed {
		return
	}

	now := q.sched.Now()
	sent, expired, exhausted := 0, 0, 0
	kept := make([]*Message, 0, len(q.pending))

	for _, msg := range q.pending {
		age := now.Sub(msg.EnqueuedAt)
		if age >= q.cfg.TTL {
			expired++
			observability.RecordDeliveryDropped(dropTTL)
			continue
		}
		if !q.sender.IsConnected() || (!ignoreCooldown && age < q.cfg.RetryCooldown) {
			kept = append(kept, msg)
			continue
		}

		msg.RetryCount++
		if err := q.sender.Send(msg.Event); err == nil {
			sent++
			observability.RecordDeliverySent("flush")
			continue
		}
		if msg.RetryCount >= q.cfg.MaxRetries {
			exhausted++
			observability.RecordDeliveryDropped(dropRetries)
			continue
		}
		kept = append(kept, msg)
	}

	q.pending = kept
	observability.SetQueueDepth(len(q.pending))
	if len(q.pending) == 0 {
		q.stopTicker()
	}

	if sent+expired+exhausted > 0 {
		q.logger.Debug().
			Int("sent", sent).
			Int("expired", expired).
			Int("exhausted", exhausted).
			Int("pending", len(q.pending)).
			Msg("Flushed delivery queue")
	}
}
