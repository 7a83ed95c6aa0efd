package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_captions_active_sessions",
		Help: "Number of active recording sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_captions_sessions_total",
		Help: "Total number of recording sessions started",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "live_captions_session_duration_seconds",
		Help:    "Duration of recording sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
	})

	// Audio metrics
	audioChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_captions_audio_chunks_total",
		Help: "Total audio chunks handed to the delivery queue",
	}, []string{"kind"}) // kind: "speech" or "keepalive"

	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_captions_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"

	// Transcript metrics
	transcripts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_captions_transcripts_total",
		Help: "Transcript updates surfaced to the caller",
	}, []string{"kind", "source"}) // kind: interim|final, source: remote|local

	finalsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_captions_finals_discarded_total",
		Help: "Transcript updates rejected by the acceptance policy",
	}, []string{"reason"})

	utteranceLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "live_captions_utterance_duration_seconds",
		Help:    "Time from utterance start to its final transcript",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	// Delivery queue metrics
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_captions_delivery_queue_depth",
		Help: "Messages waiting in the delivery queue",
	})

	deliverySent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_captions_delivery_sent_total",
		Help: "Messages written to the transport",
	}, []string{"path"}) // path: "direct" or "flush"

	deliveryDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_captions_delivery_dropped_total",
		Help: "Messages dropped by the delivery queue",
	}, []string{"reason"}) // reason: "ttl", "retries" or "closed"

	// Transport metrics
	transportConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_captions_transport_connected",
		Help: "1 while the duplex channel is connected",
	})

	transportReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_captions_transport_reconnects_total",
		Help: "Successful reconnections of the duplex channel",
	})

	protocolErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_captions_protocol_errors_total",
		Help: "Inbound frames that could not be decoded",
	}, []string{"event"})

	// Result receiver metrics
	resultsDisplayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_captions_results_displayed_total",
		Help: "Translation results displayed",
	})

	resultsDuplicate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_captions_results_duplicate_total",
		Help: "Translation results suppressed as duplicates",
	}, []string{"reason"}) // reason: "delivery_id" or "content"

	// TTS metrics
	ttsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_captions_tts_requests_total",
		Help: "Total number of TTS requests",
	}, []string{"status"})

	ttsLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "live_captions_tts_latency_seconds",
		Help:    "TTS processing latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_captions_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "live_captions_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_captions_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// SessionMetrics tracks metrics for a single recording session
type SessionMetrics struct {
	sessionID      string
	startTime      time.Time
	utteranceStart map[string]time.Time
	mu             sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		sessionID:      sessionID,
		startTime:      time.Now(),
		utteranceStart: make(map[string]time.Time),
	}
}

// RecordSessionStart records the start of a session
func (m *SessionMetrics) RecordSessionStart() {
	m.mu.Lock()
	m.startTime = time.Now()
	m.mu.Unlock()
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session
func (m *SessionMetrics) RecordSessionEnd() {
	m.mu.Lock()
	start := m.startTime
	m.utteranceStart = make(map[string]time.Time)
	m.mu.Unlock()
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(start).Seconds())
}

// RecordUtteranceStart remembers when an utterance id was minted.
func (m *SessionMetrics) RecordUtteranceStart(id string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.utteranceStart[id] = at
}

// ForgetUtterance drops the start time of an utterance that will not be
// finalized.
func (m *SessionMetrics) ForgetUtterance(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.utteranceStart, id)
}

// TrackedUtterances returns how many utterances await a final.
func (m *SessionMetrics) TrackedUtterances() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.utteranceStart)
}

// RecordFinal records a final transcript surfaced to the caller.
func (m *SessionMetrics) RecordFinal(id string, local bool, at time.Time) {
	m.mu.Lock()
	start, ok := m.utteranceStart[id]
	delete(m.utteranceStart, id)
	m.mu.Unlock()

	if ok {
		utteranceLatency.Observe(at.Sub(start).Seconds())
	}
	transcripts.WithLabelValues("final", source(local)).Inc()
}

// RecordInterim records an interim transcript surfaced to the caller.
func (m *SessionMetrics) RecordInterim() {
	transcripts.WithLabelValues("interim", "remote").Inc()
}

// RecordDiscarded records an update rejected by the acceptance policy.
func (m *SessionMetrics) RecordDiscarded(reason string) {
	finalsDiscarded.WithLabelValues(reason).Inc()
}

// RecordChunk records an audio chunk handed to the delivery queue.
func (m *SessionMetrics) RecordChunk(keepalive bool, bytes int) {
	kind := "speech"
	if keepalive {
		kind = "keepalive"
	}
	audioChunks.WithLabelValues(kind).Inc()
	audioBytesProcessed.WithLabelValues("out").Add(float64(bytes))
}

// RecordError records an error
func (m *SessionMetrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

func source(local bool) string {
	if local {
		return "local"
	}
	return "remote"
}

// RecordError records an error outside a session.
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// SetQueueDepth updates the delivery queue depth gauge.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// RecordDeliverySent counts a message written to the transport.
func RecordDeliverySent(path string) {
	deliverySent.WithLabelValues(path).Inc()
}

// RecordDeliveryDropped counts a message dropped by the delivery queue.
func RecordDeliveryDropped(reason string) {
	deliveryDropped.WithLabelValues(reason).Inc()
}

// SetTransportConnected updates the connection gauge.
func SetTransportConnected(connected bool) {
	if connected {
		transportConnected.Set(1)
	} else {
		transportConnected.Set(0)
	}
}

// RecordReconnect counts a successful reconnection.
func RecordReconnect() {
	transportReconnects.Inc()
}

// RecordProtocolError counts an undecodable inbound frame.
func RecordProtocolError(event string) {
	if event == "" {
		event = "malformed"
	}
	protocolErrors.WithLabelValues(event).Inc()
}

// RecordResultDisplayed counts a displayed translation result.
func RecordResultDisplayed() {
	resultsDisplayed.Inc()
}

// RecordResultDuplicate counts a suppressed duplicate translation result.
func RecordResultDuplicate(reason string) {
	resultsDuplicate.WithLabelValues(reason).Inc()
}

// RecordTTS records one TTS request outcome.
func RecordTTS(latency time.Duration, success bool, bytes int) {
	ttsLatency.Observe(latency.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	ttsRequests.WithLabelValues(status).Inc()
	if bytes > 0 {
		audioBytesProcessed.WithLabelValues("in").Add(float64(bytes))
	}
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
