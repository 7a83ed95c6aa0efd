// Package utterance tracks the identity and text of the utterance ("bubble")
// currently being transcribed.
//
// A Lifecycle holds exactly one current utterance and at most one previous
// one. The previous slot exists only to admit a final result that was in
// flight when the service rotated its stream; it is cleared when that final
// is consumed or when the grace period elapses.
//
// Lifecycle is confined to the session's scheduler goroutine.
package utterance

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lexiqai/live-captions/internal/dedup"
	"github.com/lexiqai/live-captions/internal/scheduler"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of the current utterance.
type State int

const (
	StateIdle State = iota
	StateActive
	StateRestartPending
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateRestartPending:
		return "restart_pending"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Utterance is one segment of speech and its accumulated transcript.
type Utterance struct {
	ID        string
	Text      string
	WordCount int
	CreatedAt time.Time
	Finalized bool
}

// IDGenerator mints utterance ids.
type IDGenerator func(now time.Time) string

// NewID returns "utt-<unix ms>-<random>". Unique within a session, not
// unguessable.
func NewID(now time.Time) string {
	return fmt.Sprintf("utt-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

// Config holds lifecycle settings.
type Config struct {
	PreviousGrace    time.Duration // How long a rotated-out id still admits its final
	FinalizedHistory int           // Finalized ids remembered to reject late duplicates
	NewID            IDGenerator

	// OnForget, if set, is called with a rotated-out id once the lifecycle
	// stops tracking it, whether or not its final arrived.
	OnForget func(id string)
}

// DefaultConfig returns the standard lifecycle settings.
func DefaultConfig() Config {
	return Config{
		PreviousGrace:    5 * time.Second,
		FinalizedHistory: 256,
		NewID:            NewID,
	}
}

// Lifecycle owns utterance identity for one recording session.
type Lifecycle struct {
	cfg    Config
	sched  scheduler.Scheduler
	logger zerolog.Logger

	state         State
	current       *Utterance
	previous      *Utterance
	previousTimer scheduler.Timer
	finalized     *dedup.FIFOSet[string]

	lastSpeech   time.Time
	silenceStart time.Time
}

// New creates an idle lifecycle. Zero fields in cfg take their defaults.
func New(sched scheduler.Scheduler, cfg Config, logger zerolog.Logger) *Lifecycle {
	def := DefaultConfig()
	if cfg.PreviousGrace <= 0 {
		cfg.PreviousGrace = def.PreviousGrace
	}
	if cfg.FinalizedHistory <= 0 {
		cfg.FinalizedHistory = def.FinalizedHistory
	}
	if cfg.NewID == nil {
		cfg.NewID = def.NewID
	}
	return &Lifecycle{
		cfg:       cfg,
		sched:     sched,
		logger:    logger.With().Str("component", "utterance").Logger(),
		finalized: dedup.NewFIFOSet[string](cfg.FinalizedHistory),
	}
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	return l.state
}

// Current returns a copy of the current utterance.
func (l *Lifecycle) Current() (Utterance, bool) {
	if l.current == nil {
		return Utterance{}, false
	}
	return *l.current, true
}

// CurrentID returns the current utterance id, or "" when idle.
func (l *Lifecycle) CurrentID() string {
	if l.current == nil {
		return ""
	}
	return l.current.ID
}

// PreviousID returns the rotated-out id still admitting its final, or "".
func (l *Lifecycle) PreviousID() string {
	if l.previous == nil {
		return ""
	}
	return l.previous.ID
}

// Start begins a recording: fresh current id, no previous, empty text.
func (l *Lifecycle) Start() Utterance {
	l.clearPrevious()
	l.finalized.Clear()
	l.begin()
	l.logger.Debug().Str("utterance_id", l.current.ID).Msg("Utterance lifecycle started")
	return *l.current
}

// Next replaces a finalized current utterance with a fresh one. Unlike Start
// it keeps the previous slot so an in-flight final is still admitted.
func (l *Lifecycle) Next() Utterance {
	l.begin()
	return *l.current
}

func (l *Lifecycle) begin() {
	now := l.sched.Now()
	l.current = &Utterance{ID: l.cfg.NewID(now), CreatedAt: now}
	l.state = StateActive
	l.silenceStart = time.Time{}
}

// RestartPending rotates ids ahead of a service-side stream restart. The
// current utterance becomes previous and a new current id is minted before
// any further audio is sent. The caller keeps whatever text it displayed.
func (l *Lifecycle) RestartPending(reason string) (Utterance, bool) {
	if l.current == nil {
		return Utterance{}, false
	}

	old := l.current
	l.clearPrevious()
	if !old.Finalized {
		l.previous = old
		id := old.ID
		l.previousTimer = l.sched.After(l.cfg.PreviousGrace, func() {
			l.expirePrevious(id)
		})
	}

	l.begin()
	l.state = StateRestartPending

	l.logger.Info().
		Str("reason", reason).
		Str("previous_id", old.ID).
		Str("utterance_id", l.current.ID).
		Msg("Stream restart pending, rotated utterance")
	return *l.current, true
}

// Restarted confirms a rotation. The service's id is informational; the
// client keeps the id it minted in RestartPending.
func (l *Lifecycle) Restarted(serviceID string) {
	if l.state == StateRestartPending {
		l.state = StateActive
	}
	l.logger.Debug().
		Str("service_utterance_id", serviceID).
		Str("utterance_id", l.CurrentID()).
		Msg("Stream restarted")
}

// AcceptInterim reports whether an interim for id may be shown. Only the
// current utterance qualifies, so text never bounces back to a stale stream.
func (l *Lifecycle) AcceptInterim(id string) bool {
	return l.current != nil &&
		l.current.ID == id &&
		!l.current.Finalized
}

// AcceptFinal reports whether a final for id may be delivered: it must name
// the current or previous utterance and that id must not be finalized yet.
func (l *Lifecycle) AcceptFinal(id string) bool {
	if id == "" || l.finalized.Contains(id) {
		return false
	}
	if l.current != nil && l.current.ID == id {
		return !l.current.Finalized
	}
	return l.previous != nil && l.previous.ID == id
}

// UpdateText replaces the accumulated text of the current utterance.
func (l *Lifecycle) UpdateText(text string) {
	if l.current == nil || l.current.Finalized {
		return
	}
	l.current.Text = text
	l.current.WordCount = len(strings.Fields(text))
}

// Finalize marks the current utterance finalized and returns it. It succeeds
// exactly once per utterance; later calls return false. This check-and-set is
// the only arbiter between remote and local finalization.
func (l *Lifecycle) Finalize() (Utterance, bool) {
	if l.current == nil || l.current.Finalized || l.finalized.Contains(l.current.ID) {
		return Utterance{}, false
	}
	l.current.Finalized = true
	l.finalized.Add(l.current.ID)
	l.state = StateFinalized
	return *l.current, true
}

// ConsumeFinal finalizes the previous utterance and clears the slot.
func (l *Lifecycle) ConsumeFinal(id string) (Utterance, bool) {
	if l.previous == nil || l.previous.ID != id || l.finalized.Contains(id) {
		return Utterance{}, false
	}
	u := *l.previous
	u.Finalized = true
	l.finalized.Add(id)
	l.clearPrevious()
	return u, true
}

// CommitFinal applies a remote final for id with its transcript. It returns
// the finalized utterance and whether it was the current one.
func (l *Lifecycle) CommitFinal(id, text string) (u Utterance, wasCurrent, ok bool) {
	if !l.AcceptFinal(id) {
		return Utterance{}, false, false
	}
	if l.current != nil && l.current.ID == id {
		l.UpdateText(text)
		u, ok = l.Finalize()
		return u, true, ok
	}
	l.previous.Text = text
	l.previous.WordCount = len(strings.Fields(text))
	u, ok = l.ConsumeFinal(id)
	return u, false, ok
}

// IsFinalized reports whether id has already produced its final.
func (l *Lifecycle) IsFinalized(id string) bool {
	return l.finalized.Contains(id)
}

// MarkSpeech records speech energy or an interim result at now.
func (l *Lifecycle) MarkSpeech(now time.Time) {
	l.lastSpeech = now
	l.silenceStart = time.Time{}
}

// MarkSilence records a silent frame. Only the first silent frame after
// speech moves the silence start.
func (l *Lifecycle) MarkSilence(now time.Time) {
	if l.silenceStart.IsZero() {
		l.silenceStart = now
	}
}

// LastSpeech returns when speech was last observed.
func (l *Lifecycle) LastSpeech() time.Time {
	return l.lastSpeech
}

// SilenceStart returns when the current silence began, or zero during speech.
func (l *Lifecycle) SilenceStart() time.Time {
	return l.silenceStart
}

// Stop resets the lifecycle to idle and forgets all ids.
func (l *Lifecycle) Stop() {
	l.clearPrevious()
	l.current = nil
	l.state = StateIdle
	l.lastSpeech = time.Time{}
	l.silenceStart = time.Time{}
	l.finalized.Clear()
}

func (l *Lifecycle) expirePrevious(id string) {
	if l.previous == nil || l.previous.ID != id {
		return
	}
	l.logger.Debug().Str("previous_id", id).Msg("Grace period elapsed, dropping previous utterance")
	l.previous = nil
	l.previousTimer = nil
	l.forget(id)
}

func (l *Lifecycle) clearPrevious() {
	if l.previousTimer != nil {
		l.previousTimer.Stop()
		l.previousTimer = nil
	}
	if l.previous != nil {
		id := l.previous.ID
		l.previous = nil
		l.forget(id)
	}
}

func (l *Lifecycle) forget(id string) {
	if l.cfg.OnForget != nil {
		l.cfg.OnForget(id)
	}
}
