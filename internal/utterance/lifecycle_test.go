package utterance

import (
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/lexiqai/live-captions/internal/scheduler"
	"github.com/rs/zerolog"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestLifecycle() (*Lifecycle, *scheduler.Virtual) {
	sched := scheduler.NewVirtual(epoch)
	n := 0
	cfg := DefaultConfig()
	cfg.NewID = func(time.Time) string {
		n++
		return fmt.Sprintf("U%d", n)
	}
	return New(sched, cfg, zerolog.Nop()), sched
}

func TestNewID_Format(t *testing.T) {
	id := NewID(time.UnixMilli(1700000000123))
	if !regexp.MustCompile(`^utt-1700000000123-[0-9a-f]{8}$`).MatchString(id) {
		t.Errorf("Unexpected id format: %s", id)
	}
	if NewID(epoch) == NewID(epoch) {
		t.Error("Expected ids minted at the same instant to differ")
	}
}

func TestLifecycle_Start(t *testing.T) {
	l, _ := newTestLifecycle()

	if l.State() != StateIdle {
		t.Errorf("Expected idle, got %s", l.State())
	}

	u := l.Start()
	if u.ID != "U1" || u.Text != "" || u.Finalized {
		t.Errorf("Unexpected utterance: %+v", u)
	}
	if !u.CreatedAt.Equal(epoch) {
		t.Errorf("Expected CreatedAt %v, got %v", epoch, u.CreatedAt)
	}
	if l.State() != StateActive {
		t.Errorf("Expected active, got %s", l.State())
	}
	if l.PreviousID() != "" {
		t.Errorf("Expected no previous, got %s", l.PreviousID())
	}
}

func TestLifecycle_UpdateTextCountsWords(t *testing.T) {
	l, _ := newTestLifecycle()
	l.Start()

	l.UpdateText("  hello   brave new world ")
	u, _ := l.Current()
	if u.WordCount != 4 {
		t.Errorf("Expected 4 words, got %d", u.WordCount)
	}
}

func TestLifecycle_FinalizeOnce(t *testing.T) {
	l, _ := newTestLifecycle()
	l.Start()
	l.UpdateText("hello world")

	u, ok := l.Finalize()
	if !ok || u.Text != "hello world" || !u.Finalized {
		t.Fatalf("Expected first finalize to succeed, got %+v %v", u, ok)
	}
	if _, ok := l.Finalize(); ok {
		t.Error("Expected second finalize to fail")
	}
	if l.AcceptFinal("U1") {
		t.Error("Expected final for finalized id to be rejected")
	}
	if l.AcceptInterim("U1") {
		t.Error("Expected interim for finalized id to be rejected")
	}
	if l.State() != StateFinalized {
		t.Errorf("Expected finalized, got %s", l.State())
	}
}

func TestLifecycle_RestartRotatesIDs(t *testing.T) {
	l, _ := newTestLifecycle()
	l.Start()
	l.UpdateText("partial")

	u, ok := l.RestartPending("duration limit")
	if !ok || u.ID != "U2" {
		t.Fatalf("Expected new current U2, got %+v", u)
	}
	if u.Text != "" {
		t.Errorf("Expected text reset, got %q", u.Text)
	}
	if l.PreviousID() != "U1" {
		t.Errorf("Expected previous U1, got %q", l.PreviousID())
	}
	if l.State() != StateRestartPending {
		t.Errorf("Expected restart_pending, got %s", l.State())
	}

	l.Restarted("service-xyz")
	if l.State() != StateActive {
		t.Errorf("Expected active after restarted, got %s", l.State())
	}
	if l.CurrentID() != "U2" {
		t.Errorf("Expected current id unchanged, got %s", l.CurrentID())
	}
}

func TestLifecycle_AcceptancePolicy(t *testing.T) {
	l, _ := newTestLifecycle()
	l.Start()
	l.RestartPending("rotate")

	tests := []struct {
		name    string
		accept  func(string) bool
		id      string
		allowed bool
	}{
		{"final for previous", l.AcceptFinal, "U1", true},
		{"final for current", l.AcceptFinal, "U2", true},
		{"final for unknown", l.AcceptFinal, "U9", false},
		{"final without id", l.AcceptFinal, "", false},
		{"interim for previous", l.AcceptInterim, "U1", false},
		{"interim for current", l.AcceptInterim, "U2", true},
		{"interim for unknown", l.AcceptInterim, "U9", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.accept(tt.id); got != tt.allowed {
				t.Errorf("Expected %v, got %v", tt.allowed, got)
			}
		})
	}
}

func TestLifecycle_CommitFinalForPrevious(t *testing.T) {
	l, _ := newTestLifecycle()
	l.Start()
	l.RestartPending("rotate")

	u, wasCurrent, ok := l.CommitFinal("U1", "late words")
	if !ok || wasCurrent {
		t.Fatalf("Expected previous final accepted, got ok=%v current=%v", ok, wasCurrent)
	}
	if u.ID != "U1" || u.Text != "late words" || u.WordCount != 2 {
		t.Errorf("Unexpected utterance: %+v", u)
	}
	if l.PreviousID() != "" {
		t.Errorf("Expected previous cleared, got %q", l.PreviousID())
	}
	if _, _, ok := l.CommitFinal("U1", "again"); ok {
		t.Error("Expected duplicate final rejected")
	}
	if l.CurrentID() != "U2" {
		t.Errorf("Expected current untouched, got %s", l.CurrentID())
	}
}

func TestLifecycle_CommitFinalForCurrent(t *testing.T) {
	l, _ := newTestLifecycle()
	l.Start()
	l.UpdateText("interim text")

	u, wasCurrent, ok := l.CommitFinal("U1", "final text")
	if !ok || !wasCurrent {
		t.Fatalf("Expected current final accepted, got ok=%v current=%v", ok, wasCurrent)
	}
	if u.Text != "final text" {
		t.Errorf("Expected service transcript to win, got %q", u.Text)
	}
}

func TestLifecycle_PreviousExpiresAfterGrace(t *testing.T) {
	l, sched := newTestLifecycle()
	l.Start()
	l.RestartPending("rotate")

	sched.Advance(4900 * time.Millisecond)
	if !l.AcceptFinal("U1") {
		t.Error("Expected previous still admitted within grace")
	}

	sched.Advance(100 * time.Millisecond)
	if l.AcceptFinal("U1") {
		t.Error("Expected previous rejected after grace")
	}
	if sched.Pending() != 0 {
		t.Errorf("Expected no pending timers, got %d", sched.Pending())
	}
}

func TestLifecycle_NextKeepsPrevious(t *testing.T) {
	l, _ := newTestLifecycle()
	l.Start()
	l.RestartPending("rotate") // previous U1, current U2
	l.Finalize()               // U2 finalized first

	u := l.Next()
	if u.ID != "U3" {
		t.Errorf("Expected U3, got %s", u.ID)
	}
	if !l.AcceptFinal("U1") {
		t.Error("Expected previous to survive Next")
	}
}

func TestLifecycle_StartClearsPrevious(t *testing.T) {
	l, sched := newTestLifecycle()
	l.Start()
	l.RestartPending("rotate")
	l.Start()

	if l.PreviousID() != "" {
		t.Errorf("Expected previous cleared by Start, got %q", l.PreviousID())
	}
	if sched.Pending() != 0 {
		t.Errorf("Expected grace timer cancelled, got %d timers", sched.Pending())
	}
}

func TestLifecycle_SilenceTracking(t *testing.T) {
	l, _ := newTestLifecycle()
	l.Start()

	t0 := epoch.Add(time.Second)
	l.MarkSpeech(t0)
	if !l.SilenceStart().IsZero() {
		t.Error("Expected no silence during speech")
	}

	l.MarkSilence(t0.Add(100 * time.Millisecond))
	l.MarkSilence(t0.Add(200 * time.Millisecond))
	if !l.SilenceStart().Equal(t0.Add(100 * time.Millisecond)) {
		t.Errorf("Expected silence to start at first silent frame, got %v", l.SilenceStart())
	}

	l.MarkSpeech(t0.Add(300 * time.Millisecond))
	if !l.SilenceStart().IsZero() {
		t.Error("Expected speech to clear silence start")
	}
	if !l.LastSpeech().Equal(t0.Add(300 * time.Millisecond)) {
		t.Errorf("Unexpected last speech %v", l.LastSpeech())
	}
}

func TestLifecycle_Stop(t *testing.T) {
	l, sched := newTestLifecycle()
	l.Start()
	l.RestartPending("rotate")
	l.Stop()

	if l.State() != StateIdle || l.CurrentID() != "" || l.PreviousID() != "" {
		t.Errorf("Expected reset lifecycle, got state=%s current=%q previous=%q", l.State(), l.CurrentID(), l.PreviousID())
	}
	if sched.Pending() != 0 {
		t.Errorf("Expected no pending timers, got %d", sched.Pending())
	}
	if _, ok := l.Finalize(); ok {
		t.Error("Expected finalize to fail when idle")
	}
}

func TestLifecycle_ForgetsRotatedIDs(t *testing.T) {
	sched := scheduler.NewVirtual(epoch)
	n := 0
	var forgotten []string
	cfg := DefaultConfig()
	cfg.NewID = func(time.Time) string {
		n++
		return fmt.Sprintf("U%d", n)
	}
	cfg.OnForget = func(id string) { forgotten = append(forgotten, id) }
	l := New(sched, cfg, zerolog.Nop())

	l.Start()
	l.RestartPending("rotate") // previous U1
	l.RestartPending("rotate") // U1 replaced by U2 before its final
	if len(forgotten) != 1 || forgotten[0] != "U1" {
		t.Fatalf("Expected U1 forgotten on second rotation, got %v", forgotten)
	}

	sched.Advance(5 * time.Second)
	if len(forgotten) != 2 || forgotten[1] != "U2" {
		t.Errorf("Expected U2 forgotten after grace, got %v", forgotten)
	}

	l.Stop()
	if len(forgotten) != 2 {
		t.Errorf("Expected nothing more to forget, got %v", forgotten)
	}
}
