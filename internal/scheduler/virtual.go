package scheduler

import "time"

// Virtual is a deterministic Scheduler driven by Advance. Post runs closures
// inline, so it must only be used from a single goroutine (tests).
type Virtual struct {
	now    time.Time
	seq    int
	timers []*virtualTimer
}

type virtualTimer struct {
	at      time.Time
	period  time.Duration
	fn      func()
	seq     int
	stopped bool
}

func (t *virtualTimer) Stop() { t.stopped = true }

// NewVirtual returns a virtual scheduler whose clock starts at start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

// Now returns the virtual time.
func (v *Virtual) Now() time.Time { return v.now }

// Post runs fn immediately.
func (v *Virtual) Post(fn func()) { fn() }

// After schedules fn at Now()+d.
func (v *Virtual) After(d time.Duration, fn func()) Timer {
	return v.add(d, 0, fn)
}

// Every schedules fn at every multiple of d from Now().
func (v *Virtual) Every(d time.Duration, fn func()) Timer {
	if d <= 0 {
		panic("scheduler: non-positive interval for Every")
	}
	return v.add(d, d, fn)
}

func (v *Virtual) add(d, period time.Duration, fn func()) *virtualTimer {
	v.seq++
	t := &virtualTimer{at: v.now.Add(d), period: period, fn: fn, seq: v.seq}
	v.timers = append(v.timers, t)
	return t
}

// Advance moves the clock forward by d, firing due timers in time order.
// Timers due at the same instant fire in registration order.
func (v *Virtual) Advance(d time.Duration) {
	target := v.now.Add(d)
	for {
		next := v.nextDue(target)
		if next == nil {
			break
		}
		v.now = next.at
		if next.period > 0 {
			v.seq++
			next.at = next.at.Add(next.period)
			next.seq = v.seq
		} else {
			next.stopped = true
		}
		next.fn()
	}
	v.now = target
	v.prune()
}

// Pending returns the number of live timers.
func (v *Virtual) Pending() int {
	n := 0
	for _, t := range v.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (v *Virtual) nextDue(target time.Time) *virtualTimer {
	var next *virtualTimer
	for _, t := range v.timers {
		if t.stopped || t.at.After(target) {
			continue
		}
		if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

func (v *Virtual) prune() {
	live := v.timers[:0]
	for _, t := range v.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(v.timers); i++ {
		v.timers[i] = nil
	}
	v.timers = live
}
