package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Loop is the production Scheduler: a single goroutine draining a task channel.
type Loop struct {
	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
	logger    zerolog.Logger
}

// NewLoop creates a loop whose task channel holds up to buffer pending closures.
// Posting to a full loop blocks, which applies backpressure to the audio reader.
func NewLoop(buffer int, logger zerolog.Logger) *Loop {
	if buffer <= 0 {
		buffer = 256
	}
	return &Loop{
		tasks:  make(chan func(), buffer),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run drains posted closures until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.Close()
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.tasks:
			l.run(fn)
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Msg("Recovered panic in loop task")
		}
	}()
	fn()
}

// Close stops the loop. Pending closures are discarded.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// Now returns the wall clock time.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Post queues fn. It is a no-op after Close.
func (l *Loop) Post(fn func()) {
	l.post(fn, nil)
}

func (l *Loop) post(fn func(), cancel <-chan struct{}) {
	select {
	case l.tasks <- fn:
	case <-l.done:
	case <-cancel:
	}
}

// After runs fn on the loop once d has elapsed.
func (l *Loop) After(d time.Duration, fn func()) Timer {
	t := newLoopTimer()
	t.timer = time.AfterFunc(d, func() {
		l.post(func() {
			if !t.stopped.Load() {
				fn()
			}
		}, t.stop)
	})
	return t
}

// Every runs fn on the loop every d.
func (l *Loop) Every(d time.Duration, fn func()) Timer {
	t := newLoopTimer()
	ticker := time.NewTicker(d)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.post(func() {
					if !t.stopped.Load() {
						fn()
					}
				}, t.stop)
			case <-t.stop:
				return
			case <-l.done:
				return
			}
		}
	}()
	return t
}

type loopTimer struct {
	stopped atomic.Bool
	stop    chan struct{}
	once    sync.Once
	timer   *time.Timer
}

func newLoopTimer() *loopTimer {
	return &loopTimer{stop: make(chan struct{})}
}

func (t *loopTimer) Stop() {
	t.once.Do(func() {
		t.stopped.Store(true)
		close(t.stop)
		if t.timer != nil {
			t.timer.Stop()
		}
	})
}
