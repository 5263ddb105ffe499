package eventloop

import (
	"context"
	"sync"
	"time"
)

// minInterval bounds SetInterval so a zero period cannot spin the loop.
const minInterval = time.Millisecond

// RealLoop is a Loop backed by the system clock. Callbacks run on the
// goroutine that calls Run.
type RealLoop struct {
	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	next   Handle
	timers map[Handle]*realTimer
}

type realTimer struct {
	t        *time.Timer
	due      time.Time
	interval time.Duration
	fn       func()
}

// New creates a loop. Nothing runs until Run is called.
func New() *RealLoop {
	return &RealLoop{
		tasks:  make(chan func(), 64),
		done:   make(chan struct{}),
		timers: make(map[Handle]*realTimer),
	}
}

// Run executes callbacks until ctx is cancelled or Close is called.
func (l *RealLoop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.Close()
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Close stops the loop and every pending timer. Safe to call more than once.
func (l *RealLoop) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.mu.Lock()
		for h, tm := range l.timers {
			tm.t.Stop()
			delete(l.timers, h)
		}
		l.mu.Unlock()
	})
}

func (l *RealLoop) Now() time.Time { return time.Now() }

func (l *RealLoop) SetTimeout(d time.Duration, fn func()) Handle {
	if d < 0 {
		d = 0
	}
	return l.schedule(d, 0, fn)
}

func (l *RealLoop) SetInterval(d time.Duration, fn func()) Handle {
	if d < minInterval {
		d = minInterval
	}
	return l.schedule(d, d, fn)
}

func (l *RealLoop) Clear(h Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tm, ok := l.timers[h]; ok {
		tm.t.Stop()
		delete(l.timers, h)
	}
}

func (l *RealLoop) Call(fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}
	select {
	case l.tasks <- task:
	case <-l.done:
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrClosed
	}
}

func (l *RealLoop) schedule(d, interval time.Duration, fn func()) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.next++
	h := l.next
	tm := &realTimer{due: time.Now().Add(d), interval: interval, fn: fn}
	l.timers[h] = tm
	tm.t = time.AfterFunc(d, func() { l.post(func() { l.fire(h) }) })
	return h
}

// post hands fn to the loop goroutine, dropping it if the loop is closed.
func (l *RealLoop) post(fn func()) {
	select {
	case l.tasks <- fn:
	case <-l.done:
	}
}

// fire runs on the loop goroutine. A handle cleared after the timer expired
// but before this turn is skipped.
func (l *RealLoop) fire(h Handle) {
	l.mu.Lock()
	tm, ok := l.timers[h]
	if !ok {
		l.mu.Unlock()
		return
	}
	if tm.interval > 0 {
		// Re-arm from the scheduled instant, not from now, so ticks don't drift.
		tm.due = tm.due.Add(tm.interval)
		d := time.Until(tm.due)
		if d < 0 {
			d = 0
		}
		tm.t.Reset(d)
	} else {
		delete(l.timers, h)
	}
	fn := tm.fn
	l.mu.Unlock()

	fn()
}
