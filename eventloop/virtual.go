package eventloop

import (
	"container/heap"
	"sync"
	"time"
)

// Virtual is a Loop on simulated time. Timers only fire inside Advance, in
// order of due time and, for equal due times, in the order they were first
// registered. An interval keeps its registration rank across repeats.
type Virtual struct {
	run sync.Mutex // serializes Advance and Call

	mu     sync.Mutex
	now    time.Time
	seq    uint64
	next   Handle
	queue  vqueue
	timers map[Handle]*vtimer
}

type vtimer struct {
	h        Handle
	due      time.Time
	interval time.Duration
	seq      uint64
	fn       func()
	index    int
}

// NewVirtual creates a virtual loop whose clock starts at start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start, timers: make(map[Handle]*vtimer)}
}

func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

func (v *Virtual) SetTimeout(d time.Duration, fn func()) Handle {
	if d < 0 {
		d = 0
	}
	return v.schedule(d, 0, fn)
}

func (v *Virtual) SetInterval(d time.Duration, fn func()) Handle {
	if d < minInterval {
		d = minInterval
	}
	return v.schedule(d, d, fn)
}

func (v *Virtual) Clear(h Handle) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if tm, ok := v.timers[h]; ok {
		if tm.index >= 0 {
			heap.Remove(&v.queue, tm.index)
		}
		delete(v.timers, h)
	}
}

// Call runs fn immediately on the caller's goroutine, serialized with Advance.
func (v *Virtual) Call(fn func()) error {
	v.run.Lock()
	defer v.run.Unlock()
	fn()
	return nil
}

// Pending reports how many timers are still scheduled.
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.timers)
}

// Advance moves the clock forward by d, firing every timer that falls due on
// the way. The clock reads each timer's due time while its callback runs.
func (v *Virtual) Advance(d time.Duration) {
	v.run.Lock()
	defer v.run.Unlock()

	v.mu.Lock()
	target := v.now.Add(d)
	for v.queue.Len() > 0 && !v.queue[0].due.After(target) {
		tm := heap.Pop(&v.queue).(*vtimer)
		v.now = tm.due
		if tm.interval > 0 {
			tm.due = tm.due.Add(tm.interval)
			heap.Push(&v.queue, tm)
		} else {
			delete(v.timers, tm.h)
		}
		fn := tm.fn
		v.mu.Unlock()
		fn()
		v.mu.Lock()
	}
	v.now = target
	v.mu.Unlock()
}

func (v *Virtual) schedule(d, interval time.Duration, fn func()) Handle {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.next++
	v.seq++
	tm := &vtimer{h: v.next, due: v.now.Add(d), interval: interval, seq: v.seq, fn: fn}
	v.timers[tm.h] = tm
	heap.Push(&v.queue, tm)
	return tm.h
}

// vqueue orders timers by due time, then registration order.
type vqueue []*vtimer

func (q vqueue) Len() int { return len(q) }

func (q vqueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}

func (q vqueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *vqueue) Push(x any) {
	tm := x.(*vtimer)
	tm.index = len(*q)
	*q = append(*q, tm)
}

func (q *vqueue) Pop() any {
	old := *q
	n := len(old)
	tm := old[n-1]
	old[n-1] = nil
	tm.index = -1
	*q = old[:n-1]
	return tm
}
