// Package countdown keeps a running estimate of the seconds left until the
// open candle period closes.
//
// All engine state lives on an eventloop.Loop: timers mutate it from loop
// callbacks and the exported methods hop onto the loop with Call. Readers on
// other goroutines use Snapshot, which is published atomically after every
// change.
package countdown

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/yitech/candleclock/eventloop"
	"github.com/yitech/candleclock/model/candle"
)

const (
	DefaultPeriod = 900 * time.Second
	DefaultTick   = time.Second
)

var (
	ErrEmptySeries    = errors.New("countdown: series has no candles")
	ErrAlreadyStarted = errors.New("countdown: already started")
	ErrStopped        = errors.New("countdown: stopped")
	ErrNotRunning     = errors.New("countdown: not running")
)

// Mode selects how the engine handles period boundaries.
type Mode int

const (
	// ModeRearm derives remaining time from the clock on every tick and rolls
	// the boundary forward each time a period closes.
	ModeRearm Mode = iota
	// ModeSingleShot decrements once per tick and resets to a full period a
	// single time, at the boundary computed on start. It never re-arms, so
	// after the first reset the value keeps counting down past zero.
	ModeSingleShot
)

func (m Mode) String() string {
	switch m {
	case ModeRearm:
		return "rearm"
	case ModeSingleShot:
		return "single_shot"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// ParseMode accepts "rearm" or "single_shot". Empty means ModeRearm.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "rearm":
		return ModeRearm, nil
	case "single_shot", "single-shot":
		return ModeSingleShot, nil
	}
	return 0, fmt.Errorf("countdown: unknown mode %q", s)
}

type State int

const (
	StateUninitialized State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Snapshot is a point-in-time copy of the engine state.
type Snapshot struct {
	State     State     `json:"state"`
	Mode      Mode      `json:"mode"`
	Remaining int64     `json:"remaining_seconds"`
	Boundary  time.Time `json:"boundary"`
	Resets    int       `json:"resets"`
	At        time.Time `json:"at"`
}

// Available reports whether Remaining holds a live countdown value.
func (s Snapshot) Available() bool { return s.State == StateRunning }

type Option func(*Engine)

// WithPeriod sets the candle period length. Sub-second parts are dropped.
func WithPeriod(d time.Duration) Option {
	return func(e *Engine) {
		if d >= time.Second {
			e.period = d.Truncate(time.Second)
		}
	}
}

func WithTick(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tick = d
		}
	}
}

func WithMode(m Mode) Option {
	return func(e *Engine) { e.mode = m }
}

// WithObserver registers fn to receive every published snapshot. fn runs on
// the loop and must not call back into the engine.
func WithObserver(fn func(Snapshot)) Option {
	return func(e *Engine) { e.observe = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine is the countdown state machine. Create one with New.
type Engine struct {
	loop    eventloop.Loop
	period  time.Duration
	tick    time.Duration
	mode    Mode
	observe func(Snapshot)
	log     *zap.Logger

	// Owned by the loop.
	state     State
	remaining int64
	boundary  int64
	resets    int
	tickH     eventloop.Handle
	boundaryH eventloop.Handle

	snap atomic.Pointer[Snapshot]
}

func New(loop eventloop.Loop, opts ...Option) *Engine {
	e := &Engine{
		loop:   loop,
		period: DefaultPeriod,
		tick:   DefaultTick,
		mode:   ModeRearm,
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	e.snap.Store(&Snapshot{State: StateUninitialized, Mode: e.mode})
	return e
}

// Start moves the engine from Uninitialized to Running using the last candle
// of series as the open period. An empty series fails with ErrEmptySeries
// and leaves the engine Uninitialized.
func (e *Engine) Start(series candle.Series) error {
	var err error
	if cerr := e.loop.Call(func() { err = e.start(series) }); cerr != nil {
		return cerr
	}
	return err
}

// Update re-derives the next boundary from a freshly fetched series. It is a
// no-op in ModeSingleShot, which only ever reads the series given to Start.
func (e *Engine) Update(series candle.Series) error {
	var err error
	if cerr := e.loop.Call(func() { err = e.update(series) }); cerr != nil {
		return cerr
	}
	return err
}

// Stop cancels every timer. Once it returns the remaining value no longer
// changes. Stop is idempotent and may be called before Start.
func (e *Engine) Stop() {
	if err := e.loop.Call(e.stop); err != nil {
		// The loop is gone, so no timer can fire again.
		s := *e.snap.Load()
		s.State = StateStopped
		e.snap.Store(&s)
	}
}

func (e *Engine) Snapshot() Snapshot { return *e.snap.Load() }

func (e *Engine) Remaining() int64 { return e.snap.Load().Remaining }

func (e *Engine) Period() time.Duration { return e.period }

func (e *Engine) periodSeconds() int64 { return int64(e.period / time.Second) }

func (e *Engine) start(series candle.Series) error {
	switch e.state {
	case StateRunning:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrStopped
	}
	last, ok := series.Last()
	if !ok {
		return ErrEmptySeries
	}

	now := e.loop.Now().Unix()
	e.boundary = last.Time + e.periodSeconds()
	e.remaining = e.boundary - now
	e.state = StateRunning

	switch e.mode {
	case ModeSingleShot:
		e.tickH = e.loop.SetInterval(e.tick, e.decrement)
		e.boundaryH = e.loop.SetTimeout(time.Duration(e.remaining)*time.Second, e.resetOnce)
	default:
		if e.remaining <= 0 {
			e.rollForward(now)
		}
		e.tickH = e.loop.SetInterval(e.tick, e.step)
	}

	e.log.Debug("countdown started",
		zap.Stringer("mode", e.mode),
		zap.Int64("last_candle", last.Time),
		zap.Int64("remaining", e.remaining))
	e.publish()
	return nil
}

func (e *Engine) update(series candle.Series) error {
	if e.state != StateRunning {
		return ErrNotRunning
	}
	last, ok := series.Last()
	if !ok {
		return ErrEmptySeries
	}
	if e.mode == ModeSingleShot {
		return nil
	}

	now := e.loop.Now().Unix()
	e.boundary = last.Time + e.periodSeconds()
	e.remaining = e.boundary - now
	if e.remaining <= 0 {
		e.rollForward(now)
	}
	e.publish()
	return nil
}

func (e *Engine) stop() {
	if e.tickH != 0 {
		e.loop.Clear(e.tickH)
		e.tickH = 0
	}
	if e.boundaryH != 0 {
		e.loop.Clear(e.boundaryH)
		e.boundaryH = 0
	}
	if e.state == StateStopped {
		return
	}
	e.state = StateStopped
	e.log.Debug("countdown stopped", zap.Int64("remaining", e.remaining))
	e.publish()
}

// decrement is the ModeSingleShot tick.
func (e *Engine) decrement() {
	e.remaining--
	e.publish()
}

// resetOnce is the ModeSingleShot boundary timer.
func (e *Engine) resetOnce() {
	e.boundaryH = 0
	e.remaining = e.periodSeconds()
	e.boundary = e.loop.Now().Unix() + e.remaining
	e.resets++
	e.log.Info("candle closed", zap.Int("resets", e.resets))
	e.publish()
}

// step is the ModeRearm tick.
func (e *Engine) step() {
	now := e.loop.Now().Unix()
	e.remaining = e.boundary - now
	if e.remaining <= 0 {
		e.rollForward(now)
		e.resets++
		e.log.Info("candle closed",
			zap.Int("resets", e.resets),
			zap.Int64("next_boundary", e.boundary))
	}
	e.publish()
}

// rollForward advances the boundary by whole periods until it lies after now.
func (e *Engine) rollForward(now int64) {
	p := e.periodSeconds()
	if e.boundary <= now {
		e.boundary += ((now-e.boundary)/p + 1) * p
	}
	e.remaining = e.boundary - now
}

func (e *Engine) publish() {
	s := Snapshot{
		State:     e.state,
		Mode:      e.mode,
		Remaining: e.remaining,
		Resets:    e.resets,
		At:        e.loop.Now(),
	}
	if e.state != StateUninitialized {
		s.Boundary = time.Unix(e.boundary, 0).UTC()
	}
	e.snap.Store(&s)
	if e.observe != nil {
		e.observe(s)
	}
}
