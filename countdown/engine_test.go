package countdown

import (
	"errors"
	"testing"
	"time"

	"github.com/yitech/candleclock/eventloop"
	"github.com/yitech/candleclock/model/candle"
)

// T is the open time of the last candle in every fixture.
const T = int64(1_700_000_100)

func seriesEndingAt(ts ...int64) candle.Series {
	cs := make([]candle.Candle, len(ts))
	for i, t := range ts {
		cs[i] = candle.Candle{Time: t, Open: 1, High: 2, Low: 0.5, Close: 1.5}
	}
	return candle.NewSeries(cs)
}

// newAt builds an engine on a virtual loop whose clock reads T+offset.
func newAt(offset int64, opts ...Option) (*Engine, *eventloop.Virtual) {
	loop := eventloop.NewVirtual(time.Unix(T+offset, 0))
	return New(loop, opts...), loop
}

func advanceSeconds(loop *eventloop.Virtual, n int64) {
	for i := int64(0); i < n; i++ {
		loop.Advance(time.Second)
	}
}

func TestStart_ComputesRemaining(t *testing.T) {
	for _, mode := range []Mode{ModeRearm, ModeSingleShot} {
		t.Run(mode.String(), func(t *testing.T) {
			e, _ := newAt(300, WithMode(mode))
			if err := e.Start(seriesEndingAt(T-900, T)); err != nil {
				t.Fatalf("Start: %v", err)
			}
			s := e.Snapshot()
			if s.Remaining != 600 {
				t.Errorf("remaining = %d, want 600", s.Remaining)
			}
			if s.State != StateRunning || !s.Available() {
				t.Errorf("state = %v", s.State)
			}
			if s.Boundary.Unix() != T+900 {
				t.Errorf("boundary = %d, want %d", s.Boundary.Unix(), T+900)
			}
		})
	}
}

func TestStart_IgnoresSubSecondClock(t *testing.T) {
	loop := eventloop.NewVirtual(time.Unix(T+300, 400_000_000))
	e := New(loop)
	if err := e.Start(seriesEndingAt(T)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := e.Remaining(); got != 600 {
		t.Errorf("remaining = %d, want 600", got)
	}
}

func TestStart_EmptySeries(t *testing.T) {
	e, loop := newAt(0)
	err := e.Start(candle.Series{})
	if !errors.Is(err, ErrEmptySeries) {
		t.Fatalf("expected ErrEmptySeries, got %v", err)
	}
	if s := e.Snapshot(); s.State != StateUninitialized || s.Available() {
		t.Errorf("state after failed start = %v", s.State)
	}
	if loop.Pending() != 0 {
		t.Errorf("failed start left %d timers", loop.Pending())
	}
	// A later valid series still starts the engine.
	if err := e.Start(seriesEndingAt(T)); err != nil {
		t.Fatalf("Start after empty: %v", err)
	}
}

func TestStart_Twice(t *testing.T) {
	e, _ := newAt(0)
	if err := e.Start(seriesEndingAt(T)); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(seriesEndingAt(T)); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v", err)
	}
}

func TestTick_Decrements(t *testing.T) {
	for _, mode := range []Mode{ModeRearm, ModeSingleShot} {
		t.Run(mode.String(), func(t *testing.T) {
			e, loop := newAt(300, WithMode(mode))
			if err := e.Start(seriesEndingAt(T)); err != nil {
				t.Fatal(err)
			}
			r := e.Remaining()
			for k := int64(1); k <= 120; k++ {
				loop.Advance(time.Second)
				if got := e.Remaining(); got != r-k {
					t.Fatalf("after %d ticks remaining = %d, want %d", k, got, r-k)
				}
			}
		})
	}
}

func TestSingleShot_ResetsExactlyOnce(t *testing.T) {
	const period = int64(900)
	e, loop := newAt(300, WithMode(ModeSingleShot))
	if err := e.Start(seriesEndingAt(T)); err != nil {
		t.Fatal(err)
	}
	r := e.Remaining()

	advanceSeconds(loop, r)
	s := e.Snapshot()
	if s.Remaining != period {
		t.Fatalf("at boundary remaining = %d, want %d", s.Remaining, period)
	}
	if s.Resets != 1 {
		t.Fatalf("resets = %d, want 1", s.Resets)
	}

	// One full period later the reference behaviour does not reset again.
	advanceSeconds(loop, period)
	s = e.Snapshot()
	if s.Resets != 1 {
		t.Errorf("second reset happened: resets = %d", s.Resets)
	}
	if s.Remaining != 0 {
		t.Errorf("at R+period remaining = %d, want 0", s.Remaining)
	}

	advanceSeconds(loop, 5)
	if got := e.Remaining(); got != -5 {
		t.Errorf("remaining should keep falling past zero, got %d", got)
	}
}

func TestSingleShot_StaleCandleResetsImmediately(t *testing.T) {
	// The open period already closed 100s ago.
	e, loop := newAt(1000, WithMode(ModeSingleShot))
	if err := e.Start(seriesEndingAt(T)); err != nil {
		t.Fatal(err)
	}
	if got := e.Remaining(); got != -100 {
		t.Fatalf("remaining = %d, want -100", got)
	}
	loop.Advance(0)
	if s := e.Snapshot(); s.Remaining != 900 || s.Resets != 1 {
		t.Errorf("snapshot after zero-delay reset = %+v", s)
	}
}

func TestRearm_ResetsEveryBoundary(t *testing.T) {
	const period = int64(900)
	e, loop := newAt(300, WithMode(ModeRearm))
	if err := e.Start(seriesEndingAt(T)); err != nil {
		t.Fatal(err)
	}
	r := e.Remaining()

	advanceSeconds(loop, r)
	if s := e.Snapshot(); s.Remaining != period || s.Resets != 1 {
		t.Fatalf("first boundary: %+v", s)
	}

	advanceSeconds(loop, period)
	s := e.Snapshot()
	if s.Remaining != period || s.Resets != 2 {
		t.Fatalf("second boundary: %+v", s)
	}
	if s.Boundary.Unix() != T+3*period {
		t.Errorf("boundary = %d, want %d", s.Boundary.Unix(), T+3*period)
	}

	for i := 0; i < 3*int(period); i++ {
		loop.Advance(time.Second)
		if got := e.Remaining(); got <= 0 || got > period {
			t.Fatalf("remaining left (0, %d]: %d", period, got)
		}
	}
}

func TestRearm_TracksClockNotTickCount(t *testing.T) {
	// Ticks every 5s still report the clock-derived value.
	e, loop := newAt(300, WithTick(5*time.Second))
	if err := e.Start(seriesEndingAt(T)); err != nil {
		t.Fatal(err)
	}
	loop.Advance(5 * time.Second)
	if got := e.Remaining(); got != 595 {
		t.Errorf("remaining = %d, want 595", got)
	}
}

func TestRearm_StaleCandleRollsForward(t *testing.T) {
	e, _ := newAt(2000)
	if err := e.Start(seriesEndingAt(T)); err != nil {
		t.Fatal(err)
	}
	s := e.Snapshot()
	// Boundaries at T+900, T+1800, T+2700: the next after T+2000 is T+2700.
	if s.Remaining != 700 || s.Boundary.Unix() != T+2700 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestRearm_UpdateFromFreshSeries(t *testing.T) {
	e, loop := newAt(300)
	if err := e.Start(seriesEndingAt(T)); err != nil {
		t.Fatal(err)
	}
	advanceSeconds(loop, 700) // now T+1000, boundary rolled to T+1800
	if got := e.Remaining(); got != 800 {
		t.Fatalf("remaining = %d, want 800", got)
	}

	// The exchange reports the candle that opened at T+900.
	if err := e.Update(seriesEndingAt(T, T+900)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := e.Remaining(); got != 800 {
		t.Errorf("remaining after update = %d, want 800", got)
	}
	if err := e.Update(candle.Series{}); !errors.Is(err, ErrEmptySeries) {
		t.Errorf("Update(empty) = %v", err)
	}
}

func TestSingleShot_UpdateIsIgnored(t *testing.T) {
	e, _ := newAt(300, WithMode(ModeSingleShot))
	if err := e.Start(seriesEndingAt(T)); err != nil {
		t.Fatal(err)
	}
	if err := e.Update(seriesEndingAt(T + 900)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := e.Remaining(); got != 600 {
		t.Errorf("remaining = %d, want 600", got)
	}
}

func TestUpdate_BeforeStart(t *testing.T) {
	e, _ := newAt(0)
	if err := e.Update(seriesEndingAt(T)); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Update before Start = %v", err)
	}
}

func TestStop_FreezesState(t *testing.T) {
	for _, mode := range []Mode{ModeRearm, ModeSingleShot} {
		t.Run(mode.String(), func(t *testing.T) {
			e, loop := newAt(300, WithMode(mode))
			if err := e.Start(seriesEndingAt(T)); err != nil {
				t.Fatal(err)
			}
			advanceSeconds(loop, 10)
			e.Stop()
			frozen := e.Remaining()

			if loop.Pending() != 0 {
				t.Fatalf("%d timers still scheduled after Stop", loop.Pending())
			}
			advanceSeconds(loop, 2000)
			if got := e.Remaining(); got != frozen {
				t.Errorf("remaining changed after Stop: %d -> %d", frozen, got)
			}
			if s := e.Snapshot(); s.State != StateStopped || s.Available() {
				t.Errorf("state = %v", s.State)
			}

			e.Stop()
			if err := e.Start(seriesEndingAt(T)); !errors.Is(err, ErrStopped) {
				t.Errorf("Start after Stop = %v", err)
			}
		})
	}
}

func TestObserver_SeesEveryChange(t *testing.T) {
	var seen []Snapshot
	e, loop := newAt(300, WithObserver(func(s Snapshot) { seen = append(seen, s) }))
	if err := e.Start(seriesEndingAt(T)); err != nil {
		t.Fatal(err)
	}
	advanceSeconds(loop, 3)
	e.Stop()

	if len(seen) != 5 {
		t.Fatalf("observer saw %d snapshots, want 5", len(seen))
	}
	if seen[0].Remaining != 600 || seen[3].Remaining != 597 {
		t.Errorf("unexpected sequence %+v", seen)
	}
	if seen[4].State != StateStopped {
		t.Errorf("last snapshot state = %v", seen[4].State)
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{"": ModeRearm, "rearm": ModeRearm, "single_shot": ModeSingleShot, "single-shot": ModeSingleShot}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMode("sometimes"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
