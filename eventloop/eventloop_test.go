package eventloop

import (
	"context"
	"errors"
	"testing"
	"time"
)

var epoch = time.Unix(1_700_000_000, 0)

func TestVirtual_OrdersByDueThenRegistration(t *testing.T) {
	v := NewVirtual(epoch)
	var got []string

	v.SetInterval(time.Second, func() { got = append(got, "tick") })
	v.SetTimeout(3*time.Second, func() { got = append(got, "boundary") })
	v.SetTimeout(2*time.Second, func() { got = append(got, "early") })

	v.Advance(3 * time.Second)

	want := []string{"tick", "tick", "early", "tick", "boundary"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if !v.Now().Equal(epoch.Add(3 * time.Second)) {
		t.Errorf("clock at %v", v.Now())
	}
}

func TestVirtual_NowDuringCallback(t *testing.T) {
	v := NewVirtual(epoch)
	var at time.Time
	v.SetTimeout(1500*time.Millisecond, func() { at = v.Now() })
	v.Advance(5 * time.Second)
	if !at.Equal(epoch.Add(1500 * time.Millisecond)) {
		t.Errorf("callback saw %v", at)
	}
}

func TestVirtual_Clear(t *testing.T) {
	v := NewVirtual(epoch)
	n := 0
	var h Handle
	h = v.SetInterval(time.Second, func() {
		n++
		if n == 2 {
			v.Clear(h)
		}
	})
	v.Advance(10 * time.Second)
	if n != 2 {
		t.Errorf("interval fired %d times after clearing itself", n)
	}
	if v.Pending() != 0 {
		t.Errorf("pending = %d", v.Pending())
	}

	fired := false
	th := v.SetTimeout(time.Second, func() { fired = true })
	v.Clear(th)
	v.Clear(th)
	v.Advance(time.Minute)
	if fired {
		t.Error("cleared timeout fired")
	}
}

func TestVirtual_ZeroTimeoutRunsOnNextAdvance(t *testing.T) {
	v := NewVirtual(epoch)
	fired := false
	v.SetTimeout(-time.Second, func() { fired = true })
	if fired {
		t.Fatal("timeout ran synchronously")
	}
	v.Advance(0)
	if !fired {
		t.Error("zero timeout did not fire")
	}
}

func TestRealLoop_TimersAndCall(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	fired := make(chan struct{})
	if err := l.Call(func() {
		l.SetTimeout(10*time.Millisecond, func() { close(fired) })
	}); err != nil {
		t.Fatalf("Call: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout never fired")
	}

	ticks := make(chan struct{}, 16)
	var h Handle
	if err := l.Call(func() {
		h = l.SetInterval(5*time.Millisecond, func() {
			select {
			case ticks <- struct{}{}:
			default:
			}
		})
	}); err != nil {
		t.Fatalf("Call: %v", err)
	}
	for i := 0; i < 3; i++ {
		select {
		case <-ticks:
		case <-time.After(2 * time.Second):
			t.Fatalf("interval stalled after %d ticks", i)
		}
	}
	if err := l.Call(func() { l.Clear(h) }); err != nil {
		t.Fatalf("Call: %v", err)
	}
	// Drain anything queued before the clear took effect on the loop.
	for len(ticks) > 0 {
		<-ticks
	}
	time.Sleep(30 * time.Millisecond)
	if len(ticks) != 0 {
		t.Errorf("interval kept firing after Clear: %d", len(ticks))
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if err := l.Call(func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Call after close = %v", err)
	}
}
