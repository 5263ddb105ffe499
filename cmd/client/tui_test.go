package main

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/yitech/candleclock/countdown"
	"github.com/yitech/candleclock/model/candle"
)

func series(n int) candle.Series {
	cs := make([]candle.Candle, n)
	for i := range cs {
		p := 100 + float64(i)
		cs[i] = candle.Candle{Time: int64(i) * 900, Open: p, High: p + 2, Low: p - 2, Close: p + 1}
	}
	return candle.NewSeries(cs)
}

func TestChartRenderer_KeepsNewest(t *testing.T) {
	r := newChartRenderer()
	if err := r.SetData(series(1)); err != nil {
		t.Fatal(err)
	}
	if err := r.SetData(series(3)); err != nil {
		t.Fatal(err)
	}
	if got := (<-r.ch).Len(); got != 3 {
		t.Errorf("got series of %d, want the newest (3)", got)
	}

	if err := r.Dispose(); err != nil {
		t.Fatal(err)
	}
	if err := r.Dispose(); err != nil {
		t.Fatal(err)
	}
	if err := r.SetData(series(1)); err == nil {
		t.Error("SetData after Dispose should fail")
	}
}

func TestModel_Update(t *testing.T) {
	m := newModel("TRBUSDT", "15m", 5, 60, nil, nil, nil)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 20})
	next, _ = next.Update(seriesMsg{series(8)})
	next, _ = next.Update(snapshotMsg{countdown.Snapshot{State: countdown.StateRunning, Remaining: 899}})
	m = next.(model)

	if len(m.candles) != 5 {
		t.Fatalf("kept %d candles, want 5", len(m.candles))
	}
	view := m.View()
	if !strings.Contains(view, "TRBUSDT  15m") || !strings.Contains(view, "14:59") {
		t.Errorf("view missing header or countdown:\n%s", view)
	}

	next, _ = m.Update(errMsg{errors.New("status 502")})
	if view := next.View(); !strings.Contains(view, "status 502") {
		t.Errorf("view missing error:\n%s", view)
	}
}

func TestModel_UnavailableCountdown(t *testing.T) {
	m := newModel("TRBUSDT", "15m", 5, 60, nil, nil, nil)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 20})
	if view := next.View(); !strings.Contains(view, "--:--") || !strings.Contains(view, "waiting for data") {
		t.Errorf("view:\n%s", view)
	}
}

func TestTimeLabels(t *testing.T) {
	cs := series(12).Candles()
	got := timeLabels(cs)
	if len(got) != 24 {
		t.Fatalf("label row is %d wide, want 24", len(got))
	}
	if !strings.HasPrefix(got, "00:00") || got[20:] != "02:3" {
		t.Errorf("labels = %q", got)
	}
}

func TestPriceRange(t *testing.T) {
	hi, lo := priceRange(series(3).Candles())
	if hi != 104 || lo != 98 {
		t.Errorf("priceRange = (%v, %v)", hi, lo)
	}
	if hi, lo := priceRange(nil); hi != 0 || lo != 0 {
		t.Errorf("empty priceRange = (%v, %v)", hi, lo)
	}
}
