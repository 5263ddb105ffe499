// Package display turns a countdown snapshot into text.
package display

import (
	"fmt"
	"time"

	"github.com/yitech/candleclock/countdown"
)

// Unavailable is shown when no live countdown exists.
const Unavailable = "--:--"

// Split divides remaining seconds into whole granularity units and the
// leftover seconds. Minutes are floored, so seconds is always in
// [0, granularity) even for negative input: -5 with granularity 60 is
// (-1, 55). A non-positive granularity is treated as 60.
func Split(remaining, granularity int64) (minutes, seconds int64) {
	if granularity <= 0 {
		granularity = 60
	}
	minutes = remaining / granularity
	seconds = remaining % granularity
	if seconds < 0 {
		minutes--
		seconds += granularity
	}
	return minutes, seconds
}

// Clock renders remaining as MM:SS. Negative values print a minus sign and
// then the magnitude, so -5 is "-00:05".
func Clock(remaining, granularity int64) string {
	if remaining < 0 {
		m, s := Split(-remaining, granularity)
		return fmt.Sprintf("-%02d:%02d", m, s)
	}
	m, s := Split(remaining, granularity)
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Format renders a snapshot, or Unavailable when the engine is not running.
func Format(snap countdown.Snapshot, granularity int64) string {
	if !snap.Available() {
		return Unavailable
	}
	return Clock(snap.Remaining, granularity)
}

// View is the serialized form of a snapshot shared by the network surfaces.
type View struct {
	State     string    `json:"state"`
	Mode      string    `json:"mode"`
	Remaining int64     `json:"remaining_seconds"`
	Boundary  time.Time `json:"boundary"`
	Resets    int64     `json:"resets"`
	Display   string    `json:"display"`
}

// NewView converts a snapshot and pre-formats its display text.
func NewView(snap countdown.Snapshot, granularity int64) View {
	return View{
		State:     snap.State.String(),
		Mode:      snap.Mode.String(),
		Remaining: snap.Remaining,
		Boundary:  snap.Boundary,
		Resets:    int64(snap.Resets),
		Display:   Format(snap, granularity),
	}
}
