package recorder

import (
	"context"
	"time"

	"github.com/yitech/candleclock/model/candle"
)

// FetchEvent describes one data source round trip.
type FetchEvent struct {
	Source  string
	At      time.Time
	Candles int
	Err     error
}

// Recorder persists fetched candles and fetch outcomes for later analysis.
type Recorder interface {
	RecordSeries(ctx context.Context, s candle.Series) error
	RecordFetch(ctx context.Context, evt *FetchEvent) error
	Close() error
}
