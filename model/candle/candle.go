package candle

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Candle is the canonical OHLC candlestick handed to the chart renderer and
// the countdown engine. Time is the period start in Unix seconds.
type Candle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// OpenTime returns the period start as a time.Time in UTC.
func (c Candle) OpenTime() time.Time {
	return time.Unix(c.Time, 0).UTC()
}

// RawRecord is one positional kline record as received from the data source:
//
//	[0] period start (Unix ms)
//	[1] open
//	[2] high
//	[3] low
//	[4] close
//	[5:] ignored
//
// Each field may be a JSON number or a JSON string holding a number.
type RawRecord []json.RawMessage

// NewRawRecord builds a RawRecord from Go values, marshalling each one as a
// JSON token.
func NewRawRecord(fields ...any) (RawRecord, error) {
	r := make(RawRecord, len(fields))
	for i, f := range fields {
		b, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("candle: marshal field %d: %w", i, err)
		}
		r[i] = b
	}
	return r, nil
}

// Series is an ordered, read-only sequence of candles. A refresh produces a
// new Series; an existing one is never edited in place.
type Series struct {
	candles []Candle
}

// NewSeries copies cs into a new Series.
func NewSeries(cs []Candle) Series {
	out := make([]Candle, len(cs))
	copy(out, cs)
	return Series{candles: out}
}

func (s Series) Len() int { return len(s.candles) }

func (s Series) At(i int) Candle { return s.candles[i] }

// Last returns the most recent candle, or false for an empty series.
func (s Series) Last() (Candle, bool) {
	if len(s.candles) == 0 {
		return Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// Candles returns a copy of the underlying slice.
func (s Series) Candles() []Candle {
	out := make([]Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Tail returns a Series holding at most the n most recent candles.
func (s Series) Tail(n int) Series {
	if n <= 0 {
		return Series{}
	}
	if n >= len(s.candles) {
		return s
	}
	return Series{candles: s.candles[len(s.candles)-n:]}
}

// IntervalSeconds converts an exchange interval string such as "1m", "15m",
// "4h", "1d" or "1w" into seconds.
func IntervalSeconds(interval string) (int64, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("candle: invalid interval %q", interval)
	}
	n, err := strconv.ParseInt(interval[:len(interval)-1], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("candle: invalid interval %q", interval)
	}
	var unit int64
	switch interval[len(interval)-1] {
	case 's':
		unit = 1
	case 'm':
		unit = 60
	case 'h':
		unit = 3600
	case 'd':
		unit = 86400
	case 'w':
		unit = 7 * 86400
	default:
		return 0, fmt.Errorf("candle: invalid interval %q", interval)
	}
	return n * unit, nil
}
