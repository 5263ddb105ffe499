package candle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// minFields is the number of leading positional fields a RawRecord must carry.
const minFields = 5

var (
	// ErrShortRecord is wrapped by a ParseError when a record has fewer than
	// five fields.
	ErrShortRecord = errors.New("record has fewer than 5 fields")
	// ErrNotNumeric is wrapped by a ParseError when a field does not hold a
	// number.
	ErrNotNumeric = errors.New("not a number")
	// ErrOutOfOrder is wrapped by a ParseError when a record starts before the
	// record preceding it.
	ErrOutOfOrder = errors.New("period start precedes previous record")
)

// ParseError reports the first record that could not be normalized.
type ParseError struct {
	Index int
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("candle: record[%d] %s: %v", e.Index, e.Field, e.Err)
	}
	return fmt.Sprintf("candle: record[%d] %s %q: %v", e.Index, e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var ohlcFields = [4]string{"open", "high", "low", "close"}

var (
	minSeconds = decimal.NewFromInt(math.MinInt64)
	maxSeconds = decimal.NewFromInt(math.MaxInt64)
)

// Normalize converts raw records into a Series of equal length and order.
// time is the period start in ms floor-divided by 1000; OHLC fields are parsed
// as decimal numbers. Normalization is all or nothing: the first bad record
// fails the whole batch with a *ParseError.
func Normalize(records []RawRecord) (Series, error) {
	out := make([]Candle, len(records))
	for i, r := range records {
		c, err := normalizeRecord(i, r)
		if err != nil {
			return Series{}, err
		}
		if i > 0 && c.Time < out[i-1].Time {
			return Series{}, &ParseError{Index: i, Field: "time", Value: string(r[0]), Err: ErrOutOfOrder}
		}
		out[i] = c
	}
	return Series{candles: out}, nil
}

func normalizeRecord(i int, r RawRecord) (Candle, error) {
	if len(r) < minFields {
		return Candle{}, &ParseError{Index: i, Field: "record", Err: ErrShortRecord}
	}

	ms, err := parseDecimal(r[0])
	if err != nil {
		return Candle{}, &ParseError{Index: i, Field: "time", Value: string(r[0]), Err: err}
	}
	sec := ms.Shift(-3).Floor()
	if sec.LessThan(minSeconds) || sec.GreaterThan(maxSeconds) {
		return Candle{}, &ParseError{Index: i, Field: "time", Value: string(r[0]),
			Err: fmt.Errorf("%w: out of int64 range", ErrNotNumeric)}
	}

	var ohlc [4]float64
	for j, name := range ohlcFields {
		d, err := parseDecimal(r[j+1])
		if err != nil {
			return Candle{}, &ParseError{Index: i, Field: name, Value: string(r[j+1]), Err: err}
		}
		f := d.InexactFloat64()
		if math.IsInf(f, 0) {
			return Candle{}, &ParseError{Index: i, Field: name, Value: string(r[j+1]),
				Err: fmt.Errorf("%w: out of float64 range", ErrNotNumeric)}
		}
		ohlc[j] = f
	}

	return Candle{
		Time:  sec.IntPart(),
		Open:  ohlc[0],
		High:  ohlc[1],
		Low:   ohlc[2],
		Close: ohlc[3],
	}, nil
}

// parseDecimal accepts a JSON number or a JSON string holding a number.
func parseDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	tok := bytes.TrimSpace(raw)
	if len(tok) == 0 || bytes.Equal(tok, []byte("null")) {
		return decimal.Decimal{}, ErrNotNumeric
	}

	text := string(tok)
	if tok[0] == '"' {
		var s string
		if err := json.Unmarshal(tok, &s); err != nil {
			return decimal.Decimal{}, ErrNotNumeric
		}
		text = strings.TrimSpace(s)
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrNotNumeric, err)
	}
	return d, nil
}
