package adapter

import (
	"context"
	"fmt"

	"github.com/yitech/candleclock/model/candle"
)

// Source defines the contract for candle data sources. Each implementation
// performs one request per Fetch and returns the records in chronological
// order. Nothing is retried; the caller owns retry and backoff policy.
type Source interface {
	// Fetch retrieves the current batch of raw kline records. Failures are
	// reported as *FetchError.
	Fetch(ctx context.Context) ([]candle.RawRecord, error)

	// Name identifies the source in logs.
	Name() string
}

// FetchError reports a failed or non-successful data source request.
type FetchError struct {
	Source     string
	URL        string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: fetch %s: status %d: %v", e.Source, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: fetch %s: %v", e.Source, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
