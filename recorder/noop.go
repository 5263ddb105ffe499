package recorder

import (
	"context"

	"github.com/yitech/candleclock/model/candle"
)

// NoopRecorder is used when no database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSeries(_ context.Context, _ candle.Series) error { return nil }
func (n *NoopRecorder) RecordFetch(_ context.Context, _ *FetchEvent) error    { return nil }
func (n *NoopRecorder) Close() error                                          { return nil }
