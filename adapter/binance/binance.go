// Package binance fetches spot klines through the Binance REST API.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"

	"github.com/yitech/candleclock/adapter"
	"github.com/yitech/candleclock/model/candle"
)

const (
	sourceName = "binance"
	klinePath  = "/api/v3/klines"
	// maxLimit is the largest page Binance serves for /api/v3/klines.
	maxLimit = 1000
)

type Config struct {
	Symbol   string
	Interval string
	Limit    int
	// BaseURL overrides the API host, e.g. for the testnet.
	BaseURL string
	Timeout time.Duration
	// RatePerSecond bounds request rate; zero disables throttling.
	RatePerSecond float64
}

// Source is an adapter.Source for one Binance symbol and interval.
type Source struct {
	client  *binance.Client
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config) *Source {
	c := binance.NewClient("", "")
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		c.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Limit <= 0 || cfg.Limit > maxLimit {
		cfg.Limit = maxLimit
	}

	s := &Source{client: c, cfg: cfg}
	if cfg.RatePerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return s
}

func (s *Source) Name() string { return sourceName }

// Fetch requests the most recent Limit klines in a single call.
func (s *Source) Fetch(ctx context.Context) ([]candle.RawRecord, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, s.fail(fmt.Errorf("rate limit: %w", err))
		}
	}

	klines, err := s.client.NewKlinesService().
		Symbol(s.cfg.Symbol).
		Interval(s.cfg.Interval).
		Limit(s.cfg.Limit).
		Do(ctx)
	if err != nil {
		return nil, s.fail(err)
	}
	records, err := FromKlines(klines)
	if err != nil {
		return nil, s.fail(err)
	}
	return records, nil
}

// FromKlines maps SDK klines onto the positional record layout
// [openTime, open, high, low, close, volume].
func FromKlines(klines []*binance.Kline) ([]candle.RawRecord, error) {
	out := make([]candle.RawRecord, 0, len(klines))
	for i, k := range klines {
		r, err := candle.NewRawRecord(k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, fmt.Errorf("kline[%d]: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Source) fail(err error) *adapter.FetchError {
	return &adapter.FetchError{
		Source: sourceName,
		URL:    s.client.BaseURL + klinePath + "?symbol=" + s.cfg.Symbol + "&interval=" + s.cfg.Interval,
		Err:    err,
	}
}
