// Package endpoint fetches kline records with a single HTTP GET against a
// configured URL that answers with a JSON array of arrays.
package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/yitech/candleclock/adapter"
	"github.com/yitech/candleclock/model/candle"
)

const (
	sourceName     = "endpoint"
	defaultTimeout = 10 * time.Second
	// maxBody caps the response size; a 1000-kline Binance page is ~150 KiB.
	maxBody = 8 << 20
)

var errBadStatus = errors.New("unexpected status")

// Source is an adapter.Source for a plain HTTP endpoint.
type Source struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

type Option func(*Source)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) { s.client = c }
}

// WithRateLimit bounds how often Fetch may hit the endpoint. Fetch waits for
// a token rather than failing.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Source) {
		if perSecond > 0 {
			if burst < 1 {
				burst = 1
			}
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

func New(url string, opts ...Option) *Source {
	s := &Source{
		url:    url,
		client: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Source) Name() string { return sourceName }

// Fetch performs one GET and decodes the body into raw records. Trailing
// fields of each record are kept; the normalizer ignores them.
func (s *Source) Fetch(ctx context.Context) ([]candle.RawRecord, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, s.fail(0, fmt.Errorf("rate limit: %w", err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, s.fail(0, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, s.fail(0, fmt.Errorf("http get: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil, s.fail(resp.StatusCode, fmt.Errorf("%w %s", errBadStatus, resp.Status))
	}

	var records []candle.RawRecord
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&records); err != nil {
		return nil, s.fail(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return records, nil
}

func (s *Source) fail(status int, err error) *adapter.FetchError {
	return &adapter.FetchError{Source: sourceName, URL: s.url, StatusCode: status, Err: err}
}
