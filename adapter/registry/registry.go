// Package registry builds the configured candle source.
package registry

import (
	"fmt"
	"net/http"

	"github.com/yitech/candleclock/adapter"
	"github.com/yitech/candleclock/adapter/binance"
	"github.com/yitech/candleclock/adapter/endpoint"
	"github.com/yitech/candleclock/config"
)

// New returns the source selected by cfg.Type.
func New(cfg config.SourceConfig) (adapter.Source, error) {
	switch cfg.Type {
	case config.SourceEndpoint:
		if cfg.EndpointURL == "" {
			return nil, fmt.Errorf("registry: endpoint source needs an endpoint_url")
		}
		opts := []endpoint.Option{endpoint.WithHTTPClient(&http.Client{Timeout: cfg.Timeout})}
		if cfg.RatePerSecond > 0 {
			opts = append(opts, endpoint.WithRateLimit(cfg.RatePerSecond, 1))
		}
		return endpoint.New(cfg.EndpointURL, opts...), nil
	case config.SourceBinance:
		return binance.New(binance.Config{
			Symbol:        cfg.Symbol,
			Interval:      cfg.Interval,
			Limit:         cfg.Limit,
			BaseURL:       cfg.BaseURL,
			Timeout:       cfg.Timeout,
			RatePerSecond: cfg.RatePerSecond,
		}), nil
	}
	return nil, fmt.Errorf("registry: unknown source type %q", cfg.Type)
}
