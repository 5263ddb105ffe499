package registry

import (
	"testing"
	"time"

	"github.com/yitech/candleclock/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.SourceConfig
		wantName string
		wantErr  bool
	}{
		{
			name:     "endpoint",
			cfg:      config.SourceConfig{Type: config.SourceEndpoint, EndpointURL: "http://localhost/candles", Timeout: time.Second, RatePerSecond: 2},
			wantName: "endpoint",
		},
		{
			name:     "binance",
			cfg:      config.SourceConfig{Type: config.SourceBinance, Symbol: "TRBUSDT", Interval: "15m", Limit: 500},
			wantName: "binance",
		},
		{name: "endpoint without url", cfg: config.SourceConfig{Type: config.SourceEndpoint}, wantErr: true},
		{name: "unknown", cfg: config.SourceConfig{Type: "kraken"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if src.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", src.Name(), tt.wantName)
			}
		})
	}
}
