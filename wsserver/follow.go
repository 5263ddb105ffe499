package wsserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yitech/candleclock/display"
)

const maxBackoff = 30 * time.Second

// Follow connects to the websocket at url and calls fn for every countdown
// update. It reconnects with exponential backoff until ctx is cancelled,
// then returns nil.
func Follow(ctx context.Context, url string, fn func(display.View), log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		received, err := connectAndRead(ctx, url, fn)
		if ctx.Err() != nil {
			return nil
		}
		if received {
			backoff = time.Second
		}
		log.Warn("countdown feed lost, reconnecting",
			zap.String("url", url),
			zap.Error(err),
			zap.Duration("backoff", backoff))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

// connectAndRead keeps one websocket session until the context is cancelled
// or the connection fails. It reports whether any update arrived.
func connectAndRead(ctx context.Context, url string, fn func(display.View)) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-stop:
		}
	}()

	received := false
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return received, nil
			}
			return received, fmt.Errorf("read: %w", err)
		}
		var v display.View
		if err := json.Unmarshal(msg, &v); err != nil {
			return received, fmt.Errorf("decode update: %w", err)
		}
		received = true
		fn(v)
	}
}
