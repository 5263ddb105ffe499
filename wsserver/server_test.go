package wsserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yitech/candleclock/countdown"
	"github.com/yitech/candleclock/display"
	"github.com/yitech/candleclock/eventloop"
	"github.com/yitech/candleclock/fanout"
	"github.com/yitech/candleclock/model/candle"
)

var t0 = time.Unix(1_699_999_200, 0)

type engineSource struct {
	engine *countdown.Engine
	hub    *fanout.Hub[countdown.Snapshot]
}

func (e *engineSource) Snapshot() countdown.Snapshot               { return e.engine.Snapshot() }
func (e *engineSource) Snapshots() *fanout.Hub[countdown.Snapshot] { return e.hub }

func newSource(t *testing.T, start bool) (*eventloop.Virtual, *engineSource) {
	t.Helper()
	loop := eventloop.NewVirtual(t0.Add(100 * time.Second))
	hub := fanout.New[countdown.Snapshot]()
	eng := countdown.New(loop, countdown.WithObserver(hub.Publish))
	if start {
		if err := eng.Start(candle.NewSeries([]candle.Candle{{Time: t0.Unix(), Open: 1, High: 1, Low: 1, Close: 1}})); err != nil {
			t.Fatal(err)
		}
	}
	t.Cleanup(eng.Stop)
	return loop, &engineSource{engine: eng, hub: hub}
}

func newTestServer(t *testing.T, src SnapshotSource) (*Server, *httptest.Server) {
	t.Helper()
	s := New("", src, 60, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return s, ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func TestHealth(t *testing.T) {
	_, src := newSource(t, true)
	_, ts := newTestServer(t, src)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("status=%d body=%v", resp.StatusCode, body)
	}
}

func TestCountdownJSON(t *testing.T) {
	_, src := newSource(t, true)
	_, ts := newTestServer(t, src)

	resp, err := http.Get(ts.URL + "/api/v1/countdown")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var v display.View
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if v.State != "running" || v.Remaining != 800 || v.Display != "13:20" {
		t.Errorf("view = %+v", v)
	}
}

func TestCountdownJSON_Unavailable(t *testing.T) {
	_, src := newSource(t, false)
	_, ts := newTestServer(t, src)

	resp, err := http.Get(ts.URL + "/api/v1/countdown")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var v display.View
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable || v.Display != display.Unavailable {
		t.Errorf("status=%d view=%+v", resp.StatusCode, v)
	}
}

func TestWebsocketPush(t *testing.T) {
	loop, src := newSource(t, true)
	s, ts := newTestServer(t, src)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var v display.View
	if err := conn.ReadJSON(&v); err != nil {
		t.Fatal(err)
	}
	if v.Remaining != 800 {
		t.Fatalf("first push = %+v", v)
	}
	if s.Clients() != 1 {
		t.Errorf("clients = %d", s.Clients())
	}

	loop.Advance(time.Second)
	if err := conn.ReadJSON(&v); err != nil {
		t.Fatal(err)
	}
	if v.Remaining != 799 || v.Display != "13:19" {
		t.Errorf("second push = %+v", v)
	}
}

func TestWebsocketCloseOnShutdown(t *testing.T) {
	_, src := newSource(t, true)
	s, ts := newTestServer(t, src)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var v display.View
	if err := conn.ReadJSON(&v); err != nil {
		t.Fatal(err)
	}
	s.Close()

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("err = %v, want going-away close", err)
	}
}

func TestFollow(t *testing.T) {
	loop, src := newSource(t, true)
	_, ts := newTestServer(t, src)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	views := make(chan display.View, 16)
	done := make(chan error, 1)
	go func() { done <- Follow(ctx, wsURL(ts), func(v display.View) { views <- v }, nil) }()

	select {
	case v := <-views:
		if v.Remaining != 800 {
			t.Fatalf("first view = %+v", v)
		}
	case <-ctx.Done():
		t.Fatal("no update received")
	}

	loop.Advance(2 * time.Second)
	var last display.View
	for last.Remaining != 798 {
		select {
		case last = <-views:
		case <-ctx.Done():
			t.Fatalf("last view = %+v, want 798 remaining", last)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Follow returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}

func TestFollow_UnreachableReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := Follow(ctx, "ws://127.0.0.1:1/ws", func(display.View) {}, nil); err != nil {
		t.Errorf("Follow = %v, want nil", err)
	}
}
