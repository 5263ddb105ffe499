// Package wsserver serves the countdown over HTTP: a health probe, a JSON
// snapshot and a websocket that pushes every change.
package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yitech/candleclock/countdown"
	"github.com/yitech/candleclock/display"
	"github.com/yitech/candleclock/fanout"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// SnapshotSource is implemented by session.Session.
type SnapshotSource interface {
	Snapshot() countdown.Snapshot
	Snapshots() *fanout.Hub[countdown.Snapshot]
}

// Server is the HTTP surface of a running countdown.
type Server struct {
	addr        string
	src         SnapshotSource
	granularity int64
	log         *zap.Logger
	upgrader    websocket.Upgrader

	clients  atomic.Int64
	quit     chan struct{}
	quitOnce sync.Once
}

func New(addr string, src SnapshotSource, granularity int64, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		addr:        addr,
		src:         src,
		granularity: granularity,
		log:         log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Served to local dashboards on other origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		quit: make(chan struct{}),
	}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/countdown", s.handleCountdown)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int { return int(s.clients.Load()) }

// Run listens on the configured address until ctx is cancelled, then shuts
// down and disconnects websocket clients.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("http server listening", zap.String("addr", s.addr))

	select {
	case <-ctx.Done():
		s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		s.Close()
		return err
	}
}

// Close disconnects every websocket client. Hijacked connections are not
// tracked by http.Server.Shutdown.
func (s *Server) Close() {
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCountdown(w http.ResponseWriter, _ *http.Request) {
	snap := s.src.Snapshot()
	code := http.StatusOK
	if !snap.Available() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, display.NewView(snap, s.granularity))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	log := s.log.With(zap.String("client", id), zap.String("remote", r.RemoteAddr))
	s.clients.Add(1)
	defer s.clients.Add(-1)
	log.Info("websocket client connected")

	updates, tok := fanout.Latest(s.src.Snapshots())
	defer tok.Unsubscribe()

	// Reads only serve control frames and detect a closed peer.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			log.Info("websocket client disconnected")
			return
		case <-s.quit:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(writeWait))
			return
		case snap := <-updates:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(display.NewView(snap, s.granularity)); err != nil {
				log.Warn("websocket write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn("websocket ping failed", zap.Error(err))
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
