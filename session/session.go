// Package session ties one data source, one renderer and one countdown engine
// together behind an explicit Open/Close lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yitech/candleclock/adapter"
	"github.com/yitech/candleclock/countdown"
	"github.com/yitech/candleclock/eventloop"
	"github.com/yitech/candleclock/fanout"
	"github.com/yitech/candleclock/model/candle"
	"github.com/yitech/candleclock/recorder"
)

// ErrClosed is returned by Refresh once the session has been closed.
var ErrClosed = errors.New("session: closed")

// Renderer draws a candle series. SetData replaces everything previously
// drawn; Dispose releases the renderer and is called exactly once.
type Renderer interface {
	SetData(s candle.Series) error
	Dispose() error
}

type nopRenderer struct{}

func (nopRenderer) SetData(candle.Series) error { return nil }
func (nopRenderer) Dispose() error              { return nil }

type Option func(*Session)

func WithRecorder(r recorder.Recorder) Option {
	return func(s *Session) {
		if r != nil {
			s.rec = r
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithEngineOptions passes options through to the countdown engine.
func WithEngineOptions(opts ...countdown.Option) Option {
	return func(s *Session) { s.engineOpts = append(s.engineOpts, opts...) }
}

// Session owns a started countdown and the renderer showing its series.
type Session struct {
	src        adapter.Source
	renderer   Renderer
	rec        recorder.Recorder
	log        *zap.Logger
	engineOpts []countdown.Option

	engine *countdown.Engine
	hub    *fanout.Hub[countdown.Snapshot]

	// refreshMu serializes Refresh against itself and Close.
	refreshMu sync.Mutex
	closed    bool

	mu     sync.RWMutex
	series candle.Series

	closeOnce sync.Once
	closeErr  error
}

// Open fetches and normalizes the first series, hands it to r and starts the
// countdown. If any step fails everything acquired so far is released and
// the error is returned; no countdown is left running.
func Open(ctx context.Context, src adapter.Source, r Renderer, loop eventloop.Loop, opts ...Option) (*Session, error) {
	if r == nil {
		r = nopRenderer{}
	}
	s := &Session{
		src:      src,
		renderer: r,
		rec:      recorder.NewNoopRecorder(),
		log:      zap.NewNop(),
		hub:      fanout.New[countdown.Snapshot](),
	}
	for _, o := range opts {
		o(s)
	}

	engineOpts := append([]countdown.Option{
		countdown.WithLogger(s.log.Named("countdown")),
	}, s.engineOpts...)
	// Appended last so a caller's observer cannot replace the hub.
	engineOpts = append(engineOpts, countdown.WithObserver(s.hub.Publish))
	s.engine = countdown.New(loop, engineOpts...)

	series, err := s.load(ctx)
	if err != nil {
		s.release()
		return nil, err
	}
	if err := s.engine.Start(series); err != nil {
		s.release()
		return nil, fmt.Errorf("session: start countdown: %w", err)
	}

	snap := s.engine.Snapshot()
	s.log.Info("session opened",
		zap.String("source", src.Name()),
		zap.Int("candles", series.Len()),
		zap.Int64("remaining", snap.Remaining),
		zap.Time("boundary", snap.Boundary))
	return s, nil
}

// Refresh fetches a new series, redraws it and lets the engine re-derive the
// next boundary. Concurrent calls are serialized. On failure the previous
// series and countdown stay in place.
func (s *Session) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	if s.closed {
		return ErrClosed
	}

	series, err := s.load(ctx)
	if err != nil {
		return err
	}
	if err := s.engine.Update(series); err != nil {
		return fmt.Errorf("session: update countdown: %w", err)
	}
	return nil
}

// load runs one fetch, normalize and render pass.
func (s *Session) load(ctx context.Context) (candle.Series, error) {
	started := time.Now()
	raw, err := s.src.Fetch(ctx)
	if err != nil {
		s.recordFetch(ctx, &recorder.FetchEvent{Source: s.src.Name(), At: started, Err: err})
		return candle.Series{}, fmt.Errorf("session: fetch: %w", err)
	}

	series, err := candle.Normalize(raw)
	if err != nil {
		s.recordFetch(ctx, &recorder.FetchEvent{Source: s.src.Name(), At: started, Candles: len(raw), Err: err})
		return candle.Series{}, fmt.Errorf("session: normalize: %w", err)
	}
	s.recordFetch(ctx, &recorder.FetchEvent{Source: s.src.Name(), At: started, Candles: series.Len()})

	if err := s.renderer.SetData(series); err != nil {
		return candle.Series{}, fmt.Errorf("session: render: %w", err)
	}
	if err := s.rec.RecordSeries(ctx, series); err != nil {
		s.log.Warn("record series failed", zap.Error(err))
	}

	s.mu.Lock()
	s.series = series
	s.mu.Unlock()

	s.log.Debug("series loaded",
		zap.Int("candles", series.Len()),
		zap.Duration("took", time.Since(started)))
	return series, nil
}

func (s *Session) recordFetch(ctx context.Context, evt *recorder.FetchEvent) {
	if err := s.rec.RecordFetch(ctx, evt); err != nil {
		s.log.Warn("record fetch failed", zap.Error(err))
	}
}

// Close stops the countdown and disposes the renderer. It waits for an
// in-flight Refresh. Safe to call more than once; later calls return the
// first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.refreshMu.Lock()
		defer s.refreshMu.Unlock()
		s.closed = true
		s.closeErr = s.release()
		s.log.Info("session closed")
	})
	return s.closeErr
}

func (s *Session) release() error {
	s.engine.Stop()
	if err := s.renderer.Dispose(); err != nil {
		return fmt.Errorf("session: dispose renderer: %w", err)
	}
	return nil
}

// Snapshot returns the current countdown state.
func (s *Session) Snapshot() countdown.Snapshot { return s.engine.Snapshot() }

// Series returns the most recently loaded series.
func (s *Session) Series() candle.Series {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.series
}

// Snapshots exposes the hub every countdown change is published on.
func (s *Session) Snapshots() *fanout.Hub[countdown.Snapshot] { return s.hub }

func (s *Session) Period() time.Duration { return s.engine.Period() }
