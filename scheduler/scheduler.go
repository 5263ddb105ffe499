// Package scheduler re-fetches the candle series shortly after every period
// boundary so the chart and countdown follow the newly opened candle.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Refresher is implemented by session.Session.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// BoundarySchedule is a cron.Schedule that fires Delay after every multiple
// of Period since the Unix epoch.
type BoundarySchedule struct {
	Period time.Duration
	Delay  time.Duration
}

// Next returns the first activation strictly after t.
func (b BoundarySchedule) Next(t time.Time) time.Time {
	p := int64(b.Period)
	if p <= 0 {
		return time.Time{}
	}
	n := t.UnixNano() - int64(b.Delay)
	k := n / p
	if n%p < 0 {
		k--
	}
	return time.Unix(0, (k+1)*p+int64(b.Delay)).In(t.Location())
}

// Scheduler runs the boundary refresh job.
type Scheduler struct {
	cron     *cron.Cron
	target   Refresher
	schedule BoundarySchedule
	timeout  time.Duration
	log      *zap.Logger
	ctx      context.Context
}

// New creates a scheduler that calls target.Refresh delay after every period
// boundary. Each run is bounded by timeout; ctx cancels in-flight runs.
func New(ctx context.Context, target Refresher, period, delay, timeout time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		// A slow refresh must not overlap the next one.
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		target:   target,
		schedule: BoundarySchedule{Period: period, Delay: delay},
		timeout:  timeout,
		log:      log,
		ctx:      ctx,
	}
}

// Start registers the refresh job and starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Schedule(s.schedule, cron.FuncJob(s.RunNow))
	s.cron.Start()
	s.log.Info("scheduler started",
		zap.Duration("period", s.schedule.Period),
		zap.Duration("delay", s.schedule.Delay),
		zap.Time("next", s.schedule.Next(time.Now())))
}

// Stop stops the scheduler and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunNow performs one refresh. Failures are logged and not retried; the next
// boundary tries again.
func (s *Scheduler) RunNow() {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	started := time.Now()
	if err := s.target.Refresh(ctx); err != nil {
		s.log.Error("boundary refresh failed", zap.Error(err))
		return
	}
	s.log.Debug("boundary refresh done", zap.Duration("took", time.Since(started)))
}
