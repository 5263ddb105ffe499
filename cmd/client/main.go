package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/yitech/candleclock/adapter/registry"
	"github.com/yitech/candleclock/config"
	"github.com/yitech/candleclock/countdown"
	"github.com/yitech/candleclock/eventloop"
	"github.com/yitech/candleclock/fanout"
	"github.com/yitech/candleclock/logger"
	"github.com/yitech/candleclock/scheduler"
	"github.com/yitech/candleclock/session"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	nKline := flag.Int("n", 96, "number of candles to keep on screen")
	flag.Parse()

	logger.Init(logger.Config{})
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	// The terminal belongs to the chart; logs only go to the file, if any.
	cfg.Log.Quiet = true
	logger.Init(cfg.Log)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}
	mode, _ := countdown.ParseMode(cfg.Countdown.Mode)

	src, err := registry.New(cfg.Source)
	if err != nil {
		logger.Fatal("build source", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loop := eventloop.New()
	go loop.Run(ctx)
	defer loop.Close()

	renderer := newChartRenderer()
	snaps := make(chan countdown.Snapshot, 1)
	errs := make(chan error, 1)

	p := tea.NewProgram(
		newModel(cfg.Source.Symbol, cfg.Source.Interval, *nKline, int64(cfg.Countdown.GranularitySeconds),
			renderer.ch, snaps, errs),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s, err := session.Open(ctx, src, renderer, loop,
			session.WithLogger(logger.Named("session")),
			session.WithEngineOptions(
				countdown.WithPeriod(cfg.Countdown.Period()),
				countdown.WithTick(cfg.Countdown.Tick()),
				countdown.WithMode(mode),
			),
		)
		if err != nil {
			logger.Error("open session", zap.Error(err))
			errs <- err
			return
		}
		defer s.Close()

		updates, tok := fanout.Latest(s.Snapshots())
		defer tok.Unsubscribe()

		if cfg.Countdown.RefreshEnabled() {
			sched := scheduler.New(ctx, refreshReporter{s, errs}, cfg.Countdown.Period(),
				cfg.Countdown.RefreshDelay, cfg.Source.Timeout, logger.Named("scheduler"))
			sched.Start()
			defer sched.Stop()
		}

		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-updates:
				select {
				case <-snaps:
				default:
				}
				snaps <- snap
			}
		}
	}()

	_, err = p.Run()
	stop()
	<-done
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		logger.Fatal("tui error", zap.Error(err))
	}
}

// refreshReporter forwards refresh failures to the footer.
type refreshReporter struct {
	s    *session.Session
	errs chan<- error
}

func (r refreshReporter) Refresh(ctx context.Context) error {
	err := r.s.Refresh(ctx)
	if err != nil {
		select {
		case r.errs <- err:
		default:
		}
	}
	return err
}
