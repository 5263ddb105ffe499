package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/yitech/candleclock/adapter/registry"
	"github.com/yitech/candleclock/config"
	"github.com/yitech/candleclock/countdown"
	"github.com/yitech/candleclock/eventloop"
	"github.com/yitech/candleclock/logger"
	"github.com/yitech/candleclock/recorder"
	"github.com/yitech/candleclock/scheduler"
	"github.com/yitech/candleclock/service"
	"github.com/yitech/candleclock/session"
	"github.com/yitech/candleclock/wsserver"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger.Init(logger.Config{})
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	logger.Init(cfg.Log)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}
	if err := run(cfg); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode, err := countdown.ParseMode(cfg.Countdown.Mode)
	if err != nil {
		return err
	}
	src, err := registry.New(cfg.Source)
	if err != nil {
		return err
	}

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sqlite, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger.Named("recorder"))
		if err != nil {
			return err
		}
		rec = sqlite
	}
	defer rec.Close()

	loop := eventloop.New()
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()
	defer loop.Close()

	// Fetch failures on startup are returned as-is; the process supervisor
	// owns the retry policy.
	s, err := session.Open(ctx, src, nil, loop,
		session.WithRecorder(rec),
		session.WithLogger(logger.Named("session")),
		session.WithEngineOptions(
			countdown.WithPeriod(cfg.Countdown.Period()),
			countdown.WithTick(cfg.Countdown.Tick()),
			countdown.WithMode(mode),
		),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	if cfg.Countdown.RefreshEnabled() {
		sched := scheduler.New(ctx, s, cfg.Countdown.Period(), cfg.Countdown.RefreshDelay,
			cfg.Source.Timeout, logger.Named("scheduler"))
		sched.Start()
		defer sched.Stop()
	}

	granularity := int64(cfg.Countdown.GranularitySeconds)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return err
		}
		gs := grpc.NewServer()
		service.RegisterCountdownServer(gs, service.NewServer(s, granularity, logger.Named("grpc")))

		go func() {
			<-gctx.Done()
			// Watch streams never end on their own, so no graceful drain.
			gs.Stop()
		}()
		logger.Info("gRPC server listening", zap.String("addr", cfg.Server.GRPCAddr))
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return wsserver.New(cfg.Server.HTTPAddr, s, granularity, logger.Named("http")).Run(gctx)
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-loopDone:
			return err
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
