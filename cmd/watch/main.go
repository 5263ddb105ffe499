// Command watch prints the countdown of a running server, one line per
// update, over gRPC or the websocket feed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/yitech/candleclock/display"
	"github.com/yitech/candleclock/logger"
	"github.com/yitech/candleclock/service"
	"github.com/yitech/candleclock/wsserver"
)

func main() {
	grpcAddr := flag.String("grpc", "localhost:50051", "countdown gRPC address")
	wsURL := flag.String("ws", "", "websocket feed URL, e.g. ws://localhost:8080/ws (overrides -grpc)")
	once := flag.Bool("once", false, "print the current state and exit")
	flag.Parse()

	logger.Init(logger.Config{Level: "warn"})
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *wsURL != "" {
		if err := wsserver.Follow(ctx, *wsURL, printView, logger.Named("follow")); err != nil {
			logger.Fatal("follow", zap.Error(err))
		}
		return
	}

	c, err := service.Dial(*grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logger.Fatal("dial", zap.Error(err))
	}
	defer c.Close()

	if *once {
		v, err := c.Snapshot(ctx)
		if err != nil {
			logger.Fatal("snapshot", zap.Error(err))
		}
		printView(v)
		return
	}

	for ctx.Err() == nil {
		if err := c.Watch(ctx, printView); err != nil && ctx.Err() == nil {
			logger.Warn("watch stream failed, retrying in 3s", zap.Error(err))
		}
		select {
		case <-ctx.Done():
		case <-time.After(3 * time.Second):
		}
	}
}

func printView(v display.View) {
	boundary := "-"
	if !v.Boundary.IsZero() {
		boundary = v.Boundary.Local().Format("15:04:05")
	}
	fmt.Printf("%s  %-8s %-11s %s  next close %s  resets %d\n",
		time.Now().Format("15:04:05"), v.State, v.Mode, v.Display, boundary, v.Resets)
}
