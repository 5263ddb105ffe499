package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yitech/candleclock/countdown"
	"github.com/yitech/candleclock/display"
	"github.com/yitech/candleclock/fanout"
)

// SnapshotSource is implemented by session.Session.
type SnapshotSource interface {
	Snapshot() countdown.Snapshot
	Snapshots() *fanout.Hub[countdown.Snapshot]
}

// Server implements CountdownServer on top of a running session.
type Server struct {
	src         SnapshotSource
	granularity int64
	log         *zap.Logger
}

func NewServer(src SnapshotSource, granularity int64, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{src: src, granularity: granularity, log: log}
}

func (s *Server) Snapshot(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	msg, err := viewStruct(display.NewView(s.src.Snapshot(), s.granularity))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode snapshot: %v", err)
	}
	return msg, nil
}

func (s *Server) Watch(_ *emptypb.Empty, stream WatchServer) error {
	id := uuid.NewString()
	log := s.log.With(zap.String("watcher", id))
	log.Info("watch started")

	updates, tok := fanout.Latest(s.src.Snapshots())
	defer tok.Unsubscribe()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			log.Info("watcher disconnected")
			return ctx.Err()
		case snap := <-updates:
			msg, err := viewStruct(display.NewView(snap, s.granularity))
			if err != nil {
				return status.Errorf(codes.Internal, "encode snapshot: %v", err)
			}
			if err := stream.Send(msg); err != nil {
				log.Warn("send failed", zap.Error(err))
				return err
			}
		}
	}
}
