package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yitech/candleclock/display"
)

// Client talks to a countdown service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for target. The connection is established lazily.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("service: dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) Snapshot(ctx context.Context) (display.View, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, snapshotMethod, &emptypb.Empty{}, out); err != nil {
		return display.View{}, err
	}
	return ViewFromStruct(out)
}

// Watch calls fn for every update until ctx is cancelled or the stream
// fails. It returns nil when the server ends the stream.
func (c *Client) Watch(ctx context.Context, fn func(display.View)) error {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], watchMethod)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		v, err := ViewFromStruct(msg)
		if err != nil {
			return err
		}
		fn(v)
	}
}
