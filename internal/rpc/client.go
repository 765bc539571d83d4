package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a typed client for the BambuFarm service.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient creates a client for target. Without options it uses plaintext
// transport; every call uses the JSON codec.
func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	conn, err := grpc.NewClient(target, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("rpc: creating client for %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Conn returns the underlying connection.
func (c *Client) Conn() *grpc.ClientConn {
	return c.conn
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// GetAvailablePrinters opens the roster stream.
func (c *Client) GetAvailablePrinters(ctx context.Context, opts ...grpc.CallOption) (grpc.ServerStreamingClient[PrinterOptionList], error) {
	return openServerStream[PrinterOptionRequest, PrinterOptionList](ctx, c.conn, &ServiceDesc.Streams[0], MethodGetAvailablePrinters, &PrinterOptionRequest{}, opts...)
}

// ConnectPrinter opens a device report stream.
func (c *Client) ConnectPrinter(ctx context.Context, devID string, opts ...grpc.CallOption) (grpc.ServerStreamingClient[RecvMessage], error) {
	return openServerStream[ConnectRequest, RecvMessage](ctx, c.conn, &ServiceDesc.Streams[1], MethodConnectPrinter, &ConnectRequest{DevID: devID}, opts...)
}

// SendMessage queues a command for a printer.
func (c *Client) SendMessage(ctx context.Context, req *SendMessageRequest, opts ...grpc.CallOption) (*SendMessageResponse, error) {
	out := new(SendMessageResponse)
	if err := c.conn.Invoke(ctx, MethodSendMessage, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// UploadFile delivers a file to a printer.
func (c *Client) UploadFile(ctx context.Context, req *UploadFileRequest, opts ...grpc.CallOption) (*UploadFileResponse, error) {
	out := new(UploadFileResponse)
	if err := c.conn.Invoke(ctx, MethodUploadFile, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func openServerStream[Req, Res any](ctx context.Context, conn *grpc.ClientConn, desc *grpc.StreamDesc, method string, req *Req, opts ...grpc.CallOption) (grpc.ServerStreamingClient[Res], error) {
	stream, err := conn.NewStream(ctx, desc, method, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[Req, Res]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
