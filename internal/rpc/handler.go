package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ellenhp/bambu-farm/internal/farm"
	"github.com/ellenhp/bambu-farm/internal/printer"
)

// Farm is the gateway core the service exposes.
// This interface is satisfied by *farm.Farm.
type Farm interface {
	EnumeratePrinters(ctx context.Context) <-chan []printer.Record
	ConnectPrinter(ctx context.Context, id string) (*farm.Stream, error)
	SendMessage(ctx context.Context, id string, payload []byte) error
	UploadFile(ctx context.Context, id string, payload []byte, remotePath string) (bool, error)
}

// Service implements BambuFarmServer on top of a Farm.
type Service struct {
	farm Farm
}

// NewService creates the BambuFarm service.
func NewService(f Farm) *Service {
	return &Service{farm: f}
}

// GetAvailablePrinters streams the roster until the client goes away.
func (s *Service) GetAvailablePrinters(_ *PrinterOptionRequest, stream grpc.ServerStreamingServer[PrinterOptionList]) error {
	ctx := stream.Context()
	for records := range s.farm.EnumeratePrinters(ctx) {
		if err := stream.Send(toOptionList(records)); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return toStatus(err)
	}
	return status.Error(codes.Unavailable, "printer roster unavailable")
}

// ConnectPrinter relays device reports until the session ends.
func (s *Service) ConnectPrinter(req *ConnectRequest, stream grpc.ServerStreamingServer[RecvMessage]) error {
	if req.DevID == "" {
		return status.Error(codes.InvalidArgument, "dev_id is required")
	}

	ps, err := s.farm.ConnectPrinter(stream.Context(), req.DevID)
	if err != nil {
		return toStatus(err)
	}

	for msg := range ps.Messages() {
		out := &RecvMessage{
			Connected: msg.Connected,
			DevID:     msg.DeviceID,
			Data:      string(msg.Payload),
		}
		if err := stream.Send(out); err != nil {
			return err
		}
	}
	return nil
}

// SendMessage queues a command on the printer's session. Success is false
// when the session closed before accepting it.
func (s *Service) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	if req.DevID == "" {
		return nil, status.Error(codes.InvalidArgument, "dev_id is required")
	}
	err := s.farm.SendMessage(ctx, req.DevID, []byte(req.Data))
	switch {
	case err == nil:
		return &SendMessageResponse{Success: true}, nil
	case errors.Is(err, farm.ErrSessionClosed):
		// The session ended before taking the message.
		return &SendMessageResponse{Success: false}, nil
	default:
		return nil, toStatus(err)
	}
}

// UploadFile delivers a file to the printer.
func (s *Service) UploadFile(ctx context.Context, req *UploadFileRequest) (*UploadFileResponse, error) {
	if req.DevID == "" {
		return nil, status.Error(codes.InvalidArgument, "dev_id is required")
	}
	ok, err := s.farm.UploadFile(ctx, req.DevID, req.Blob, req.RemotePath)
	if err != nil {
		return nil, toStatus(err)
	}
	return &UploadFileResponse{Success: ok}, nil
}

func toOptionList(records []printer.Record) *PrinterOptionList {
	out := &PrinterOptionList{Options: make([]PrinterOption, len(records))}
	for i, rec := range records {
		out.Options[i] = PrinterOption{
			DevName: rec.Name,
			DevID:   rec.ID,
			Model:   rec.Model.WireName(),
		}
	}
	return out
}

// toStatus maps domain errors to gRPC status codes.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case err == nil:
		return nil
	case errors.Is(err, printer.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, farm.ErrSessionNotFound):
		code = codes.FailedPrecondition
	case errors.Is(err, farm.ErrInvalidUpload):
		code = codes.InvalidArgument
	case errors.Is(err, farm.ErrSessionFailed),
		errors.Is(err, farm.ErrSessionClosed),
		errors.Is(err, farm.ErrRegistryUnavailable),
		errors.Is(err, farm.ErrClosed):
		code = codes.Unavailable
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
