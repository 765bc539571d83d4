package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "bambufarm.v1.BambuFarm"

// Full method names, as seen by interceptors.
const (
	MethodGetAvailablePrinters = "/" + ServiceName + "/GetAvailablePrinters"
	MethodConnectPrinter       = "/" + ServiceName + "/ConnectPrinter"
	MethodSendMessage          = "/" + ServiceName + "/SendMessage"
	MethodUploadFile           = "/" + ServiceName + "/UploadFile"
)

// BambuFarmServer is the server API for the BambuFarm service.
type BambuFarmServer interface {
	GetAvailablePrinters(*PrinterOptionRequest, grpc.ServerStreamingServer[PrinterOptionList]) error
	ConnectPrinter(*ConnectRequest, grpc.ServerStreamingServer[RecvMessage]) error
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	UploadFile(context.Context, *UploadFileRequest) (*UploadFileResponse, error)
}

// ServiceDesc describes the BambuFarm service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BambuFarmServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendMessage", Handler: sendMessageHandler},
		{MethodName: "UploadFile", Handler: uploadFileHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "GetAvailablePrinters", Handler: getAvailablePrintersHandler, ServerStreams: true},
		{StreamName: "ConnectPrinter", Handler: connectPrinterHandler, ServerStreams: true},
	},
	Metadata: "bambufarm/v1/bambufarm.proto",
}

func getAvailablePrintersHandler(srv any, stream grpc.ServerStream) error {
	m := new(PrinterOptionRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(BambuFarmServer).GetAvailablePrinters(m, &grpc.GenericServerStream[PrinterOptionRequest, PrinterOptionList]{ServerStream: stream})
}

func connectPrinterHandler(srv any, stream grpc.ServerStream) error {
	m := new(ConnectRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(BambuFarmServer).ConnectPrinter(m, &grpc.GenericServerStream[ConnectRequest, RecvMessage]{ServerStream: stream})
}

func sendMessageHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SendMessageRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BambuFarmServer).SendMessage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodSendMessage}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BambuFarmServer).SendMessage(ctx, req.(*SendMessageRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func uploadFileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UploadFileRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BambuFarmServer).UploadFile(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodUploadFile}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BambuFarmServer).UploadFile(ctx, req.(*UploadFileRequest))
	}
	return interceptor(ctx, in, info, handler)
}
