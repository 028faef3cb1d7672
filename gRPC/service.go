package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "yolo.DetectService"

type DetectServiceServer interface {
	InitEngine(context.Context, *InitEngineRequest) (*InitEngineResponse, error)
	Inference(context.Context, *InferenceRequest) (*InferenceResponse, error)
	DestroyEngine(context.Context, *DestroyEngineRequest) (*DestroyEngineResponse, error)
	CheckEngine(context.Context, *CheckEngineRequest) (*CheckEngineResponse, error)
	CheckAllEngine(context.Context, *emptypb.Empty) (*CheckAllEngineResponse, error)
	DeviceName(context.Context, *DeviceNameRequest) (*wrapperspb.StringValue, error)
	Shutdown(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	UploadModel(DetectService_UploadModelServer) error
}

// UnimplementedDetectServiceServer answers every method with Unimplemented.
type UnimplementedDetectServiceServer struct{}

func (UnimplementedDetectServiceServer) InitEngine(context.Context, *InitEngineRequest) (*InitEngineResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method InitEngine not implemented")
}
func (UnimplementedDetectServiceServer) Inference(context.Context, *InferenceRequest) (*InferenceResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Inference not implemented")
}
func (UnimplementedDetectServiceServer) DestroyEngine(context.Context, *DestroyEngineRequest) (*DestroyEngineResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DestroyEngine not implemented")
}
func (UnimplementedDetectServiceServer) CheckEngine(context.Context, *CheckEngineRequest) (*CheckEngineResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CheckEngine not implemented")
}
func (UnimplementedDetectServiceServer) CheckAllEngine(context.Context, *emptypb.Empty) (*CheckAllEngineResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CheckAllEngine not implemented")
}
func (UnimplementedDetectServiceServer) DeviceName(context.Context, *DeviceNameRequest) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method DeviceName not implemented")
}
func (UnimplementedDetectServiceServer) Shutdown(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method Shutdown not implemented")
}
func (UnimplementedDetectServiceServer) UploadModel(DetectService_UploadModelServer) error {
	return status.Error(codes.Unimplemented, "method UploadModel not implemented")
}

func RegisterDetectServiceServer(s grpc.ServiceRegistrar, srv DetectServiceServer) {
	s.RegisterService(&DetectService_ServiceDesc, srv)
}

// unaryHandler adapts one typed method to a grpc.MethodDesc handler.
func unaryHandler[Req any, Resp any](name string, call func(DetectServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(DetectServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + serviceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(DetectServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var DetectService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DetectServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("InitEngine", DetectServiceServer.InitEngine),
		unaryHandler("Inference", DetectServiceServer.Inference),
		unaryHandler("DestroyEngine", DetectServiceServer.DestroyEngine),
		unaryHandler("CheckEngine", DetectServiceServer.CheckEngine),
		unaryHandler("CheckAllEngine", DetectServiceServer.CheckAllEngine),
		unaryHandler("DeviceName", DetectServiceServer.DeviceName),
		unaryHandler("Shutdown", DetectServiceServer.Shutdown),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "UploadModel",
			Handler:       uploadModelHandler,
			ClientStreams: true,
		},
	},
	Metadata: "yolo.proto",
}

type DetectService_UploadModelServer interface {
	SendAndClose(*UploadFileResponse) error
	Recv() (*UploadFileRequest, error)
	grpc.ServerStream
}

type detectServiceUploadModelServer struct {
	grpc.ServerStream
}

func (x *detectServiceUploadModelServer) SendAndClose(m *UploadFileResponse) error {
	return x.ServerStream.SendMsg(m)
}

func (x *detectServiceUploadModelServer) Recv() (*UploadFileRequest, error) {
	m := new(UploadFileRequest)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func uploadModelHandler(srv any, stream grpc.ServerStream) error {
	return srv.(DetectServiceServer).UploadModel(&detectServiceUploadModelServer{stream})
}

// DetectServiceClient is the client side of DetectService.
type DetectServiceClient interface {
	InitEngine(ctx context.Context, in *InitEngineRequest, opts ...grpc.CallOption) (*InitEngineResponse, error)
	Inference(ctx context.Context, in *InferenceRequest, opts ...grpc.CallOption) (*InferenceResponse, error)
	DestroyEngine(ctx context.Context, in *DestroyEngineRequest, opts ...grpc.CallOption) (*DestroyEngineResponse, error)
	CheckEngine(ctx context.Context, in *CheckEngineRequest, opts ...grpc.CallOption) (*CheckEngineResponse, error)
	CheckAllEngine(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*CheckAllEngineResponse, error)
	DeviceName(ctx context.Context, in *DeviceNameRequest, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Shutdown(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error)
	UploadModel(ctx context.Context, opts ...grpc.CallOption) (DetectService_UploadModelClient, error)
}

type detectServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewDetectServiceClient wraps cc; every call is sent with the JSON codec.
func NewDetectServiceClient(cc grpc.ClientConnInterface) DetectServiceClient {
	return &detectServiceClient{cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *detectServiceClient) InitEngine(ctx context.Context, in *InitEngineRequest, opts ...grpc.CallOption) (*InitEngineResponse, error) {
	return invoke[InitEngineResponse](ctx, c.cc, "InitEngine", in, opts)
}

func (c *detectServiceClient) Inference(ctx context.Context, in *InferenceRequest, opts ...grpc.CallOption) (*InferenceResponse, error) {
	return invoke[InferenceResponse](ctx, c.cc, "Inference", in, opts)
}

func (c *detectServiceClient) DestroyEngine(ctx context.Context, in *DestroyEngineRequest, opts ...grpc.CallOption) (*DestroyEngineResponse, error) {
	return invoke[DestroyEngineResponse](ctx, c.cc, "DestroyEngine", in, opts)
}

func (c *detectServiceClient) CheckEngine(ctx context.Context, in *CheckEngineRequest, opts ...grpc.CallOption) (*CheckEngineResponse, error) {
	return invoke[CheckEngineResponse](ctx, c.cc, "CheckEngine", in, opts)
}

func (c *detectServiceClient) CheckAllEngine(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*CheckAllEngineResponse, error) {
	return invoke[CheckAllEngineResponse](ctx, c.cc, "CheckAllEngine", in, opts)
}

func (c *detectServiceClient) DeviceName(ctx context.Context, in *DeviceNameRequest, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return invoke[wrapperspb.StringValue](ctx, c.cc, "DeviceName", in, opts)
}

func (c *detectServiceClient) Shutdown(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, "Shutdown", in, opts)
}

type DetectService_UploadModelClient interface {
	Send(*UploadFileRequest) error
	CloseAndRecv() (*UploadFileResponse, error)
	grpc.ClientStream
}

type detectServiceUploadModelClient struct {
	grpc.ClientStream
}

func (c *detectServiceClient) UploadModel(ctx context.Context, opts ...grpc.CallOption) (DetectService_UploadModelClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &DetectService_ServiceDesc.Streams[0], "/"+serviceName+"/UploadModel", opts...)
	if err != nil {
		return nil, err
	}
	return &detectServiceUploadModelClient{stream}, nil
}

func (x *detectServiceUploadModelClient) Send(m *UploadFileRequest) error {
	return x.ClientStream.SendMsg(m)
}

func (x *detectServiceUploadModelClient) CloseAndRecv() (*UploadFileResponse, error) {
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	m := new(UploadFileResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
