package proto

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"YoloDetServer/engine"
	iface "YoloDetServer/interface"
	"YoloDetServer/logger"
	"YoloDetServer/monitor"
	"YoloDetServer/registry"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type Server struct {
	UnimplementedDetectServiceServer

	registry  *registry.Registry
	modelsDir string

	closeOnce    sync.Once
	CloseChannel chan struct{}
}

func NewServer(reg *registry.Registry, modelsDir string) *Server {
	return &Server{
		registry:     reg,
		modelsDir:    modelsDir,
		CloseChannel: make(chan struct{}),
	}
}

// toStatus maps engine and registry errors onto gRPC codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codes.Internal
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, registry.ErrEngineNotFound):
		code = codes.NotFound
	case errors.Is(err, engine.ErrFileNotFound),
		errors.Is(err, engine.ErrInvalidImageFormat):
		code = codes.InvalidArgument
	case errors.Is(err, engine.ErrUnsupportedPlatform),
		errors.Is(err, engine.ErrInitialization),
		errors.Is(err, engine.ErrModuleNotFound),
		errors.Is(err, engine.ErrSymbolNotFound),
		errors.Is(err, engine.ErrDisposed),
		errors.Is(err, engine.ErrNotInitialized):
		code = codes.FailedPrecondition
	case errors.Is(err, registry.ErrPoolClosed):
		code = codes.Unavailable
	}
	return status.Error(code, err.Error())
}

func toResults(items []iface.YoloItem) []*SingleResult {
	out := make([]*SingleResult, 0, len(items))
	for _, it := range items {
		l, t := int32(it.X), int32(it.Y)
		r, b := int32(it.X+it.Width), int32(it.Y+it.Height)
		cx, cy := it.Center()
		out = append(out, &SingleResult{
			Name:       it.Type,
			Confidence: float32(it.Confidence),
			Box: []*Position{
				{X: l, Y: t},
				{X: r, Y: t},
				{X: r, Y: b},
				{X: l, Y: b},
			},
			Center: &Position{X: int32(cx), Y: int32(cy)},
		})
	}
	return out
}

func toEngineInfo(e *registry.Entry) *EngineInfo {
	info := e.Backend.Info()
	ret := &EngineInfo{
		Id:              e.ID,
		Name:            e.Name,
		Description:     e.Description,
		System:          info.SystemName,
		ConfigPath:      info.ConfigPath,
		WeightsPath:     info.WeightsPath,
		ModulePath:      info.ModulePath,
		Names:           info.Names,
		BuiltWithOpenCV: info.BuiltWithOpenCV,
		State:           info.State,
	}
	if info.Gpu != nil {
		idx := int32(info.Gpu.GpuIndex)
		ret.GpuIndex = &idx
	}
	return ret
}

func (s *Server) InitEngine(ctx context.Context, req *InitEngineRequest) (*InitEngineResponse, error) {
	system, err := iface.ParseDetectionSystem(req.System)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Config == "" || req.Weights == "" || req.Names == "" {
		return nil, status.Error(codes.InvalidArgument, "cfg, weights and names paths cannot be empty")
	}
	spec := registry.Spec{
		Name:        req.Name,
		System:      system,
		Config:      req.Config,
		Weights:     req.Weights,
		Names:       req.Names,
		Description: req.Description,
	}
	if req.GpuIndex != nil || req.BatchSize > 0 {
		spec.Gpu = &iface.GpuConfig{BatchSize: int(req.BatchSize)}
		if req.GpuIndex != nil {
			spec.Gpu.GpuIndex = int(*req.GpuIndex)
		}
	}
	id, err := s.registry.Create(spec)
	if err != nil {
		logger.Log().Error("Initialize engine failed", zap.String("names", req.Names), zap.Error(err))
		return nil, toStatus(err)
	}
	logger.Log().Info("Initialized new engine", zap.String("ID", id), zap.String("cfg", req.Config), zap.String("weights", req.Weights), zap.Stringer("system", system))
	return &InitEngineResponse{
		Success: true,
		Id:      id,
		Message: "Successfully initialized engine",
	}, nil
}

func (s *Server) Inference(ctx context.Context, req *InferenceRequest) (*InferenceResponse, error) {
	var (
		items []iface.YoloItem
		err   error
	)
	switch {
	case len(req.ImgData) > 0:
		items, err = s.registry.DetectBytes(ctx, req.Id, req.ImgData)
	case req.ImagePath != "":
		items, err = s.registry.DetectFile(ctx, req.Id, req.ImagePath)
	default:
		return nil, status.Error(codes.InvalidArgument, "either imgData or imagePath is required")
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &InferenceResponse{
		Success: true,
		Results: toResults(items),
	}, nil
}

func (s *Server) DestroyEngine(ctx context.Context, req *DestroyEngineRequest) (*DestroyEngineResponse, error) {
	if err := s.registry.Destroy(req.Id); err != nil {
		logger.Log().Error("Destroy engine failed", zap.String("ID", req.Id), zap.Error(err))
		return nil, toStatus(err)
	}
	return &DestroyEngineResponse{
		Success: true,
		Message: "Detector destroyed successfully",
	}, nil
}

func (s *Server) CheckEngine(ctx context.Context, req *CheckEngineRequest) (*CheckEngineResponse, error) {
	e, err := s.registry.Get(req.Id)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CheckEngineResponse{
		Success:    true,
		EngineInfo: toEngineInfo(e),
		Message:    "Detector status retrieved successfully",
	}, nil
}

func (s *Server) CheckAllEngine(ctx context.Context, req *emptypb.Empty) (*CheckAllEngineResponse, error) {
	entries := s.registry.List()
	engineInfos := make([]*EngineInfo, 0, len(entries))
	for _, e := range entries {
		engineInfos = append(engineInfos, toEngineInfo(e))
	}
	return &CheckAllEngineResponse{
		Success: true,
		Engines: engineInfos,
		Message: "All Detectors status retrieved successfully",
	}, nil
}

func (s *Server) DeviceName(ctx context.Context, req *DeviceNameRequest) (*wrapperspb.StringValue, error) {
	e, err := s.registry.Get(req.Id)
	if err != nil {
		return nil, toStatus(err)
	}
	var gpu *iface.GpuConfig
	if req.GpuIndex != nil {
		gpu = &iface.GpuConfig{GpuIndex: int(*req.GpuIndex)}
	} else {
		gpu = e.Backend.Info().Gpu
	}
	return wrapperspb.String(e.Backend.GraphicDeviceName(gpu)), nil
}

// Shutdown answers first, then signals CloseChannel so the caller sees the
// reply before the listener goes away.
func (s *Server) Shutdown(ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error) {
	logger.Log().Warn("Shutdown requested over gRPC")
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.closeOnce.Do(func() { close(s.CloseChannel) })
	}()
	return &emptypb.Empty{}, nil
}

// uploadPath keeps uploads inside dir.
func uploadPath(dir, name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || base == "." || base == ".." || base == "/" {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(dir, base), nil
}

func (s *Server) UploadModel(stream DetectService_UploadModelServer) error {
	var (
		outFile  *os.File
		fileSize int
		filePath string
	)
	defer func() {
		if outFile != nil {
			_ = outFile.Close()
		}
	}()

	for {
		req, err := stream.Recv()
		if err == io.EOF {
			if outFile == nil {
				return status.Error(codes.InvalidArgument, "no file info received")
			}
			if err := outFile.Close(); err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			outFile = nil
			logger.Log().Info("Model uploaded", zap.String("path", filePath), zap.Int("bytes", fileSize))
			return stream.SendAndClose(&UploadFileResponse{
				Success:  true,
				Message:  "File uploaded successfully",
				FilePath: filePath,
			})
		}
		if err != nil {
			return err
		}

		switch {
		case req.FileInfo != nil:
			if outFile != nil {
				return status.Error(codes.InvalidArgument, "file info sent twice")
			}
			filePath, err = uploadPath(s.modelsDir, req.FileInfo.Name)
			if err != nil {
				return status.Error(codes.InvalidArgument, err.Error())
			}
			if err := os.MkdirAll(s.modelsDir, 0o755); err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			outFile, err = os.Create(filePath)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
		case len(req.ChunkData) > 0:
			if outFile == nil {
				return status.Error(codes.InvalidArgument, "file not opened, please send file info first")
			}
			n, writeErr := outFile.Write(req.ChunkData)
			if writeErr != nil {
				return status.Errorf(codes.Internal, "failed to write chunk data: %v", writeErr)
			}
			fileSize += n
		}
	}
}

func countRequests(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	monitor.GRPCTotal.Inc()
	return handler(ctx, req)
}

func countStreams(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	monitor.GRPCTotal.Inc()
	return handler(srv, ss)
}

// StartGRPCServer serves s on lis in the background.
func StartGRPCServer(lis net.Listener, s *Server) *grpc.Server {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(countRequests),
		grpc.ChainStreamInterceptor(countStreams),
		grpc.MaxRecvMsgSize(64<<20),
	)
	RegisterDetectServiceServer(gs, s)
	go func() {
		logger.Log().Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Log().Error("Failed to serve gRPC server", zap.Error(err))
		}
	}()
	return gs
}

// Listen opens a TCP listener on port; 0 picks a free one.
func Listen(port int) (net.Listener, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	return lis, nil
}
