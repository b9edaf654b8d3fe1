package server

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/chazu/kuro/vm/dist"
)

// CompileServer is the server API for the compile service over gRPC.
type CompileServer interface {
	Compile(context.Context, *dist.CompileRequest) (*dist.CompileResponse, error)
	Fetch(context.Context, *FetchRequest) (*dist.CompileResponse, error)
}

// RegisterCompileServer registers srv on s. Calls must use the "cbor"
// content subtype.
func RegisterCompileServer(s grpc.ServiceRegistrar, srv CompileServer) {
	s.RegisterService(&compileServiceDesc, srv)
}

// GRPC adapts the service to the CompileServer interface.
func (s *CompileService) GRPC() CompileServer {
	return grpcCompileServer{svc: s}
}

type grpcCompileServer struct {
	svc *CompileService
}

func (g grpcCompileServer) Compile(ctx context.Context, req *dist.CompileRequest) (*dist.CompileResponse, error) {
	resp, err := g.svc.compile(ctx, req)
	if err != nil {
		return nil, grpcError(err)
	}
	return resp, nil
}

func (g grpcCompileServer) Fetch(ctx context.Context, req *FetchRequest) (*dist.CompileResponse, error) {
	resp, err := g.svc.fetch(ctx, req)
	if err != nil {
		return nil, grpcError(err)
	}
	return resp, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, errEmptySource), errors.Is(err, errEmptyID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errUnknownResult):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, errWorkerStopped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func grpcCompileHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(dist.CompileRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CompileServer).Compile(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: CompileProcedure,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CompileServer).Compile(ctx, req.(*dist.CompileRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func grpcFetchHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(FetchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CompileServer).Fetch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: FetchProcedure,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CompileServer).Fetch(ctx, req.(*FetchRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var compileServiceDesc = grpc.ServiceDesc{
	ServiceName: CompileServiceName,
	HandlerType: (*CompileServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Compile", Handler: grpcCompileHandler},
		{MethodName: "Fetch", Handler: grpcFetchHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// GRPCCompileClient calls the compile service over gRPC.
type GRPCCompileClient struct {
	cc grpc.ClientConnInterface
}

// NewGRPCCompileClient wraps a client connection.
func NewGRPCCompileClient(cc grpc.ClientConnInterface) *GRPCCompileClient {
	return &GRPCCompileClient{cc: cc}
}

// Compile sends one compile request.
func (c *GRPCCompileClient) Compile(ctx context.Context, in *dist.CompileRequest, opts ...grpc.CallOption) (*dist.CompileResponse, error) {
	out := new(dist.CompileResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(cborCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, CompileProcedure, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Fetch retrieves an earlier result by ID.
func (c *GRPCCompileClient) Fetch(ctx context.Context, id string, opts ...grpc.CallOption) (*dist.CompileResponse, error) {
	out := new(dist.CompileResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(cborCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, FetchProcedure, &FetchRequest{ID: id}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
