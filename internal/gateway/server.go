package gateway

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/dmitrijs2005/preshare/internal/common"
	"github.com/dmitrijs2005/preshare/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Handler is the server side of the gateway service. Implementations return
// ErrDenied or ErrInvalidArgument for the matching status codes.
type Handler interface {
	Rekey(ctx context.Context, req RekeyRequest) error
	Reencrypt(ctx context.Context, req ReencryptRequest) ([]byte, error)
}

// Authenticator resolves a credential to a username.
type Authenticator func(ctx context.Context, token string) (string, error)

type usernameKey struct{}

// CallerFromContext returns the username the auth interceptor resolved.
func CallerFromContext(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(usernameKey{}).(string)
	return u, ok
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Rekey", Handler: rekeyHandler},
		{MethodName: "Reencrypt", Handler: reencryptHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pre/gateway.proto",
}

// Register installs h on s.
func Register(s grpc.ServiceRegistrar, h Handler) {
	s.RegisterService(&serviceDesc, h)
}

func rekeyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		r, err := decodeRekey(req.(*structpb.Struct))
		if err != nil {
			return nil, toStatus(err)
		}
		if err := srv.(Handler).Rekey(ctx, r); err != nil {
			return nil, toStatus(err)
		}
		return &emptypb.Empty{}, nil
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: RekeyMethod}, call)
}

func reencryptHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		r, err := decodeReencrypt(req.(*structpb.Struct))
		if err != nil {
			return nil, toStatus(err)
		}
		out, err := srv.(Handler).Reencrypt(ctx, r)
		if err != nil {
			return nil, toStatus(err)
		}
		return wrapperspb.Bytes(out), nil
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: ReencryptMethod}, call)
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrDenied):
		return status.Error(codes.PermissionDenied, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// Server hosts a Handler on a TCP address.
type Server struct {
	address string
	handler Handler
	auth    Authenticator
	logger  logging.Logger
}

// NewServer builds a gateway server. auth may be nil to accept any caller.
func NewServer(address string, h Handler, auth Authenticator, l logging.Logger) *Server {
	if l == nil {
		l = logging.Discard()
	}
	return &Server{
		address: address,
		handler: h,
		auth:    auth,
		logger:  l.With("module", "gateway_server"),
	}
}

func (s *Server) authInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if s.auth == nil {
		return handler(ctx, req)
	}

	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AuthMetadataKey); len(values) > 0 {
			header = values[0]
		}
	}
	token, found := strings.CutPrefix(header, common.TokenScheme+" ")
	if !found || token == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	username, err := s.auth(ctx, token)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, common.InvalidTokenDetail)
	}

	return handler(context.WithValue(ctx, usernameKey{}, username), req)
}

// NewGRPCServer returns a grpc.Server with the service and its interceptor
// registered, for callers that manage the listener themselves.
func (s *Server) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(s.authInterceptor)}, opts...)
	srv := grpc.NewServer(opts...)
	Register(srv, s.handler)
	return srv
}

// Run serves until ctx is cancelled, then stops gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewGRPCServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gateway server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gateway server", "address", s.address)

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}
