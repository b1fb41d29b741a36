package gateway

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/preshare/internal/common"
	"github.com/dmitrijs2005/preshare/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// TokenSource supplies the credential of the calling session.
type TokenSource interface {
	Token() string
	Invalidate()
}

type tokenKey struct{}

// WithToken makes calls on ctx use token instead of the client's
// TokenSource. The server uses it to forward the credential of the request
// it is serving.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

type GRPCClient struct {
	conn   *grpc.ClientConn
	tokens TokenSource
	log    logging.Logger
}

// NewGRPCClient connects lazily to addr. tokens may be nil when every call
// carries its credential through WithToken.
func NewGRPCClient(addr string, tokens TokenSource, log logging.Logger, opts ...grpc.DialOption) (*GRPCClient, error) {
	if log == nil {
		log = logging.Discard()
	}
	c := &GRPCClient{tokens: tokens, log: log}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.tokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("gateway client: %w", err)
	}
	c.conn = conn
	return c, nil
}

func withAuthorization(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AuthMetadataKey, common.FormatToken(token))
	return metadata.NewOutgoingContext(ctx, md)
}

func (c *GRPCClient) tokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	token, explicit := ctx.Value(tokenKey{}).(string)
	if !explicit && c.tokens != nil {
		token = c.tokens.Token()
	}
	if token != "" {
		ctx = withAuthorization(ctx, token)
	}

	err := invoker(ctx, method, req, reply, cc, opts...)
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if ok && st.Code() == codes.Unauthenticated && st.Message() == common.InvalidTokenDetail &&
		!explicit && c.tokens != nil {
		c.log.Info(ctx, "gateway rejected token, dropping session", "method", method)
		c.tokens.Invalidate()
	}
	return err
}

func (c *GRPCClient) Rekey(ctx context.Context, req RekeyRequest) error {
	in, err := encodeRekey(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := c.conn.Invoke(ctx, RekeyMethod, in, &emptypb.Empty{}); err != nil {
		return mapError(err)
	}
	c.log.Debug(ctx, "rekeyed", "data_id", req.DataID, "granted", len(req.Granted), "revoked", len(req.Revoked))
	return nil
}

func (c *GRPCClient) Reencrypt(ctx context.Context, req ReencryptRequest) ([]byte, error) {
	in, err := encodeReencrypt(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	out := &wrapperspb.BytesValue{}
	if err := c.conn.Invoke(ctx, ReencryptMethod, in, out); err != nil {
		return nil, mapError(err)
	}
	return out.GetValue(), nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func mapError(err error) error {
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", ErrUnauthenticated, st.Message())
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrDenied, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidArgument, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
