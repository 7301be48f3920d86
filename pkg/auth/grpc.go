package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
)

// metadataAuthorization is the gRPC metadata key for the Authorization
// value. gRPC lower-cases all metadata keys.
const metadataAuthorization = "authorization"

// UnaryServerInterceptor returns a unary interceptor enforcing the same
// verification as [HTTPMiddleware]. Rejections are returned as
// codes.Unauthenticated carrying the client-facing message; server faults
// as codes.Internal.
func UnaryServerInterceptor(verifier *TokenVerifier) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := authenticateGRPC(ctx, verifier)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart of
// [UnaryServerInterceptor].
func StreamServerInterceptor(verifier *TokenVerifier) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := authenticateGRPC(ss.Context(), verifier)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

func authenticateGRPC(ctx context.Context, verifier *TokenVerifier) (context.Context, error) {
	var raw string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(metadataAuthorization); len(values) > 0 {
			raw = values[0]
		}
	}

	ac, err := verifier.Verify(ctx, raw)
	if err != nil {
		return ctx, grpcStatus(err)
	}
	return ContextWithAuth(ctx, ac), nil
}

func grpcStatus(err error) error {
	if sserr.IsClientError(err) {
		return status.Error(codes.Unauthenticated, ClientMessage(err))
	}
	return status.Error(codes.Internal, MsgServerError)
}

// wrappedServerStream overrides Context so stream handlers see the
// AuthContext.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
