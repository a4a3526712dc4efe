package grpcserver

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/jtaw5649/barforge-registry/internal/model"
)

// LoggingUnary returns a unary server interceptor for structured logging.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		var remote string
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", remote),
		}
		if u := UserFromCtx(ctx); u != nil {
			fields = append(fields, zap.String("user_id", u.ID.String()))
		}
		// metadata only, never payloads
		log.Info("grpc", fields...)
		return resp, err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}

// SessionValidator resolves a bearer token to its user.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*model.User, bool)
}

var (
	errNoBearer  = errors.New("no bearer token")
	errBadBearer = errors.New("malformed authorization")
)

// AuthUnary attaches the session user to the context. A missing, unknown or
// expired session leaves the call anonymous; handlers that need a user reject
// it. Only a malformed authorization header is refused here.
func AuthUnary(sessions SessionValidator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		tok, err := bearerTokenFromMD(ctx)
		switch {
		case errors.Is(err, errNoBearer):
			return next(ctx, req)
		case err != nil:
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		u, ok := sessions.ValidateSession(ctx, tok)
		if !ok {
			return next(ctx, req)
		}
		return next(WithUser(ctx, u), req)
	}
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errNoBearer
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return "", errNoBearer
	}
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			if t := strings.TrimSpace(v[7:]); t != "" {
				return t, nil
			}
		}
	}
	return "", errBadBearer
}
