package middleware

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	goTrust "github.com/MrEthical07/goTrust"
)

// MethodPermissions maps full gRPC method names
// ("/pkg.Service/Method") to the permission they require. An empty
// permission marks a method as public.
type MethodPermissions map[string]string

type grpcSessionKey struct{}

// GRPCSessionFromContext returns the session the interceptor admitted the
// call with.
func GRPCSessionFromContext(ctx context.Context) (*goTrust.SessionResult, bool) {
	res, ok := ctx.Value(grpcSessionKey{}).(*goTrust.SessionResult)
	return res, ok
}

// UnaryServerInterceptor enforces perms on every unary call. Methods absent
// from perms are refused.
func UnaryServerInterceptor(a Authorizer, perms MethodPermissions) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		permission, listed := perms[info.FullMethod]
		if !listed {
			return nil, status.Error(codes.PermissionDenied, "method not permitted")
		}
		if permission == "" {
			return handler(ctx, req)
		}
		if a == nil {
			return nil, grpcError(goTrust.ErrEngineNotReady)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		token, ok := BearerToken(first(md, "authorization"))
		if !ok {
			return nil, grpcError(goTrust.ErrNoSession)
		}

		sig := goTrust.Signals{
			UserAgent:      first(md, "user-agent"),
			AcceptLanguage: first(md, "accept-language"),
			Platform:       first(md, "sec-ch-ua-platform"),
			DeviceID:       first(md, "x-device-id"),
		}
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			sig.RemoteIP = hostOnly(p.Addr.String())
		}
		ctx = goTrust.WithClientIP(ctx, sig.RemoteIP)
		if id := first(md, "x-request-id"); id != "" {
			ctx = goTrust.WithRequestID(ctx, id)
		}

		res, err := a.Authorize(ctx, token, sig, permission, nil)
		if err != nil {
			return nil, grpcError(err)
		}

		ctx = goTrust.WithActorID(ctx, res.AccountID)
		return handler(context.WithValue(ctx, grpcSessionKey{}, res), req)
	}
}

// CodeFor maps an Authorize error onto a gRPC status code.
func CodeFor(err error) codes.Code {
	switch goTrust.Classify(err) {
	case goTrust.ClassNone:
		return codes.OK
	case goTrust.ClassNotFoundError, goTrust.ClassHijackSuspected:
		return codes.Unauthenticated
	case goTrust.ClassDenied:
		return codes.PermissionDenied
	case goTrust.ClassLockedError:
		return codes.ResourceExhausted
	case goTrust.ClassInputError:
		return codes.InvalidArgument
	case goTrust.ClassDependencyTimeout:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

func grpcError(err error) error {
	msg := goTrust.PublicMessage(err)
	if errors.Is(err, goTrust.ErrStepUpRequired) {
		msg = "step-up required"
	}
	return status.Error(CodeFor(err), msg)
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
