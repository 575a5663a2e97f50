package goTrust

import "context"

type actorIDContextKey struct{}
type clientIPContextKey struct{}
type requestIDContextKey struct{}

// WithActorID attaches the acting principal to ctx. Permission denials and
// ownership grants name it in their audit events.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDContextKey{}, actorID)
}

// WithClientIP attaches the caller's network address to ctx for audit
// context. It does not participate in fingerprints; pass it in Signals for
// that.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithRequestID attaches a correlation ID copied into audit events.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// ActorIDFromContext returns the actor set by WithActorID.
func ActorIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, actorIDContextKey{})
}

func clientIPFromContext(ctx context.Context) string {
	return stringFromContext(ctx, clientIPContextKey{})
}

func requestIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, requestIDContextKey{})
}

func stringFromContext(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
