package middleware

import (
	"context"
	"errors"
	"net/http"

	goTrust "github.com/MrEthical07/goTrust"
)

// Authorizer is the policy decision point the adapters call. *goTrust.Engine
// implements it.
type Authorizer interface {
	Authorize(ctx context.Context, token string, sig goTrust.Signals, permission string, owner goTrust.Ownership) (*goTrust.SessionResult, error)
}

// StepUpChallenge is sent in WWW-Authenticate when the permission needs a
// fresh second factor.
const StepUpChallenge = `step-up realm="gotrust"`

type sessionContextKey struct{}

// SessionFromContext returns the session a guard admitted the request with.
func SessionFromContext(ctx context.Context) (*goTrust.SessionResult, bool) {
	res, ok := ctx.Value(sessionContextKey{}).(*goTrust.SessionResult)
	return res, ok
}

// Guard admits requests whose session holds permission.
func Guard(a Authorizer, permission string) func(http.Handler) http.Handler {
	return GuardResource(a, permission, nil)
}

// GuardResource is Guard with an ownership escape hatch: ownerOf returns the
// predicate for the resource r addresses, and an owner is admitted even when
// the role table denies.
func GuardResource(a Authorizer, permission string, ownerOf func(*http.Request) goTrust.Ownership) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a == nil {
				writeError(w, goTrust.ErrEngineNotReady)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, goTrust.ErrNoSession)
				return
			}

			var owner goTrust.Ownership
			if ownerOf != nil {
				owner = ownerOf(r)
			}

			sig := SignalsFromRequest(r)
			ctx := goTrust.WithClientIP(r.Context(), sig.RemoteIP)
			if id := r.Header.Get("X-Request-ID"); id != "" {
				ctx = goTrust.WithRequestID(ctx, id)
			}

			res, err := a.Authorize(ctx, token, sig, permission, owner)
			if err != nil {
				writeError(w, err)
				return
			}

			ctx = goTrust.WithActorID(ctx, res.AccountID)
			ctx = context.WithValue(ctx, sessionContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StatusFor maps an Authorize error onto an HTTP status.
func StatusFor(err error) int {
	switch goTrust.Classify(err) {
	case goTrust.ClassNone:
		return http.StatusOK
	case goTrust.ClassNotFoundError, goTrust.ClassHijackSuspected:
		return http.StatusUnauthorized
	case goTrust.ClassDenied:
		return http.StatusForbidden
	case goTrust.ClassLockedError:
		return http.StatusTooManyRequests
	case goTrust.ClassInputError:
		return http.StatusBadRequest
	case goTrust.ClassDependencyTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	switch {
	case status == http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer realm="gotrust"`)
	case errors.Is(err, goTrust.ErrStepUpRequired):
		w.Header().Set("WWW-Authenticate", StepUpChallenge)
	}
	http.Error(w, goTrust.PublicMessage(err), status)
}
