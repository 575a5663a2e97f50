// Package middleware adapts goTrust.Engine.Authorize to net/http, gin and
// gRPC.
//
// # Guards
//
//   - [Guard] and [GuardResource] wrap an http.Handler.
//   - [GinGuard] is the gin equivalent.
//   - [UnaryServerInterceptor] enforces a per-method permission table on a
//     gRPC server.
//
// Each adapter extracts the session token and fingerprint signals from the
// transport, calls Authorize and maps the result onto the transport's status
// codes. Session failures are unauthenticated, denials are forbidden and a
// missing step-up is forbidden with a step-up challenge. Dependency failures
// are unavailable.
//
// # What this package must NOT do
//
//   - Make authorization decisions itself (delegates to Authorize).
//   - Touch stores or sessions directly.
//   - Echo engine errors to clients; only goTrust.PublicMessage text leaves.
package middleware
