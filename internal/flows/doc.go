// Package flows contains the orchestration behind the engine's stateful
// operations: authentication with lockout, session validation, and biometric
// matching with its commit phase.
//
// Each flow accepts a typed dependency struct and returns a classified
// result; the root package maps results onto public errors, audit events
// and metrics.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goTrust (to avoid import cycles).
//   - Emit audit events itself; it reports what happened and the engine
//     records it.
package flows
