// Package internal holds helpers private to goTrust.
//
// # Sub-packages
//
//   - audit: event model, sinks and the async dispatcher
//   - flows: orchestration of authenticate, validate and biometric matching
//   - keylock: in-process per-key serialization
//   - logging: slog construction with a CRITICAL level
//   - throttle: per-key attempt limiters (local token bucket, Redis window)
package internal
