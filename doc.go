// Package goTrust is an identity-trust core: password authentication with
// account lockout, fingerprinted server-side sessions, a frozen role and
// permission table, and biometric or TOTP step-up verification.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goTrust is the public surface. It exposes [Engine], [Builder], [Config] and
// value types. Flow orchestration, key locks, throttling, audit dispatch and
// logging setup live under internal/. Durable state lives behind interfaces
// ([AccountStore], [TemplateStore], session.Store) with implementations under
// store/ and session/.
//
// # Decisions and errors
//
// Every decision fails closed. A store, audit or throttle failure during
// authentication or authorization yields [ErrDependencyTimeout] and a deny.
// [Classify] maps errors onto a small taxonomy and [PublicMessage] gives the
// text safe to show an end user: an unknown handle and a wrong secret are
// indistinguishable.
//
// # Policy enforcement
//
// [Engine.Authorize] is the single enforcement point: it validates the
// session, evaluates the permission (table or ownership) and requires a live
// step-up for permissions configured to need one. The middleware package
// wraps it for net/http, gin and gRPC.
package goTrust
