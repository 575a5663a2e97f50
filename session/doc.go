// Package session provides the session model, client fingerprinting, the
// compact binary record format and the session stores (Redis and memory).
//
// # Binary encoding
//
// Sessions are stored as a versioned binary record. The encoder is
// append-only: new versions add fields but never reinterpret old ones.
//
// # Atomicity
//
// Every mutation of an existing session goes through [Store.Update], a
// read-modify-write that is atomic per session key: Redis uses
// WATCH/MULTI with retry on contention, [MemoryStore] holds its mutex.
//
// # Architecture boundaries
//
// This package owns persistence of [Session] records and fingerprint
// derivation. It does NOT decide expiry or hijack outcomes; the engine does,
// through the callback it passes to Update.
//
// # What this package must NOT do
//
//   - Import goTrust, jwt or permission (no upward imports).
//   - Store raw client signals; only their digest is kept.
package session
