// Package biometric holds the primitives of the biometric step-up factor:
// template sealing, feature vectors, distance matching and template state.
//
// # Template sealing
//
// Feature vectors are sealed with AES-256-GCM. The sealed form is
// nonce||ciphertext and the additional data binds the owning account and
// template IDs, so a ciphertext copied onto another template fails to open.
// An integrity hash (hex SHA-256 of the sealed bytes) is stored alongside and
// checked in constant time before decryption.
//
// # Matching
//
// Two vectors match when their Euclidean distance is at or below the
// configured tolerance (0.6 by default).
//
// # States
//
//	PENDING_VERIFICATION -> VERIFIED -> LOCKED
//
// LOCKED is derived: an unverified template whose failed-match counter has
// reached the threshold. The only way out is a fresh enrollment.
//
// # What this package must NOT do
//
//   - Persist anything (stores and flows own that).
//   - Expose plaintext vectors outside Open's return value.
package biometric
