// Package password implements credential hashing and verification with
// argon2id defaults and a bcrypt migration path.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.Verify] accepts argon2id and legacy bcrypt ($2a$, $2b$, $2y$) hashes.
// A successful match against bcrypt, or against argon2id produced with weaker
// parameters, returns a fresh argon2id hash that the caller persists.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Lockout, account lookup and
// persistence of the upgraded hash belong to the Engine and its stores.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other goTrust package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
