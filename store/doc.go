// Package store defines the durable records the engine reads and the atomic
// mutations it asks of them.
//
// # Design
//
// Accounts and biometric templates are owned by the caller's database. The
// engine never writes whole records back; it requests narrow mutations
// (record a failure, record a success, bump a match counter) that every
// implementation must apply atomically. Lockout transitions are computed by
// package lockout inside that atomic section, so two processes racing on the
// same account cannot lose an increment.
//
// Implementations live in subpackages:
//
//   - store/memory: mutex-guarded maps for tests and single-process use.
//   - store/postgres: database/sql over pgx with goose migrations.
//   - store/sqlite: durable audit log.
//   - store/s3preview: biometric preview artifacts in S3.
//
// # What this package must NOT do
//
//   - Hold plaintext biometric vectors.
//   - Decide authentication outcomes.
package store
