// Package sqlite is a durable audit log on SQLite through the pure-Go
// modernc.org/sqlite driver. [AuditLog] is an audit sink the engine can
// write to directly or through its async dispatcher, and it answers
// filtered, paginated queries for operators.
package sqlite
