// Package postgres implements store.AccountStore and store.TemplateStore on
// PostgreSQL through database/sql and the pgx stdlib driver.
//
// Lockout transitions run inside a transaction holding the account row
// (SELECT ... FOR UPDATE), so concurrent failures from several engine
// processes count exactly. Template counters are single UPDATE ... RETURNING
// statements. The schema ships as embedded goose migrations; see [Migrate].
package postgres
