package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/MrEthical07/goTrust/lockout"
	"github.com/MrEthical07/goTrust/store"
)

const accountColumns = `id, handle, password_hash, failed_attempts, locked_until, role, last_login`

// Store is the Postgres account and template store.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func normalizeHandle(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (store.Account, error) {
	var (
		a           store.Account
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.Handle, &a.PasswordHash, &a.FailedAttempts, &lockedUntil, &a.Role, &lastLogin); err != nil {
		return store.Account{}, mapError(err)
	}
	a.LockedUntil = fromNull(lockedUntil)
	a.LastLogin = fromNull(lastLogin)
	return a, nil
}

// CreateAccount inserts a new account. A taken handle or ID yields
// store.ErrConflict.
func (s *Store) CreateAccount(ctx context.Context, a store.Account) error {
	query :=
		`INSERT INTO accounts (id, handle, password_hash, role)
		 VALUES ($1, $2, $3, $4)`

	_, err := s.db.ExecContext(ctx, query, a.ID, normalizeHandle(a.Handle), a.PasswordHash, a.Role)
	return mapError(err)
}

func (s *Store) GetAccountByHandle(ctx context.Context, handle string) (store.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE handle = $1`
	return scanAccount(s.db.QueryRowContext(ctx, query, normalizeHandle(handle)))
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (store.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(s.db.QueryRowContext(ctx, query, id))
}

func lockState(ctx context.Context, tx DBTX, id string) (lockout.State, error) {
	query :=
		`SELECT failed_attempts, locked_until FROM accounts
		 WHERE id = $1
		 FOR UPDATE`

	var (
		st          lockout.State
		lockedUntil sql.NullTime
	)
	if err := tx.QueryRowContext(ctx, query, id).Scan(&st.FailedAttempts, &lockedUntil); err != nil {
		return lockout.State{}, mapError(err)
	}
	st.LockedUntil = fromNull(lockedUntil)
	return st, nil
}

// RecordLoginFailure applies policy.Fail under the account row lock.
func (s *Store) RecordLoginFailure(ctx context.Context, id string, policy lockout.Policy, now time.Time) (lockout.State, error) {
	var next lockout.State
	err := withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		cur, err := lockState(ctx, tx, id)
		if err != nil {
			return err
		}
		next = policy.Fail(cur, now)

		query :=
			`UPDATE accounts SET failed_attempts = $2, locked_until = $3
			 WHERE id = $1`
		_, err = tx.ExecContext(ctx, query, id, next.FailedAttempts, nullTime(next.LockedUntil))
		return mapError(err)
	})
	if err != nil {
		return lockout.State{}, err
	}
	return next, nil
}

// RecordLoginSuccess resets the lock state under the row lock and refuses
// with store.ErrLocked when a concurrent failure already engaged it.
func (s *Store) RecordLoginSuccess(ctx context.Context, id string, policy lockout.Policy, now time.Time, newHash string) error {
	return withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		cur, err := lockState(ctx, tx, id)
		if err != nil {
			return err
		}
		if locked, _ := policy.Locked(cur, now); locked {
			return store.ErrLocked
		}

		query :=
			`UPDATE accounts
			 SET failed_attempts = 0, locked_until = NULL, last_login = $2,
			     password_hash = COALESCE(NULLIF($3, ''), password_hash)
			 WHERE id = $1`
		_, err = tx.ExecContext(ctx, query, id, now.UTC(), newHash)
		return mapError(err)
	})
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	query := `UPDATE accounts SET password_hash = $2 WHERE id = $1`
	return expectOne(s.db.ExecContext(ctx, query, id, hash))
}

func (s *Store) Unlock(ctx context.Context, id string) error {
	query := `UPDATE accounts SET failed_attempts = 0, locked_until = NULL WHERE id = $1`
	return expectOne(s.db.ExecContext(ctx, query, id))
}
