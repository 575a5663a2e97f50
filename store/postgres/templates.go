package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goTrust/store"
)

const templateColumns = `id, account_id, encrypted_vector, integrity_hash, label, preview_key,
	is_verified, successful_matches, failed_matches, enrolled_at, last_success, last_failure`

func scanTemplate(row rowScanner) (store.Template, error) {
	var (
		t           store.Template
		lastSuccess sql.NullTime
		lastFailure sql.NullTime
	)
	err := row.Scan(&t.ID, &t.AccountID, &t.EncryptedVector, &t.IntegrityHash, &t.Label, &t.PreviewKey,
		&t.IsVerified, &t.SuccessfulMatches, &t.FailedMatches, &t.EnrolledAt, &lastSuccess, &lastFailure)
	if err != nil {
		return store.Template{}, mapError(err)
	}
	t.LastSuccess = fromNull(lastSuccess)
	t.LastFailure = fromNull(lastFailure)
	return t, nil
}

func (s *Store) CreateTemplate(ctx context.Context, t store.Template) error {
	query :=
		`INSERT INTO biometric_templates
		 (id, account_id, encrypted_vector, integrity_hash, label, preview_key, is_verified, enrolled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.AccountID, t.EncryptedVector, t.IntegrityHash, t.Label, t.PreviewKey, t.IsVerified, t.EnrolledAt.UTC())
	return mapError(err)
}

func (s *Store) GetTemplate(ctx context.Context, id string) (store.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM biometric_templates WHERE id = $1`
	return scanTemplate(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) ListTemplates(ctx context.Context, accountID string) ([]store.Template, error) {
	return s.listTemplates(ctx,
		`SELECT `+templateColumns+` FROM biometric_templates
		 WHERE account_id = $1
		 ORDER BY enrolled_at, id`, accountID)
}

func (s *Store) ListVerifiedTemplates(ctx context.Context, accountID string) ([]store.Template, error) {
	return s.listTemplates(ctx,
		`SELECT `+templateColumns+` FROM biometric_templates
		 WHERE account_id = $1 AND is_verified
		 ORDER BY enrolled_at, id`, accountID)
}

func (s *Store) listTemplates(ctx context.Context, query, accountID string) ([]store.Template, error) {
	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []store.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// MarkTemplateVerified and RecordMatchSuccess carry their state guard in the
// WHERE clause, so a lock committed by a concurrent failure wins.
func (s *Store) MarkTemplateVerified(ctx context.Context, id string, threshold int) (store.Template, error) {
	query :=
		`UPDATE biometric_templates
		 SET is_verified = TRUE, failed_matches = 0
		 WHERE id = $1 AND NOT is_verified AND ($2 <= 0 OR failed_matches < $2)
		 RETURNING ` + templateColumns
	t, err := scanTemplate(s.db.QueryRowContext(ctx, query, id, threshold))
	if errors.Is(err, store.ErrNotFound) {
		return store.Template{}, s.missingOrChanged(ctx, id)
	}
	return t, err
}

func (s *Store) RecordMatchSuccess(ctx context.Context, id string, now time.Time) (store.Template, error) {
	query :=
		`UPDATE biometric_templates
		 SET successful_matches = successful_matches + 1, failed_matches = 0, last_success = $2
		 WHERE id = $1 AND is_verified
		 RETURNING ` + templateColumns
	t, err := scanTemplate(s.db.QueryRowContext(ctx, query, id, now.UTC()))
	if errors.Is(err, store.ErrNotFound) {
		return store.Template{}, s.missingOrChanged(ctx, id)
	}
	return t, err
}

// missingOrChanged tells a deleted template from one a guarded update
// skipped.
func (s *Store) missingOrChanged(ctx context.Context, id string) error {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM biometric_templates WHERE id = $1)`
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if exists {
		return store.ErrTemplateState
	}
	return store.ErrNotFound
}

// RecordMatchFailure increments the failure counter in one statement; the
// row lock Postgres takes for the UPDATE serializes concurrent attempts.
func (s *Store) RecordMatchFailure(ctx context.Context, id string, now time.Time, threshold int) (store.Template, error) {
	query :=
		`UPDATE biometric_templates
		 SET failed_matches = failed_matches + 1, last_failure = $2,
		     is_verified = CASE WHEN $3 > 0 AND failed_matches + 1 >= $3 THEN FALSE ELSE is_verified END
		 WHERE id = $1
		 RETURNING ` + templateColumns
	return scanTemplate(s.db.QueryRowContext(ctx, query, id, now.UTC(), threshold))
}

func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	query := `DELETE FROM biometric_templates WHERE id = $1`
	return expectOne(s.db.ExecContext(ctx, query, id))
}

var (
	_ store.AccountStore  = (*Store)(nil)
	_ store.TemplateStore = (*Store)(nil)
)
