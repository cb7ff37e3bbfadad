// Package store is the local persistence layer: courier credentials and a
// journal of executed runs, both in a single sqlite file with owner-only
// permissions. Minted tokens are never written here.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/chetanft/courier-integration-sub002/internal/auth"
	"github.com/chetanft/courier-integration-sub002/internal/errdef"

	_ "modernc.org/sqlite"
)

const (
	defaultMaxRuns = 200

	secureFileMode = 0o600
	secureDirMode  = 0o700
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	courier_id TEXT PRIMARY KEY,
	username   TEXT NOT NULL DEFAULT '',
	password   TEXT NOT NULL DEFAULT '',
	token      TEXT NOT NULL DEFAULT '',
	api_key    TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	at          DATETIME NOT NULL,
	courier_id  TEXT NOT NULL DEFAULT '',
	method      TEXT NOT NULL,
	url         TEXT NOT NULL,
	intent      TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL,
	status      INTEGER NOT NULL DEFAULT 0,
	via         TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	message     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_at ON runs(at DESC);
`

// RunRecord is one journaled execution. The URL is stored as the caller
// provides it; the pipeline hands in the redacted form.
type RunRecord struct {
	ID         string
	At         time.Time
	CourierID  string
	Method     string
	URL        string
	Intent     string
	Kind       string
	Status     int
	Via        string
	DurationMS int64
	Message    string
}

type Store struct {
	db      *sql.DB
	maxRuns int
}

var _ auth.CredentialSource = (*Store)(nil)

// Open creates or opens the sqlite file at path. The containing directory
// and the file itself get owner-only permissions before sqlite touches
// them, so secrets never exist with default modes even briefly.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), secureDirMode); err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "create store dir")
	}
	if err := ensureSecureFile(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "open store")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "configure store")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "create store schema")
	}
	return &Store{db: db, maxRuns: defaultMaxRuns}, nil
}

// ensureSecureFile creates the file with restrictive permissions when it
// does not exist, and fixes the mode when it does. Creating first avoids
// the window where sqlite would create it with default permissions.
func ensureSecureFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, secureFileMode)
		if err != nil {
			return errdef.Wrap(errdef.CodeFilesystem, err, "create store file")
		}
		return f.Close()
	}
	if err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "stat store file")
	}
	if info.Mode().Perm() != secureFileMode {
		if err := os.Chmod(path, secureFileMode); err != nil {
			return errdef.Wrap(errdef.CodeFilesystem, err, "restrict store file")
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SetMaxRuns overrides how many journal rows are kept.
func (s *Store) SetMaxRuns(n int) {
	if n > 0 {
		s.maxRuns = n
	}
}

// Lookup implements auth.CredentialSource.
func (s *Store) Lookup(ctx context.Context, courierID string) (auth.Credentials, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT username, password, token, api_key
		FROM credentials
		WHERE courier_id = ?`, courierID)

	var creds auth.Credentials
	err := row.Scan(&creds.Username, &creds.Password, &creds.Token, &creds.APIKey)
	if err == sql.ErrNoRows {
		return auth.Credentials{}, false, nil
	}
	if err != nil {
		return auth.Credentials{}, false, errdef.Wrap(errdef.CodeCredentials, err, "read credentials")
	}
	return creds, true, nil
}

// SetCredentials stores or replaces the credentials for one courier.
func (s *Store) SetCredentials(ctx context.Context, courierID string, creds auth.Credentials) error {
	if courierID == "" {
		return errdef.New(errdef.CodeValidation, "courier id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (courier_id, username, password, token, api_key, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(courier_id) DO UPDATE SET
			username = excluded.username,
			password = excluded.password,
			token = excluded.token,
			api_key = excluded.api_key,
			updated_at = excluded.updated_at`,
		courierID, creds.Username, creds.Password, creds.Token, creds.APIKey, time.Now().UTC(),
	)
	return errdef.Wrap(errdef.CodeCredentials, err, "store credentials")
}

// DeleteCredentials removes a courier's credentials, reporting whether any
// existed.
func (s *Store) DeleteCredentials(ctx context.Context, courierID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM credentials WHERE courier_id = ?", courierID)
	if err != nil {
		return false, errdef.Wrap(errdef.CodeCredentials, err, "delete credentials")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errdef.Wrap(errdef.CodeCredentials, err, "delete credentials")
	}
	return affected > 0, nil
}

// Couriers lists every courier id with stored credentials, newest first.
func (s *Store) Couriers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT courier_id FROM credentials ORDER BY updated_at DESC, courier_id")
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeCredentials, err, "list couriers")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errdef.Wrap(errdef.CodeCredentials, err, "list couriers")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AppendRun journals one execution and prunes the oldest rows beyond the
// cap in the same transaction.
func (s *Store) AppendRun(ctx context.Context, rec RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "journal run")
	}
	defer tx.Rollback()

	at := rec.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, at, courier_id, method, url, intent, kind, status, via, duration_ms, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, at, rec.CourierID, rec.Method, rec.URL, rec.Intent,
		rec.Kind, rec.Status, rec.Via, rec.DurationMS, rec.Message,
	)
	if err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "journal run")
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM runs
		WHERE id NOT IN (
			SELECT id FROM runs ORDER BY at DESC LIMIT ?
		)`, s.maxRuns)
	if err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "prune run journal")
	}
	return tx.Commit()
}

// Runs lists journaled executions newest first. A non-positive limit means
// everything the journal holds.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = s.maxRuns
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, at, courier_id, method, url, intent, kind, status, via, duration_ms, message
		FROM runs
		ORDER BY at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read run journal")
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		err := rows.Scan(
			&rec.ID, &rec.At, &rec.CourierID, &rec.Method, &rec.URL,
			&rec.Intent, &rec.Kind, &rec.Status, &rec.Via, &rec.DurationMS, &rec.Message,
		)
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read run journal")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
