// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package cookiejar provides the SQLite-backed host cookie store.

Expiry is enforced on read: an expired row reads as absent and is deleted in
passing, so a jar never hands out stale cookies even if Prune is never run.
*/
package cookiejar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Exlord/amphtml/core/cookies"
)

const schema = `
CREATE TABLE IF NOT EXISTS cookies (
	origin     TEXT NOT NULL,
	name       TEXT NOT NULL,
	value      TEXT NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (origin, name)
);
`

// Jar is a persistent cookie store keyed by (origin, name).
type Jar struct {
	db *sql.DB
}

var _ cookies.Store = (*Jar)(nil)

// Open opens (creating if necessary) a jar at path. Use ":memory:" for an
// ephemeral jar.
func Open(path string) (*Jar, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie jar %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to migrate cookie jar %s: %w", path, err)
	}

	return &Jar{db: db}, nil
}

// Close releases the underlying database handle.
func (j *Jar) Close() error {
	return j.db.Close()
}

// GetCookie returns the stored value for (origin, name), or "" when absent
// or expired. An expired row is removed in passing.
func (j *Jar) GetCookie(ctx context.Context, origin, name string) (string, error) {
	var (
		value     string
		expiresAt int64
	)

	err := j.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cookies WHERE origin = ? AND name = ?`,
		origin, name,
	).Scan(&value, &expiresAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("failed to read cookie %q: %w", name, err)
	}

	if expiresAt > 0 && expiresAt <= time.Now().Unix() {
		_, _ = j.db.ExecContext(ctx,
			`DELETE FROM cookies WHERE origin = ? AND name = ?`, origin, name)

		return "", nil
	}

	return value, nil
}

// SetCookie upserts a cookie. A zero expires stores a session cookie
// (expires_at = 0, never filtered by expiry).
func (j *Jar) SetCookie(ctx context.Context, origin, name, value string, expires time.Time) error {
	var expiresAt int64
	if !expires.IsZero() {
		expiresAt = expires.Unix()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO cookies (origin, name, value, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (origin, name) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at`,
		origin, name, value, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to write cookie %q: %w", name, err)
	}

	return nil
}

// All returns every live cookie for an origin as a name to value map.
// Expired rows are skipped but not deleted; Prune or a targeted read
// handles those.
func (j *Jar) All(ctx context.Context, origin string) (map[string]string, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT name, value FROM cookies
		 WHERE origin = ? AND (expires_at = 0 OR expires_at > ?)`,
		origin, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list cookies for %q: %w", origin, err)
	}
	defer rows.Close()

	found := make(map[string]string)

	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan cookie row: %w", err)
		}

		found[name] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list cookies for %q: %w", origin, err)
	}

	return found, nil
}

// Prune removes all expired rows and returns how many were deleted.
func (j *Jar) Prune(ctx context.Context) (int64, error) {
	result, err := j.db.ExecContext(ctx,
		`DELETE FROM cookies WHERE expires_at > 0 AND expires_at <= ?`,
		time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune cookie jar: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned cookies: %w", err)
	}

	return deleted, nil
}
