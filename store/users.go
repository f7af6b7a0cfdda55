package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pubky-canvas/indexer/errors"
)

// Store wraps a SQLite connection and exposes the transactional operations
// named in the canvas indexer's storage contract.
type Store struct {
	db *sql.DB
}

// New wraps an already-opened, already-migrated database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers (migrations, health checks)
// that need it directly.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertUser inserts a new user or, if one already exists for pk, leaves its
// cursor untouched (only homeserver is refreshed).
func (s *Store) UpsertUser(ctx context.Context, pk, homeserver string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (public_key, homeserver, cursor, created_at)
		VALUES (?, ?, '', ?)
		ON CONFLICT(public_key) DO UPDATE SET homeserver = excluded.homeserver
	`, pk, homeserver, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errors.Wrapf(err, "upsert user %s", pk)
	}
	return nil
}

// ListUsers returns a snapshot of all registered users.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT public_key, homeserver, cursor, created_at FROM users
	`)
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var createdAt string
		if err := rows.Scan(&u.PublicKey, &u.Homeserver, &u.Cursor, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scan user")
		}
		u.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, errors.Wrapf(err, "parse created_at for %s", u.PublicKey)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate users")
	}
	return users, nil
}

// SetCursor persists a user's cursor outside of event acceptance, used when
// a tick advances the cursor past rejected records with no accepted event
// to piggyback on.
func (s *Store) SetCursor(ctx context.Context, pk, newCursor string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET cursor = ? WHERE public_key = ?`, newCursor, pk)
	if err != nil {
		return errors.Wrapf(err, "set cursor for %s", pk)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.Newf("set cursor: no such user %s", pk)
	}
	return nil
}
