// Package notestore caches received/sent notes and gateway credentials in
// a local embedded SQLite database for durable local state.
package notestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite-backed note cache.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("notestore: open %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS notes (
	id TEXT PRIMARY KEY,
	pubkey TEXT NOT NULL,
	kind INTEGER NOT NULL,
	content TEXT NOT NULL,
	raw_json TEXT NOT NULL,
	received_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS notes_pubkey_idx ON notes(pubkey);

CREATE TABLE IF NOT EXISTS credentials (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("notestore: migrate: %w", err)
	}
	return nil
}

// Note is one cached Nostr event, stored opaquely except for the fields
// the gateway needs to index on.
type Note struct {
	ID         string
	Pubkey     string
	Kind       int
	Content    string
	RawJSON    string
	ReceivedAt time.Time
}

// PutNote upserts a note into the cache.
func (s *Store) PutNote(ctx context.Context, n Note) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, pubkey, kind, content, raw_json, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content=excluded.content, raw_json=excluded.raw_json`,
		n.ID, n.Pubkey, n.Kind, n.Content, n.RawJSON, n.ReceivedAt.Unix())
	if err != nil {
		return fmt.Errorf("notestore: put note: %w", err)
	}
	return nil
}

// NotesByPubkey returns cached notes for pubkey, most recent first.
func (s *Store) NotesByPubkey(ctx context.Context, pubkey string, limit int) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pubkey, kind, content, raw_json, received_at
		FROM notes WHERE pubkey = ? ORDER BY received_at DESC LIMIT ?`, pubkey, limit)
	if err != nil {
		return nil, fmt.Errorf("notestore: query notes: %w", err)
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		var n Note
		var receivedAt int64
		if err := rows.Scan(&n.ID, &n.Pubkey, &n.Kind, &n.Content, &n.RawJSON, &receivedAt); err != nil {
			return nil, fmt.Errorf("notestore: scan note: %w", err)
		}
		n.ReceivedAt = time.Unix(receivedAt, 0)
		out = append(out, n)
	}
	return out, rows.Err()
}

// PutCredential stores an opaque credential value under key (e.g. an NWC
// connection string, a relay auth token).
func (s *Store) PutCredential(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("notestore: put credential: %w", err)
	}
	return nil
}

// Credential retrieves a previously stored credential value.
func (s *Store) Credential(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM credentials WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("notestore: get credential %q: %w", key, err)
	}
	return value, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
