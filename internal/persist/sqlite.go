package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/ansuz/internal/algo"
	"github.com/starford/ansuz/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
	key         TEXT PRIMARY KEY,
	version     INTEGER NOT NULL,
	algorithm   TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL,
	modified_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS revlog (
	id          TEXT PRIMARY KEY,
	item_id     INTEGER NOT NULL,
	ts          INTEGER NOT NULL,
	rating      INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	state       INTEGER NOT NULL,
	deck        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_revlog_item ON revlog(item_id);
CREATE INDEX IF NOT EXISTS idx_revlog_deck ON revlog(deck);
`

// SQLite keeps snapshots and the FSRS review log in one database.
type SQLite struct {
	conn *sql.DB
}

// Verify the backend satisfies both contracts at compile time.
var (
	_ Persistence        = (*SQLite)(nil)
	_ algo.ReviewLogSink = (*SQLite)(nil)
)

// OpenSQLite opens (or creates) the database and applies the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("persist: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("persist: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("persist: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// Load reads the snapshot stored under key.
func (s *SQLite) Load(ctx context.Context, key string) (Snapshot, error) {
	var body string
	err := s.conn.QueryRowContext(ctx, `SELECT body FROM snapshots WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("persist: load %s: %w", key, apperr.ErrNotFound)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("persist: load %s: %w", key, err)
	}
	return Decode([]byte(body))
}

// Save upserts snap under key.
func (s *SQLite) Save(ctx context.Context, key string, snap Snapshot) error {
	b, err := Encode(snap)
	if err != nil {
		return err
	}
	modified := snap.ModifiedAt
	if modified.IsZero() {
		modified = time.Now()
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO snapshots (key, version, algorithm, body, modified_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			version     = excluded.version,
			algorithm   = excluded.algorithm,
			body        = excluded.body,
			modified_at = excluded.modified_at
	`, key, Version, string(snap.Algorithm), string(b), modified.UTC())
	if err != nil {
		return fmt.Errorf("persist: save %s: %w", key, err)
	}
	return nil
}

// Keys lists snapshot keys, newest first.
func (s *SQLite) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT key FROM snapshots ORDER BY modified_at DESC, key`)
	if err != nil {
		return nil, fmt.Errorf("persist: keys: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// Append writes one review-log row.
func (s *SQLite) Append(row algo.LogRow) error {
	_, err := s.conn.Exec(`
		INSERT INTO revlog (id, item_id, ts, rating, duration_ms, state, deck)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), row.ItemID, row.Timestamp, row.Rating, row.DurationMs, row.State, row.Deck)
	if err != nil {
		return fmt.Errorf("persist: append revlog: %w", err)
	}
	return nil
}

// Revlog returns the log rows of an item in review order.
func (s *SQLite) Revlog(ctx context.Context, itemID int) ([]algo.LogRow, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT item_id, ts, rating, duration_ms, state, deck
		FROM revlog WHERE item_id = ? ORDER BY ts, rowid
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("persist: revlog: %w", err)
	}
	defer rows.Close()
	var out []algo.LogRow
	for rows.Next() {
		var r algo.LogRow
		if err := rows.Scan(&r.ItemID, &r.Timestamp, &r.Rating, &r.DurationMs, &r.State, &r.Deck); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
