// Package pcestore is the PCE State Store: a single-file embedded SQLite
// database (WAL mode) holding state, events, actions, cci, approvals,
// transcript and plugin_kv tables. SQLite is the only backend.
//
// Writes are serialized through one goroutine that owns the write handle,
// mirroring the teacher's single-writer conventions in
// pkg/store/receipt_store_sqlite.go generalized from ad hoc *sql.DB use to
// an explicit write-request channel; reads use a separate read-only handle
// so WAL readers never block on the writer.
package pcestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pcehq/pce/pkg/pcetypes"
)

// Store is the persistence surface used by every pipeline stage.
type Store struct {
	writeDB *sql.DB
	readDB  *sql.DB

	writeC chan writeRequest
	done   chan struct{}
}

type writeRequest struct {
	fn   func(*sql.Tx) error
	errC chan error
}

const schema = `
CREATE TABLE IF NOT EXISTS state (
	key TEXT PRIMARY KEY,
	json BLOB NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	event_id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	source TEXT NOT NULL,
	ts INTEGER NOT NULL,
	json BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS actions (
	action_id TEXT PRIMARY KEY,
	decision_id TEXT NOT NULL,
	ts INTEGER NOT NULL,
	json BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS cci (
	ts INTEGER PRIMARY KEY,
	cci REAL NOT NULL,
	components_json BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS approvals (
	approval_id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	json BLOB NOT NULL,
	created_at TEXT NOT NULL,
	resolved_at TEXT
);
CREATE TABLE IF NOT EXISTS transcript (
	cursor INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	kind TEXT NOT NULL,
	agent TEXT,
	correlation_id TEXT,
	decision_id TEXT,
	payload_json BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS plugin_kv (
	namespace TEXT NOT NULL,
	key TEXT NOT NULL,
	json BLOB NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (namespace, key)
);
`

// Open opens (creating if absent) a SQLite-backed Store at path, enables
// WAL mode, and starts the write-serialization goroutine.
func Open(ctx context.Context, path string) (*Store, error) {
	writeDB, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("pcestore: open write handle: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	if _, err := writeDB.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("pcestore: enable WAL: %w", err)
	}
	if _, err := writeDB.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("pcestore: migrate: %w", err)
	}

	readDB, err := sql.Open("sqlite", path+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("pcestore: open read handle: %w", err)
	}

	s := &Store{
		writeDB: writeDB,
		readDB:  readDB,
		writeC:  make(chan writeRequest),
		done:    make(chan struct{}),
	}
	go s.writerLoop()
	return s, nil
}

// OpenInMemory opens a private, non-WAL in-memory database for tests. WAL
// mode is meaningless on `:memory:` since there is no second connection to
// serve reads; tests exercise the same write-serialization code path.
func OpenInMemory(ctx context.Context) (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, err
	}
	s := &Store{writeDB: db, readDB: db, writeC: make(chan writeRequest), done: make(chan struct{})}
	go s.writerLoop()
	return s, nil
}

func (s *Store) writerLoop() {
	for {
		select {
		case req := <-s.writeC:
			req.errC <- s.runInTx(req.fn)
		case <-s.done:
			return
		}
	}
}

func (s *Store) runInTx(fn func(*sql.Tx) error) error {
	tx, err := s.writeDB.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// write submits fn to the single writer goroutine and waits for its
// result. The error from fn or the commit is returned as is; a failed
// write is not retried, here or by any caller.
func (s *Store) write(fn func(*sql.Tx) error) error {
	errC := make(chan error, 1)
	select {
	case s.writeC <- writeRequest{fn: fn, errC: errC}:
	case <-s.done:
		return fmt.Errorf("pcestore: store closed")
	}
	return <-errC
}

// Close stops the writer goroutine and closes both handles.
func (s *Store) Close() error {
	close(s.done)
	if s.readDB != s.writeDB {
		_ = s.readDB.Close()
	}
	return s.writeDB.Close()
}

// --- state ---

// LoadState returns the single live state snapshot (empty if none yet).
func (s *Store) LoadState(ctx context.Context) (pcetypes.State, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT json FROM state WHERE key = 'live'`)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return pcetypes.State{}, nil
		}
		return nil, err
	}
	var st pcetypes.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return st, nil
}

// SaveState atomically replaces the live snapshot.
func (s *Store) SaveState(ctx context.Context, st pcetypes.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.write(func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO state (key, json, updated_at) VALUES ('live', ?, ?)
			ON CONFLICT(key) DO UPDATE SET json = excluded.json, updated_at = excluded.updated_at
		`, raw, time.Now().UTC().Format(time.RFC3339Nano))
		return err
	})
}

// --- events ---

// AppendEvent persists a normalized event.
func (s *Store) AppendEvent(ctx context.Context, ev *pcetypes.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.write(func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO events (event_id, type, source, ts, json) VALUES (?, ?, ?, ?, ?)`,
			ev.EventID, ev.EventType, ev.Source, ev.TS, raw)
		return err
	})
}

// --- actions ---

// AppendAction persists a completed action keyed by a decision id (the
// correlation id of the event that produced it).
func (s *Store) AppendAction(ctx context.Context, decisionID string, action *pcetypes.CompletedAction) error {
	raw, err := json.Marshal(action)
	if err != nil {
		return err
	}
	return s.write(func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO actions (action_id, decision_id, ts, json) VALUES (?, ?, ?, ?)`,
			action.ActionID, decisionID, action.CompletedAt.UnixMilli(), raw)
		return err
	})
}

// RecentActions returns up to limit of the most recently completed
// actions, ordered oldest-to-newest, matching CCI's "last W actions by
// completed_at" window semantics.
func (s *Store) RecentActions(ctx context.Context, limit int) ([]pcetypes.CompletedAction, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT json FROM actions ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pcetypes.CompletedAction
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var a pcetypes.CompletedAction
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse to oldest-to-newest
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// --- cci ---

// AppendCCI records a coherence snapshot.
func (s *Store) AppendCCI(ctx context.Context, snap pcetypes.CCISnapshot) error {
	raw, err := json.Marshal(snap.Components)
	if err != nil {
		return err
	}
	return s.write(func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cci (ts, cci, components_json) VALUES (?, ?, ?)`,
			snap.TS.UnixMilli(), snap.CCI, raw)
		return err
	})
}

// CCIHistory returns up to limit of the most recent CCI snapshots, newest
// first.
func (s *Store) CCIHistory(ctx context.Context, limit int) ([]pcetypes.CCISnapshot, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT ts, cci, components_json FROM cci ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pcetypes.CCISnapshot
	for rows.Next() {
		var tsMillis int64
		var snap pcetypes.CCISnapshot
		var raw []byte
		if err := rows.Scan(&tsMillis, &snap.CCI, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &snap.Components); err != nil {
			return nil, err
		}
		snap.TS = time.UnixMilli(tsMillis).UTC()
		out = append(out, snap)
	}
	return out, rows.Err()
}

// LatestCCI returns the most recent snapshot, or the cold-start default
// (0.5, unknown) when none exists yet.
func (s *Store) LatestCCI(ctx context.Context) (pcetypes.CCISnapshot, error) {
	hist, err := s.CCIHistory(ctx, 1)
	if err != nil {
		return pcetypes.CCISnapshot{}, err
	}
	if len(hist) == 0 {
		return pcetypes.CCISnapshot{CCI: 0.5, Components: pcetypes.CCIComponents{Unknown: true}}, nil
	}
	return hist[0], nil
}

// --- plugin_kv ---

// PluginGetJSON decodes the value stored under (namespace, key) into dst.
// Returns false if absent.
func (s *Store) PluginGetJSON(ctx context.Context, namespace, key string, dst any) (bool, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT json FROM plugin_kv WHERE namespace = ? AND key = ?`, namespace, key)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, json.Unmarshal(raw, dst)
}

// PluginDeletePrefix removes every plugin_kv row under namespace whose key
// starts with prefix, returning the number of rows deleted. Used by
// clear_memory-style control endpoints.
func (s *Store) PluginDeletePrefix(ctx context.Context, namespace, prefix string) (int, error) {
	var affected int64
	err := s.write(func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM plugin_kv WHERE namespace = ? AND key LIKE ?`, namespace, prefix+"%")
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return int(affected), err
}

// PluginSetJSON encodes v and upserts it under (namespace, key); used by
// domain adaptation plugins for per-domain adaptive memory (rover Q-table,
// assistant bandit policy weights, robotics twin parameters).
func (s *Store) PluginSetJSON(ctx context.Context, namespace, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write(func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO plugin_kv (namespace, key, json, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(namespace, key) DO UPDATE SET json = excluded.json, updated_at = excluded.updated_at
		`, namespace, key, raw, time.Now().UTC().Format(time.RFC3339Nano))
		return err
	})
}
