package pcestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pcehq/pce/pkg/pcetypes"
)

// AppendTranscript inserts one transcript item and returns the assigned
// monotonic cursor. AUTOINCREMENT guarantees the sequence is gap-free under
// the single-writer discipline: no other path ever deletes or renumbers
// rows in this table.
func (s *Store) AppendTranscript(ctx context.Context, item pcetypes.TranscriptItem) (uint64, error) {
	raw, err := json.Marshal(item.Payload)
	if err != nil {
		return 0, err
	}
	var cursor uint64
	err = s.write(func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO transcript (ts, kind, agent, correlation_id, decision_id, payload_json)
			VALUES (?, ?, ?, ?, ?, ?)
		`, item.TS.UTC().Format(time.RFC3339Nano), string(item.Kind), item.Agent, item.CorrelationID, item.DecisionID, raw)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		cursor = uint64(id)
		return nil
	})
	return cursor, err
}

// TranscriptSince returns every item with cursor > since, in cursor order,
// for catch-up fetches.
func (s *Store) TranscriptSince(ctx context.Context, since uint64) ([]pcetypes.TranscriptItem, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT cursor, ts, kind, agent, correlation_id, decision_id, payload_json
		FROM transcript WHERE cursor > ? ORDER BY cursor ASC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pcetypes.TranscriptItem
	for rows.Next() {
		var item pcetypes.TranscriptItem
		var tsStr string
		var kind string
		var agent, corrID, decID sql.NullString
		var raw []byte
		if err := rows.Scan(&item.Cursor, &tsStr, &kind, &agent, &corrID, &decID, &raw); err != nil {
			return nil, err
		}
		item.Kind = pcetypes.TranscriptKind(kind)
		item.Agent = agent.String
		item.CorrelationID = corrID.String
		item.DecisionID = decID.String
		if ts, err := time.Parse(time.RFC3339Nano, tsStr); err == nil {
			item.TS = ts
		}
		if err := json.Unmarshal(raw, &item.Payload); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// LatestCursor returns the highest cursor currently in the transcript, or 0
// if empty.
func (s *Store) LatestCursor(ctx context.Context) (uint64, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT COALESCE(MAX(cursor), 0) FROM transcript`)
	var cursor uint64
	return cursor, row.Scan(&cursor)
}
