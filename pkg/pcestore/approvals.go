package pcestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/pcehq/pce/pkg/pcetypes"
)

// ErrApprovalNotFound is returned when an approval id has no record.
var ErrApprovalNotFound = errors.New("approval_not_found")

// PutApproval inserts a new pending approval or overwrites an existing one
// by approval_id — callers are expected to only overwrite via transition
// helpers that re-check status first.
func (s *Store) PutApproval(ctx context.Context, a *pcetypes.PendingApproval) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	var resolvedAt any
	if a.ResolvedAt != nil {
		resolvedAt = a.ResolvedAt.UTC().Format(time.RFC3339Nano)
	}
	return s.write(func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO approvals (approval_id, status, json, created_at, resolved_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(approval_id) DO UPDATE SET
				status = excluded.status,
				json = excluded.json,
				resolved_at = excluded.resolved_at
		`, a.ApprovalID, string(a.Status), raw, a.CreatedAt.UTC().Format(time.RFC3339Nano), resolvedAt)
		return err
	})
}

// GetApproval loads one approval by id.
func (s *Store) GetApproval(ctx context.Context, id string) (*pcetypes.PendingApproval, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT json FROM approvals WHERE approval_id = ?`, id)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrApprovalNotFound
		}
		return nil, err
	}
	var a pcetypes.PendingApproval
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// PendingApprovals returns every approval still in the pending state.
func (s *Store) PendingApprovals(ctx context.Context) ([]pcetypes.PendingApproval, error) {
	return s.approvalsByStatus(ctx, pcetypes.ApprovalPending)
}

// AllApprovals returns every approval regardless of status, newest first.
func (s *Store) AllApprovals(ctx context.Context) ([]pcetypes.PendingApproval, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT json FROM approvals ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanApprovals(rows)
}

func (s *Store) approvalsByStatus(ctx context.Context, status pcetypes.ApprovalStatus) ([]pcetypes.PendingApproval, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT json FROM approvals WHERE status = ? ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanApprovals(rows)
}

func scanApprovals(rows *sql.Rows) ([]pcetypes.PendingApproval, error) {
	var out []pcetypes.PendingApproval
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var a pcetypes.PendingApproval
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
