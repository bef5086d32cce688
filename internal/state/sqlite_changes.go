package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/souptikmandal/lineagekit/pkg/core"
)

// SaveChanges appends detected changes to the changes table in one
// transaction. Ids are assigned by the database.
func (s *SQLiteStore) SaveChanges(ctx context.Context, changes []core.Change) error {
	if s.db == nil {
		return ErrNotOpen
	}
	if len(changes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range changes {
		detail, err := json.Marshal(c.Detail)
		if err != nil {
			return fmt.Errorf("failed to encode detail for %s: %w", c.NodeID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO changes (run_id, base_run_id, node_kind, node_id, dataset_id, "column", change_type, severity, detail, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.RunID, c.BaseRunID, string(c.NodeKind), c.NodeID, nullableString(c.DatasetID), nullableString(c.Column),
			string(c.ChangeType), string(c.Severity), string(detail), formatTime(c.CreatedAt),
		); err != nil {
			return fmt.Errorf("failed to insert change %s on %s: %w", c.ChangeType, c.NodeID, err)
		}
	}

	return tx.Commit()
}

// ListChanges returns the saved changes whose current run is runID, in the
// order they were saved. An empty runID lists every saved change.
func (s *SQLiteStore) ListChanges(ctx context.Context, runID string) ([]core.Change, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	query := `SELECT id, run_id, base_run_id, node_kind, node_id, dataset_id, "column", change_type, severity, detail, created_at
		FROM changes`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.Change
	for rows.Next() {
		var c core.Change
		var nodeKind, changeType, severity, createdAt string
		var datasetID, column, detail sql.NullString
		if err := rows.Scan(&c.ID, &c.RunID, &c.BaseRunID, &nodeKind, &c.NodeID, &datasetID, &column,
			&changeType, &severity, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		c.NodeKind = core.NodeKind(nodeKind)
		c.ChangeType = core.ChangeType(changeType)
		c.Severity = core.Severity(severity)
		c.DatasetID = datasetID.String
		c.Column = column.String
		c.CreatedAt = parseTime(createdAt)
		if detail.Valid && detail.String != "" && detail.String != "null" {
			if err := json.Unmarshal([]byte(detail.String), &c.Detail); err != nil {
				return nil, fmt.Errorf("failed to decode detail of change %d: %w", c.ID, err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
