package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/souptikmandal/lineagekit/pkg/core"
)

// snapshotTables lists every table holding run-scoped snapshot rows.
var snapshotTables = []string{
	"datasets",
	"columns",
	"transforms",
	"dataset_to_transform",
	"transform_to_dataset",
	"column_to_transform",
	"transform_to_column",
	"column_stats",
}

// Persist writes a complete run snapshot in a single transaction.
// Rows previously stored for the same run id are replaced, so persisting
// the same snapshot twice leaves the store unchanged.
func (s *SQLiteStore) Persist(ctx context.Context, snap *core.Snapshot) error {
	if s.db == nil {
		return ErrNotOpen
	}
	if snap == nil || snap.Run.ID == "" {
		return fmt.Errorf("snapshot has no run id")
	}
	runID := snap.Run.ID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (run_id, created_at) VALUES (?, ?)`,
		runID, formatTime(snap.Run.CreatedAt),
	); err != nil {
		return fmt.Errorf("failed to write run %s: %w", runID, err)
	}

	for _, table := range snapshotTables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("failed to clear %s for run %s: %w", table, runID, err)
		}
	}

	for _, d := range snap.Datasets {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO datasets (id, name, kind, fmt, path, code_file, code_line, rows, run_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.Name, string(d.Kind), nullableString(d.Format), nullableString(d.Path),
			nullableString(d.CodeFile), d.CodeLine, d.Rows, runID, formatTime(d.CreatedAt),
		); err != nil {
			return fmt.Errorf("failed to insert dataset %s: %w", d.Name, err)
		}
	}

	for _, c := range snap.Columns {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO columns (id, dataset_id, name, dtype, run_id) VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.DatasetID, c.Name, nullableString(c.DType), runID,
		); err != nil {
			return fmt.Errorf("failed to insert column %s: %w", c.Name, err)
		}
	}

	for _, t := range snap.Transforms {
		tags, err := encodeTags(t.Tags)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO transforms (id, name, code_file, code_line, params_hash, tags, run_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Name, nullableString(t.CodeFile), t.CodeLine, nullableString(t.ParamsHash),
			tags, runID, formatTime(t.CreatedAt),
		); err != nil {
			return fmt.Errorf("failed to insert transform %s: %w", t.Name, err)
		}
	}

	if err := s.persistEdges(ctx, tx, snap); err != nil {
		return err
	}

	for _, st := range snap.Stats {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO column_stats (dataset_id, "column", dtype, count, nulls, mean, std, top, top_freq, run_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			st.DatasetID, st.Column, nullableString(st.DType), st.Count, st.Nulls,
			nullableFloat(st.Mean), nullableFloat(st.Std), stringToNull(st.Top), nullableInt(st.TopFreq), runID,
		); err != nil {
			return fmt.Errorf("failed to insert stats for %s: %w", st.Column, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", runID, err)
	}

	s.logger.Debug("run persisted",
		slog.String("run_id", runID),
		slog.Int("datasets", len(snap.Datasets)),
		slog.Int("columns", len(snap.Columns)),
		slog.Int("transforms", len(snap.Transforms)))
	return nil
}

func (s *SQLiteStore) persistEdges(ctx context.Context, tx *sql.Tx, snap *core.Snapshot) error {
	runID := snap.Run.ID
	insert := func(table, src, dst, a, b string) error {
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s, %s, run_id) VALUES (?, ?, ?)`, table, src, dst),
			a, b, runID)
		if err != nil {
			return fmt.Errorf("failed to insert %s edge %s -> %s: %w", table, a, b, err)
		}
		return nil
	}

	for _, e := range snap.DatasetToTransform {
		if err := insert("dataset_to_transform", "src_dataset_id", "transform_id", e.SrcDatasetID, e.TransformID); err != nil {
			return err
		}
	}
	for _, e := range snap.TransformToDataset {
		if err := insert("transform_to_dataset", "transform_id", "dest_dataset_id", e.TransformID, e.DestDatasetID); err != nil {
			return err
		}
	}
	for _, e := range snap.ColumnToTransform {
		if err := insert("column_to_transform", "src_col_id", "transform_id", e.SrcColumnID, e.TransformID); err != nil {
			return err
		}
	}
	for _, e := range snap.TransformToColumn {
		if err := insert("transform_to_column", "transform_id", "dest_col_id", e.TransformID, e.DestColumnID); err != nil {
			return err
		}
	}
	return nil
}

// Load returns the full snapshot of a run. An unknown run yields a snapshot
// with the run id set and every collection empty.
func (s *SQLiteStore) Load(ctx context.Context, runID string) (*core.Snapshot, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	snap := &core.Snapshot{Run: core.Run{ID: runID}}

	var createdAt string
	err := s.db.QueryRowContext(ctx, `SELECT created_at FROM runs WHERE run_id = ?`, runID).Scan(&createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	default:
		snap.Run.CreatedAt = parseTime(createdAt)
	}

	if snap.Datasets, err = s.loadDatasets(ctx, runID); err != nil {
		return nil, err
	}
	if snap.Columns, err = s.loadColumns(ctx, runID); err != nil {
		return nil, err
	}
	if snap.Transforms, err = s.LoadTransforms(ctx, runID); err != nil {
		return nil, err
	}
	if snap.DatasetToTransform, snap.TransformToDataset, err = s.loadDatasetEdges(ctx, runID); err != nil {
		return nil, err
	}
	if snap.ColumnToTransform, snap.TransformToColumn, err = s.LoadColumnEdges(ctx, runID); err != nil {
		return nil, err
	}
	if snap.Stats, err = s.LoadStats(ctx, runID); err != nil {
		return nil, err
	}
	return snap, nil
}

// LatestRunID returns the run with the most recent creation time, or ""
// when no run has been persisted.
func (s *SQLiteStore) LatestRunID(ctx context.Context) (string, error) {
	if s.db == nil {
		return "", ErrNotOpen
	}

	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id FROM runs ORDER BY created_at DESC, run_id DESC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest run: %w", err)
	}
	return id, nil
}

// ListRuns returns persisted runs, newest first. A limit <= 0 returns all.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]core.Run, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, created_at FROM runs ORDER BY created_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []core.Run
	for rows.Next() {
		var r core.Run
		var createdAt string
		if err := rows.Scan(&r.ID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.CreatedAt = parseTime(createdAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func stringToNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
