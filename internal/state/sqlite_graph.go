package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/souptikmandal/lineagekit/pkg/core"
)

// Rows are returned in insertion order (rowid), which is the order the
// tracker accumulated them in.

func (s *SQLiteStore) loadDatasets(ctx context.Context, runID string) ([]core.DatasetNode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, fmt, path, code_file, code_line, rows, created_at
		 FROM datasets WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.DatasetNode
	for rows.Next() {
		var d core.DatasetNode
		var kind, createdAt string
		var format, path, codeFile sql.NullString
		var codeLine sql.NullInt64
		if err := rows.Scan(&d.ID, &d.Name, &kind, &format, &path, &codeFile, &codeLine, &d.Rows, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		d.Kind = core.DatasetKind(kind)
		d.Format = format.String
		d.Path = path.String
		d.CodeFile = codeFile.String
		d.CodeLine = int(codeLine.Int64)
		d.RunID = runID
		d.CreatedAt = parseTime(createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadColumns(ctx context.Context, runID string) ([]core.ColumnNode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, dataset_id, name, dtype FROM columns WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.ColumnNode
	for rows.Next() {
		var c core.ColumnNode
		var dtype sql.NullString
		if err := rows.Scan(&c.ID, &c.DatasetID, &c.Name, &dtype); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		c.DType = dtype.String
		c.RunID = runID
		out = append(out, c)
	}
	return out, rows.Err()
}

// LoadTransforms returns the transform nodes of a run.
func (s *SQLiteStore) LoadTransforms(ctx context.Context, runID string) ([]core.TransformNode, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, code_file, code_line, params_hash, tags, created_at
		 FROM transforms WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transforms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.TransformNode
	for rows.Next() {
		var t core.TransformNode
		var codeFile, paramsHash, tags sql.NullString
		var codeLine sql.NullInt64
		var createdAt string
		if err := rows.Scan(&t.ID, &t.Name, &codeFile, &codeLine, &paramsHash, &tags, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transform: %w", err)
		}
		t.CodeFile = codeFile.String
		t.CodeLine = int(codeLine.Int64)
		t.ParamsHash = paramsHash.String
		t.Tags = decodeTags(tags)
		t.RunID = runID
		t.CreatedAt = parseTime(createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadDatasetEdges(ctx context.Context, runID string) ([]core.DatasetToTransform, []core.TransformToDataset, error) {
	var in []core.DatasetToTransform
	err := s.scanEdges(ctx, `SELECT src_dataset_id, transform_id FROM dataset_to_transform WHERE run_id = ? ORDER BY rowid`, runID,
		func(a, b string) {
			in = append(in, core.DatasetToTransform{SrcDatasetID: a, TransformID: b, RunID: runID})
		})
	if err != nil {
		return nil, nil, err
	}

	var out []core.TransformToDataset
	err = s.scanEdges(ctx, `SELECT transform_id, dest_dataset_id FROM transform_to_dataset WHERE run_id = ? ORDER BY rowid`, runID,
		func(a, b string) {
			out = append(out, core.TransformToDataset{TransformID: a, DestDatasetID: b, RunID: runID})
		})
	if err != nil {
		return nil, nil, err
	}
	return in, out, nil
}

// LoadColumnEdges returns the column-level lineage edges of a run.
func (s *SQLiteStore) LoadColumnEdges(ctx context.Context, runID string) ([]core.ColumnToTransform, []core.TransformToColumn, error) {
	if s.db == nil {
		return nil, nil, ErrNotOpen
	}

	var in []core.ColumnToTransform
	err := s.scanEdges(ctx, `SELECT src_col_id, transform_id FROM column_to_transform WHERE run_id = ? ORDER BY rowid`, runID,
		func(a, b string) {
			in = append(in, core.ColumnToTransform{SrcColumnID: a, TransformID: b, RunID: runID})
		})
	if err != nil {
		return nil, nil, err
	}

	var out []core.TransformToColumn
	err = s.scanEdges(ctx, `SELECT transform_id, dest_col_id FROM transform_to_column WHERE run_id = ? ORDER BY rowid`, runID,
		func(a, b string) {
			out = append(out, core.TransformToColumn{TransformID: a, DestColumnID: b, RunID: runID})
		})
	if err != nil {
		return nil, nil, err
	}
	return in, out, nil
}

func (s *SQLiteStore) scanEdges(ctx context.Context, query, runID string, add func(src, dst string)) error {
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return fmt.Errorf("failed to get edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var src, dst string
		if err := rows.Scan(&src, &dst); err != nil {
			return fmt.Errorf("failed to scan edge: %w", err)
		}
		add(src, dst)
	}
	return rows.Err()
}

// LoadStats returns the column statistics of a run.
func (s *SQLiteStore) LoadStats(ctx context.Context, runID string) ([]core.ColumnStats, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT dataset_id, "column", dtype, count, nulls, mean, std, top, top_freq
		 FROM column_stats WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get column stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.ColumnStats
	for rows.Next() {
		var st core.ColumnStats
		var dtype, top sql.NullString
		var mean, std sql.NullFloat64
		var topFreq sql.NullInt64
		if err := rows.Scan(&st.DatasetID, &st.Column, &dtype, &st.Count, &st.Nulls, &mean, &std, &top, &topFreq); err != nil {
			return nil, fmt.Errorf("failed to scan column stats: %w", err)
		}
		st.DType = dtype.String
		st.Mean = floatPtr(mean)
		st.Std = floatPtr(std)
		st.Top = stringPtr(top)
		st.TopFreq = intPtr(topFreq)
		st.RunID = runID
		out = append(out, st)
	}
	return out, rows.Err()
}
