package core

import (
	"strings"
	"time"
)

// =============================================================================
// Nodes
// =============================================================================

// DatasetKind classifies a materialized tabular artifact.
type DatasetKind string

// Dataset kinds.
const (
	DatasetSource DatasetKind = "source"
	DatasetSink   DatasetKind = "sink"
	DatasetTemp   DatasetKind = "temp"
)

// NodeKind names the kind of graph node a change or impact hit refers to.
type NodeKind string

// Node kinds.
const (
	NodeDataset   NodeKind = "dataset"
	NodeColumn    NodeKind = "column"
	NodeTransform NodeKind = "transform"
)

// DatasetNode represents one materialized tabular artifact within a run.
type DatasetNode struct {
	ID        string      `json:"id" validate:"required"`
	Name      string      `json:"name" validate:"required"`
	Kind      DatasetKind `json:"kind" validate:"required,oneof=source sink temp"`
	Format    string      `json:"fmt"`
	Path      string      `json:"path"`
	CodeFile  string      `json:"code_file"`
	CodeLine  int         `json:"code_line"`
	Rows      int64       `json:"rows" validate:"gte=0"`
	RunID     string      `json:"run_id"`
	CreatedAt time.Time   `json:"created_at"`
}

// ColumnNode is one named column of a dataset. There is exactly one column
// node per (dataset, column name) pair per run.
type ColumnNode struct {
	ID        string `json:"id" validate:"required"`
	DatasetID string `json:"dataset_id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	DType     string `json:"dtype"`
	RunID     string `json:"run_id"`
}

// TransformNode is one lineage-producing operation.
type TransformNode struct {
	ID         string    `json:"id" validate:"required"`
	Name       string    `json:"name" validate:"required"`
	CodeFile   string    `json:"code_file"`
	CodeLine   int       `json:"code_line"`
	ParamsHash string    `json:"params_hash"`
	Tags       []string  `json:"tags"`
	RunID      string    `json:"run_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasTag reports whether the transform carries any of the given tags
// (case-insensitive).
func (t *TransformNode) HasTag(tags ...string) bool {
	for _, have := range t.Tags {
		for _, want := range tags {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// Edges
// =============================================================================

// DatasetToTransform records an input dataset consumed by a transform.
type DatasetToTransform struct {
	SrcDatasetID string `json:"src_dataset_id" validate:"required"`
	TransformID  string `json:"transform_id" validate:"required"`
	RunID        string `json:"run_id"`
}

// TransformToDataset records an output dataset produced by a transform.
type TransformToDataset struct {
	TransformID   string `json:"transform_id" validate:"required"`
	DestDatasetID string `json:"dest_dataset_id" validate:"required"`
	RunID         string `json:"run_id"`
}

// ColumnToTransform records an input column consumed by a transform.
type ColumnToTransform struct {
	SrcColumnID string `json:"src_col_id" validate:"required"`
	TransformID string `json:"transform_id" validate:"required"`
	RunID       string `json:"run_id"`
}

// TransformToColumn records an output column produced by a transform.
type TransformToColumn struct {
	TransformID  string `json:"transform_id" validate:"required"`
	DestColumnID string `json:"dest_col_id" validate:"required"`
	RunID        string `json:"run_id"`
}

// =============================================================================
// Statistics
// =============================================================================

// ColumnStats summarizes one column of one dataset in one run.
// Numeric columns carry Mean/Std, all others carry Top/TopFreq. Fields that
// are undefined for the observed values are nil.
type ColumnStats struct {
	DatasetID string   `json:"dataset_id" validate:"required"`
	Column    string   `json:"column" validate:"required"`
	DType     string   `json:"dtype"`
	Count     int64    `json:"count"`
	Nulls     int64    `json:"nulls"`
	Mean      *float64 `json:"mean"`
	Std       *float64 `json:"std"`
	Top       *string  `json:"top"`
	TopFreq   *int64   `json:"top_freq"`
	RunID     string   `json:"run_id"`
}

// NullFraction returns nulls/count, treating a zero count as one.
func (s *ColumnStats) NullFraction() float64 {
	count := s.Count
	if count == 0 {
		count = 1
	}
	return float64(s.Nulls) / float64(count)
}

// =============================================================================
// Frame
// =============================================================================

// Frame is the typed tabular value handed to the ingestion API. Values are
// stored column-major; a nil value is a null.
type Frame struct {
	// DatasetID is set once the frame has been registered as a dataset.
	DatasetID string
	Columns   []FrameColumn
}

// FrameColumn is one named, typed column of a Frame.
type FrameColumn struct {
	Name   string
	DType  string
	Values []any
}

// Len returns the number of rows in the frame.
func (f *Frame) Len() int {
	if f == nil || len(f.Columns) == 0 {
		return 0
	}
	return len(f.Columns[0].Values)
}

// ColumnNames returns the column names in frame order.
func (f *Frame) ColumnNames() []string {
	if f == nil {
		return nil
	}
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether the frame has a column with the given name.
func (f *Frame) HasColumn(name string) bool {
	if f == nil {
		return false
	}
	for _, c := range f.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// numericDTypes lists dtype names (lower-cased) treated as numeric.
var numericDTypes = map[string]bool{
	"tinyint": true, "smallint": true, "integer": true, "int": true, "bigint": true,
	"hugeint": true, "utinyint": true, "usmallint": true, "uinteger": true,
	"ubigint": true, "uhugeint": true, "float": true, "double": true, "real": true,
	"decimal": true, "numeric": true,
}

// IsNumericDType reports whether a dtype string names a numeric type.
// Both SQL names (BIGINT, DOUBLE, DECIMAL(18,3)) and sized names
// (int64, float32, uint8) are recognized.
func IsNumericDType(dtype string) bool {
	d := strings.ToLower(strings.TrimSpace(dtype))
	if i := strings.IndexByte(d, '('); i >= 0 {
		d = d[:i]
	}
	if numericDTypes[d] {
		return true
	}
	for _, prefix := range []string{"int", "uint", "float"} {
		if strings.HasPrefix(d, prefix) {
			rest := strings.TrimPrefix(d, prefix)
			if rest == "" || strings.Trim(rest, "0123456789") == "" {
				return true
			}
		}
	}
	return false
}
