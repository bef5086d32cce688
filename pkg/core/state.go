package core

import (
	"context"
	"time"
)

// Run is one pipeline execution and the identifier scoping all lineage facts
// it produces.
type Run struct {
	ID        string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the complete accumulated graph and statistics of one run.
type Snapshot struct {
	Run                Run                  `json:"run"`
	Datasets           []DatasetNode        `json:"datasets"`
	Columns            []ColumnNode         `json:"columns"`
	Transforms         []TransformNode      `json:"transforms"`
	DatasetToTransform []DatasetToTransform `json:"dataset_to_transform"`
	TransformToDataset []TransformToDataset `json:"transform_to_dataset"`
	ColumnToTransform  []ColumnToTransform  `json:"column_to_transform"`
	TransformToColumn  []TransformToColumn  `json:"transform_to_column"`
	Stats              []ColumnStats        `json:"column_stats"`
}

// StatsReader loads the column statistics of a run.
// An unknown run yields an empty slice, not an error.
type StatsReader interface {
	LoadStats(ctx context.Context, runID string) ([]ColumnStats, error)
}

// GraphReader loads the column-level lineage edges and transforms of a run.
// An unknown run yields empty slices, not an error.
type GraphReader interface {
	LoadColumnEdges(ctx context.Context, runID string) ([]ColumnToTransform, []TransformToColumn, error)
	LoadTransforms(ctx context.Context, runID string) ([]TransformNode, error)
}

// Store defines the interface for snapshot persistence.
type Store interface {
	StatsReader
	GraphReader

	Close() error

	// Run snapshots
	Persist(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, runID string) (*Snapshot, error)
	LatestRunID(ctx context.Context) (string, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Saved change records
	SaveChanges(ctx context.Context, changes []Change) error
	ListChanges(ctx context.Context, runID string) ([]Change, error)
}
