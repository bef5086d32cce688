package state

import (
	"context"
	"encoding/json"
	"io"

	"github.com/souptikmandal/lineagekit/pkg/core"
)

// Export is the archival/visualization JSON document of one run.
type Export struct {
	RunID string      `json:"run_id"`
	Nodes ExportNodes `json:"nodes"`
	Edges ExportEdges `json:"edges"`
}

// ExportNodes holds the node collections of an export.
type ExportNodes struct {
	Datasets   []core.DatasetNode   `json:"datasets"`
	Columns    []core.ColumnNode    `json:"columns"`
	Transforms []core.TransformNode `json:"transforms"`
}

// ExportEdges holds the edge collections of an export.
type ExportEdges struct {
	DatasetToTransform []core.DatasetToTransform `json:"dataset_to_transform"`
	TransformToDataset []core.TransformToDataset `json:"transform_to_dataset"`
	ColumnToTransform  []core.ColumnToTransform  `json:"column_to_transform"`
	TransformToColumn  []core.TransformToColumn  `json:"transform_to_column"`
}

// NewExport builds the export document of a snapshot. Empty collections are
// encoded as [] rather than null.
func NewExport(snap *core.Snapshot) *Export {
	return &Export{
		RunID: snap.Run.ID,
		Nodes: ExportNodes{
			Datasets:   nonNil(snap.Datasets),
			Columns:    nonNil(snap.Columns),
			Transforms: nonNil(snap.Transforms),
		},
		Edges: ExportEdges{
			DatasetToTransform: nonNil(snap.DatasetToTransform),
			TransformToDataset: nonNil(snap.TransformToDataset),
			ColumnToTransform:  nonNil(snap.ColumnToTransform),
			TransformToColumn:  nonNil(snap.TransformToColumn),
		},
	}
}

// LoadExport loads a run and builds its export document.
func LoadExport(ctx context.Context, store core.Store, runID string) (*Export, error) {
	snap, err := store.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	return NewExport(snap), nil
}

// WriteJSON writes the export as indented JSON.
func (e *Export) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
