// Package pipeline connects pipeline steps to a run's lineage tracker.
//
// Pipeline authors implement DatasetSource, DatasetSink and Transform; the
// Runner calls them and reports what they read, wrote and produced through
// the tracker's ingestion API. The core never sees step internals.
package pipeline

import (
	"context"

	"github.com/souptikmandal/lineagekit/pkg/core"
)

// Dataset describes where a dataset lives and where it is declared.
type Dataset struct {
	Name     string
	Format   string
	Path     string
	CodeFile string
	CodeLine int
}

// DatasetSource is a step that reads a dataset.
type DatasetSource interface {
	Dataset() Dataset
	Read(ctx context.Context) (*core.Frame, error)
}

// DatasetSink is a step that writes a dataset.
type DatasetSink interface {
	Dataset() Dataset
	Write(ctx context.Context, frame *core.Frame) error
}

// TransformSpec is the declared behavior of a transform.
type TransformSpec struct {
	Name string
	// Produces names the output dataset.
	Produces string
	CodeFile string
	CodeLine int

	// Passthrough lists columns copied unchanged. When empty, it is inferred
	// as the columns present in both input and output that are neither
	// renamed nor derived.
	Passthrough []string
	// Rename maps input columns to their output name.
	Rename map[string]string
	// Derives maps output columns to the input columns they are computed from.
	Derives map[string][]string

	Tags []string

	// Source is the transform's text (e.g. its SQL), handed to the hint
	// provider. Explicit Rename and Derives win over hints.
	Source string
}

// Transform is a step that turns one frame into another.
type Transform interface {
	Spec() TransformSpec
	Apply(ctx context.Context, in *core.Frame) (*core.Frame, error)
}
