package engine

// steps.go - pipeline steps backed by the execution adapter

import (
	"context"
	"fmt"

	"github.com/souptikmandal/lineagekit/internal/adapter"
	"github.com/souptikmandal/lineagekit/internal/pipeline"
	"github.com/souptikmandal/lineagekit/pkg/core"
)

// tableSource loads a data file into a table named after the source.
type tableSource struct {
	db   adapter.Adapter
	file string
	def  Source
}

func (s *tableSource) Dataset() pipeline.Dataset {
	return pipeline.Dataset{
		Name:     s.def.Name,
		Format:   adapter.FormatOf(s.def.Path, s.def.Format),
		Path:     s.def.Path,
		CodeFile: s.file,
		CodeLine: s.def.Line,
	}
}

func (s *tableSource) Read(ctx context.Context) (*core.Frame, error) {
	if err := s.db.LoadFile(ctx, s.def.Name, s.def.Path, s.def.Format); err != nil {
		return nil, err
	}
	return s.db.ReadFrame(ctx, s.def.Name)
}

// sqlTransform materializes its query as a table. The query reads its
// input table directly, so the input frame is only used for lineage.
type sqlTransform struct {
	db   adapter.Adapter
	file string
	def  Transform
}

func (t *sqlTransform) Spec() pipeline.TransformSpec {
	return pipeline.TransformSpec{
		Name:        t.def.Name,
		Produces:    t.def.Produces,
		CodeFile:    t.file,
		CodeLine:    t.def.Line,
		Passthrough: t.def.Passthrough,
		Rename:      t.def.Rename,
		Derives:     t.def.Derives,
		Tags:        t.def.Tags,
		Source:      t.def.SQL,
	}
}

func (t *sqlTransform) Apply(ctx context.Context, _ *core.Frame) (*core.Frame, error) {
	stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS %s", adapter.QuoteIdent(t.def.Produces), t.def.SQL)
	if err := t.db.Exec(ctx, stmt); err != nil {
		return nil, err
	}
	return t.db.ReadFrame(ctx, t.def.Produces)
}

// tableSink writes its input table to a data file.
type tableSink struct {
	db   adapter.Adapter
	file string
	def  Sink
}

func (s *tableSink) Dataset() pipeline.Dataset {
	return pipeline.Dataset{
		Name:     s.def.Name,
		Format:   adapter.FormatOf(s.def.Path, s.def.Format),
		Path:     s.def.Path,
		CodeFile: s.file,
		CodeLine: s.def.Line,
	}
}

func (s *tableSink) Write(ctx context.Context, _ *core.Frame) error {
	return s.db.WriteFile(ctx, s.def.Input, s.def.Path, s.def.Format)
}
