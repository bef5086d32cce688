package engine

// definition.go - pipeline.yaml loading and validation

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/souptikmandal/lineagekit/internal/adapter"
	"github.com/souptikmandal/lineagekit/internal/dag"
)

// DefaultEngineType is the execution engine used when pipeline.yaml names none.
const DefaultEngineType = "duckdb"

// Pipeline is a declarative pipeline: files read into tables, SQL
// transforms over them, and tables written back out.
type Pipeline struct {
	Name       string         `yaml:"name" validate:"required"`
	Engine     adapter.Config `yaml:"engine"`
	Sources    []Source       `yaml:"sources" validate:"required,min=1,dive"`
	Transforms []Transform    `yaml:"transforms" validate:"dive"`
	Sinks      []Sink         `yaml:"sinks" validate:"dive"`

	// File is the path the pipeline was loaded from. Step lines refer to it.
	File string `yaml:"-"`
}

// Source reads a data file into a table named after the source.
type Source struct {
	Name   string `yaml:"name" validate:"required"`
	Path   string `yaml:"path" validate:"required"`
	Format string `yaml:"format" validate:"omitempty,oneof=csv parquet json"`
	Line   int    `yaml:"-"`
}

// Transform materializes a SQL query as a new table.
type Transform struct {
	Name string `yaml:"name" validate:"required"`
	// Input is the dataset whose columns lineage is tracked against.
	Input string `yaml:"input" validate:"required"`
	// Produces names the output table. Defaults to Name.
	Produces    string              `yaml:"produces"`
	SQL         string              `yaml:"sql" validate:"required"`
	Tags        []string            `yaml:"tags"`
	Passthrough []string            `yaml:"passthrough"`
	Rename      map[string]string   `yaml:"rename"`
	Derives     map[string][]string `yaml:"derives"`
	Line        int                 `yaml:"-"`
}

// Sink writes a table to a data file.
type Sink struct {
	Name   string `yaml:"name" validate:"required"`
	Input  string `yaml:"input" validate:"required"`
	Path   string `yaml:"path" validate:"required"`
	Format string `yaml:"format" validate:"omitempty,oneof=csv parquet json"`
	Line   int    `yaml:"-"`
}

// UnmarshalYAML records the line the source is declared on.
func (s *Source) UnmarshalYAML(n *yaml.Node) error {
	type plain Source
	if err := n.Decode((*plain)(s)); err != nil {
		return err
	}
	s.Line = n.Line
	return nil
}

// UnmarshalYAML records the line the transform is declared on.
func (t *Transform) UnmarshalYAML(n *yaml.Node) error {
	type plain Transform
	if err := n.Decode((*plain)(t)); err != nil {
		return err
	}
	t.Line = n.Line
	return nil
}

// UnmarshalYAML records the line the sink is declared on.
func (s *Sink) UnmarshalYAML(n *yaml.Node) error {
	type plain Sink
	if err := n.Decode((*plain)(s)); err != nil {
		return err
	}
	s.Line = n.Line
	return nil
}

// LoadPipeline reads and validates a pipeline definition. Relative data
// paths are resolved against the directory of the file.
func LoadPipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline: %w", err)
	}

	p, err := ParsePipeline(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	p.File = abs
	base := filepath.Dir(abs)
	for i := range p.Sources {
		p.Sources[i].Path = resolve(base, p.Sources[i].Path)
	}
	for i := range p.Sinks {
		p.Sinks[i].Path = resolve(base, p.Sinks[i].Path)
	}
	if p.Engine.Path != "" && p.Engine.Path != ":memory:" {
		p.Engine.Path = resolve(base, p.Engine.Path)
	}
	return p, nil
}

// ParsePipeline decodes and validates a pipeline definition.
func ParsePipeline(data []byte) (*Pipeline, error) {
	var p Pipeline
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("invalid pipeline: %w", err)
	}

	if p.Engine.Type == "" {
		p.Engine.Type = DefaultEngineType
	}
	for i := range p.Transforms {
		if p.Transforms[i].Produces == "" {
			p.Transforms[i].Produces = p.Transforms[i].Name
		}
	}

	if err := validator.New().Struct(&p); err != nil {
		return nil, fmt.Errorf("invalid pipeline: %w", err)
	}
	if _, err := p.Plan(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Step is one executable unit of a pipeline. Exactly one field is set.
type Step struct {
	Source    *Source
	Transform *Transform
	Sink      *Sink
}

// Plan orders the pipeline's steps so every step runs after the step that
// produces its input. Independent steps keep declaration order.
func (p *Pipeline) Plan() ([]Step, error) {
	g := dag.NewGraph[Step]()

	for i := range p.Sources {
		s := &p.Sources[i]
		if err := g.AddNode(s.Name, Step{Source: s}); err != nil {
			return nil, fmt.Errorf("source %s: dataset %q declared twice", s.Name, s.Name)
		}
	}
	for i := range p.Transforms {
		t := &p.Transforms[i]
		if err := g.AddNode(t.Produces, Step{Transform: t}); err != nil {
			return nil, fmt.Errorf("transform %s: dataset %q declared twice", t.Name, t.Produces)
		}
	}
	for i := range p.Sinks {
		s := &p.Sinks[i]
		if err := g.AddNode("sink:"+s.Name, Step{Sink: s}); err != nil {
			return nil, fmt.Errorf("sink %s declared twice", s.Name)
		}
	}

	for i := range p.Transforms {
		t := &p.Transforms[i]
		if _, ok := g.Node(t.Input); !ok {
			return nil, fmt.Errorf("transform %s: unknown input %q", t.Name, t.Input)
		}
		if err := g.AddEdge(t.Input, t.Produces); err != nil {
			return nil, fmt.Errorf("transform %s: %w", t.Name, err)
		}
	}
	for i := range p.Sinks {
		s := &p.Sinks[i]
		if _, ok := g.Node(s.Input); !ok {
			return nil, fmt.Errorf("sink %s: unknown input %q", s.Name, s.Input)
		}
		if err := g.AddEdge(s.Input, "sink:"+s.Name); err != nil {
			return nil, fmt.Errorf("sink %s: %w", s.Name, err)
		}
	}

	nodes, err := g.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline: %w", err)
	}
	steps := make([]Step, len(nodes))
	for i, n := range nodes {
		steps[i] = n.Data
	}
	return steps, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
