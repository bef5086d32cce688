package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/souptikmandal/lineagekit/internal/hints"
	"github.com/souptikmandal/lineagekit/internal/tracker"
	"github.com/souptikmandal/lineagekit/pkg/core"
	"github.com/souptikmandal/lineagekit/pkg/identity"
)

// runtimeFile is the code provenance of datasets synthesized at runtime.
const runtimeFile = "<runtime>"

// Runner drives pipeline steps and records their lineage in a tracker.
type Runner struct {
	tracker *tracker.Tracker
	hints   hints.Provider
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithHints sets the hint provider consulted for every transform.
func WithHints(p hints.Provider) Option {
	return func(r *Runner) {
		if p != nil {
			r.hints = p
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a runner recording into t.
func NewRunner(t *tracker.Tracker, opts ...Option) *Runner {
	r := &Runner{
		tracker: t,
		hints:   hints.Nop{},
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FromContext creates a runner for the tracker carried by ctx.
func FromContext(ctx context.Context, opts ...Option) (*Runner, error) {
	t, ok := tracker.FromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("no tracker in context")
	}
	return NewRunner(t, opts...), nil
}

// Tracker returns the tracker the runner records into.
func (r *Runner) Tracker() *tracker.Tracker {
	return r.tracker
}

// Read reads src and registers the result as a source dataset.
func (r *Runner) Read(ctx context.Context, src DatasetSource) (*core.Frame, error) {
	ds := src.Dataset()
	frame, err := src.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ds.Name, err)
	}
	if frame == nil {
		return nil, fmt.Errorf("read %s: source returned no frame", ds.Name)
	}

	node := r.datasetNode("read", ds, core.DatasetSource)
	if err := r.tracker.RecordDataset(node, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// Write writes frame through sink and registers a sink dataset. When frame
// belongs to a registered dataset, a write transform links every column to
// the sink's column of the same name.
func (r *Runner) Write(ctx context.Context, sink DatasetSink, frame *core.Frame) error {
	ds := sink.Dataset()
	if frame == nil {
		return fmt.Errorf("write %s: %w: frame is required", ds.Name, tracker.ErrInvalidInput)
	}
	if err := sink.Write(ctx, frame); err != nil {
		return fmt.Errorf("write %s: %w", ds.Name, err)
	}

	srcID := frame.DatasetID
	out := &core.Frame{Columns: frame.Columns}
	node := r.datasetNode("write", ds, core.DatasetSink)
	if err := r.tracker.RecordDataset(node, out); err != nil {
		return err
	}
	if srcID == "" || srcID == node.ID {
		return nil
	}

	tr := core.TransformNode{
		Name:     "write:" + ds.Name,
		CodeFile: ds.CodeFile,
		CodeLine: ds.CodeLine,
		Tags:     []string{"io"},
	}
	paramsHash, err := identity.ParamsHash(map[string]any{"sink": ds.Name, "path": ds.Path, "fmt": ds.Format})
	if err != nil {
		return fmt.Errorf("write %s: %w: %v", ds.Name, tracker.ErrInvalidInput, err)
	}
	tr.ParamsHash = paramsHash
	tr.ID = identity.ID("tr", tr.Name, tr.CodeFile, strconv.Itoa(tr.CodeLine), tr.ParamsHash)

	return r.link(tr, srcID, frame, node.ID, out, edgePlan{passthrough: frame.ColumnNames()})
}

// Apply runs t on in and records the transform, its output dataset and the
// column-level edges between them. An input frame that was not produced by
// a registered step is registered as a temp dataset first.
func (r *Runner) Apply(ctx context.Context, t Transform, in *core.Frame) (*core.Frame, error) {
	spec := t.Spec()
	if in == nil {
		return nil, fmt.Errorf("transform %s: %w: input frame is required", spec.Name, tracker.ErrInvalidInput)
	}

	if in.DatasetID == "" {
		anon := core.DatasetNode{
			ID:       identity.ID("anon", spec.Name+"_input"),
			Name:     spec.Name + "_input",
			Kind:     core.DatasetTemp,
			CodeFile: runtimeFile,
		}
		if err := r.tracker.RecordDataset(anon, in); err != nil {
			return nil, err
		}
	}

	inID := in.DatasetID

	out, err := t.Apply(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w", spec.Name, err)
	}
	if out == nil {
		return nil, fmt.Errorf("transform %s: returned no frame", spec.Name)
	}
	if out == in {
		out = &core.Frame{Columns: in.Columns}
	}

	produces := spec.Produces
	if produces == "" {
		produces = spec.Name
	}
	outNode := core.DatasetNode{
		ID:       identity.ID("ds", produces, spec.CodeFile, strconv.Itoa(spec.CodeLine)),
		Name:     produces,
		Kind:     core.DatasetTemp,
		CodeFile: spec.CodeFile,
		CodeLine: spec.CodeLine,
	}
	if err := r.tracker.RecordDataset(outNode, out); err != nil {
		return nil, err
	}

	paramsHash, err := identity.ParamsHash(map[string]any{
		"passthrough": spec.Passthrough,
		"rename":      spec.Rename,
		"derives":     spec.Derives,
	})
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w: %v", spec.Name, tracker.ErrInvalidInput, err)
	}
	tr := core.TransformNode{
		ID:         identity.ID("tr", spec.Name, spec.CodeFile, strconv.Itoa(spec.CodeLine), paramsHash),
		Name:       spec.Name,
		CodeFile:   spec.CodeFile,
		CodeLine:   spec.CodeLine,
		ParamsHash: paramsHash,
	}

	plan := r.plan(ctx, spec, in, out)
	tr.Tags = plan.tags
	if err := r.link(tr, inID, in, outNode.ID, out, plan); err != nil {
		return nil, err
	}
	return out, nil
}

// edgePlan lists the column relationships of one transform.
type edgePlan struct {
	passthrough []string
	rename      map[string]string
	derives     map[string][]string
	tags        []string
}

// plan merges hints with the declared relationships (declared wins) and
// infers passthrough columns when none are declared. Inferred tags follow
// the declared ones.
func (r *Runner) plan(ctx context.Context, spec TransformSpec, in, out *core.Frame) edgePlan {
	var inferred hints.Hints
	if spec.Source != "" {
		h, err := r.hints.Analyze(ctx, hints.Request{Source: spec.Source, Input: in.ColumnNames()})
		if err != nil {
			r.logger.Warn("hint analysis failed, continuing without hints",
				slog.String("transform", spec.Name),
				slog.String("error", err.Error()))
			h = hints.Hints{}
		}
		inferred = h
	}
	eff := inferred.Merge(hints.Hints{Rename: spec.Rename, Derives: spec.Derives})

	p := edgePlan{rename: eff.Rename, derives: eff.Derives, tags: slices.Clone(spec.Tags)}
	for _, tag := range inferred.Tags {
		if !slices.Contains(p.tags, tag) {
			p.tags = append(p.tags, tag)
		}
	}
	if len(spec.Passthrough) > 0 {
		p.passthrough = slices.Clone(spec.Passthrough)
		return p
	}
	for _, c := range in.ColumnNames() {
		if !out.HasColumn(c) {
			continue
		}
		if _, renamed := eff.Rename[c]; renamed {
			continue
		}
		if _, derived := eff.Derives[c]; derived {
			continue
		}
		p.passthrough = append(p.passthrough, c)
	}
	slices.Sort(p.passthrough)
	return p
}

// link registers tr with its dataset edges and the column edges of plan.
// Relationships naming a column missing from either frame are skipped.
func (r *Runner) link(tr core.TransformNode, inID string, in *core.Frame, outID string, out *core.Frame, p edgePlan) error {
	tr.CreatedAt = r.now().UTC()
	if err := r.tracker.InsertTransform(tr); err != nil {
		return err
	}
	if err := r.tracker.InsertDatasetToTransform([]core.DatasetToTransform{{SrcDatasetID: inID, TransformID: tr.ID}}); err != nil {
		return err
	}
	if err := r.tracker.InsertTransformToDataset([]core.TransformToDataset{{TransformID: tr.ID, DestDatasetID: outID}}); err != nil {
		return err
	}

	var colIn []core.ColumnToTransform
	var colOut []core.TransformToColumn
	skipped := 0
	connect := func(src, dst string) {
		if !in.HasColumn(src) || !out.HasColumn(dst) {
			skipped++
			return
		}
		colIn = append(colIn, core.ColumnToTransform{SrcColumnID: identity.ColumnID(inID, src), TransformID: tr.ID})
		colOut = append(colOut, core.TransformToColumn{TransformID: tr.ID, DestColumnID: identity.ColumnID(outID, dst)})
	}

	for _, c := range p.passthrough {
		connect(c, c)
	}
	for _, old := range sortedKeys(p.rename) {
		connect(old, p.rename[old])
	}
	for _, dst := range sortedKeys(p.derives) {
		for _, src := range p.derives[dst] {
			connect(src, dst)
		}
	}

	if skipped > 0 {
		r.logger.Debug("skipped column edges for missing columns",
			slog.String("transform", tr.Name),
			slog.Int("skipped", skipped))
	}

	if err := r.tracker.InsertColumnToTransform(colIn); err != nil {
		return err
	}
	if err := r.tracker.InsertTransformToColumn(colOut); err != nil {
		return err
	}

	r.logger.Debug("transform recorded",
		slog.String("transform", tr.Name),
		slog.String("id", tr.ID),
		slog.Int("column_edges", len(colIn)))
	return nil
}

func (r *Runner) datasetNode(io string, ds Dataset, kind core.DatasetKind) core.DatasetNode {
	location := ds.Path
	if location == "" {
		location = ds.CodeFile
	}
	return core.DatasetNode{
		ID:       identity.ID(io, ds.Name, location, ds.Format),
		Name:     ds.Name,
		Kind:     kind,
		Format:   ds.Format,
		Path:     ds.Path,
		CodeFile: ds.CodeFile,
		CodeLine: ds.CodeLine,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
