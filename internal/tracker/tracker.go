// Package tracker accumulates the lineage graph of a single pipeline run.
//
// A Tracker is an explicit, run-scoped object: it is created when a pipeline
// starts, receives every ingestion call made during that execution and is
// flushed to the snapshot store when the run completes. State is strictly
// additive; inserting the same logical entity twice replaces the earlier
// record instead of duplicating it.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/souptikmandal/lineagekit/pkg/core"
	"github.com/souptikmandal/lineagekit/pkg/identity"
)

var (
	// ErrInvalidInput is returned for malformed ingestion input, e.g. a node
	// missing a required identity component.
	ErrInvalidInput = errors.New("invalid ingestion input")

	// ErrUnknownNode is returned when an edge, column or statistics record
	// refers to a node that is not registered in this run.
	ErrUnknownNode = errors.New("unknown node")
)

// Tracker is the in-memory graph accumulator for one run.
type Tracker struct {
	mu        sync.Mutex
	runID     string
	createdAt time.Time
	now       func() time.Time
	logger    *slog.Logger
	validate  *validator.Validate

	datasets   ordered[string, core.DatasetNode]
	columns    ordered[string, core.ColumnNode]
	transforms ordered[string, core.TransformNode]

	datasetToTransform ordered[edgeKey, core.DatasetToTransform]
	transformToDataset ordered[edgeKey, core.TransformToDataset]
	columnToTransform  ordered[edgeKey, core.ColumnToTransform]
	transformToColumn  ordered[edgeKey, core.TransformToColumn]

	stats ordered[edgeKey, core.ColumnStats]
}

type edgeKey struct{ src, dst string }

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithRunID overrides the generated run id. Re-running with an existing run
// id supersedes that run's snapshot when persisted.
func WithRunID(id string) Option {
	return func(t *Tracker) {
		if id != "" {
			t.runID = id
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// New creates a tracker for a fresh run. The run id is a time-ordered UUIDv7
// unless overridden with WithRunID.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		now:      time.Now,
		logger:   slog.New(slog.DiscardHandler),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.runID == "" {
		t.runID = "run_" + uuid.Must(uuid.NewV7()).String()
	}
	t.createdAt = t.now().UTC()

	t.logger.Debug("tracker started", slog.String("run_id", t.runID))
	return t
}

// RunID returns the run id every ingested fact is attached to.
func (t *Tracker) RunID() string {
	return t.runID
}

// Run returns the run record.
func (t *Tracker) Run() core.Run {
	return core.Run{ID: t.runID, CreatedAt: t.createdAt}
}

// --- Nodes ---

// InsertDataset registers (or replaces) a dataset node.
func (t *Tracker) InsertDataset(node core.DatasetNode) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, err := t.prepareDataset(node)
	if err != nil {
		return err
	}
	t.datasets.put(node.ID, node)
	return nil
}

// InsertColumns registers a batch of column nodes. An empty column id is
// derived from the owning dataset id and the column name; a supplied id
// must match that derivation. The batch is validated as a whole before any
// column is stored.
func (t *Tracker) InsertColumns(cols []core.ColumnNode) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	prepared, err := t.prepareColumns(cols, nil)
	if err != nil {
		return err
	}
	for _, c := range prepared {
		t.columns.put(c.ID, c)
	}
	return nil
}

// InsertTransform registers (or replaces) a transform node.
func (t *Tracker) InsertTransform(node core.TransformNode) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	node.RunID = t.runID
	if node.CreatedAt.IsZero() {
		node.CreatedAt = t.now().UTC()
	}
	if err := t.check("transform", node); err != nil {
		return err
	}
	node.Tags = append([]string(nil), node.Tags...)
	t.transforms.put(node.ID, node)
	return nil
}

// RecordDataset registers a dataset node together with one column node and
// one statistics record per frame column. Either everything is registered
// or nothing is. On success frame.DatasetID is set to the node id.
func (t *Tracker) RecordDataset(node core.DatasetNode, frame *core.Frame) error {
	if frame == nil {
		return fmt.Errorf("%w: dataset %q: frame is required", ErrInvalidInput, node.Name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	node.Rows = int64(frame.Len())
	node, err := t.prepareDataset(node)
	if err != nil {
		return err
	}

	cols := make([]core.ColumnNode, 0, len(frame.Columns))
	for _, c := range frame.Columns {
		cols = append(cols, core.ColumnNode{
			ID:        identity.ColumnID(node.ID, c.Name),
			DatasetID: node.ID,
			Name:      c.Name,
			DType:     c.DType,
		})
	}
	pending := map[string]bool{node.ID: true}
	prepared, err := t.prepareColumns(cols, pending)
	if err != nil {
		return err
	}
	stats := ComputeStats(node.ID, t.runID, frame)
	if err := t.checkStats(stats, pending); err != nil {
		return err
	}

	t.datasets.put(node.ID, node)
	for _, c := range prepared {
		t.columns.put(c.ID, c)
	}
	for _, s := range stats {
		t.stats.put(edgeKey{s.DatasetID, s.Column}, s)
	}
	frame.DatasetID = node.ID

	t.logger.Debug("dataset recorded",
		slog.String("dataset", node.Name),
		slog.String("id", node.ID),
		slog.String("kind", string(node.Kind)),
		slog.Int64("rows", node.Rows),
		slog.Int("columns", len(prepared)))
	return nil
}

// AppendStats stores column statistics records, replacing any earlier
// record for the same (dataset, column).
func (t *Tracker) AppendStats(stats []core.ColumnStats) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	stamped := make([]core.ColumnStats, len(stats))
	for i, s := range stats {
		s.RunID = t.runID
		stamped[i] = s
	}
	if err := t.checkStats(stamped, nil); err != nil {
		return err
	}
	for _, s := range stamped {
		t.stats.put(edgeKey{s.DatasetID, s.Column}, s)
	}
	return nil
}

// --- Edges ---

// InsertDatasetToTransform registers input-dataset edges.
func (t *Tracker) InsertDatasetToTransform(edges []core.DatasetToTransform) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	stamped := slices.Clone(edges)
	for i := range stamped {
		stamped[i].RunID = t.runID
		if err := t.check("dataset->transform edge", stamped[i]); err != nil {
			return err
		}
		if err := t.requireNodes(stamped[i].SrcDatasetID, t.datasets.has, stamped[i].TransformID, t.transforms.has); err != nil {
			return err
		}
	}
	for _, e := range stamped {
		t.datasetToTransform.put(edgeKey{e.SrcDatasetID, e.TransformID}, e)
	}
	return nil
}

// InsertTransformToDataset registers output-dataset edges.
func (t *Tracker) InsertTransformToDataset(edges []core.TransformToDataset) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	stamped := slices.Clone(edges)
	for i := range stamped {
		stamped[i].RunID = t.runID
		if err := t.check("transform->dataset edge", stamped[i]); err != nil {
			return err
		}
		if err := t.requireNodes(stamped[i].TransformID, t.transforms.has, stamped[i].DestDatasetID, t.datasets.has); err != nil {
			return err
		}
	}
	for _, e := range stamped {
		t.transformToDataset.put(edgeKey{e.TransformID, e.DestDatasetID}, e)
	}
	return nil
}

// InsertColumnToTransform registers input-column edges.
func (t *Tracker) InsertColumnToTransform(edges []core.ColumnToTransform) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	stamped := slices.Clone(edges)
	for i := range stamped {
		stamped[i].RunID = t.runID
		if err := t.check("column->transform edge", stamped[i]); err != nil {
			return err
		}
		if err := t.requireNodes(stamped[i].SrcColumnID, t.columns.has, stamped[i].TransformID, t.transforms.has); err != nil {
			return err
		}
	}
	for _, e := range stamped {
		t.columnToTransform.put(edgeKey{e.SrcColumnID, e.TransformID}, e)
	}
	return nil
}

// InsertTransformToColumn registers output-column edges.
func (t *Tracker) InsertTransformToColumn(edges []core.TransformToColumn) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	stamped := slices.Clone(edges)
	for i := range stamped {
		stamped[i].RunID = t.runID
		if err := t.check("transform->column edge", stamped[i]); err != nil {
			return err
		}
		if err := t.requireNodes(stamped[i].TransformID, t.transforms.has, stamped[i].DestColumnID, t.columns.has); err != nil {
			return err
		}
	}
	for _, e := range stamped {
		t.transformToColumn.put(edgeKey{e.TransformID, e.DestColumnID}, e)
	}
	return nil
}

// --- Reads ---

// Dataset returns a registered dataset node.
func (t *Tracker) Dataset(id string) (core.DatasetNode, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.datasets.get(id)
}

// Transform returns a registered transform node.
func (t *Tracker) Transform(id string) (core.TransformNode, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transforms.get(id)
}

// HasColumn reports whether a column node is registered.
func (t *Tracker) HasColumn(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.columns.has(id)
}

// Snapshot returns a copy of everything accumulated so far.
func (t *Tracker) Snapshot() *core.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	transforms := t.transforms.values()
	for i := range transforms {
		transforms[i].Tags = append([]string(nil), transforms[i].Tags...)
	}

	return &core.Snapshot{
		Run:                core.Run{ID: t.runID, CreatedAt: t.createdAt},
		Datasets:           t.datasets.values(),
		Columns:            t.columns.values(),
		Transforms:         transforms,
		DatasetToTransform: t.datasetToTransform.values(),
		TransformToDataset: t.transformToDataset.values(),
		ColumnToTransform:  t.columnToTransform.values(),
		TransformToColumn:  t.transformToColumn.values(),
		Stats:              t.stats.values(),
	}
}

// --- helpers (callers hold t.mu) ---

func (t *Tracker) prepareDataset(node core.DatasetNode) (core.DatasetNode, error) {
	node.RunID = t.runID
	if node.CreatedAt.IsZero() {
		node.CreatedAt = t.now().UTC()
	}
	if err := t.check("dataset", node); err != nil {
		return node, err
	}
	return node, nil
}

// prepareColumns validates a batch of columns. pending holds dataset ids
// that are about to be registered in the same atomic step.
func (t *Tracker) prepareColumns(cols []core.ColumnNode, pending map[string]bool) ([]core.ColumnNode, error) {
	out := make([]core.ColumnNode, 0, len(cols))
	for _, c := range cols {
		c.RunID = t.runID
		if c.DatasetID != "" && c.Name != "" {
			derived := identity.ColumnID(c.DatasetID, c.Name)
			if c.ID == "" {
				c.ID = derived
			} else if c.ID != derived {
				return nil, fmt.Errorf("%w: column %q: id %s does not match dataset %s", ErrInvalidInput, c.Name, c.ID, c.DatasetID)
			}
		}
		if err := t.check("column", c); err != nil {
			return nil, err
		}
		if !pending[c.DatasetID] && !t.datasets.has(c.DatasetID) {
			return nil, fmt.Errorf("%w: column %q: dataset %s not registered in run %s", ErrUnknownNode, c.Name, c.DatasetID, t.runID)
		}
		out = append(out, c)
	}
	return out, nil
}

func (t *Tracker) checkStats(stats []core.ColumnStats, pending map[string]bool) error {
	for _, s := range stats {
		if err := t.check("column stats", s); err != nil {
			return err
		}
		if !pending[s.DatasetID] && !t.datasets.has(s.DatasetID) {
			return fmt.Errorf("%w: stats for %q: dataset %s not registered in run %s", ErrUnknownNode, s.Column, s.DatasetID, t.runID)
		}
	}
	return nil
}

func (t *Tracker) requireNodes(src string, srcExists func(string) bool, dst string, dstExists func(string) bool) error {
	if !srcExists(src) {
		return fmt.Errorf("%w: edge source %s not registered in run %s", ErrUnknownNode, src, t.runID)
	}
	if !dstExists(dst) {
		return fmt.Errorf("%w: edge target %s not registered in run %s", ErrUnknownNode, dst, t.runID)
	}
	return nil
}

// check runs struct validation and converts failures into ErrInvalidInput.
func (t *Tracker) check(what string, v any) error {
	err := t.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s: %s", ErrInvalidInput, what, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %s: %v", ErrInvalidInput, what, err)
}

// --- context ---

type trackerKey struct{}

// WithTracker returns a context carrying t.
func WithTracker(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

// FromContext returns the tracker stored in ctx.
func FromContext(ctx context.Context) (*Tracker, bool) {
	t, ok := ctx.Value(trackerKey{}).(*Tracker)
	return t, ok && t != nil
}
