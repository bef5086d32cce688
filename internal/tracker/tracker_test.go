package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/souptikmandal/lineagekit/internal/testutil"
	"github.com/souptikmandal/lineagekit/pkg/core"
	"github.com/souptikmandal/lineagekit/pkg/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return New(
		WithLogger(testutil.NewTestLogger(t)),
		WithRunID("run_test"),
		WithClock(func() time.Time { return fixed }),
	)
}

func sampleFrame() *core.Frame {
	return &core.Frame{Columns: []core.FrameColumn{
		{Name: "id", DType: "BIGINT", Values: []any{int64(1), int64(2), int64(3)}},
		{Name: "name", DType: "VARCHAR", Values: []any{"a", nil, "a"}},
	}}
}

func sourceNode(name string) core.DatasetNode {
	return core.DatasetNode{
		ID:   identity.ID(name, "source", "csv", "data/"+name+".csv"),
		Name: name,
		Kind: core.DatasetSource,
	}
}

func TestNew_GeneratesRunID(t *testing.T) {
	a := New()
	b := New()

	assert.NotEmpty(t, a.RunID())
	assert.NotEqual(t, a.RunID(), b.RunID())
	assert.Equal(t, a.RunID(), a.Run().ID)
	assert.False(t, a.Run().CreatedAt.IsZero())
}

func TestRecordDataset(t *testing.T) {
	tr := newTestTracker(t)
	frame := sampleFrame()
	node := sourceNode("users")

	require.NoError(t, tr.RecordDataset(node, frame))

	assert.Equal(t, node.ID, frame.DatasetID)

	snap := tr.Snapshot()
	require.Len(t, snap.Datasets, 1)
	assert.Equal(t, int64(3), snap.Datasets[0].Rows)
	assert.Equal(t, "run_test", snap.Datasets[0].RunID)

	require.Len(t, snap.Columns, 2)
	assert.Equal(t, identity.ColumnID(node.ID, "id"), snap.Columns[0].ID)
	assert.Equal(t, identity.ColumnID(node.ID, "name"), snap.Columns[1].ID)

	require.Len(t, snap.Stats, 2)
	assert.Equal(t, int64(1), snap.Stats[1].Nulls)
	require.NotNil(t, snap.Stats[1].Top)
	assert.Equal(t, "a", *snap.Stats[1].Top)
}

func TestRecordDataset_Idempotent(t *testing.T) {
	tr := newTestTracker(t)
	node := sourceNode("users")

	require.NoError(t, tr.RecordDataset(node, sampleFrame()))
	require.NoError(t, tr.RecordDataset(node, sampleFrame()))

	snap := tr.Snapshot()
	assert.Len(t, snap.Datasets, 1)
	assert.Len(t, snap.Columns, 2)
	assert.Len(t, snap.Stats, 2)
}

func TestRecordDataset_InvalidLeavesNoTrace(t *testing.T) {
	tr := newTestTracker(t)
	node := sourceNode("users")
	node.Kind = "bogus"

	err := tr.RecordDataset(node, sampleFrame())
	require.ErrorIs(t, err, ErrInvalidInput)

	snap := tr.Snapshot()
	assert.Empty(t, snap.Datasets)
	assert.Empty(t, snap.Columns)
	assert.Empty(t, snap.Stats)
}

func TestRecordDataset_NilFrame(t *testing.T) {
	tr := newTestTracker(t)
	err := tr.RecordDataset(sourceNode("users"), nil)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestInsertColumns(t *testing.T) {
	tr := newTestTracker(t)
	node := sourceNode("users")
	require.NoError(t, tr.InsertDataset(node))

	tests := []struct {
		name    string
		cols    []core.ColumnNode
		wantErr error
	}{
		{
			name: "derives id",
			cols: []core.ColumnNode{{DatasetID: node.ID, Name: "email", DType: "VARCHAR"}},
		},
		{
			name: "matching id",
			cols: []core.ColumnNode{{ID: identity.ColumnID(node.ID, "age"), DatasetID: node.ID, Name: "age"}},
		},
		{
			name:    "mismatched id",
			cols:    []core.ColumnNode{{ID: "nope", DatasetID: node.ID, Name: "age"}},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "missing name",
			cols:    []core.ColumnNode{{DatasetID: node.ID}},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "unknown dataset",
			cols:    []core.ColumnNode{{DatasetID: "ghost", Name: "x"}},
			wantErr: ErrUnknownNode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tr.InsertColumns(tt.cols)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tr.HasColumn(identity.ColumnID(tt.cols[0].DatasetID, tt.cols[0].Name)))
		})
	}
}

func TestInsertColumns_BatchIsAtomic(t *testing.T) {
	tr := newTestTracker(t)
	node := sourceNode("users")
	require.NoError(t, tr.InsertDataset(node))

	err := tr.InsertColumns([]core.ColumnNode{
		{DatasetID: node.ID, Name: "ok"},
		{DatasetID: "ghost", Name: "bad"},
	})
	require.ErrorIs(t, err, ErrUnknownNode)
	assert.False(t, tr.HasColumn(identity.ColumnID(node.ID, "ok")))
}

func TestInsertTransform_ReplacesByID(t *testing.T) {
	tr := newTestTracker(t)

	tags := []string{"filter"}
	require.NoError(t, tr.InsertTransform(core.TransformNode{ID: "t1", Name: "first", Tags: tags}))
	require.NoError(t, tr.InsertTransform(core.TransformNode{ID: "t1", Name: "second"}))
	tags[0] = "mutated"

	snap := tr.Snapshot()
	require.Len(t, snap.Transforms, 1)
	assert.Equal(t, "second", snap.Transforms[0].Name)

	got, ok := tr.Transform("t1")
	require.True(t, ok)
	assert.Equal(t, "run_test", got.RunID)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestInsertTransform_Invalid(t *testing.T) {
	tr := newTestTracker(t)
	err := tr.InsertTransform(core.TransformNode{Name: "no id"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestEdges(t *testing.T) {
	tr := newTestTracker(t)
	src := sourceNode("users")
	dst := core.DatasetNode{ID: identity.ID("out", "sink"), Name: "out", Kind: core.DatasetSink}

	require.NoError(t, tr.RecordDataset(src, sampleFrame()))
	require.NoError(t, tr.RecordDataset(dst, sampleFrame()))
	require.NoError(t, tr.InsertTransform(core.TransformNode{ID: "t1", Name: "copy"}))

	srcCol := identity.ColumnID(src.ID, "id")
	dstCol := identity.ColumnID(dst.ID, "id")

	t.Run("valid edges", func(t *testing.T) {
		require.NoError(t, tr.InsertDatasetToTransform([]core.DatasetToTransform{{SrcDatasetID: src.ID, TransformID: "t1"}}))
		require.NoError(t, tr.InsertTransformToDataset([]core.TransformToDataset{{TransformID: "t1", DestDatasetID: dst.ID}}))
		require.NoError(t, tr.InsertColumnToTransform([]core.ColumnToTransform{{SrcColumnID: srcCol, TransformID: "t1"}}))
		require.NoError(t, tr.InsertTransformToColumn([]core.TransformToColumn{{TransformID: "t1", DestColumnID: dstCol}}))

		// duplicates collapse
		require.NoError(t, tr.InsertColumnToTransform([]core.ColumnToTransform{{SrcColumnID: srcCol, TransformID: "t1"}}))

		snap := tr.Snapshot()
		assert.Len(t, snap.DatasetToTransform, 1)
		assert.Len(t, snap.TransformToDataset, 1)
		assert.Len(t, snap.ColumnToTransform, 1)
		assert.Len(t, snap.TransformToColumn, 1)
		assert.Equal(t, "run_test", snap.ColumnToTransform[0].RunID)
	})

	t.Run("caller slices are not modified", func(t *testing.T) {
		d2t := []core.DatasetToTransform{{SrcDatasetID: src.ID, TransformID: "t1"}}
		t2d := []core.TransformToDataset{{TransformID: "t1", DestDatasetID: dst.ID}}
		c2t := []core.ColumnToTransform{{SrcColumnID: srcCol, TransformID: "t1"}}
		t2c := []core.TransformToColumn{{TransformID: "t1", DestColumnID: dstCol}}

		require.NoError(t, tr.InsertDatasetToTransform(d2t))
		require.NoError(t, tr.InsertTransformToDataset(t2d))
		require.NoError(t, tr.InsertColumnToTransform(c2t))
		require.NoError(t, tr.InsertTransformToColumn(t2c))

		assert.Empty(t, d2t[0].RunID)
		assert.Empty(t, t2d[0].RunID)
		assert.Empty(t, c2t[0].RunID)
		assert.Empty(t, t2c[0].RunID)
	})

	t.Run("unknown endpoints", func(t *testing.T) {
		err := tr.InsertColumnToTransform([]core.ColumnToTransform{{SrcColumnID: "ghost", TransformID: "t1"}})
		require.ErrorIs(t, err, ErrUnknownNode)

		err = tr.InsertTransformToColumn([]core.TransformToColumn{{TransformID: "missing", DestColumnID: dstCol}})
		require.ErrorIs(t, err, ErrUnknownNode)

		err = tr.InsertDatasetToTransform([]core.DatasetToTransform{{SrcDatasetID: "ghost", TransformID: "t1"}})
		require.ErrorIs(t, err, ErrUnknownNode)
	})

	t.Run("missing fields", func(t *testing.T) {
		err := tr.InsertTransformToDataset([]core.TransformToDataset{{TransformID: "t1"}})
		require.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestAppendStats(t *testing.T) {
	tr := newTestTracker(t)
	node := sourceNode("users")
	require.NoError(t, tr.InsertDataset(node))

	mean := 1.5
	stats := []core.ColumnStats{{DatasetID: node.ID, Column: "x", Count: 2, Mean: &mean}}
	require.NoError(t, tr.AppendStats(stats))
	assert.Empty(t, stats[0].RunID, "caller slice is not modified")

	err := tr.AppendStats([]core.ColumnStats{{DatasetID: "ghost", Column: "x"}})
	require.ErrorIs(t, err, ErrUnknownNode)

	snap := tr.Snapshot()
	require.Len(t, snap.Stats, 1)
	assert.Equal(t, "run_test", snap.Stats[0].RunID)
}

func TestSnapshot_IsACopy(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.InsertTransform(core.TransformNode{ID: "t1", Name: "a", Tags: []string{"x"}}))

	snap := tr.Snapshot()
	snap.Transforms[0].Tags[0] = "changed"
	snap.Transforms[0].Name = "changed"

	got, _ := tr.Transform("t1")
	assert.Equal(t, "a", got.Name)
	assert.Equal(t, []string{"x"}, got.Tags)
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	tr := newTestTracker(t)
	got, ok := FromContext(WithTracker(context.Background(), tr))
	require.True(t, ok)
	assert.Same(t, tr, got)
}
