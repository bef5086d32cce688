package tracker

import (
	"math"
	"math/big"
	"testing"

	"github.com/souptikmandal/lineagekit/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeStats_Numeric(t *testing.T) {
	frame := &core.Frame{Columns: []core.FrameColumn{
		{Name: "x", DType: "INTEGER", Values: []any{int32(1), int64(2), 3.0, float32(4)}},
	}}

	stats := ComputeStats("ds", "run", frame)
	require.Len(t, stats, 1)

	s := stats[0]
	assert.Equal(t, "ds", s.DatasetID)
	assert.Equal(t, "run", s.RunID)
	assert.Equal(t, int64(4), s.Count)
	assert.Equal(t, int64(0), s.Nulls)
	require.NotNil(t, s.Mean)
	require.NotNil(t, s.Std)
	assert.InDelta(t, 2.5, *s.Mean, 1e-12)
	assert.InDelta(t, 1.2909944, *s.Std, 1e-6)
	assert.Nil(t, s.Top)
	assert.Nil(t, s.TopFreq)
}

func TestComputeStats_BigNumbers(t *testing.T) {
	frame := &core.Frame{Columns: []core.FrameColumn{
		{Name: "h", DType: "HUGEINT", Values: []any{big.NewInt(1), big.NewInt(3), nil}},
		{Name: "d", DType: "DECIMAL(18,3)", Values: []any{big.NewFloat(2), big.NewRat(1, 2)}},
	}}

	stats := ComputeStats("ds", "run", frame)
	require.Len(t, stats, 2)

	assert.Equal(t, int64(1), stats[0].Nulls)
	require.NotNil(t, stats[0].Mean)
	assert.InDelta(t, 2.0, *stats[0].Mean, 1e-12)

	require.NotNil(t, stats[1].Mean)
	assert.InDelta(t, 1.25, *stats[1].Mean, 1e-12)
}

func TestComputeStats_NullHandling(t *testing.T) {
	tests := []struct {
		name      string
		dtype     string
		values    []any
		wantNulls int64
		wantMean  *float64
		stdNil    bool
	}{
		{
			name:      "all null numeric",
			dtype:     "DOUBLE",
			values:    []any{nil, math.NaN(), nil},
			wantNulls: 3,
			stdNil:    true,
		},
		{
			name:      "single value has no std",
			dtype:     "BIGINT",
			values:    []any{nil, int64(7)},
			wantNulls: 1,
			wantMean:  ptr(7.0),
			stdNil:    true,
		},
		{
			name:      "empty column",
			dtype:     "DOUBLE",
			values:    []any{},
			wantNulls: 0,
			stdNil:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := &core.Frame{Columns: []core.FrameColumn{{Name: "c", DType: tt.dtype, Values: tt.values}}}
			s := ComputeStats("ds", "run", frame)[0]

			assert.Equal(t, int64(len(tt.values)), s.Count)
			assert.Equal(t, tt.wantNulls, s.Nulls)
			if tt.wantMean == nil {
				assert.Nil(t, s.Mean)
			} else {
				require.NotNil(t, s.Mean)
				assert.InDelta(t, *tt.wantMean, *s.Mean, 1e-12)
			}
			if tt.stdNil {
				assert.Nil(t, s.Std)
			}
		})
	}
}

func TestComputeStats_Categorical(t *testing.T) {
	frame := &core.Frame{Columns: []core.FrameColumn{
		{Name: "city", DType: "VARCHAR", Values: []any{"b", "a", nil, "a", "b", []byte("c")}},
		{Name: "empty", DType: "VARCHAR", Values: []any{nil, nil}},
	}}

	stats := ComputeStats("ds", "run", frame)
	require.Len(t, stats, 2)

	city := stats[0]
	assert.Equal(t, int64(1), city.Nulls)
	assert.Nil(t, city.Mean)
	require.NotNil(t, city.Top)
	// "b" and "a" tie at two; the first seen wins.
	assert.Equal(t, "b", *city.Top)
	assert.Equal(t, int64(2), *city.TopFreq)

	empty := stats[1]
	assert.Equal(t, int64(2), empty.Nulls)
	assert.Nil(t, empty.Top)
	assert.Nil(t, empty.TopFreq)
}

func TestComputeStats_NilFrame(t *testing.T) {
	assert.Nil(t, ComputeStats("ds", "run", nil))
}

func ptr[T any](v T) *T { return &v }
