package tracker

import (
	"fmt"
	"math"
	"math/big"

	"github.com/souptikmandal/lineagekit/pkg/core"
)

// ComputeStats summarizes every column of frame. It is invoked once per
// registered dataset.
func ComputeStats(datasetID, runID string, frame *core.Frame) []core.ColumnStats {
	if frame == nil {
		return nil
	}
	out := make([]core.ColumnStats, 0, len(frame.Columns))
	for _, col := range frame.Columns {
		s := columnStats(col)
		s.DatasetID = datasetID
		s.RunID = runID
		out = append(out, s)
	}
	return out
}

func columnStats(col core.FrameColumn) core.ColumnStats {
	s := core.ColumnStats{
		Column: col.Name,
		DType:  col.DType,
		Count:  int64(len(col.Values)),
	}
	for _, v := range col.Values {
		if isNull(v) {
			s.Nulls++
		}
	}

	if core.IsNumericDType(col.DType) {
		s.Mean, s.Std = meanStd(col.Values)
		return s
	}
	s.Top, s.TopFreq = mostFrequent(col.Values)
	return s
}

// meanStd returns the arithmetic mean over non-null values and the sample
// standard deviation (ddof=1). The mean is nil without values, the standard
// deviation is nil with fewer than two.
func meanStd(values []any) (*float64, *float64) {
	var n int
	var mean, m2 float64
	for _, v := range values {
		x, ok := toFloat(v)
		if !ok {
			continue
		}
		// Welford's online update.
		n++
		delta := x - mean
		mean += delta / float64(n)
		m2 += delta * (x - mean)
	}
	if n == 0 {
		return nil, nil
	}
	if n < 2 {
		return &mean, nil
	}
	std := math.Sqrt(m2 / float64(n-1))
	return &mean, &std
}

// mostFrequent returns the most frequent non-null value rendered as a
// string and its count. Ties resolve to the value seen first.
func mostFrequent(values []any) (*string, *int64) {
	counts := make(map[string]int64)
	var order []string
	for _, v := range values {
		if isNull(v) {
			continue
		}
		key := render(v)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}
	if len(order) == 0 {
		return nil, nil
	}

	top := order[0]
	for _, key := range order[1:] {
		if counts[key] > counts[top] {
			top = key
		}
	}
	freq := counts[top]
	return &top, &freq
}

func isNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	}
	return false
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case float32:
		f = float64(x)
	case float64:
		f = x
	case *big.Int:
		if x == nil {
			return 0, false
		}
		f, _ = new(big.Float).SetInt(x).Float64()
	case *big.Float:
		if x == nil {
			return 0, false
		}
		f, _ = x.Float64()
	case *big.Rat:
		if x == nil {
			return 0, false
		}
		f, _ = x.Float64()
	case interface{ Float64() float64 }:
		f = x.Float64()
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func render(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}
