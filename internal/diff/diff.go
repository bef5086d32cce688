// Package diff detects typed, severity-tagged changes between the column
// statistics of two persisted runs.
package diff

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/souptikmandal/lineagekit/pkg/core"
	"github.com/souptikmandal/lineagekit/pkg/identity"
)

// epsilon is the smallest |old| value used as a relative-delta denominator.
// Below it the neutral denominator 1 is used.
const epsilon = 1e-9

// Default thresholds.
const (
	DefaultNullSpike     = 0.1
	DefaultMeanTolerance = 0.2
	DefaultStdTolerance  = 0.3
)

// Thresholds configures the change detector.
type Thresholds struct {
	// NullSpike is the minimum increase of the null fraction reported as a
	// null_spike. The comparison is inclusive.
	NullSpike float64 `koanf:"null_spike"`
	// MeanTolerance and StdTolerance bound the relative delta of mean and
	// standard deviation. Deltas strictly above them are a value_shift.
	MeanTolerance float64 `koanf:"mean_tolerance"`
	StdTolerance  float64 `koanf:"std_tolerance"`
}

// DefaultThresholds returns the default detector thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		NullSpike:     DefaultNullSpike,
		MeanTolerance: DefaultMeanTolerance,
		StdTolerance:  DefaultStdTolerance,
	}
}

type statsKey struct {
	datasetID string
	column    string
}

// Detect compares the column statistics of the base and current runs.
// A run without persisted statistics is treated as empty. Changes are
// returned sorted by (dataset id, column); a column may yield several
// independent changes.
func Detect(ctx context.Context, reader core.StatsReader, baseRun, currentRun string, th Thresholds) ([]core.Change, error) {
	baseStats, err := reader.LoadStats(ctx, baseRun)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats for base run %s: %w", baseRun, err)
	}
	currentStats, err := reader.LoadStats(ctx, currentRun)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats for current run %s: %w", currentRun, err)
	}

	base := index(baseStats)
	current := index(currentStats)

	keys := make([]statsKey, 0, len(base)+len(current))
	for k := range base {
		keys = append(keys, k)
	}
	for k := range current {
		if _, ok := base[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].datasetID != keys[j].datasetID {
			return keys[i].datasetID < keys[j].datasetID
		}
		return keys[i].column < keys[j].column
	})

	now := time.Now().UTC()
	var changes []core.Change
	for _, k := range keys {
		a, inBase := base[k]
		b, inCurrent := current[k]

		emit := func(ct core.ChangeType, sev core.Severity, detail map[string]any) {
			changes = append(changes, core.Change{
				RunID:      currentRun,
				BaseRunID:  baseRun,
				NodeKind:   core.NodeColumn,
				NodeID:     identity.ColumnID(k.datasetID, k.column),
				DatasetID:  k.datasetID,
				Column:     k.column,
				ChangeType: ct,
				Severity:   sev,
				Detail:     detail,
				CreatedAt:  now,
			})
		}

		switch {
		case inBase && !inCurrent:
			emit(core.ChangeSchemaDrop, core.SeverityCritical, map[string]any{"dataset_id": k.datasetID, "column": k.column})
			continue
		case inCurrent && !inBase:
			emit(core.ChangeSchemaAdd, core.SeverityLow, map[string]any{"dataset_id": k.datasetID, "column": k.column})
			continue
		}

		if a.DType != b.DType {
			emit(core.ChangeTypeChange, core.SeverityHigh, map[string]any{"from": a.DType, "to": b.DType})
		}

		fromNull, toNull := a.NullFraction(), b.NullFraction()
		if toNull-fromNull >= th.NullSpike {
			emit(core.ChangeNullSpike, core.SeverityMedium, map[string]any{"from": fromNull, "to": toNull})
		}

		if a.Mean != nil && b.Mean != nil {
			shifted := RelativeDelta(*a.Mean, *b.Mean) > th.MeanTolerance
			if a.Std != nil && b.Std != nil && RelativeDelta(*a.Std, *b.Std) > th.StdTolerance {
				shifted = true
			}
			if shifted {
				emit(core.ChangeValueShift, core.SeverityLow, map[string]any{
					"mean_from": *a.Mean,
					"mean_to":   *b.Mean,
					"std_from":  deref(a.Std),
					"std_to":    deref(b.Std),
				})
			}
		}
	}
	return changes, nil
}

// RelativeDelta returns |new-old| / |old|, substituting 1 for the
// denominator when |old| is below epsilon.
func RelativeDelta(old, new float64) float64 {
	denom := math.Abs(old)
	if denom < epsilon {
		denom = 1
	}
	return math.Abs(new-old) / denom
}

func index(stats []core.ColumnStats) map[statsKey]core.ColumnStats {
	out := make(map[statsKey]core.ColumnStats, len(stats))
	for _, s := range stats {
		out[statsKey{s.DatasetID, s.Column}] = s
	}
	return out
}

func deref(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
