// Package impact propagates a column change forward through the lineage
// graph of a run and ranks every reached transform and column by severity.
package impact

import (
	"context"
	"fmt"
	"sort"

	"github.com/souptikmandal/lineagekit/pkg/core"
)

// modelLikeTags mark transforms whose outputs are aggregations or model
// outputs. Changes flowing through them are at least MEDIUM.
var modelLikeTags = []string{"agg", "aggregate", "aggregation", "model", "sklearn", "ml"}

// EdgeSeverity returns the severity of traversing into transform t for a
// change of type ct. The result depends only on the change type and the
// transform, never on the severity the traversal arrived with.
func EdgeSeverity(ct core.ChangeType, t *core.TransformNode) core.Severity {
	switch ct {
	case core.ChangeSchemaDrop, core.ChangeTypeChange:
		return core.SeverityCritical
	}
	if t != nil && t.HasTag(modelLikeTags...) {
		return core.SeverityMedium
	}
	return core.SeverityLow
}

// graph is the column-level adjacency of one run.
type graph struct {
	colToTransforms map[string][]string
	transformToCols map[string][]string
	transforms      map[string]*core.TransformNode
}

func loadGraph(ctx context.Context, reader core.GraphReader, runID string) (*graph, error) {
	in, out, err := reader.LoadColumnEdges(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load column edges for run %s: %w", runID, err)
	}
	transforms, err := reader.LoadTransforms(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transforms for run %s: %w", runID, err)
	}

	g := &graph{
		colToTransforms: make(map[string][]string),
		transformToCols: make(map[string][]string),
		transforms:      make(map[string]*core.TransformNode, len(transforms)),
	}
	for _, e := range in {
		g.colToTransforms[e.SrcColumnID] = append(g.colToTransforms[e.SrcColumnID], e.TransformID)
	}
	for _, e := range out {
		g.transformToCols[e.TransformID] = append(g.transformToCols[e.TransformID], e.DestColumnID)
	}
	for i := range transforms {
		g.transforms[transforms[i].ID] = &transforms[i]
	}
	return g, nil
}

// Propagate walks column->transform->column edges of runID forward from
// startColumnID. A node is recorded as a hit, and expanded again, each time
// it is reached with a severity strictly higher than the best seen so far,
// so every node appears at most once per severity level. The start column
// is seeded at LOW. An unknown run or column yields no hits.
//
// Hits are returned in discovery order; use Collapse for presentation.
func Propagate(ctx context.Context, reader core.GraphReader, runID, startColumnID string, ct core.ChangeType) ([]core.ImpactHit, error) {
	g, err := loadGraph(ctx, reader, runID)
	if err != nil {
		return nil, err
	}
	return g.propagate(startColumnID, ct), nil
}

func (g *graph) propagate(start string, ct core.ChangeType) []core.ImpactHit {
	best := map[string]core.Severity{start: core.SeverityLow}
	queue := []string{start}
	var hits []core.ImpactHit

	improve := func(id string, kind core.NodeKind, sev core.Severity) bool {
		if sev.Rank() <= best[id].Rank() {
			return false
		}
		best[id] = sev
		hits = append(hits, core.ImpactHit{NodeID: id, NodeKind: kind, Severity: sev})
		return true
	}

	for len(queue) > 0 {
		col := queue[0]
		queue = queue[1:]

		for _, tid := range g.colToTransforms[col] {
			sev := EdgeSeverity(ct, g.transforms[tid])
			improve(tid, core.NodeTransform, sev)

			// outputs are checked even when the transform itself did not
			// improve, since they may have been reached lower elsewhere
			for _, out := range g.transformToCols[tid] {
				if improve(out, core.NodeColumn, sev) {
					queue = append(queue, out)
				}
			}
		}
	}
	return hits
}

// Collapse keeps the highest severity hit per node and sorts the result by
// severity (highest first), then node kind and id.
func Collapse(hits []core.ImpactHit) []core.ImpactHit {
	top := make(map[string]core.ImpactHit, len(hits))
	for _, h := range hits {
		if cur, ok := top[h.NodeID]; !ok || h.Severity.Rank() > cur.Severity.Rank() {
			top[h.NodeID] = h
		}
	}

	out := make([]core.ImpactHit, 0, len(top))
	for _, h := range top {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if ri, rj := out[i].Severity.Rank(), out[j].Severity.Rank(); ri != rj {
			return ri > rj
		}
		if out[i].NodeKind != out[j].NodeKind {
			return out[i].NodeKind < out[j].NodeKind
		}
		return out[i].NodeID < out[j].NodeID
	})
	return out
}

// MaxSeverity returns the highest severity among hits, or "" when empty.
func MaxSeverity(hits []core.ImpactHit) core.Severity {
	var worst core.Severity
	for _, h := range hits {
		worst = core.MaxSeverity(worst, h.Severity)
	}
	return worst
}
