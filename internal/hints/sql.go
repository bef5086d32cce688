package hints

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/souptikmandal/lineagekit/pkg/lineage"
)

// SQL infers hints from the column lineage of a query:
//
//	SELECT a AS b                              -> rename a to b
//	SELECT a + c AS d                          -> d derives from a, c
//	WITH s AS (SELECT a * c AS x ...)
//	SELECT x AS d FROM s                       -> d derives from a, c
//	SELECT a, t.a, *                           -> no hint (passthrough)
//
// Source columns are reduced to their unqualified name. Outputs whose name
// the query does not spell out carry no hint since the engine picks it.
// When the query reads a single table and the request lists the input
// columns, a star over that table is expanded against them. Aggregate and
// window functions tag the transform.
type SQL struct{}

// Analyze implements Provider.
func (SQL) Analyze(_ context.Context, req Request) (Hints, error) {
	ml, err := lineage.ExtractLineage(req.Source, nil)
	if err != nil {
		return Hints{}, fmt.Errorf("analyze sql: %w", err)
	}
	if ml.UsesSelectStar && len(req.Input) > 0 && len(ml.Sources) == 1 {
		ml, err = lineage.ExtractLineage(req.Source, lineage.Schema{ml.Sources[0]: req.Input})
		if err != nil {
			return Hints{}, fmt.Errorf("analyze sql: %w", err)
		}
	}

	// a source also passed through unchanged cannot be renamed; an
	// unexpanded star passes everything through
	kept := map[string]bool{}
	star := false
	for _, col := range ml.Columns {
		star = star || strings.HasSuffix(col.Name, "*")
		if srcs := sourceNames(col.Sources); col.Transform == lineage.TransformDirect && len(srcs) == 1 && srcs[0] == col.Name {
			kept[col.Name] = true
		}
	}

	h := Hints{Rename: map[string]string{}, Derives: map[string][]string{}}
	for _, col := range ml.Columns {
		if tag := kindTag(col.Kind); tag != "" && !slices.Contains(h.Tags, tag) {
			h.Tags = append(h.Tags, tag)
		}
		if col.Implicit || strings.HasSuffix(col.Name, "*") {
			continue
		}
		srcs := sourceNames(col.Sources)
		if len(srcs) == 0 {
			continue
		}

		if col.Transform == lineage.TransformDirect && len(srcs) == 1 {
			src := srcs[0]
			if src == col.Name {
				continue
			}
			// a column copied under two names keeps one rename
			if _, taken := h.Rename[src]; !taken && !kept[src] && !star {
				h.Rename[src] = col.Name
				continue
			}
		}
		h.Derives[col.Name] = srcs
	}
	slices.Sort(h.Tags)
	return h, nil
}

func kindTag(kind lineage.FunctionKind) string {
	switch kind {
	case lineage.FuncAggregate:
		return "aggregate"
	case lineage.FuncWindow:
		return "window"
	}
	return ""
}

// sourceNames returns the sorted, unique column names of srcs.
func sourceNames(srcs []lineage.SourceColumn) []string {
	names := make([]string, 0, len(srcs))
	for _, s := range srcs {
		if s.Column == "*" || slices.Contains(names, s.Column) {
			continue
		}
		names = append(names, s.Column)
	}
	slices.Sort(names)
	return names
}
