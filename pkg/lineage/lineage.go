// Package lineage extracts column level lineage from DuckDB flavored SELECT
// statements: for every output column, the physical table columns it is
// computed from. Columns are traced through CTEs, derived tables, LATERAL
// subqueries, scalar subqueries and set operations.
package lineage

import (
	"slices"
	"strconv"
	"strings"
)

// TransformType describes how source columns become an output column.
type TransformType string

const (
	// TransformDirect means the column is a copy of its single source.
	TransformDirect TransformType = ""
	// TransformExpression means the column is computed.
	TransformExpression TransformType = "EXPR"
)

// SourceColumn is a column of a physical table. Table is empty when the
// reference could not be pinned to one table.
type SourceColumn struct {
	Table  string
	Column string
}

// ColumnLineage describes one output column.
type ColumnLineage struct {
	Name      string
	Sources   []SourceColumn
	Transform TransformType
	// Function is the dominant function of the expression, if any.
	Function string
	Kind     FunctionKind
	// Implicit is set when Name was not written in the query and follows
	// no engine naming rule, as for SELECT a + b.
	Implicit bool

	placeholder bool // stands for the columns of an unexpanded star
}

// ModelLineage describes a whole statement.
type ModelLineage struct {
	Sources        []string // physical tables read, sorted
	Columns        []*ColumnLineage
	UsesSelectStar bool
}

// Column returns the output column with the given name, or nil.
func (m *ModelLineage) Column(name string) *ColumnLineage {
	for _, c := range m.Columns {
		if normalize(c.Name) == normalize(name) {
			return c
		}
	}
	return nil
}

// ExtractLineage parses sql and traces its output columns. schema is
// optional; without it a star over a physical table stays unexpanded.
func ExtractLineage(sql string, schema Schema) (*ModelLineage, error) {
	stmt, err := Parse(sql)
	if err != nil {
		return nil, err
	}
	e := &extractor{schema: schema, sources: map[string]struct{}{}}
	cols := e.query(nil, stmt)

	sources := make([]string, 0, len(e.sources))
	for s := range e.sources {
		sources = append(sources, s)
	}
	slices.Sort(sources)
	return &ModelLineage{Sources: sources, Columns: cols, UsesSelectStar: e.star}, nil
}

type extractor struct {
	schema  Schema
	sources map[string]struct{}
	star    bool
}

// query traces a full statement. parent is the scope of the enclosing
// query for correlated references, or nil.
func (e *extractor) query(parent *Scope, stmt *SelectStmt) []*ColumnLineage {
	s := newScope(parent)
	if stmt.With != nil {
		for _, cte := range stmt.With.CTEs {
			if stmt.With.Recursive {
				s.addCTE(cte.Name, &scopeEntry{kind: entryCTE, alias: cte.Name, recursive: true})
			}
			cols := renameColumns(e.query(s, cte.Select), cte.Columns)
			s.addCTE(cte.Name, relationEntry(entryCTE, cte.Name, cols))
		}
	}
	return e.body(s, stmt.Body)
}

func (e *extractor) body(s *Scope, body *SelectBody) []*ColumnLineage {
	cols := e.core(s, body.Left)
	if body.Right == nil {
		return cols
	}
	right := e.body(s, body.Right)
	if body.ByName {
		for _, r := range right {
			if c := findColumn(cols, r.Name); c != nil {
				mergeInto(c, r)
			} else {
				cols = append(cols, r)
			}
		}
		return cols
	}
	for i, c := range cols {
		if i < len(right) {
			mergeInto(c, right[i])
		}
	}
	return cols
}

func (e *extractor) core(parent *Scope, core *SelectCore) []*ColumnLineage {
	s := parent.child()
	if core.From != nil {
		e.registerTable(s, parent, core.From.Source)
		for _, j := range core.From.Joins {
			e.registerTable(s, parent, j.Right)
		}
	}
	windows := map[string]*WindowSpec{}
	for _, w := range core.Windows {
		windows[normalize(w.Name)] = w.Spec
	}

	var out []*ColumnLineage
	for i, item := range core.Columns {
		switch {
		case item.Star:
			out = append(out, e.applyModifiers(s, windows, e.expandStar(s, ""), item.Modifiers)...)
		case item.TableStar != "":
			out = append(out, e.applyModifiers(s, windows, e.expandStar(s, item.TableStar), item.Modifiers)...)
		default:
			cl := e.expr(s, windows, item.Expr)
			if item.Alias != "" {
				cl.Name = item.Alias
			} else {
				cl.Name, cl.Implicit = inferName(item.Expr, i)
			}
			out = append(out, cl)
		}
	}

	// Subqueries outside the select list only add sources.
	for _, ex := range []Expr{core.Where, core.Having, core.Qualify} {
		if ex != nil {
			e.expr(s, windows, ex)
		}
	}
	if core.From != nil {
		for _, j := range core.From.Joins {
			if j.Condition != nil {
				e.expr(s, windows, j.Condition)
			}
		}
	}
	return out
}

// registerTable adds a FROM item to s. outer is the scope derived tables
// are evaluated in; LATERAL subqueries see s itself.
func (e *extractor) registerTable(s, outer *Scope, ref TableRef) {
	switch t := ref.(type) {
	case *TableName:
		alias := t.Alias
		if alias == "" {
			alias = t.Name
		}
		if t.Schema == "" {
			if cte := s.lookupCTE(t.Name); cte != nil {
				entry := *cte
				entry.alias = alias
				s.add(&entry)
				return
			}
		}
		name := qualifiedName(t)
		e.sources[name] = struct{}{}
		cols := e.schema.columns(name)
		if cols == nil {
			cols = e.schema.columns(t.Name)
		}
		s.add(&scopeEntry{kind: entryTable, alias: alias, table: name, columns: cols})

	case *DerivedTable:
		cols := renameColumns(e.query(outer, t.Select), t.Columns)
		s.add(relationEntry(entryDerived, t.Alias, cols))

	case *LateralTable:
		s.add(relationEntry(entryDerived, t.Alias, e.query(s, t.Select)))

	case *TableFunction:
		entry := &scopeEntry{kind: entryFunction, alias: t.Alias}
		if entry.alias == "" {
			entry.alias = t.Name
		}
		if path, ok := fileArg(t); ok {
			entry.table = path
			e.sources[path] = struct{}{}
		}
		for _, a := range t.Args {
			e.expr(s, nil, a)
		}
		s.add(entry)
	}
}

// fileArg returns the path read by read_csv('...') and friends.
func fileArg(t *TableFunction) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(t.Name), "read_") || len(t.Args) == 0 {
		return "", false
	}
	lit, ok := t.Args[0].(*Literal)
	if !ok || lit.Type != LiteralString {
		return "", false
	}
	return lit.Value, true
}

func qualifiedName(t *TableName) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{t.Catalog, t.Schema, t.Name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// relationEntry builds the scope entry of a CTE or derived table from the
// lineage of its output columns.
func relationEntry(kind entryKind, alias string, cols []*ColumnLineage) *scopeEntry {
	entry := &scopeEntry{kind: kind, alias: alias, lineage: map[string]*ColumnLineage{}}
	known := true
	for _, c := range cols {
		if c.placeholder {
			known = false
			for _, src := range c.Sources {
				if src.Table != "" && !slices.Contains(entry.starTables, src.Table) {
					entry.starTables = append(entry.starTables, src.Table)
				}
			}
			continue
		}
		entry.columns = append(entry.columns, c.Name)
		entry.lineage[normalize(c.Name)] = c
	}
	if !known {
		entry.columns = nil
	}
	return entry
}

// ---------- Star expansion ----------

// expandStar returns the columns of * or table.*. Relations with unknown
// columns contribute one placeholder column.
func (e *extractor) expandStar(s *Scope, table string) []*ColumnLineage {
	e.star = true
	entries := s.entries
	if table != "" {
		entries = nil
		if entry := s.byAlias(table); entry != nil {
			entries = []*scopeEntry{entry}
		}
	}

	var out []*ColumnLineage
	for _, entry := range entries {
		if entry.columns == nil {
			out = append(out, placeholderFor(entry, table))
			continue
		}
		for _, col := range entry.columns {
			if entry.kind == entryTable {
				out = append(out, &ColumnLineage{Name: col, Sources: []SourceColumn{{Table: entry.table, Column: col}}})
				continue
			}
			c := cloneLineage(entry.lineage[normalize(col)])
			c.Name = col
			out = append(out, c)
		}
	}
	return out
}

func placeholderFor(entry *scopeEntry, table string) *ColumnLineage {
	name := "*"
	if table != "" {
		name = table + ".*"
	}
	c := &ColumnLineage{Name: name, placeholder: true}
	switch {
	case entry.table != "":
		c.Sources = []SourceColumn{{Table: entry.table, Column: "*"}}
	default:
		for _, t := range entry.starTables {
			c.Sources = append(c.Sources, SourceColumn{Table: t, Column: "*"})
		}
	}
	return c
}

// applyModifiers applies EXCLUDE, REPLACE and RENAME to expanded columns.
func (e *extractor) applyModifiers(s *Scope, windows map[string]*WindowSpec, cols []*ColumnLineage, mods []StarModifier) []*ColumnLineage {
	for _, mod := range mods {
		switch m := mod.(type) {
		case *ExcludeModifier:
			cols = slices.DeleteFunc(cols, func(c *ColumnLineage) bool {
				return !c.placeholder && slices.ContainsFunc(m.Columns, func(x string) bool {
					return normalize(x) == normalize(c.Name)
				})
			})
		case *ReplaceModifier:
			for _, item := range m.Items {
				for i, c := range cols {
					if !c.placeholder && normalize(c.Name) == normalize(item.Alias) {
						repl := e.expr(s, windows, item.Expr)
						repl.Name = c.Name
						cols[i] = repl
					}
				}
			}
		case *RenameModifier:
			for _, item := range m.Items {
				if c := findColumn(cols, item.Old); c != nil && !c.placeholder {
					c.Name = item.New
				}
			}
		}
	}
	return cols
}

// ---------- Expressions ----------

// collector accumulates what an expression reads.
type collector struct {
	sources  []SourceColumn
	computed bool
	function string
	kind     FunctionKind
}

func (c *collector) add(srcs ...SourceColumn) {
	for _, src := range srcs {
		if !slices.Contains(c.sources, src) {
			c.sources = append(c.sources, src)
		}
	}
}

func (c *collector) noteFunction(name string, kind FunctionKind) {
	if c.function == "" || kind > c.kind {
		c.function, c.kind = name, kind
	}
}

// expr traces one expression.
func (e *extractor) expr(s *Scope, windows map[string]*WindowSpec, ex Expr) *ColumnLineage {
	c := &collector{}
	e.walk(s, windows, ex, c)

	cl := &ColumnLineage{Sources: c.sources, Function: c.function, Kind: c.kind, Transform: TransformExpression}
	if _, ok := unparen(ex).(*ColumnRef); ok && !c.computed {
		cl.Transform = TransformDirect
	}
	return cl
}

func (e *extractor) walk(s *Scope, windows map[string]*WindowSpec, ex Expr, c *collector) {
	switch x := ex.(type) {
	case nil:
	case *ColumnRef:
		e.resolve(s, x, c)
	case *Literal:
	case *ParenExpr:
		e.walk(s, windows, x.Expr, c)
	case *BinaryExpr:
		e.walk(s, windows, x.Left, c)
		e.walk(s, windows, x.Right, c)
	case *UnaryExpr:
		e.walk(s, windows, x.Expr, c)
	case *CastExpr:
		e.walk(s, windows, x.Expr, c)
	case *FuncCall:
		kind := ClassifyFunction(x.Name)
		if x.Window != nil {
			kind = FuncWindow
		}
		c.noteFunction(x.Name, kind)
		for _, a := range x.Args {
			e.walk(s, windows, a, c)
		}
		e.walk(s, windows, x.Filter, c)
		e.walkOrder(s, windows, x.WithinGroup, c)
		e.walkWindow(s, windows, x.Window, c, 0)
	case *CaseExpr:
		e.walk(s, windows, x.Operand, c)
		for _, w := range x.Whens {
			e.walk(s, windows, w.Condition, c)
			e.walk(s, windows, w.Result, c)
		}
		e.walk(s, windows, x.Else, c)
	case *InExpr:
		e.walk(s, windows, x.Expr, c)
		for _, v := range x.Values {
			e.walk(s, windows, v, c)
		}
		if x.Query != nil {
			e.subquery(s, x.Query, c)
		}
	case *BetweenExpr:
		e.walk(s, windows, x.Expr, c)
		e.walk(s, windows, x.Low, c)
		e.walk(s, windows, x.High, c)
	case *IsExpr:
		e.walk(s, windows, x.Expr, c)
		e.walk(s, windows, x.Value, c)
	case *LikeExpr:
		e.walk(s, windows, x.Expr, c)
		e.walk(s, windows, x.Pattern, c)
	case *SubqueryExpr:
		e.subquery(s, x.Select, c)
	case *ExistsExpr:
		// EXISTS yields a boolean; its select list carries no data.
		e.query(s, x.Select)
	case *ListExpr:
		for _, el := range x.Elements {
			e.walk(s, windows, el, c)
		}
	case *IndexExpr:
		e.walk(s, windows, x.Expr, c)
		e.walk(s, windows, x.Index, c)
	}
}

func (e *extractor) walkOrder(s *Scope, windows map[string]*WindowSpec, items []OrderByItem, c *collector) {
	for _, o := range items {
		e.walk(s, windows, o.Expr, c)
	}
}

// walkWindow adds the partition and order columns of a window, following
// references to named windows of the WINDOW clause.
func (e *extractor) walkWindow(s *Scope, windows map[string]*WindowSpec, w *WindowSpec, c *collector, depth int) {
	if w == nil || depth > len(windows) {
		return
	}
	for _, p := range w.PartitionBy {
		e.walk(s, windows, p, c)
	}
	e.walkOrder(s, windows, w.OrderBy, c)
	if w.Name != "" {
		e.walkWindow(s, windows, windows[normalize(w.Name)], c, depth+1)
	}
}

// subquery folds the output columns of a nested query into c.
func (e *extractor) subquery(s *Scope, stmt *SelectStmt, c *collector) {
	c.computed = true
	for _, col := range e.query(s, stmt) {
		c.add(col.Sources...)
		if col.Function != "" {
			c.noteFunction(col.Function, col.Kind)
		}
	}
}

// resolve adds the physical sources of a column reference to c.
func (e *extractor) resolve(s *Scope, ref *ColumnRef, c *collector) {
	if ref.Column == "*" {
		c.computed = true
		return
	}
	entry := s.find(ref.Table, ref.Column)
	if ref.Table == "" && generatorKeywords[normalize(ref.Column)] && (entry == nil || !entry.hasColumn(ref.Column)) {
		c.computed = true
		c.noteFunction(normalize(ref.Column), FuncGenerator)
		return
	}
	if entry == nil {
		c.add(SourceColumn{Table: ref.Table, Column: ref.Column})
		return
	}

	switch entry.kind {
	case entryTable, entryFunction:
		c.add(SourceColumn{Table: entry.table, Column: ref.Column})
	default:
		if entry.recursive {
			return
		}
		if col, ok := entry.lineage[normalize(ref.Column)]; ok {
			c.add(col.Sources...)
			if col.Transform == TransformExpression {
				c.computed = true
			}
			if col.Function != "" {
				c.noteFunction(col.Function, col.Kind)
			}
			return
		}
		if len(entry.starTables) == 1 {
			c.add(SourceColumn{Table: entry.starTables[0], Column: ref.Column})
			return
		}
		c.add(SourceColumn{Column: ref.Column})
	}
}

// ---------- Helpers ----------

func unparen(ex Expr) Expr {
	for {
		p, ok := ex.(*ParenExpr)
		if !ok {
			return ex
		}
		ex = p.Expr
	}
}

// inferName names an unaliased select item. A bare column keeps its name;
// anything else gets a positional name and is marked implicit.
func inferName(ex Expr, index int) (string, bool) {
	if ref, ok := unparen(ex).(*ColumnRef); ok {
		return ref.Column, false
	}
	if fn, ok := ex.(*FuncCall); ok {
		return fn.Name, true
	}
	return "column" + strconv.Itoa(index), true
}

func renameColumns(cols []*ColumnLineage, names []string) []*ColumnLineage {
	for i, name := range names {
		if i < len(cols) && !cols[i].placeholder {
			cols[i].Name = name
			cols[i].Implicit = false
		}
	}
	return cols
}

func findColumn(cols []*ColumnLineage, name string) *ColumnLineage {
	for _, c := range cols {
		if normalize(c.Name) == normalize(name) {
			return c
		}
	}
	return nil
}

// mergeInto folds the branch column r of a set operation into c.
func mergeInto(c, r *ColumnLineage) {
	for _, src := range r.Sources {
		if !slices.Contains(c.Sources, src) {
			c.Sources = append(c.Sources, src)
		}
	}
	if r.Transform == TransformExpression {
		c.Transform = TransformExpression
	}
	if r.Function != "" && (c.Function == "" || r.Kind > c.Kind) {
		c.Function, c.Kind = r.Function, r.Kind
	}
}

func cloneLineage(c *ColumnLineage) *ColumnLineage {
	if c == nil {
		return &ColumnLineage{}
	}
	out := *c
	out.Sources = slices.Clone(c.Sources)
	return &out
}
