package lineage

import "strings"

// Schema maps a table name to its column names. It lets star expansion and
// unqualified references resolve against physical tables.
type Schema map[string][]string

func (s Schema) columns(table string) []string {
	if cols, ok := s[table]; ok {
		return cols
	}
	for name, cols := range s {
		if strings.EqualFold(name, table) {
			return cols
		}
	}
	return nil
}

type entryKind int

const (
	entryTable entryKind = iota
	entryCTE
	entryDerived
	entryFunction
)

// scopeEntry is a relation visible in a FROM clause.
type scopeEntry struct {
	kind  entryKind
	alias string // name the relation is referenced by
	table string // physical source for tables and file readers

	// columns lists the output columns in order; nil when they are unknown.
	columns []string
	// lineage holds CTE and derived table columns by normalized name.
	lineage map[string]*ColumnLineage
	// starTables are the physical tables behind an unexpanded star of a
	// CTE or derived table.
	starTables []string
	// recursive marks the self reference of a recursive CTE.
	recursive bool
}

func (e *scopeEntry) hasColumn(col string) bool {
	for _, c := range e.columns {
		if normalize(c) == normalize(col) {
			return true
		}
	}
	return false
}

// Scope holds the relations of one query level and links to the enclosing
// level for correlated references.
type Scope struct {
	parent  *Scope
	entries []*scopeEntry
	ctes    map[string]*scopeEntry
}

func newScope(parent *Scope) *Scope {
	return &Scope{parent: parent, ctes: map[string]*scopeEntry{}}
}

func (s *Scope) child() *Scope {
	return newScope(s)
}

func (s *Scope) add(e *scopeEntry) {
	s.entries = append(s.entries, e)
}

func (s *Scope) addCTE(name string, e *scopeEntry) {
	s.ctes[normalize(name)] = e
}

// lookupCTE finds a CTE visible from s.
func (s *Scope) lookupCTE(name string) *scopeEntry {
	for sc := s; sc != nil; sc = sc.parent {
		if e, ok := sc.ctes[normalize(name)]; ok {
			return e
		}
	}
	return nil
}

func (s *Scope) byAlias(name string) *scopeEntry {
	for _, e := range s.entries {
		if normalize(e.alias) == normalize(name) {
			return e
		}
	}
	return nil
}

// byColumn picks the entry an unqualified column belongs to: the first one
// known to have it, else the only entry whose columns are unknown. It
// reports true instead when several entries could hold the column.
func (s *Scope) byColumn(col string) (*scopeEntry, bool) {
	var unknown []*scopeEntry
	for _, e := range s.entries {
		if e.hasColumn(col) {
			return e, false
		}
		if e.columns == nil {
			unknown = append(unknown, e)
		}
	}
	if len(unknown) == 1 {
		return unknown[0], false
	}
	return nil, len(unknown) > 1
}

// find resolves a column reference from s outward.
func (s *Scope) find(table, col string) *scopeEntry {
	for sc := s; sc != nil; sc = sc.parent {
		if table != "" {
			if e := sc.byAlias(table); e != nil {
				return e
			}
			continue
		}
		e, ambiguous := sc.byColumn(col)
		if e != nil || ambiguous {
			return e
		}
	}
	return nil
}

// normalize folds identifier case; DuckDB identifiers are case insensitive
// even when quoted.
func normalize(name string) string {
	return strings.ToLower(name)
}
