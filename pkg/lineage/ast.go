package lineage

// Expr is a SQL expression node.
type Expr interface {
	exprNode()
}

// TableRef is an item of a FROM clause.
type TableRef interface {
	tableRefNode()
}

// StarModifier is a DuckDB modifier trailing a star: EXCLUDE, REPLACE or
// RENAME.
type StarModifier interface {
	starModifierNode()
}

// ---------- Statements ----------

// SelectStmt is a complete query with its optional WITH clause.
type SelectStmt struct {
	With *WithClause
	Body *SelectBody
}

// WithClause holds the common table expressions of a query.
type WithClause struct {
	Recursive bool
	CTEs      []*CTE
}

// CTE is one named query of a WITH clause.
type CTE struct {
	Name    string
	Columns []string // optional column list: name(a, b) AS (...)
	Select  *SelectStmt
}

// SetOpType is a set operator joining select cores.
type SetOpType string

// Set operators.
const (
	SetOpNone      SetOpType = ""
	SetOpUnion     SetOpType = "UNION"
	SetOpIntersect SetOpType = "INTERSECT"
	SetOpExcept    SetOpType = "EXCEPT"
)

// SelectBody is a select core optionally chained to further cores by a set
// operator. Columns of the result take their names from Left and are
// matched by position, or by name for UNION BY NAME.
type SelectBody struct {
	Left   *SelectCore
	Op     SetOpType
	All    bool
	ByName bool
	Right  *SelectBody
}

// SelectCore is a single SELECT ... FROM ... block.
type SelectCore struct {
	Distinct bool
	Columns  []SelectItem
	From     *FromClause
	Where    Expr
	GroupBy  []Expr
	Having   Expr
	Windows  []WindowDef
	Qualify  Expr
	OrderBy  []OrderByItem
	Limit    Expr
	Offset   Expr
}

// SelectItem is one entry of a SELECT list.
type SelectItem struct {
	Star      bool   // SELECT *
	TableStar string // SELECT t.*
	Expr      Expr
	Alias     string
	Modifiers []StarModifier
}

// OrderByItem is one ORDER BY entry.
type OrderByItem struct {
	Expr       Expr
	Desc       bool
	NullsFirst *bool
}

// WindowDef is a named window of a WINDOW clause.
type WindowDef struct {
	Name string
	Spec *WindowSpec
}

// ---------- Star modifiers ----------

// ExcludeModifier drops columns from a star: * EXCLUDE (a, b).
type ExcludeModifier struct {
	Columns []string
}

// ReplaceModifier swaps columns of a star for expressions:
// * REPLACE (a * 2 AS a).
type ReplaceModifier struct {
	Items []ReplaceItem
}

// ReplaceItem is one expression of a REPLACE modifier.
type ReplaceItem struct {
	Expr  Expr
	Alias string
}

// RenameModifier renames columns of a star: * RENAME (a AS b).
type RenameModifier struct {
	Items []RenameItem
}

// RenameItem is one rename of a RENAME modifier.
type RenameItem struct {
	Old string
	New string
}

func (*ExcludeModifier) starModifierNode() {}
func (*ReplaceModifier) starModifierNode() {}
func (*RenameModifier) starModifierNode()  {}

// ---------- FROM clause ----------

// FromClause is the FROM of a select core.
type FromClause struct {
	Source TableRef
	Joins  []*Join
}

// JoinType is the kind of a join.
type JoinType string

// Join types.
const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
	JoinFull  JoinType = "FULL"
	JoinCross JoinType = "CROSS"
	JoinComma JoinType = ","
)

// Join is one joined table.
type Join struct {
	Type      JoinType
	Natural   bool
	Right     TableRef
	Condition Expr
	Using     []string
}

// TableName is a physical table or a reference to a CTE.
type TableName struct {
	Catalog string
	Schema  string
	Name    string
	Alias   string
}

// DerivedTable is a subquery in FROM.
type DerivedTable struct {
	Select  *SelectStmt
	Alias   string
	Columns []string // optional column aliases: (...) AS t(a, b)
}

// LateralTable is a LATERAL subquery that can see earlier FROM items.
type LateralTable struct {
	Select *SelectStmt
	Alias  string
}

// TableFunction is a function call in FROM, e.g. read_csv('orders.csv').
type TableFunction struct {
	Name  string
	Args  []Expr
	Alias string
}

func (*TableName) tableRefNode()     {}
func (*DerivedTable) tableRefNode()  {}
func (*LateralTable) tableRefNode()  {}
func (*TableFunction) tableRefNode() {}

// ---------- Expressions ----------

// ColumnRef is a possibly qualified column reference.
type ColumnRef struct {
	Table  string
	Column string
}

// LiteralType is the kind of a literal.
type LiteralType int

// Literal kinds.
const (
	LiteralNumber LiteralType = iota
	LiteralString
	LiteralBool
	LiteralNull
	LiteralInterval
)

// Literal is a constant value.
type Literal struct {
	Type  LiteralType
	Value string
}

// BinaryExpr is an infix operation such as a + b or x AND y.
type BinaryExpr struct {
	Left  Expr
	Op    string
	Right Expr
}

// UnaryExpr is a prefix operation such as -a or NOT x.
type UnaryExpr struct {
	Op   string
	Expr Expr
}

// FuncCall is a scalar, aggregate or window function call.
type FuncCall struct {
	Name        string
	Distinct    bool
	Star        bool // count(*)
	Args        []Expr
	Filter      Expr
	WithinGroup []OrderByItem
	Window      *WindowSpec
}

// WindowSpec is the OVER clause of a window call. Name is set for
// OVER w and for OVER (w ...) referring to a WINDOW definition.
type WindowSpec struct {
	Name        string
	PartitionBy []Expr
	OrderBy     []OrderByItem
	Frame       *FrameSpec
}

// FrameSpec is a window frame such as ROWS BETWEEN 1 PRECEDING AND CURRENT ROW.
type FrameSpec struct {
	Type  string // ROWS, RANGE or GROUPS
	Start FrameBound
	End   *FrameBound
}

// FrameBound is one end of a window frame.
type FrameBound struct {
	Type   string // UNBOUNDED PRECEDING, n PRECEDING, CURRENT ROW, ...
	Offset Expr
}

// CaseExpr is a searched or simple CASE.
type CaseExpr struct {
	Operand Expr
	Whens   []WhenClause
	Else    Expr
}

// WhenClause is one WHEN ... THEN ... branch.
type WhenClause struct {
	Condition Expr
	Result    Expr
}

// CastExpr is CAST(x AS type), TRY_CAST(x AS type) or x::type.
type CastExpr struct {
	Expr Expr
	Type string
}

// InExpr is x [NOT] IN (list) or x [NOT] IN (subquery).
type InExpr struct {
	Expr   Expr
	Not    bool
	Values []Expr
	Query  *SelectStmt
}

// BetweenExpr is x [NOT] BETWEEN low AND high.
type BetweenExpr struct {
	Expr Expr
	Not  bool
	Low  Expr
	High Expr
}

// IsExpr is x IS [NOT] NULL, TRUE, FALSE or DISTINCT FROM y.
type IsExpr struct {
	Expr  Expr
	Not   bool
	Value Expr
}

// LikeExpr is x [NOT] LIKE|ILIKE pattern.
type LikeExpr struct {
	Expr    Expr
	Not     bool
	ILike   bool
	Pattern Expr
}

// ParenExpr is a parenthesized expression.
type ParenExpr struct {
	Expr Expr
}

// SubqueryExpr is a scalar subquery.
type SubqueryExpr struct {
	Select *SelectStmt
}

// ExistsExpr is [NOT] EXISTS (subquery).
type ExistsExpr struct {
	Not    bool
	Select *SelectStmt
}

// ListExpr is a DuckDB list literal [a, b, c].
type ListExpr struct {
	Elements []Expr
}

// IndexExpr is x[i].
type IndexExpr struct {
	Expr  Expr
	Index Expr
}

func (*ColumnRef) exprNode()    {}
func (*Literal) exprNode()      {}
func (*BinaryExpr) exprNode()   {}
func (*UnaryExpr) exprNode()    {}
func (*FuncCall) exprNode()     {}
func (*CaseExpr) exprNode()     {}
func (*CastExpr) exprNode()     {}
func (*InExpr) exprNode()       {}
func (*BetweenExpr) exprNode()  {}
func (*IsExpr) exprNode()       {}
func (*LikeExpr) exprNode()     {}
func (*ParenExpr) exprNode()    {}
func (*SubqueryExpr) exprNode() {}
func (*ExistsExpr) exprNode()   {}
func (*ListExpr) exprNode()     {}
func (*IndexExpr) exprNode()    {}
