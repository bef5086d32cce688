package lineage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tokens := Tokenize("SELECT a::INT <> 'it''s', \"Unit Price\" -- note\n/* block */ FROM t;")

	types := make([]TokenType, 0, len(tokens))
	for _, tok := range tokens {
		types = append(types, tok.Type)
	}
	assert.Equal(t, []TokenType{
		TOKEN_SELECT, TOKEN_IDENT, TOKEN_DCOLON, TOKEN_IDENT, TOKEN_NE, TOKEN_STRING,
		TOKEN_COMMA, TOKEN_IDENT, TOKEN_FROM, TOKEN_IDENT, TOKEN_SEMICOLON, TOKEN_EOF,
	}, types)
	assert.Equal(t, "it's", tokens[5].Literal)
	assert.Equal(t, "Unit Price", tokens[7].Literal)
	assert.Equal(t, 2, tokens[8].Pos.Line)
}

func TestTokenize_Unterminated(t *testing.T) {
	tests := []string{"'abc", `"abc`}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			tokens := Tokenize(in)
			assert.Equal(t, TOKEN_ILLEGAL, tokens[0].Type)
		})
	}
}

func TestParse_NamedWindowIsNotAColumn(t *testing.T) {
	stmt, err := Parse("SELECT SUM(qty) OVER w AS running FROM orders WINDOW w AS (ORDER BY id)")
	require.NoError(t, err)

	core := stmt.Body.Left
	require.Len(t, core.Columns, 1)
	fn, ok := core.Columns[0].Expr.(*FuncCall)
	require.True(t, ok)
	require.NotNil(t, fn.Window)
	assert.Equal(t, "w", fn.Window.Name)
	assert.Equal(t, []Expr{&ColumnRef{Column: "qty"}}, fn.Args)

	require.Len(t, core.Windows, 1)
	assert.Equal(t, "w", core.Windows[0].Name)
	require.Len(t, core.Windows[0].Spec.OrderBy, 1)
}

func TestParse_Clauses(t *testing.T) {
	stmt, err := Parse(`
		SELECT DISTINCT o.id, c.name
		FROM orders AS o
		NATURAL LEFT OUTER JOIN customers c
		JOIN regions r USING (region_id)
		WHERE o.amount BETWEEN 1 AND 10 AND c.name NOT LIKE 'x%' AND o.note IS NOT NULL
		GROUP BY ALL
		QUALIFY row_number() OVER (PARTITION BY c.name ORDER BY o.id DESC NULLS LAST) = 1
		ORDER BY 1
		LIMIT 5 OFFSET 2;`)
	require.NoError(t, err)

	core := stmt.Body.Left
	assert.True(t, core.Distinct)
	require.NotNil(t, core.From)
	assert.Equal(t, &TableName{Name: "orders", Alias: "o"}, core.From.Source)
	require.Len(t, core.From.Joins, 2)
	assert.Equal(t, JoinLeft, core.From.Joins[0].Type)
	assert.True(t, core.From.Joins[0].Natural)
	assert.Equal(t, []string{"region_id"}, core.From.Joins[1].Using)
	assert.NotNil(t, core.Where)
	assert.Nil(t, core.GroupBy)
	assert.NotNil(t, core.Qualify)
	assert.Len(t, core.OrderBy, 1)
	assert.Equal(t, &Literal{Type: LiteralNumber, Value: "5"}, core.Limit)
	assert.Equal(t, &Literal{Type: LiteralNumber, Value: "2"}, core.Offset)
}

func TestParse_Precedence(t *testing.T) {
	tests := []struct {
		sql  string
		want Expr
	}{
		{
			sql: "SELECT a + b * c",
			want: &BinaryExpr{
				Left:  &ColumnRef{Column: "a"},
				Op:    "+",
				Right: &BinaryExpr{Left: &ColumnRef{Column: "b"}, Op: "*", Right: &ColumnRef{Column: "c"}},
			},
		},
		{
			sql: "SELECT NOT a = 1 OR b",
			want: &BinaryExpr{
				Left:  &UnaryExpr{Op: "NOT", Expr: &BinaryExpr{Left: &ColumnRef{Column: "a"}, Op: "=", Right: &Literal{Type: LiteralNumber, Value: "1"}}},
				Op:    "OR",
				Right: &ColumnRef{Column: "b"},
			},
		},
		{
			sql:  "SELECT -x::INT",
			want: &UnaryExpr{Op: "-", Expr: &CastExpr{Expr: &ColumnRef{Column: "x"}, Type: "INT"}},
		},
		{
			sql:  "SELECT DATE '2024-01-01'",
			want: &CastExpr{Expr: &Literal{Type: LiteralString, Value: "2024-01-01"}, Type: "DATE"},
		},
		{
			sql:  "SELECT first(x)",
			want: &FuncCall{Name: "first", Args: []Expr{&ColumnRef{Column: "x"}}},
		},
		{
			sql:  "SELECT count(DISTINCT x) FILTER (WHERE y > 0)",
			want: &FuncCall{Name: "count", Distinct: true, Args: []Expr{&ColumnRef{Column: "x"}}, Filter: &BinaryExpr{Left: &ColumnRef{Column: "y"}, Op: ">", Right: &Literal{Type: LiteralNumber, Value: "0"}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			stmt, err := Parse(tt.sql)
			require.NoError(t, err)
			require.Len(t, stmt.Body.Left.Columns, 1)
			assert.Equal(t, tt.want, stmt.Body.Left.Columns[0].Expr)
		})
	}
}

func TestParse_SetOperations(t *testing.T) {
	stmt, err := Parse("SELECT a FROM t1 UNION ALL SELECT a FROM t2 EXCEPT SELECT a FROM t3")
	require.NoError(t, err)

	assert.Equal(t, SetOpUnion, stmt.Body.Op)
	assert.True(t, stmt.Body.All)
	require.NotNil(t, stmt.Body.Right)
	assert.Equal(t, SetOpExcept, stmt.Body.Right.Op)
	assert.NotNil(t, stmt.Body.Right.Right)
}

func TestParse_ErrorPosition(t *testing.T) {
	_, err := Parse("SELECT a,\n  b +\nFROM t")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 3, perr.Pos.Line)
	assert.Contains(t, err.Error(), "FROM")
}
