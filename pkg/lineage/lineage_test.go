package lineage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// srcs renders sources as table.column for comparison.
func srcs(col *ColumnLineage) []string {
	out := make([]string, 0, len(col.Sources))
	for _, s := range col.Sources {
		out = append(out, s.Table+"."+s.Column)
	}
	return out
}

func TestExtractLineage(t *testing.T) {
	type want struct {
		sources   []string
		transform TransformType
		function  string
		kind      FunctionKind
	}
	tests := []struct {
		name    string
		sql     string
		schema  Schema
		tables  []string
		columns map[string]want
	}{
		{
			name:   "direct columns",
			sql:    "SELECT id, name FROM users",
			tables: []string{"users"},
			columns: map[string]want{
				"id":   {sources: []string{"users.id"}},
				"name": {sources: []string{"users.name"}},
			},
		},
		{
			name:   "alias qualified column",
			sql:    "SELECT u.id AS user_id FROM users u",
			tables: []string{"users"},
			columns: map[string]want{
				"user_id": {sources: []string{"users.id"}},
			},
		},
		{
			name:   "arithmetic",
			sql:    "SELECT qty * price AS total FROM orders",
			tables: []string{"orders"},
			columns: map[string]want{
				"total": {sources: []string{"orders.qty", "orders.price"}, transform: TransformExpression},
			},
		},
		{
			name:   "aggregate",
			sql:    "SELECT cust, SUM(amount) AS total FROM orders GROUP BY cust HAVING SUM(amount) > 10",
			tables: []string{"orders"},
			columns: map[string]want{
				"cust":  {sources: []string{"orders.cust"}},
				"total": {sources: []string{"orders.amount"}, transform: TransformExpression, function: "sum", kind: FuncAggregate},
			},
		},
		{
			name:   "nested function keeps the aggregate",
			sql:    "SELECT round(avg(price), 2) AS avg_price FROM orders",
			tables: []string{"orders"},
			columns: map[string]want{
				"avg_price": {sources: []string{"orders.price"}, transform: TransformExpression, function: "avg", kind: FuncAggregate},
			},
		},
		{
			name:   "join",
			sql:    "SELECT o.id, c.name FROM orders o LEFT JOIN customers c ON o.cust = c.id",
			tables: []string{"customers", "orders"},
			columns: map[string]want{
				"id":   {sources: []string{"orders.id"}},
				"name": {sources: []string{"customers.name"}},
			},
		},
		{
			name:   "join with schema resolves unqualified columns",
			sql:    "SELECT amount, name FROM orders JOIN customers USING (cust_id)",
			schema: Schema{"orders": {"id", "cust_id", "amount"}, "customers": {"cust_id", "name"}},
			tables: []string{"customers", "orders"},
			columns: map[string]want{
				"amount": {sources: []string{"orders.amount"}},
				"name":   {sources: []string{"customers.name"}},
			},
		},
		{
			name:   "cte expression through an alias",
			sql:    "WITH s AS (SELECT id, qty * price AS t FROM orders) SELECT id, t AS total FROM s",
			tables: []string{"orders"},
			columns: map[string]want{
				"id":    {sources: []string{"orders.id"}},
				"total": {sources: []string{"orders.qty", "orders.price"}, transform: TransformExpression},
			},
		},
		{
			name: "chained ctes",
			sql: `WITH a AS (SELECT id, amount FROM payments),
			           b AS (SELECT id, SUM(amount) AS paid FROM a GROUP BY id)
			      SELECT paid AS total_paid FROM b`,
			tables: []string{"payments"},
			columns: map[string]want{
				"total_paid": {sources: []string{"payments.amount"}, transform: TransformExpression, function: "sum", kind: FuncAggregate},
			},
		},
		{
			name:   "cte column list",
			sql:    "WITH s(k, v) AS (SELECT id, amount FROM t) SELECT k, v FROM s",
			tables: []string{"t"},
			columns: map[string]want{
				"k": {sources: []string{"t.id"}},
				"v": {sources: []string{"t.amount"}},
			},
		},
		{
			name:   "derived table",
			sql:    "SELECT a AS total FROM (SELECT qty * price AS a FROM orders) sub",
			tables: []string{"orders"},
			columns: map[string]want{
				"total": {sources: []string{"orders.qty", "orders.price"}, transform: TransformExpression},
			},
		},
		{
			name:   "nested derived tables",
			sql:    "SELECT x FROM (SELECT y AS x FROM (SELECT id AS y FROM t) inner_q) outer_q",
			tables: []string{"t"},
			columns: map[string]want{
				"x": {sources: []string{"t.id"}},
			},
		},
		{
			name:   "named window",
			sql:    "SELECT SUM(qty) OVER w AS running FROM orders WINDOW w AS (PARTITION BY cust ORDER BY id)",
			tables: []string{"orders"},
			columns: map[string]want{
				"running": {sources: []string{"orders.qty", "orders.cust", "orders.id"}, transform: TransformExpression, function: "sum", kind: FuncWindow},
			},
		},
		{
			name:   "window with frame",
			sql:    "SELECT row_number() OVER (PARTITION BY cust ORDER BY ts DESC ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW) AS rn FROM events",
			tables: []string{"events"},
			columns: map[string]want{
				"rn": {sources: []string{"events.cust", "events.ts"}, transform: TransformExpression, function: "row_number", kind: FuncWindow},
			},
		},
		{
			name:   "recursive cte",
			sql:    "WITH RECURSIVE r(n) AS (SELECT id FROM seeds UNION ALL SELECT n + 1 FROM r WHERE n < 10) SELECT n FROM r",
			tables: []string{"seeds"},
			columns: map[string]want{
				"n": {sources: []string{"seeds.id"}, transform: TransformExpression},
			},
		},
		{
			name:   "union merges by position",
			sql:    "SELECT a FROM t1 UNION ALL SELECT b FROM t2",
			tables: []string{"t1", "t2"},
			columns: map[string]want{
				"a": {sources: []string{"t1.a", "t2.b"}},
			},
		},
		{
			name:   "union by name",
			sql:    "SELECT a, b FROM t1 UNION BY NAME SELECT b, c FROM t2",
			tables: []string{"t1", "t2"},
			columns: map[string]want{
				"a": {sources: []string{"t1.a"}},
				"b": {sources: []string{"t1.b", "t2.b"}},
				"c": {sources: []string{"t2.c"}},
			},
		},
		{
			name:   "correlated scalar subquery",
			sql:    "SELECT id, (SELECT MAX(amount) FROM payments p WHERE p.order_id = o.id) AS max_paid FROM orders o",
			tables: []string{"orders", "payments"},
			columns: map[string]want{
				"id":       {sources: []string{"orders.id"}},
				"max_paid": {sources: []string{"payments.amount"}, transform: TransformExpression, function: "max", kind: FuncAggregate},
			},
		},
		{
			name:   "lateral sees earlier tables",
			sql:    "SELECT l.total FROM orders o, LATERAL (SELECT o.qty * o.price AS total) l",
			tables: []string{"orders"},
			columns: map[string]want{
				"total": {sources: []string{"orders.qty", "orders.price"}, transform: TransformExpression},
			},
		},
		{
			name:   "cast forms",
			sql:    "SELECT price::DECIMAL(18, 3) AS p, TRY_CAST(qty AS INTEGER) AS q, CAST(ts AS TIMESTAMP WITH TIME ZONE) AS z FROM t",
			tables: []string{"t"},
			columns: map[string]want{
				"p": {sources: []string{"t.price"}, transform: TransformExpression},
				"q": {sources: []string{"t.qty"}, transform: TransformExpression},
				"z": {sources: []string{"t.ts"}, transform: TransformExpression},
			},
		},
		{
			name:   "generators read nothing",
			sql:    "SELECT now() AS ts, current_date AS d, INTERVAL '1 day' AS step FROM t",
			tables: []string{"t"},
			columns: map[string]want{
				"ts":   {transform: TransformExpression, function: "now", kind: FuncGenerator},
				"d":    {transform: TransformExpression, function: "current_date", kind: FuncGenerator},
				"step": {transform: TransformExpression},
			},
		},
		{
			name:   "list index",
			sql:    "SELECT tags[1] AS first_tag, [a, b] AS pair FROM t",
			tables: []string{"t"},
			columns: map[string]want{
				"first_tag": {sources: []string{"t.tags"}, transform: TransformExpression},
				"pair":      {sources: []string{"t.a", "t.b"}, transform: TransformExpression},
			},
		},
		{
			name:   "file readers",
			sql:    "SELECT o.id, r.rate FROM read_csv('orders.csv', header = true) o JOIN 'rates.parquet' r ON o.cur = r.cur",
			tables: []string{"orders.csv", "rates.parquet"},
			columns: map[string]want{
				"id":   {sources: []string{"orders.csv.id"}},
				"rate": {sources: []string{"rates.parquet.rate"}},
			},
		},
		{
			name:   "qualified table names",
			sql:    "SELECT id FROM lake.sales.orders",
			tables: []string{"lake.sales.orders"},
			columns: map[string]want{
				"id": {sources: []string{"lake.sales.orders.id"}},
			},
		},
		{
			name:   "case with in and between",
			sql:    "SELECT CASE WHEN status IN ('a', 'b') AND qty NOT BETWEEN 1 AND 5 THEN amount END AS flagged FROM t",
			tables: []string{"t"},
			columns: map[string]want{
				"flagged": {sources: []string{"t.status", "t.qty", "t.amount"}, transform: TransformExpression},
			},
		},
		{
			name:   "cte star without schema",
			sql:    "WITH s AS (SELECT * FROM orders) SELECT qty FROM s",
			tables: []string{"orders"},
			columns: map[string]want{
				"qty": {sources: []string{"orders.qty"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ml, err := ExtractLineage(tt.sql, tt.schema)
			require.NoError(t, err)
			assert.Equal(t, tt.tables, ml.Sources)
			require.Len(t, ml.Columns, len(tt.columns))

			for name, w := range tt.columns {
				col := ml.Column(name)
				require.NotNil(t, col, "column %s", name)
				assert.ElementsMatch(t, w.sources, srcs(col), "sources of %s", name)
				assert.Equal(t, w.transform, col.Transform, "transform of %s", name)
				assert.Equal(t, w.function, col.Function, "function of %s", name)
				assert.Equal(t, w.kind, col.Kind, "kind of %s", name)
			}
		})
	}
}

func TestExtractLineage_Star(t *testing.T) {
	schema := Schema{"orders": {"id", "qty", "price"}}

	tests := []struct {
		name      string
		sql       string
		schema    Schema
		wantNames []string
		check     func(t *testing.T, ml *ModelLineage)
	}{
		{
			name:      "without schema",
			sql:       "SELECT * FROM orders",
			wantNames: []string{"*"},
			check: func(t *testing.T, ml *ModelLineage) {
				assert.Equal(t, []string{"orders.*"}, srcs(ml.Columns[0]))
			},
		},
		{
			name:      "with schema",
			sql:       "SELECT *, qty * price AS total FROM orders",
			schema:    schema,
			wantNames: []string{"id", "qty", "price", "total"},
			check: func(t *testing.T, ml *ModelLineage) {
				assert.Equal(t, []string{"orders.qty"}, srcs(ml.Column("qty")))
				assert.Equal(t, TransformDirect, ml.Column("qty").Transform)
			},
		},
		{
			name:      "table star",
			sql:       "SELECT o.* FROM orders o JOIN customers c ON o.cust = c.id",
			schema:    schema,
			wantNames: []string{"id", "qty", "price"},
		},
		{
			name:      "exclude",
			sql:       "SELECT * EXCLUDE (qty, price) FROM orders",
			schema:    schema,
			wantNames: []string{"id"},
		},
		{
			name:      "replace",
			sql:       "SELECT * REPLACE (qty * 2 AS qty) FROM orders",
			schema:    schema,
			wantNames: []string{"id", "qty", "price"},
			check: func(t *testing.T, ml *ModelLineage) {
				assert.Equal(t, TransformExpression, ml.Column("qty").Transform)
				assert.Equal(t, []string{"orders.qty"}, srcs(ml.Column("qty")))
			},
		},
		{
			name:      "rename",
			sql:       "SELECT * RENAME (id AS order_id) FROM orders",
			schema:    schema,
			wantNames: []string{"order_id", "qty", "price"},
			check: func(t *testing.T, ml *ModelLineage) {
				assert.Equal(t, []string{"orders.id"}, srcs(ml.Column("order_id")))
				assert.Equal(t, TransformDirect, ml.Column("order_id").Transform)
			},
		},
		{
			name:      "star over cte keeps its lineage",
			sql:       "WITH s AS (SELECT id, qty * price AS total FROM orders) SELECT * FROM s",
			wantNames: []string{"id", "total"},
			check: func(t *testing.T, ml *ModelLineage) {
				assert.ElementsMatch(t, []string{"orders.qty", "orders.price"}, srcs(ml.Column("total")))
				assert.Equal(t, TransformExpression, ml.Column("total").Transform)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ml, err := ExtractLineage(tt.sql, tt.schema)
			require.NoError(t, err)
			assert.True(t, ml.UsesSelectStar)

			names := make([]string, 0, len(ml.Columns))
			for _, c := range ml.Columns {
				names = append(names, c.Name)
			}
			assert.Equal(t, tt.wantNames, names)
			if tt.check != nil {
				tt.check(t, ml)
			}
		})
	}
}

func TestExtractLineage_ImplicitNames(t *testing.T) {
	ml, err := ExtractLineage("SELECT a, a + b, count(*), (c) FROM t", nil)
	require.NoError(t, err)
	require.Len(t, ml.Columns, 4)

	assert.Equal(t, "a", ml.Columns[0].Name)
	assert.False(t, ml.Columns[0].Implicit)
	assert.Equal(t, "column1", ml.Columns[1].Name)
	assert.True(t, ml.Columns[1].Implicit)
	assert.Equal(t, "count", ml.Columns[2].Name)
	assert.True(t, ml.Columns[2].Implicit)
	assert.Empty(t, ml.Columns[2].Sources)
	assert.Equal(t, "c", ml.Columns[3].Name)
	assert.Equal(t, TransformDirect, ml.Columns[3].Transform)
}

func TestExtractLineage_SubqueryTablesAreSources(t *testing.T) {
	ml, err := ExtractLineage(`
		SELECT id FROM orders
		WHERE cust IN (SELECT id FROM vip)
		  AND EXISTS (SELECT 1 FROM payments p WHERE p.order_id = orders.id)`, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "payments", "vip"}, ml.Sources)
	require.Len(t, ml.Columns, 1)
	assert.Equal(t, []string{"orders.id"}, srcs(ml.Columns[0]))
}

func TestExtractLineage_Errors(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"empty", ""},
		{"not a select", "UPDATE t SET a = 1"},
		{"missing paren", "SELECT sum(a FROM t"},
		{"dangling operator", "SELECT a + FROM t"},
		{"trailing tokens", "SELECT a FROM t x y"},
		{"unterminated string", "SELECT 'abc FROM t"},
		{"incomplete case", "SELECT CASE END FROM t"},
		{"join without table", "SELECT a FROM t LEFT JOIN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractLineage(tt.sql, nil)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Positive(t, perr.Pos.Line)
		})
	}
}

func TestClassifyFunction(t *testing.T) {
	tests := []struct {
		name string
		want FunctionKind
	}{
		{"SUM", FuncAggregate},
		{"string_agg", FuncAggregate},
		{"row_number", FuncWindow},
		{"lag", FuncWindow},
		{"now", FuncGenerator},
		{"gen_random_uuid", FuncGenerator},
		{"upper", FuncScalar},
		{"coalesce", FuncScalar},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyFunction(tt.name))
		})
	}
	assert.Equal(t, "window", FuncWindow.String())
}

func BenchmarkExtractLineage(b *testing.B) {
	sql := `
	WITH cte AS (
		SELECT id, SUM(amount) AS total FROM orders GROUP BY id
	)
	SELECT u.name, c.total
	FROM users u
	JOIN cte c ON u.id = c.id
	WHERE u.status = 'active'`

	for b.Loop() {
		_, _ = ExtractLineage(sql, nil)
	}
}
