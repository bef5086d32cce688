package lineage

import "strings"

// FunctionKind classifies how a function relates its output to its inputs.
// Kinds are ordered: when an expression nests several functions the
// greatest kind describes the column.
type FunctionKind int

// Function kinds.
const (
	// FuncScalar computes one value per row from its arguments.
	FuncScalar FunctionKind = iota
	// FuncGenerator produces values without reading any column.
	FuncGenerator
	// FuncAggregate folds many rows into one.
	FuncAggregate
	// FuncWindow computes over a window of rows.
	FuncWindow
)

func (k FunctionKind) String() string {
	switch k {
	case FuncAggregate:
		return "aggregate"
	case FuncWindow:
		return "window"
	case FuncGenerator:
		return "generator"
	}
	return "scalar"
}

// DuckDB built-ins by kind. Anything else is scalar.
var functionKinds = func() map[string]FunctionKind {
	m := map[string]FunctionKind{}
	add := func(k FunctionKind, names ...string) {
		for _, n := range names {
			m[n] = k
		}
	}
	add(FuncAggregate,
		"sum", "count", "avg", "min", "max",
		"stddev", "stddev_pop", "stddev_samp",
		"variance", "var_pop", "var_samp",
		"list", "array_agg", "string_agg", "group_concat", "listagg",
		"first", "last", "any_value", "arbitrary", "arg_max", "arg_min", "max_by", "min_by",
		"median", "mode", "quantile", "quantile_cont", "quantile_disc",
		"approx_count_distinct", "approx_quantile",
		"histogram", "entropy", "kurtosis", "skewness",
		"bit_and", "bit_or", "bit_xor", "bool_and", "bool_or",
		"corr", "covar_pop", "covar_samp", "regr_avgx", "regr_avgy",
		"regr_count", "regr_intercept", "regr_r2", "regr_slope",
		"regr_sxx", "regr_sxy", "regr_syy",
		"product", "fsum", "favg", "mad", "reservoir_quantile",
		"collect_list", "collect_set", "count_if", "countif",
	)
	add(FuncWindow,
		"row_number", "rank", "dense_rank", "ntile", "percent_rank", "cume_dist",
		"lag", "lead", "first_value", "last_value", "nth_value",
	)
	add(FuncGenerator,
		"current_timestamp", "current_date", "current_time", "now", "today",
		"localtime", "localtimestamp", "get_current_timestamp", "get_current_time",
		"uuid", "gen_random_uuid", "random", "setseed",
		"pi", "e",
		"current_schema", "current_database", "current_catalog", "version",
	)
	return m
}()

// ClassifyFunction returns the kind of the named function.
func ClassifyFunction(name string) FunctionKind {
	return functionKinds[strings.ToLower(name)]
}

// generatorKeywords are niladic functions DuckDB accepts without parentheses.
var generatorKeywords = map[string]bool{
	"current_date":      true,
	"current_time":      true,
	"current_timestamp": true,
	"localtime":         true,
	"localtimestamp":    true,
}
