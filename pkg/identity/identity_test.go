package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_Deterministic(t *testing.T) {
	a := ID("read", "orders_raw", "data/orders.csv", "csv")
	b := ID("read", "orders_raw", "data/orders.csv", "csv")

	assert.Equal(t, a, b)
	assert.Len(t, a, idLength)
}

func TestID_SensitiveToEveryPart(t *testing.T) {
	base := []string{"read", "orders_raw", "data/orders.csv", "csv"}
	want := ID(base...)

	for i := range base {
		parts := append([]string(nil), base...)
		parts[i] += "x"
		assert.NotEqual(t, want, ID(parts...), "changing part %d must change the id", i)
	}
}

func TestID_Unambiguous(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
	}{
		{"separator inside part", []string{"a|b"}, []string{"a", "b"}},
		{"trailing empty part", []string{"a"}, []string{"a", ""}},
		{"empty parts count", []string{"", ""}, []string{""}},
		{"shifted boundary", []string{"ab", "c"}, []string{"a", "bc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, ID(tt.a...), ID(tt.b...))
		})
	}
}

func TestColumnID(t *testing.T) {
	ds := ID("read", "orders_raw", "", "csv")
	assert.Equal(t, ID(ds, "qty"), ColumnID(ds, "qty"))
	assert.NotEqual(t, ColumnID(ds, "qty"), ColumnID(ds, "price"))
}

func TestParamsHash(t *testing.T) {
	type params struct {
		Passthrough []string            `json:"passthrough"`
		Rename      map[string]string   `json:"rename"`
		Derives     map[string][]string `json:"derives"`
	}

	a, err := ParamsHash(params{
		Rename:  map[string]string{"cust_id": "customer_id", "a": "b"},
		Derives: map[string][]string{"total": {"qty", "price"}},
	})
	require.NoError(t, err)

	b, err := ParamsHash(params{
		Rename:  map[string]string{"a": "b", "cust_id": "customer_id"},
		Derives: map[string][]string{"total": {"qty", "price"}},
	})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, paramsHashLength)

	c, err := ParamsHash(params{
		Rename: map[string]string{"a": "b"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
