package table_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/tabloop/pkg/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func salesTable(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.New(
		[]string{"region", "sales"},
		[][]any{{"north", 10}, {"south", 20}, {"north", 30}},
	)
	require.NoError(t, err)
	return tbl
}

func TestNew_NormalizesNumbers(t *testing.T) {
	tbl := salesTable(t)
	assert.Equal(t, table.Shape{Rows: 3, Cols: 2}, tbl.Shape())
	assert.Equal(t, 10.0, tbl.Value(0, "sales"))
	assert.Equal(t, "(3, 2)", tbl.Shape().String())
}

func TestNew_Validation(t *testing.T) {
	_, err := table.New([]string{"a", "a"}, nil)
	assert.ErrorIs(t, err, table.ErrDuplicateColumn)

	_, err = table.New([]string{"a", "b"}, [][]any{{1}})
	assert.ErrorIs(t, err, table.ErrRaggedRows)
}

func TestSelectSum(t *testing.T) {
	out := salesTable(t).Select("sales").Sum()
	require.NoError(t, out.Err())
	assert.Equal(t, []string{"sales"}, out.Columns())
	assert.Equal(t, 1, out.Len())
	assert.Equal(t, 60.0, out.Value(0, "sales"))
}

func TestSum_SkipsTextColumns(t *testing.T) {
	out := salesTable(t).Sum()
	require.NoError(t, out.Err())
	assert.Equal(t, []string{"sales"}, out.Columns())
}

func TestMissingColumn_IsSticky(t *testing.T) {
	out := salesTable(t).Select("revenue").Head(5).Sum()
	require.Error(t, out.Err())
	assert.ErrorIs(t, out.Err(), table.ErrColumnNotFound)

	var colErr *table.ColumnError
	require.True(t, errors.As(out.Err(), &colErr))
	assert.Equal(t, "revenue", colErr.Column)
	assert.Equal(t, []string{"region", "sales"}, colErr.Available)
}

func TestImmutability(t *testing.T) {
	src := salesTable(t)
	_ = src.Rename("sales", "amount").Sort("sales", false)
	_ = src.WithColumn("double", func(r table.Row) any { return r.Float("sales") * 2 })
	assert.Equal(t, []string{"region", "sales"}, src.Columns())
	assert.Equal(t, 10.0, src.Value(0, "sales"))
}

func TestWhere(t *testing.T) {
	src := salesTable(t)

	north := src.Where("region", "==", "north")
	require.NoError(t, north.Err())
	assert.Equal(t, 2, north.Len())

	big := src.Where("sales", ">=", 20)
	require.NoError(t, big.Err())
	assert.Equal(t, 2, big.Len())

	partial := src.Where("region", "contains", "OUT")
	assert.Equal(t, 1, partial.Len())

	bad := src.Where("sales", "~", 1)
	assert.ErrorIs(t, bad.Err(), table.ErrUnsupportedOperator)
}

func TestSortHeadTail(t *testing.T) {
	sorted := salesTable(t).Sort("sales", false)
	assert.Equal(t, 30.0, sorted.Value(0, "sales"))
	assert.Equal(t, 10.0, sorted.Tail(1).Value(0, "sales"))
	assert.Equal(t, 2, sorted.Head(2).Len())
	assert.Equal(t, 3, sorted.Head(100).Len())
	assert.Equal(t, 0, sorted.Head(-1).Len())
}

func TestGroupBy(t *testing.T) {
	src := salesTable(t)

	sums := src.GroupBy("region").Sum()
	require.NoError(t, sums.Err())
	assert.Equal(t, []string{"region", "sales"}, sums.Columns())
	assert.Equal(t, "north", sums.Value(0, "region"))
	assert.Equal(t, 40.0, sums.Value(0, "sales"))
	assert.Equal(t, 20.0, sums.Value(1, "sales"))

	counts := src.GroupBy("region").Count()
	assert.Equal(t, 2.0, counts.Value(0, "count"))

	missing := src.GroupBy("city").Sum()
	assert.ErrorIs(t, missing.Err(), table.ErrColumnNotFound)
}

func TestAggregations(t *testing.T) {
	src := salesTable(t)
	assert.Equal(t, 20.0, src.Mean().Value(0, "sales"))
	assert.Equal(t, 10.0, src.Min().Value(0, "sales"))
	assert.Equal(t, "south", src.Max().Value(0, "region"))
	assert.Equal(t, 3.0, src.Count().Value(0, "region"))

	std, err := src.Std("sales")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, std, 1e-9)

	assert.Error(t, src.Agg("median").Err())
}

func TestFromMap(t *testing.T) {
	tbl, err := table.FromMap(map[string]any{"total": 60})
	require.NoError(t, err)
	assert.Equal(t, table.Shape{Rows: 1, Cols: 1}, tbl.Shape())

	tbl, err = table.FromMap(map[string]any{"a": []int{1, 2}, "b": "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tbl.Columns())
	assert.Equal(t, "x", tbl.Value(1, "b"))

	_, err = table.FromMap(map[string]any{"a": []int{1, 2}, "b": []int{1}})
	assert.ErrorIs(t, err, table.ErrRaggedRows)
}

func TestFromCSV(t *testing.T) {
	in := "name, amount, active\nwidget, \"1,200\", true\ngadget,,false\n"
	tbl, err := table.FromCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "amount", "active"}, tbl.Columns())
	assert.Equal(t, 1200.0, tbl.Value(0, "amount"))
	assert.Nil(t, tbl.Value(1, "amount"))
	assert.Equal(t, false, tbl.Value(1, "active"))

	empty, err := table.FromCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
}

func TestString(t *testing.T) {
	out := salesTable(t).String()
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "region")
	assert.Contains(t, lines[0], "sales")
	assert.Contains(t, lines[1], "north")
	assert.Contains(t, lines[3], "30")

	empty, err := table.New([]string{"a"}, nil)
	require.NoError(t, err)
	assert.Contains(t, empty.String(), "Empty table")
}

func TestTransposeAndUnique(t *testing.T) {
	src := salesTable(t)
	tr := src.Transpose()
	assert.Equal(t, []string{"column", "0", "1", "2"}, tr.Columns())
	assert.Equal(t, "sales", tr.Value(1, "column"))

	u := src.Unique("region")
	assert.Equal(t, 2, u.Len())
}

func TestNilTable(t *testing.T) {
	var tbl *table.Table
	assert.ErrorIs(t, tbl.Err(), table.ErrNilTable)
	assert.ErrorIs(t, tbl.Select("a").Err(), table.ErrNilTable)
}

func TestJSON(t *testing.T) {
	src := salesTable(t)
	data, err := json.Marshal(src)
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":["region","sales"],"rows":[["north",10],["south",20],["north",30]]}`, string(data))

	var back table.Table
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, src.Equal(&back))
}
