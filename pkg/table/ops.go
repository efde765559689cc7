package table

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Row is a read-only view of one row, handed to Filter and WithColumn callbacks.
type Row struct {
	t *Table
	i int
}

// Index returns the row position in its table.
func (r Row) Index() int { return r.i }

// Get returns the cell in the named column, or nil if the column is unknown.
func (r Row) Get(column string) any {
	return r.t.Value(r.i, column)
}

// Float returns the cell as float64, or 0 for non-numeric cells.
func (r Row) Float(column string) float64 {
	f, _ := r.Get(column).(float64)
	return f
}

// String returns the cell formatted as text.
func (r Row) String(column string) string {
	v := r.Get(column)
	if v == nil {
		return ""
	}
	return formatCell(v)
}

// Select keeps only the named columns, in the given order.
func (t *Table) Select(columns ...string) *Table {
	if err := t.Err(); err != nil {
		return failed(err)
	}
	idx := make([]int, len(columns))
	for k, c := range columns {
		j := t.index(c)
		if j < 0 {
			return failed(t.columnError(c))
		}
		idx[k] = j
	}
	if err := checkColumns(columns); err != nil {
		return failed(err)
	}
	out := &Table{columns: slices.Clone(columns), rows: make([][]any, len(t.rows))}
	for i, row := range t.rows {
		r := make([]any, len(idx))
		for k, j := range idx {
			r[k] = row[j]
		}
		out.rows[i] = r
	}
	return out
}

// Drop removes the named columns.
func (t *Table) Drop(columns ...string) *Table {
	if err := t.Err(); err != nil {
		return failed(err)
	}
	for _, c := range columns {
		if t.index(c) < 0 {
			return failed(t.columnError(c))
		}
	}
	keep := make([]string, 0, len(t.columns))
	for _, c := range t.columns {
		if !slices.Contains(columns, c) {
			keep = append(keep, c)
		}
	}
	return t.Select(keep...)
}

// Rename changes a column label.
func (t *Table) Rename(from, to string) *Table {
	if err := t.Err(); err != nil {
		return failed(err)
	}
	j := t.index(from)
	if j < 0 {
		return failed(t.columnError(from))
	}
	out := t.Copy()
	out.columns[j] = to
	if err := checkColumns(out.columns); err != nil {
		return failed(err)
	}
	return out
}

// Head returns the first n rows.
func (t *Table) Head(n int) *Table {
	if err := t.Err(); err != nil {
		return failed(err)
	}
	n = max(0, min(n, len(t.rows)))
	return t.slice(0, n)
}

// Tail returns the last n rows.
func (t *Table) Tail(n int) *Table {
	if err := t.Err(); err != nil {
		return failed(err)
	}
	n = max(0, min(n, len(t.rows)))
	return t.slice(len(t.rows)-n, len(t.rows))
}

func (t *Table) slice(from, to int) *Table {
	out := &Table{columns: slices.Clone(t.columns), rows: make([][]any, 0, to-from)}
	for _, row := range t.rows[from:to] {
		out.rows = append(out.rows, slices.Clone(row))
	}
	return out
}

// Filter keeps the rows for which keep returns true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	if err := t.Err(); err != nil {
		return failed(err)
	}
	out := &Table{columns: slices.Clone(t.columns)}
	for i, row := range t.rows {
		if keep(Row{t: t, i: i}) {
			out.rows = append(out.rows, slices.Clone(row))
		}
	}
	return out
}

// Where keeps the rows whose column satisfies the comparison.
// Supported operators: ==, !=, >, >=, <, <=, contains.
func (t *Table) Where(column, op string, value any) *Table {
	if err := t.Err(); err != nil {
		return failed(err)
	}
	if t.index(column) < 0 {
		return failed(t.columnError(column))
	}
	want := normalize(value)
	var match func(any) bool
	switch op {
	case "==", "=":
		match = func(v any) bool { return compare(v, want) == 0 }
	case "!=":
		match = func(v any) bool { return compare(v, want) != 0 }
	case ">":
		match = func(v any) bool { return v != nil && compare(v, want) > 0 }
	case ">=":
		match = func(v any) bool { return v != nil && compare(v, want) >= 0 }
	case "<":
		match = func(v any) bool { return v != nil && compare(v, want) < 0 }
	case "<=":
		match = func(v any) bool { return v != nil && compare(v, want) <= 0 }
	case "contains":
		needle := strings.ToLower(formatCell(want))
		match = func(v any) bool { return v != nil && strings.Contains(strings.ToLower(formatCell(v)), needle) }
	default:
		return failed(fmt.Errorf("%w: %q", ErrUnsupportedOperator, op))
	}
	return t.Filter(func(r Row) bool { return match(r.Get(column)) })
}

// Sort orders the rows by a column. The sort is stable.
func (t *Table) Sort(column string, ascending bool) *Table {
	if err := t.Err(); err != nil {
		return failed(err)
	}
	j := t.index(column)
	if j < 0 {
		return failed(t.columnError(column))
	}
	out := t.Copy()
	sort.SliceStable(out.rows, func(a, b int) bool {
		c := compare(out.rows[a][j], out.rows[b][j])
		if ascending {
			return c < 0
		}
		return c > 0
	})
	return out
}

// WithColumn adds (or replaces) a column computed from each row.
func (t *Table) WithColumn(name string, fn func(Row) any) *Table {
	if err := t.Err(); err != nil {
		return failed(err)
	}
	j := t.index(name)
	out := t.Copy()
	if j < 0 {
		out.columns = append(out.columns, name)
	}
	for i := range out.rows {
		v := normalize(fn(Row{t: t, i: i}))
		if j < 0 {
			out.rows[i] = append(out.rows[i], v)
		} else {
			out.rows[i][j] = v
		}
	}
	return out
}

// Unique returns the distinct values of a column, in first-seen order.
func (t *Table) Unique(column string) *Table {
	values, err := t.Column(column)
	if err != nil {
		return failed(err)
	}
	out := &Table{columns: []string{column}}
	var seen []any
	for _, v := range values {
		if slices.ContainsFunc(seen, func(s any) bool { return compare(s, v) == 0 }) {
			continue
		}
		seen = append(seen, v)
		out.rows = append(out.rows, []any{v})
	}
	return out
}

// Transpose swaps rows and columns. Row positions become column labels and the
// former labels move into a leading "column" column.
func (t *Table) Transpose() *Table {
	if err := t.Err(); err != nil {
		return failed(err)
	}
	columns := make([]string, 0, len(t.rows)+1)
	columns = append(columns, "column")
	for i := range t.rows {
		columns = append(columns, fmt.Sprint(i))
	}
	if err := checkColumns(columns); err != nil {
		return failed(err)
	}
	out := &Table{columns: columns, rows: make([][]any, len(t.columns))}
	for j, c := range t.columns {
		row := make([]any, 0, len(t.rows)+1)
		row = append(row, c)
		for i := range t.rows {
			row = append(row, t.rows[i][j])
		}
		out.rows[j] = row
	}
	return out
}

// Append concatenates the rows of other, which must have the same columns.
func (t *Table) Append(other *Table) *Table {
	if err := t.Err(); err != nil {
		return failed(err)
	}
	if err := other.Err(); err != nil {
		return failed(err)
	}
	if !slices.Equal(t.columns, other.columns) {
		return Errorf("append: column mismatch %v vs %v", t.columns, other.columns)
	}
	out := t.Copy()
	for _, row := range other.rows {
		out.rows = append(out.rows, slices.Clone(row))
	}
	return out
}
