package table

import (
	"fmt"
	"slices"
	"sort"
)

// Shape is the (rows, columns) size of a table.
type Shape struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d)", s.Rows, s.Cols)
}

// Table is an immutable, column-labelled tabular value.
//
// Every transformation returns a new Table; the receiver is never modified.
// Transformations that fail return a Table carrying a sticky error (see Err),
// so chained calls such as t.Select("a").Sum() stop at the first failure.
type Table struct {
	columns []string
	rows    [][]any
	err     error
}

// New builds a table from column labels and row-major values.
// Numeric values are normalized to float64.
func New(columns []string, rows [][]any) (*Table, error) {
	if err := checkColumns(columns); err != nil {
		return nil, err
	}
	out := &Table{
		columns: slices.Clone(columns),
		rows:    make([][]any, len(rows)),
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrRaggedRows, i, len(row), len(columns))
		}
		r := make([]any, len(row))
		for j, v := range row {
			r[j] = normalize(v)
		}
		out.rows[i] = r
	}
	return out, nil
}

// Empty returns a table with no rows and no columns.
func Empty() *Table {
	return &Table{}
}

// Errorf returns a table carrying the given error.
func Errorf(format string, args ...any) *Table {
	return &Table{err: fmt.Errorf(format, args...)}
}

func failed(err error) *Table {
	return &Table{err: err}
}

// FromMap converts a column-name keyed mapping into a table.
// Values may be slices (one entry per row) or scalars. Scalars are broadcast
// to the common slice length, or produce a single row when every value is a scalar.
// Columns are ordered by name since map iteration order is undefined.
func FromMap(m map[string]any) (*Table, error) {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	cols := make([][]any, len(names))
	length := -1
	for i, name := range names {
		values, ok := toSlice(m[name])
		if !ok {
			continue
		}
		if length >= 0 && len(values) != length {
			return nil, fmt.Errorf("%w: column %q has %d values, want %d", ErrRaggedRows, name, len(values), length)
		}
		length = len(values)
		cols[i] = values
	}
	if length < 0 {
		length = 1
	}
	for i, name := range names {
		if cols[i] != nil {
			continue
		}
		scalar := m[name]
		filled := make([]any, length)
		for j := range filled {
			filled[j] = scalar
		}
		cols[i] = filled
	}

	rows := make([][]any, length)
	for r := range rows {
		row := make([]any, len(names))
		for c := range names {
			row[c] = cols[c][r]
		}
		rows[r] = row
	}
	return New(names, rows)
}

// FromRecords builds a table from a list of records. Columns follow first
// appearance order; missing keys become nil.
func FromRecords(records []map[string]any) *Table {
	var columns []string
	seen := make(map[string]bool)
	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(columns))
		for j, c := range columns {
			row[j] = rec[c]
		}
		rows[i] = row
	}
	t, err := New(columns, rows)
	if err != nil {
		return failed(err)
	}
	return t
}

// Err returns the sticky error carried by a failed transformation.
func (t *Table) Err() error {
	if t == nil {
		return ErrNilTable
	}
	return t.err
}

// Columns returns a copy of the column labels.
func (t *Table) Columns() []string {
	if t == nil {
		return nil
	}
	return slices.Clone(t.columns)
}

// Shape returns the number of rows and columns.
func (t *Table) Shape() Shape {
	if t == nil {
		return Shape{}
	}
	return Shape{Rows: len(t.rows), Cols: len(t.columns)}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return t.Shape().Rows
}

// IsEmpty reports whether the table has no rows or no columns.
func (t *Table) IsEmpty() bool {
	s := t.Shape()
	return s.Rows == 0 || s.Cols == 0
}

// HasColumn reports whether a column exists.
func (t *Table) HasColumn(name string) bool {
	return t != nil && slices.Contains(t.columns, name)
}

// Copy returns a deep copy of the table. Cell values are immutable scalars,
// so copying the row slices is sufficient.
func (t *Table) Copy() *Table {
	if t == nil {
		return nil
	}
	out := &Table{
		columns: slices.Clone(t.columns),
		rows:    make([][]any, len(t.rows)),
		err:     t.err,
	}
	for i, row := range t.rows {
		out.rows[i] = slices.Clone(row)
	}
	return out
}

// Value returns the cell at row i and the named column, or nil when out of range.
func (t *Table) Value(i int, column string) any {
	if t == nil || i < 0 || i >= len(t.rows) {
		return nil
	}
	j := t.index(column)
	if j < 0 {
		return nil
	}
	return t.rows[i][j]
}

// Column returns a copy of the values of one column.
func (t *Table) Column(name string) ([]any, error) {
	if err := t.Err(); err != nil {
		return nil, err
	}
	j := t.index(name)
	if j < 0 {
		return nil, t.columnError(name)
	}
	out := make([]any, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[j]
	}
	return out, nil
}

// Floats returns a numeric column as float64 values; non-numeric cells are skipped.
func (t *Table) Floats(name string) ([]float64, error) {
	values, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := v.(float64); ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// Rows returns a copy of the row-major values.
func (t *Table) Rows() [][]any {
	if t == nil {
		return nil
	}
	out := make([][]any, len(t.rows))
	for i, row := range t.rows {
		out[i] = slices.Clone(row)
	}
	return out
}

// Records returns the rows as column-keyed maps.
func (t *Table) Records() []map[string]any {
	if t == nil {
		return nil
	}
	out := make([]map[string]any, len(t.rows))
	for i, row := range t.rows {
		rec := make(map[string]any, len(t.columns))
		for j, c := range t.columns {
			rec[c] = row[j]
		}
		out[i] = rec
	}
	return out
}

// Equal reports whether two tables have identical columns and values.
func (t *Table) Equal(other *Table) bool {
	if t == nil || other == nil {
		return t == other
	}
	if !slices.Equal(t.columns, other.columns) || len(t.rows) != len(other.rows) {
		return false
	}
	for i := range t.rows {
		for j := range t.rows[i] {
			if t.rows[i][j] != other.rows[i][j] {
				return false
			}
		}
	}
	return true
}

func (t *Table) index(name string) int {
	return slices.Index(t.columns, name)
}

func (t *Table) columnError(name string) error {
	return &ColumnError{Column: name, Available: slices.Clone(t.columns)}
}

func checkColumns(columns []string) error {
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if seen[c] {
			return fmt.Errorf("%w: %q", ErrDuplicateColumn, c)
		}
		seen[c] = true
	}
	return nil
}
