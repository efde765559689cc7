package table

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Aggregation names accepted by Agg and Grouped.Agg.
const (
	AggSum   = "sum"
	AggMean  = "mean"
	AggMin   = "min"
	AggMax   = "max"
	AggCount = "count"
)

type aggregator func(values []any) any

var aggregators = map[string]aggregator{
	AggSum: func(values []any) any {
		var s float64
		for _, v := range values {
			if f, ok := v.(float64); ok {
				s += f
			}
		}
		return s
	},
	AggMean: func(values []any) any {
		var s float64
		n := 0
		for _, v := range values {
			if f, ok := v.(float64); ok {
				s += f
				n++
			}
		}
		if n == 0 {
			return nil
		}
		return s / float64(n)
	},
	AggMin: func(values []any) any {
		var best any
		for _, v := range values {
			if v != nil && (best == nil || compare(v, best) < 0) {
				best = v
			}
		}
		return best
	},
	AggMax: func(values []any) any {
		var best any
		for _, v := range values {
			if v != nil && (best == nil || compare(v, best) > 0) {
				best = v
			}
		}
		return best
	},
	AggCount: func(values []any) any {
		n := 0
		for _, v := range values {
			if v != nil {
				n++
			}
		}
		return float64(n)
	},
}

// Sum returns a one-row table with the sum of every numeric column.
func (t *Table) Sum() *Table { return t.Agg(AggSum) }

// Mean returns a one-row table with the mean of every numeric column.
func (t *Table) Mean() *Table { return t.Agg(AggMean) }

// Min returns a one-row table with the minimum of every column.
func (t *Table) Min() *Table { return t.Agg(AggMin) }

// Max returns a one-row table with the maximum of every column.
func (t *Table) Max() *Table { return t.Agg(AggMax) }

// Count returns a one-row table with the non-null count of every column.
func (t *Table) Count() *Table { return t.Agg(AggCount) }

// Agg reduces each column to one value. Sum and mean only consider numeric
// columns; other aggregations apply to all columns.
func (t *Table) Agg(name string) *Table {
	if err := t.Err(); err != nil {
		return failed(err)
	}
	fn, ok := aggregators[strings.ToLower(name)]
	if !ok {
		return Errorf("unknown aggregation %q", name)
	}
	numericOnly := strings.EqualFold(name, AggSum) || strings.EqualFold(name, AggMean)
	out := &Table{}
	row := []any{}
	for j, c := range t.columns {
		values := t.columnAt(j)
		if numericOnly && !isNumeric(values) {
			continue
		}
		out.columns = append(out.columns, c)
		row = append(row, fn(values))
	}
	out.rows = [][]any{row}
	return out
}

// Std returns the sample standard deviation of a numeric column.
func (t *Table) Std(column string) (float64, error) {
	values, err := t.Floats(column)
	if err != nil {
		return 0, err
	}
	if len(values) < 2 {
		return math.NaN(), nil
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(len(values)-1)), nil
}

func (t *Table) columnAt(j int) []any {
	out := make([]any, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[j]
	}
	return out
}

func isNumeric(values []any) bool {
	seen := false
	for _, v := range values {
		if v == nil {
			continue
		}
		if _, ok := v.(float64); !ok {
			return false
		}
		seen = true
	}
	return seen || len(values) == 0
}

// Grouped is a table partitioned by key columns, produced by GroupBy.
type Grouped struct {
	source *Table
	keys   []string
	groups [][]int
	err    error
}

// GroupBy partitions the rows by the distinct values of the key columns,
// in first-seen order.
func (t *Table) GroupBy(keys ...string) *Grouped {
	if err := t.Err(); err != nil {
		return &Grouped{err: err}
	}
	idx := make([]int, len(keys))
	for k, key := range keys {
		j := t.index(key)
		if j < 0 {
			return &Grouped{err: t.columnError(key)}
		}
		idx[k] = j
	}
	g := &Grouped{source: t, keys: slices.Clone(keys)}
	positions := make(map[string]int)
	for i, row := range t.rows {
		parts := make([]string, len(idx))
		for k, j := range idx {
			parts[k] = fmt.Sprintf("%T:%v", row[j], row[j])
		}
		sig := strings.Join(parts, "\x1f")
		pos, ok := positions[sig]
		if !ok {
			pos = len(g.groups)
			positions[sig] = pos
			g.groups = append(g.groups, nil)
		}
		g.groups[pos] = append(g.groups[pos], i)
	}
	return g
}

// Sum aggregates the given columns (all numeric non-key columns when empty).
func (g *Grouped) Sum(columns ...string) *Table { return g.Agg(AggSum, columns...) }

// Mean averages the given columns (all numeric non-key columns when empty).
func (g *Grouped) Mean(columns ...string) *Table { return g.Agg(AggMean, columns...) }

// Count returns the number of rows per group in a "count" column.
func (g *Grouped) Count() *Table {
	if g.err != nil {
		return failed(g.err)
	}
	out := &Table{columns: append(slices.Clone(g.keys), "count")}
	for _, members := range g.groups {
		row := g.keyValues(members[0])
		row = append(row, float64(len(members)))
		out.rows = append(out.rows, row)
	}
	if err := checkColumns(out.columns); err != nil {
		return failed(err)
	}
	return out
}

// Agg applies one aggregation to the given columns of every group.
func (g *Grouped) Agg(name string, columns ...string) *Table {
	if g.err != nil {
		return failed(g.err)
	}
	fn, ok := aggregators[strings.ToLower(name)]
	if !ok {
		return Errorf("unknown aggregation %q", name)
	}
	src := g.source
	if len(columns) == 0 {
		for j, c := range src.columns {
			if !slices.Contains(g.keys, c) && isNumeric(src.columnAt(j)) {
				columns = append(columns, c)
			}
		}
	}
	idx := make([]int, len(columns))
	for k, c := range columns {
		j := src.index(c)
		if j < 0 {
			return failed(src.columnError(c))
		}
		idx[k] = j
	}
	out := &Table{columns: append(slices.Clone(g.keys), columns...)}
	if err := checkColumns(out.columns); err != nil {
		return failed(err)
	}
	for _, members := range g.groups {
		row := g.keyValues(members[0])
		for _, j := range idx {
			values := make([]any, len(members))
			for m, i := range members {
				values[m] = src.rows[i][j]
			}
			row = append(row, fn(values))
		}
		out.rows = append(out.rows, row)
	}
	return out
}

func (g *Grouped) keyValues(i int) []any {
	row := make([]any, 0, len(g.keys))
	for _, k := range g.keys {
		row = append(row, g.source.rows[i][g.source.index(k)])
	}
	return row
}

// Err returns the error recorded while grouping.
func (g *Grouped) Err() error { return g.err }
