package sandbox

import (
	"reflect"

	"github.com/aretw0/tabloop/pkg/table"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

const (
	tableImportPath   = "github.com/aretw0/tabloop/pkg/table"
	harnessImportPath = "tabloop/harness"
)

// allowedPackages is the stdlib subset visible to snippets, with one symbol
// per package used to keep the generated imports referenced.
var allowedPackages = []struct {
	path string
	use  string
}{
	{"fmt", "fmt.Sprint"},
	{"math", "math.Abs"},
	{"regexp", "regexp.MustCompile"},
	{"sort", "sort.Strings"},
	{"strconv", "strconv.Itoa"},
	{"strings", "strings.ToLower"},
	{"time", "time.Now"},
	{"unicode", "unicode.IsDigit"},
}

// hiddenSymbols are removed from allowlisted packages. They run snippet
// callbacks on goroutines of their own, where a panic cannot be recovered.
var hiddenSymbols = map[string][]string{
	"time": {"AfterFunc"},
}

// stdlibSymbols returns the allowlisted subset of yaegi's stdlib exports.
func stdlibSymbols() interp.Exports {
	out := make(interp.Exports, len(allowedPackages))
	for _, p := range allowedPackages {
		key := p.path + "/" + p.path
		syms, ok := stdlib.Symbols[key]
		if !ok {
			continue
		}
		if hidden := hiddenSymbols[p.path]; len(hidden) > 0 {
			filtered := make(map[string]reflect.Value, len(syms))
			for name, v := range syms {
				filtered[name] = v
			}
			for _, name := range hidden {
				delete(filtered, name)
			}
			syms = filtered
		}
		out[key] = syms
	}
	return out
}

// tableSymbols exposes the table package to interpreted code.
var tableSymbols = interp.Exports{
	tableImportPath + "/table": {
		// types
		"Table":       reflect.ValueOf((*table.Table)(nil)),
		"Row":         reflect.ValueOf((*table.Row)(nil)),
		"Shape":       reflect.ValueOf((*table.Shape)(nil)),
		"Grouped":     reflect.ValueOf((*table.Grouped)(nil)),
		"ColumnError": reflect.ValueOf((*table.ColumnError)(nil)),

		// functions
		"New":         reflect.ValueOf(table.New),
		"Empty":       reflect.ValueOf(table.Empty),
		"Errorf":      reflect.ValueOf(table.Errorf),
		"FromMap":     reflect.ValueOf(table.FromMap),
		"FromRecords": reflect.ValueOf(table.FromRecords),
		"ParseCell":   reflect.ValueOf(table.ParseCell),

		// constants
		"AggSum":   reflect.ValueOf(table.AggSum),
		"AggMean":  reflect.ValueOf(table.AggMean),
		"AggMin":   reflect.ValueOf(table.AggMin),
		"AggMax":   reflect.ValueOf(table.AggMax),
		"AggCount": reflect.ValueOf(table.AggCount),

		// variables
		"ErrColumnNotFound":      reflect.ValueOf(&table.ErrColumnNotFound).Elem(),
		"ErrRaggedRows":          reflect.ValueOf(&table.ErrRaggedRows).Elem(),
		"ErrDuplicateColumn":     reflect.ValueOf(&table.ErrDuplicateColumn).Elem(),
		"ErrUnsupportedOperator": reflect.ValueOf(&table.ErrUnsupportedOperator).Elem(),
	},
}

// harnessSymbols wires one execution's input and output. Each interpreter
// gets its own harness.
func harnessSymbols(input *table.Table, output func(any)) interp.Exports {
	return interp.Exports{
		harnessImportPath + "/harness": {
			"Input":  reflect.ValueOf(func() *table.Table { return input }),
			"Return": reflect.ValueOf(output),
		},
	}
}
