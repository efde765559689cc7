// Package sandbox runs model-written Go snippets against a table.
//
// Snippets are interpreted with yaegi. The interpreter only sees an allowlisted
// subset of the standard library plus the table package, and its source
// filesystem is empty, so there is no way to reach the host process, the
// filesystem or the network from a snippet. A substring denylist is applied
// before interpretation as a first gate, and goroutines are rejected when the
// snippet is parsed.
//
// A snippet is the body of
//
//	func(df *table.Table) any
//
// with a pre-declared `result any`. When result is left nil, df is the result.
package sandbox

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/tabloop/internal/logging"
	"github.com/aretw0/tabloop/pkg/domain"
	"github.com/aretw0/tabloop/pkg/table"
	"github.com/traefik/yaegi/interp"
)

// DefaultTimeout bounds a single execution.
const DefaultTimeout = 10 * time.Second

// MaxStdout caps the captured output of a single execution.
const MaxStdout = 8 << 10

// stdoutTruncated marks captured output that hit MaxStdout.
const stdoutTruncated = "\n... [output truncated]"

// emptyFS is the interpreter's source filesystem. It holds no files, so
// snippets cannot import anything that is not pre-registered.
var emptyFS embed.FS

// Executor runs snippets in a fresh interpreter per call. It is safe for
// concurrent use.
type Executor struct {
	timeout time.Duration
	logger  *slog.Logger
	denied  []string
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout sets the per-execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithDeniedTerms appends terms to the denylist.
func WithDeniedTerms(terms ...string) Option {
	return func(e *Executor) {
		e.denied = append(e.denied, terms...)
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		timeout: DefaultTimeout,
		logger:  logging.NewNop(),
		denied:  append([]string(nil), deniedTerms...),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs code against a copy of t. It never panics; every failure is
// reported in the result, whose Table is then t itself.
func (e *Executor) Execute(ctx context.Context, code string, t *table.Table) domain.ExecutionResult {
	start := time.Now()
	res, err := e.execute(ctx, code, t)
	res.Elapsed = time.Since(start)
	if err != nil {
		e.logger.Debug("snippet failed", "error", err, "elapsed", res.Elapsed)
		res.Succeeded = false
		res.Error = err.Error()
		res.Table = t
		return res
	}
	e.logger.Debug("snippet succeeded", "shape", res.Table.Shape().String(), "elapsed", res.Elapsed)
	res.Succeeded = true
	return res
}

func (e *Executor) execute(ctx context.Context, code string, t *table.Table) (domain.ExecutionResult, error) {
	var res domain.ExecutionResult
	if strings.TrimSpace(code) == "" {
		return res, ErrEmptyCode
	}
	if err := e.scan(code); err != nil {
		return res, err
	}
	body, err := splitImports(code)
	if err != nil {
		return res, err
	}
	if err := checkStatements(body); err != nil {
		return res, err
	}

	var (
		mu       sync.Mutex
		returned bool
		value    any
	)
	output := func(v any) {
		mu.Lock()
		defer mu.Unlock()
		returned = true
		value = v
	}

	stdout := &lockedBuffer{limit: MaxStdout}
	i := interp.New(interp.Options{
		Stdout:               stdout,
		Stderr:               stdout,
		SourcecodeFilesystem: emptyFS,
	})
	for _, exports := range []interp.Exports{stdlibSymbols(), tableSymbols, harnessSymbols(t.Copy(), output)} {
		if err := i.Use(exports); err != nil {
			return res, fmt.Errorf("load symbols: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	_, err = i.EvalWithContext(ctx, wrap(body))
	res.Stdout = stdout.String()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return res, fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
		}
		var p interp.Panic
		if errors.As(err, &p) {
			return res, fmt.Errorf("panic: %v", p.Value)
		}
		return res, err
	}

	mu.Lock()
	got, v := returned, value
	mu.Unlock()
	if !got {
		return res, fmt.Errorf("%w: snippet did not complete", ErrResultType)
	}
	out, err := toTable(v)
	if err != nil {
		return res, err
	}
	res.Table = out
	return res, nil
}

func (e *Executor) scan(code string) error {
	for _, term := range e.denied {
		if strings.Contains(code, term) {
			return &ForbiddenError{Term: term}
		}
	}
	return nil
}

// checkStatements parses a snippet body and rejects goroutines. A panic on a
// goroutine started by the interpreter cannot be recovered and would take the
// host down.
func checkStatements(body string) error {
	file, err := parser.ParseFile(token.NewFileSet(), "snippet.go", "package snippet\n\nfunc _() {\n"+body+"\n}\n", parser.SkipObjectResolution)
	if err != nil {
		return fmt.Errorf("syntax error: %w", err)
	}
	var found error
	ast.Inspect(file, func(n ast.Node) bool {
		if _, ok := n.(*ast.GoStmt); ok && found == nil {
			found = &ForbiddenError{Term: "go"}
		}
		return found == nil
	})
	return found
}

// wrap builds the interpreted program around a snippet body. The whole run
// happens in init so that EvalWithContext can cancel it.
func wrap(body string) string {
	var b strings.Builder
	b.WriteString("package main\n\nimport (\n")
	for _, p := range allowedPackages {
		fmt.Fprintf(&b, "\t%q\n", p.path)
	}
	fmt.Fprintf(&b, "\n\t%q\n\t%q\n)\n\n", harnessImportPath, tableImportPath)
	for _, p := range allowedPackages {
		fmt.Fprintf(&b, "var _ = %s\n", p.use)
	}
	b.WriteString("\nfunc run(df *table.Table) any {\n\tvar result any\n\t_ = result\n")
	b.WriteString(body)
	b.WriteString("\n\tif result != nil {\n\t\treturn result\n\t}\n\treturn df\n}\n\n")
	b.WriteString("func init() {\n\tharness.Return(run(harness.Input()))\n}\n")
	return b.String()
}

func isPreImported(path string) bool {
	if path == tableImportPath {
		return true
	}
	for _, p := range allowedPackages {
		if p.path == path {
			return true
		}
	}
	return false
}

// splitImports removes leading import declarations from a snippet and checks
// them against the allowlist. Allowed packages are always imported.
func splitImports(code string) (string, error) {
	var (
		imports []string
		rest    []string
		inBlock bool
		header  = true
	)
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if !header {
			rest = append(rest, line)
			continue
		}
		switch {
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
		case inBlock:
			if p := strings.Trim(trimmed, `"`); p != "" {
				imports = append(imports, p)
			}
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case strings.HasPrefix(trimmed, "import "):
			imports = append(imports, strings.Trim(strings.TrimSpace(strings.TrimPrefix(trimmed, "import ")), `"`))
		case trimmed == "" || strings.HasPrefix(trimmed, "//"):
		default:
			header = false
			rest = append(rest, line)
		}
	}
	for _, p := range imports {
		if !isPreImported(p) {
			return "", &ForbiddenError{Term: p, Import: true}
		}
	}
	return strings.Join(rest, "\n"), nil
}

// toTable validates a snippet's result and converts mappings to tables.
func toTable(v any) (*table.Table, error) {
	switch x := v.(type) {
	case *table.Table:
		if x == nil {
			return nil, fmt.Errorf("%w, got nil table", ErrResultType)
		}
		if err := x.Err(); err != nil {
			return nil, err
		}
		return x, nil
	case map[string]any:
		return fromMap(x)
	case nil:
		return nil, fmt.Errorf("%w, got <nil>", ErrResultType)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return fromMap(m)
	}
	return nil, fmt.Errorf("%w, got %T", ErrResultType, v)
}

func fromMap(m map[string]any) (*table.Table, error) {
	t, err := table.FromMap(m)
	if err != nil {
		return nil, fmt.Errorf("convert result to table: %w", err)
	}
	return t, nil
}

// lockedBuffer collects interpreter output, which may still be written after
// a timeout. Output past limit is discarded.
type lockedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); b.limit > 0 && len(p) > room {
		b.buf.Write(p[:max(room, 0)])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return b.buf.String() + stdoutTruncated
	}
	return b.buf.String()
}
