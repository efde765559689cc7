package sandbox_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/tabloop/internal/sandbox"
	"github.com/aretw0/tabloop/pkg/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func salesTable(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.New(
		[]string{"region", "sales"},
		[][]any{{"north", 10}, {"south", 20}, {"east", 30}},
	)
	require.NoError(t, err)
	return tbl
}

func TestExecute_ReplacesTable(t *testing.T) {
	src := salesTable(t)
	res := sandbox.New().Execute(context.Background(), `df = df.Select("sales").Sum()`, src)

	require.True(t, res.Succeeded, res.Error)
	assert.Equal(t, table.Shape{Rows: 1, Cols: 1}, res.Table.Shape())
	assert.Equal(t, 60.0, res.Table.Value(0, "sales"))
	assert.Equal(t, table.Shape{Rows: 3, Cols: 2}, src.Shape(), "input must be untouched")
}

func TestExecute_UnchangedTableIsACopy(t *testing.T) {
	src := salesTable(t)
	for _, code := range []string{`result = df`, `df = df.Head(100)`} {
		t.Run(code, func(t *testing.T) {
			res := sandbox.New().Execute(context.Background(), code, src)

			require.True(t, res.Succeeded, res.Error)
			assert.NotSame(t, src, res.Table)
			assert.Equal(t, src.Columns(), res.Table.Columns())
			assert.Equal(t, src.Rows(), res.Table.Rows())
		})
	}
}

func TestExecute_ResultVariable(t *testing.T) {
	code := `
total := 0.0
for _, v := range df.Rows() {
	total += v[1].(float64)
}
fmt.Println("total", total)
result = map[string]any{"total": total}
`
	res := sandbox.New().Execute(context.Background(), code, salesTable(t))

	require.True(t, res.Succeeded, res.Error)
	assert.Equal(t, []string{"total"}, res.Table.Columns())
	assert.Equal(t, 60.0, res.Table.Value(0, "total"))
	assert.Contains(t, res.Stdout, "total 60")
}

func TestExecute_AllowedImportsAndClosures(t *testing.T) {
	code := `import "strings"

df = df.Filter(func(r table.Row) bool {
	return strings.HasPrefix(r.String("region"), "n")
})`
	res := sandbox.New().Execute(context.Background(), code, salesTable(t))

	require.True(t, res.Succeeded, res.Error)
	assert.Equal(t, 1, res.Table.Len())
	assert.Equal(t, "north", res.Table.Value(0, "region"))
}

func TestExecute_FailureKeepsInput(t *testing.T) {
	src := salesTable(t)
	tests := []struct {
		name    string
		code    string
		wantErr string
	}{
		{"Missing Column", `df = df.Select("revenue")`, `column "revenue" not found`},
		{"Compile Error", `df = df.NoSuchMethod()`, ""},
		{"Panic", `var m map[string]int
m["x"] = 1`, "panic"},
		{"Wrong Result Type", `result = "sixty"`, "Result must be a table, got string"},
		{"Ragged Map", `result = map[string]any{"a": []int{1, 2}, "b": []int{1}}`, "ragged rows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := sandbox.New().Execute(context.Background(), tt.code, src)
			assert.False(t, res.Succeeded)
			assert.NotEmpty(t, res.Error)
			if tt.wantErr != "" {
				assert.Contains(t, res.Error, tt.wantErr)
			}
			assert.Same(t, src, res.Table)
		})
	}
}

func TestExecute_Denylist(t *testing.T) {
	src := salesTable(t)

	res := sandbox.New().Execute(context.Background(), `os.system("rm -rf /")`, src)
	assert.False(t, res.Succeeded)
	assert.Equal(t, "Forbidden keyword: os.system", res.Error)
	assert.Same(t, src, res.Table)

	res = sandbox.New().Execute(context.Background(), `exec.Command("ls").Run()`, src)
	assert.Contains(t, res.Error, "Forbidden keyword")

	res = sandbox.New(sandbox.WithDeniedTerms("Transpose")).Execute(context.Background(), `df = df.Transpose()`, src)
	assert.Equal(t, "Forbidden keyword: Transpose", res.Error)
}

func TestExecute_Goroutines(t *testing.T) {
	src := salesTable(t)
	tests := []struct {
		name string
		code string
	}{
		{"Panicking Goroutine", "go func() { panic(\"boom\") }()\ntime.Sleep(200 * time.Millisecond)"},
		{"Inside Closure", "start := func() {\n\tgo fmt.Println(\"x\")\n}\nstart()"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := sandbox.New(sandbox.WithTimeout(2*time.Second)).Execute(context.Background(), tt.code, src)
			assert.False(t, res.Succeeded)
			assert.Equal(t, "Forbidden keyword: go", res.Error)
			assert.Same(t, src, res.Table)
		})
	}

	t.Run("Identifier Prefix", func(t *testing.T) {
		res := sandbox.New().Execute(context.Background(), "goal := df.Len()\ndf = df.Head(goal)", src)
		require.True(t, res.Succeeded, res.Error)
		assert.Equal(t, 3, res.Table.Len())
	})

	t.Run("AfterFunc Hidden", func(t *testing.T) {
		res := sandbox.New().Execute(context.Background(), "time.AfterFunc(time.Millisecond, func() {})", src)
		assert.False(t, res.Succeeded)
		assert.Same(t, src, res.Table)
	})
}

func TestExecute_SyntaxError(t *testing.T) {
	src := salesTable(t)
	res := sandbox.New().Execute(context.Background(), "df = df.Head(", src)
	assert.False(t, res.Succeeded)
	assert.Contains(t, res.Error, "syntax error")
	assert.Same(t, src, res.Table)
}

func TestExecute_StdoutIsCapped(t *testing.T) {
	code := `for i := 0; i < 5000; i++ {
	fmt.Println("0123456789")
}`
	res := sandbox.New().Execute(context.Background(), code, salesTable(t))

	require.True(t, res.Succeeded, res.Error)
	assert.True(t, strings.HasSuffix(res.Stdout, "[output truncated]"))
	assert.LessOrEqual(t, len(res.Stdout), sandbox.MaxStdout+len("\n... [output truncated]"))
	assert.True(t, strings.HasPrefix(res.Stdout, "0123456789\n"))
}

func TestExecute_ImportOutsideAllowlist(t *testing.T) {
	res := sandbox.New().Execute(context.Background(), "import \"encoding/json\"\n\ndf = df.Head(1)", salesTable(t))
	assert.False(t, res.Succeeded)
	assert.Equal(t, "Forbidden import: encoding/json", res.Error)
}

func TestExecute_EmptyCode(t *testing.T) {
	res := sandbox.New().Execute(context.Background(), "   \n", salesTable(t))
	assert.False(t, res.Succeeded)
	assert.Equal(t, "Empty code", res.Error)
}

func TestExecute_Timeout(t *testing.T) {
	exec := sandbox.New(sandbox.WithTimeout(200 * time.Millisecond))
	start := time.Now()
	res := exec.Execute(context.Background(), "for {\n}", salesTable(t))

	assert.False(t, res.Succeeded)
	assert.Contains(t, res.Error, "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestForbiddenError(t *testing.T) {
	var err error = &sandbox.ForbiddenError{Term: "unsafe"}
	assert.True(t, errors.Is(err, sandbox.ErrForbidden))
	assert.Equal(t, "Forbidden keyword: unsafe", err.Error())
}
