package llm_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/tabloop/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScript_Replays(t *testing.T) {
	s := llm.NewScript("[THINK] a", "[Final Answer] b")
	ctx := context.Background()

	out, err := s.Call(ctx, "p1", 10)
	require.NoError(t, err)
	assert.Equal(t, "[THINK] a", out)

	out, err = s.Call(ctx, "p2", 10)
	require.NoError(t, err)
	assert.Equal(t, "[Final Answer] b", out)

	_, err = s.Call(ctx, "p3", 10)
	assert.ErrorIs(t, err, llm.ErrScriptExhausted)
	assert.Equal(t, []string{"p1", "p2", "p3"}, s.Prompts())
}

func TestScript_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := llm.NewScript("x").Call(ctx, "p", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`responses:
  - |
    [CODE]
    `+"```go"+`
    df = df.Select("sales").Sum()
    `+"```"+`
  - "[Final Answer] Total sales are 60."
`), 0o644))

	s, err := llm.LoadScript(path)
	require.NoError(t, err)
	out, err := s.Call(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Contains(t, out, `df = df.Select("sales").Sum()`)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("responses: []\n"), 0o644))
	_, err = llm.LoadScript(empty)
	assert.Error(t, err)

	_, err = llm.LoadScript(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRateLimited(t *testing.T) {
	inner := llm.NewScript("a", "b")
	limited := llm.NewRateLimited(inner, 60, 1)

	out, err := limited.Call(context.Background(), "p", 1)
	require.NoError(t, err)
	assert.Equal(t, "a", out)

	// The bucket is empty; the next token arrives in one second.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = limited.Call(ctx, "p", 1)
	assert.Error(t, err)
	assert.Len(t, inner.Prompts(), 1, "the inner model must not be called while throttled")
}

func TestRateLimited_Unlimited(t *testing.T) {
	limited := llm.NewRateLimited(llm.NewScript("a", "b", "c"), 0, 0)
	for range 3 {
		_, err := limited.Call(context.Background(), "p", 1)
		require.NoError(t, err)
	}
}
