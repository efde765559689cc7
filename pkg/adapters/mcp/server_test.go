package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/tabloop"
	"github.com/aretw0/tabloop/pkg/adapters/memory"
	"github.com/aretw0/tabloop/pkg/domain"
	"github.com/aretw0/tabloop/pkg/llm"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const salesCSV = "region,sales\nnorth,10\nsouth,20\neast,30\n"

func newTestServer(model *llm.Script) (*Server, *tabloop.Engine) {
	eng := tabloop.New(model, tabloop.WithLedgerStore(memory.NewLedgerStore()))
	return NewServer(eng, WithLedger(eng.Ledger())), eng
}

func TestHandleAsk(t *testing.T) {
	model := llm.NewScript(
		"[CODE]\n```go\ndf = df.Select(\"sales\").Sum()\n```",
		"[Final Answer] Total sales is 60.",
	)
	s, _ := newTestServer(model)

	res, err := s.handleAsk(context.Background(), mcp.CallToolRequest{}, AskArgs{
		Question:       "Total sales?",
		CSV:            salesCSV,
		ReferenceSteps: "select_column, sum",
		RunID:          "mcp-run-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "mcp-run-1", res.RunID)
	assert.True(t, res.Success)
	assert.Equal(t, domain.AnswerTagged, res.AnswerKind)
	assert.Equal(t, 2, res.IterationsUsed)
	assert.Equal(t, "sales\n60\n", res.Table)
	assert.Contains(t, model.Prompts()[0], "**select_column**")
	assert.Contains(t, model.Prompts()[0], "**sum**")

	summary, err := s.handleLedgerSummary(context.Background(), mcp.CallToolRequest{}, struct{}{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalNodes)
}

func TestHandleAsk_Errors(t *testing.T) {
	s, _ := newTestServer(llm.NewScript())
	handler := mcp.NewStructuredToolHandler(s.handleAsk)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"bad csv", map[string]any{"question": "q?", "csv": "a,\"b\n1,2\n"}},
		{"empty question", map[string]any{"question": " ", "csv": salesCSV}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := mcp.CallToolRequest{}
			req.Params.Name = "ask_table"
			req.Params.Arguments = tt.args

			res, err := handler(context.Background(), req)
			require.NoError(t, err)
			assert.True(t, res.IsError)
		})
	}
}

func TestListTools(t *testing.T) {
	s, _ := newTestServer(llm.NewScript())

	msg := s.MCPServer().HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	out, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"ask_table"`)
	assert.Contains(t, string(out), `"ledger_summary"`)

	bare := NewServer(tabloop.New(llm.NewScript()))
	msg = bare.MCPServer().HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	out, err = json.Marshal(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(out), `"ledger_summary"`)
}
