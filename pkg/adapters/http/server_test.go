package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aretw0/tabloop"
	"github.com/aretw0/tabloop/pkg/adapters/memory"
	"github.com/aretw0/tabloop/pkg/domain"
	"github.com/aretw0/tabloop/pkg/llm"
	"github.com/aretw0/tabloop/pkg/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, model *llm.Script, opts ...Option) (http.Handler, *tabloop.Engine) {
	t.Helper()
	eng := tabloop.New(model, tabloop.WithLedgerStore(memory.NewLedgerStore()))
	handler, err := NewHandler(eng, append([]Option{WithLedger(eng.Ledger())}, opts...)...)
	require.NoError(t, err)
	return handler, eng
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t, llm.NewScript())
	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAsk_Table(t *testing.T) {
	model := llm.NewScript(
		"[CODE]\n```go\ndf = df.Select(\"sales\").Sum()\n```",
		"[Final Answer] Total sales is 60.",
	)
	h, _ := newTestHandler(t, model)

	w := do(t, h, http.MethodPost, "/v1/ask", `{
		"question": "Total sales?",
		"table": {"columns": ["region", "sales"], "rows": [["north", 10], ["south", 20], ["east", 30]]}
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res domain.LoopResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, domain.AnswerTagged, res.AnswerKind)
	assert.Contains(t, res.Answer, "60")
	assert.NotEmpty(t, res.RunID)

	w = do(t, h, http.MethodGet, "/v1/ledger/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	var summary domain.LedgerSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.TotalNodes)
	assert.Equal(t, 1, summary.SuccessCount)
}

func TestAsk_CSVWithCatalog(t *testing.T) {
	model := llm.NewScript("[Final Answer] three regions")
	h, _ := newTestHandler(t, model)

	w := do(t, h, http.MethodPost, "/v1/ask", `{
		"question": "How many regions?",
		"csv": "region,sales\nnorth,10\nsouth,20\neast,30\n",
		"reference_steps": ["count_rows"],
		"catalog": {"count_rows": {"description": "Count the rows", "category": "aggregate"}},
		"meta": {"meta_info": {"source": "sales.csv"}}
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, model.Prompts()[0], "count_rows")
	assert.Contains(t, model.Prompts()[0], "Count the rows")
}

func TestAsk_BadRequests(t *testing.T) {
	h, _ := newTestHandler(t, llm.NewScript())

	tests := []struct {
		name string
		body string
	}{
		{"missing question", `{"csv": "a\n1\n"}`},
		{"empty question", `{"question": "", "csv": "a\n1\n"}`},
		{"no table", `{"question": "anything?"}`},
		{"negative budget", `{"question": "anything?", "csv": "a\n1\n", "max_iterations": -1}`},
		{"malformed json", `{"question": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/v1/ask", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestLedger_Unavailable(t *testing.T) {
	eng := tabloop.New(llm.NewScript())
	h, err := NewHandler(eng)
	require.NoError(t, err)

	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/v1/ledger/summary", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodDelete, "/v1/ledger", "").Code)

	// A typed nil ledger behaves the same.
	h, err = NewHandler(eng, WithLedger(eng.Ledger()))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/v1/ledger/summary", "").Code)
}

func TestLedger_Clear(t *testing.T) {
	h, eng := newTestHandler(t, llm.NewScript("[Final Answer] ok"))
	_, err := eng.Ask(context.Background(), domain.Request{Question: "q?", Table: mustCSV(t, "a\n1\n")})
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/v1/ledger", "").Code)

	summary, err := eng.Ledger().Summary(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.TotalNodes)
}

func TestDocsAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "tabloop_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	h, _ := newTestHandler(t, llm.NewScript(), WithGatherer(reg))

	w := do(t, h, http.MethodGet, "/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/v1/ask")

	w = do(t, h, http.MethodGet, "/swagger", "")
	assert.Contains(t, w.Body.String(), "swagger-ui")

	w = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tabloop_test_total 1")

	w = do(t, h, http.MethodOptions, "/v1/ask", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStreamManager_Routing(t *testing.T) {
	sm := NewStreamManager(nil)
	mine, cancelMine := sm.Subscribe("run-1")
	defer cancelMine()
	other, cancelOther := sm.Subscribe("run-2")
	defer cancelOther()
	global, cancelGlobal := sm.Subscribe("")
	defer cancelGlobal()

	require.NoError(t, sm.Emit(context.Background(), domain.EventTaskStart, domain.EventPayload{Type: "task", RunID: "run-1"}))

	assert.Contains(t, <-mine, domain.EventTaskStart)
	assert.Contains(t, <-global, `"run_id":"run-1"`)
	assert.Empty(t, other)
}

func TestStreamManager_UnsubscribeTwice(t *testing.T) {
	sm := NewStreamManager(nil)
	_, cancel := sm.Subscribe("run-1")
	cancel()
	assert.NotPanics(t, cancel)
	assert.Empty(t, sm.subscribers)
}

func TestSubscribeEvents(t *testing.T) {
	sm := NewStreamManager(nil)
	h, _ := newTestHandler(t, llm.NewScript(), WithStreams(sm))
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events?run_id=run-7", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: ping\n", line)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "data: connected\n", line)
	_, err = reader.ReadString('\n')
	require.NoError(t, err)

	require.NoError(t, sm.Emit(ctx, domain.EventTaskDone, domain.EventPayload{Type: "task", RunID: "run-7"}))

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "data: "))
	assert.Contains(t, line, domain.EventTaskDone)
}

func TestAsk_ClientRunIDStreamsEvents(t *testing.T) {
	sm := NewStreamManager(nil)
	eng := tabloop.New(llm.NewScript(
		"[CODE]\n```go\ndf = df.Select(\"sales\").Sum()\n```",
		"[Final Answer] Total sales is 60.",
	), tabloop.WithSink(sm))
	h, err := NewHandler(eng, WithStreams(sm))
	require.NoError(t, err)

	mine, cancelMine := sm.Subscribe("client-run")
	defer cancelMine()
	other, cancelOther := sm.Subscribe("other-run")
	defer cancelOther()

	w := do(t, h, http.MethodPost, "/v1/ask", `{
		"question": "Total sales?",
		"csv": "region,sales\nnorth,10\nsouth,20\neast,30\n",
		"run_id": "client-run"
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res domain.LoopResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "client-run", res.RunID)

	var received []string
	for len(mine) > 0 {
		received = append(received, <-mine)
	}
	require.NotEmpty(t, received)
	assert.Contains(t, received[0], domain.EventPlanDelta)
	for _, msg := range received {
		assert.Contains(t, msg, `"run_id":"client-run"`)
	}
	assert.Empty(t, other)
}

func mustCSV(t *testing.T, in string) *table.Table {
	t.Helper()
	tbl, err := table.FromCSV(strings.NewReader(in))
	require.NoError(t, err)
	return tbl
}
