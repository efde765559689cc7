/*
Package tabloop answers natural-language questions about a table by driving a
language model through a bounded, self-directed iteration loop.

Each round the model chooses one action, marked by a tag in its reply:

  - [THINK] or [REFLECT]: reason about the data or a previous result.
  - [CODE]: run a Go snippet against the working table in a sandboxed interpreter.
  - [Final Answer]: stop and answer.

Successful snippets replace the working table; failed ones leave it untouched
and the error is fed back to the model. When the iteration budget runs out the
engine makes one extra call asking for an answer, and falls back to a rendering
of the working table if that fails too.

# Usage

	model := openai.New(os.Getenv("OPENAI_API_KEY"), "")
	eng := tabloop.New(model, tabloop.WithMaxIterations(6))

	t, err := table.FromCSV(f)
	if err != nil {
		log.Fatal(err)
	}
	res, err := eng.Ask(ctx, domain.Request{Question: "Which region sells most?", Table: t})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.Answer)

# Snippets

Snippets are the body of a function with two variables in scope: df
(*table.Table), the working table, and result (any). A snippet either
reassigns df or sets result to a *table.Table or a map[string]any of columns.
The fmt, math, regexp, sort, strconv, strings, time and unicode packages are
pre-imported; no other import is allowed.

# Observability

Lifecycle events (tabloop.plan.*, tabloop.task.*, tabloop.force.*) go to an
injected ports.Sink. Prometheus metrics are available through WithMetrics.
Every finished loop can be recorded in a ledger (memory, Redis or SQLite).
*/
package tabloop
