package domain

import "github.com/aretw0/tabloop/pkg/table"

// Termination reasons.
const (
	ReasonMaxIterations = "max_iterations_reached"
	ReasonModelError    = "model_error"
)

// AnswerKind tells how LoopResult.Answer was obtained.
type AnswerKind string

const (
	// AnswerTagged is an answer the model produced with the [Final Answer] tag.
	AnswerTagged AnswerKind = "tagged"
	// AnswerForced comes from the out-of-budget forced call.
	AnswerForced AnswerKind = "forced"
	// AnswerTableFallback is a rendering of the first rows of the working table.
	AnswerTableFallback AnswerKind = "table_fallback"
	// AnswerNoData is the fixed message used when the working table is empty.
	AnswerNoData AnswerKind = "no_data"
	// AnswerNone means the loop stopped before any answer was produced.
	AnswerNone AnswerKind = "none"
)

// NoDataAnswer is the fallback answer for an empty working table.
const NoDataAnswer = "No data available to answer the question."

// LoopResult is the terminal outcome of one loop invocation.
type LoopResult struct {
	RunID          string            `json:"run_id"`
	Table          *table.Table      `json:"table"`
	Answer         string            `json:"answer"`
	AnswerKind     AnswerKind        `json:"answer_kind"`
	Trace          []TraceEntry      `json:"trace"`
	Executions     []ExecutionRecord `json:"executions"`
	Actions        []Action          `json:"actions"`
	IterationsUsed int               `json:"iterations_used"`
	Success        bool              `json:"success"`
	Reason         string            `json:"reason,omitempty"`
	Error          string            `json:"error,omitempty"`
}
