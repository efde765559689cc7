package domain

import (
	"time"

	"github.com/aretw0/tabloop/pkg/table"
)

// ExecutionRecord is the outcome of one sandbox run.
type ExecutionRecord struct {
	Round     int           `json:"round"`
	Code      string        `json:"code"`
	Succeeded bool          `json:"succeeded"`
	Error     string        `json:"error,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
	Shape     table.Shape   `json:"shape"`
	Stdout    string        `json:"stdout,omitempty"`
}

// Trace actions.
const (
	TraceThink         = "THINK"
	TraceCodeExecution = "CODE_EXECUTION"
)

// TraceEntry is one reasoning or code step surfaced to the caller.
type TraceEntry struct {
	Round     int          `json:"round"`
	Action    string       `json:"action"`
	Content   string       `json:"content,omitempty"`
	Code      string       `json:"code,omitempty"`
	Succeeded bool         `json:"succeeded"`
	Error     string       `json:"error,omitempty"`
	Shape     *table.Shape `json:"shape,omitempty"`
}

// ExecutionResult is what a sandbox returns for one snippet. On failure Table
// is the input table.
type ExecutionResult struct {
	Succeeded bool
	Table     *table.Table
	Error     string
	Stdout    string
	Elapsed   time.Duration
}
