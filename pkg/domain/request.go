package domain

import (
	"strings"

	"github.com/aretw0/tabloop/pkg/table"
)

// DefaultMaxIterations is the round budget used when a Request leaves it unset.
const DefaultMaxIterations = 10

// Request is the input of one loop invocation.
type Request struct {
	// Question is the natural-language question to answer. Required.
	Question string `json:"question"`

	// Table is the initial working table. Required.
	Table *table.Table `json:"table"`

	// ReferenceSteps is an ordered list of operator names suggested by an
	// upstream planner. It is advisory and only rendered into the prompt.
	ReferenceSteps []string `json:"reference_steps,omitempty"`

	// Catalog describes the operators named in ReferenceSteps.
	Catalog Catalog `json:"catalog,omitempty"`

	// Meta describes how the table was loaded.
	Meta TableMeta `json:"meta,omitempty"`

	// Schema lists the columns judged relevant to the question.
	Schema SchemaHint `json:"schema,omitempty"`

	// RunID identifies the run in events and the ledger. Empty means a
	// generated one. Callers set it to subscribe to a run's events before
	// starting it.
	RunID string `json:"run_id,omitempty"`

	// MaxIterations bounds the number of model rounds. Zero means DefaultMaxIterations.
	MaxIterations int `json:"max_iterations,omitempty"`
}

// Validate checks the required fields.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return ErrEmptyQuestion
	}
	if r.Table == nil {
		return ErrNilTable
	}
	if r.MaxIterations < 0 {
		return ErrInvalidBudget
	}
	return nil
}
