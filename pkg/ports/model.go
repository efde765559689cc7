package ports

import (
	"context"

	"github.com/aretw0/tabloop/pkg/domain"
	"github.com/aretw0/tabloop/pkg/table"
)

// Model is a text-completion backend.
type Model interface {
	// Call returns the model's completion for prompt, bounded by maxTokens.
	// Any error is treated by the loop as a transport failure.
	Call(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

// Call implements Model.
func (f ModelFunc) Call(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}

// Sandbox executes model-written code against a table.
// Implementations never panic and never return the input table modified.
type Sandbox interface {
	Execute(ctx context.Context, code string, t *table.Table) domain.ExecutionResult
}

// Sink receives lifecycle events. Errors are logged by the caller and never
// interrupt the loop.
type Sink interface {
	Emit(ctx context.Context, name string, payload domain.EventPayload) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, name string, payload domain.EventPayload) error

// Emit implements Sink.
func (f SinkFunc) Emit(ctx context.Context, name string, payload domain.EventPayload) error {
	return f(ctx, name, payload)
}

// Asker runs one loop invocation. It is the interface consumed by the
// driving adapters (HTTP, MCP, CLI).
type Asker interface {
	Run(ctx context.Context, req domain.Request) (*domain.LoopResult, error)
}
