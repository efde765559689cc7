package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/tabloop/internal/logging"
	"github.com/aretw0/tabloop/pkg/domain"
	"github.com/aretw0/tabloop/pkg/ports"
)

// Emitter delivers events to a sink without ever failing the caller.
// A nil sink makes every emission a no-op.
type Emitter struct {
	sink   ports.Sink
	logger *slog.Logger
}

// NewEmitter wraps sink. A nil logger discards failures.
func NewEmitter(sink ports.Sink, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Emitter{sink: sink, logger: logger}
}

// Emit sends one event. Sink errors and panics are logged and swallowed.
func (e *Emitter) Emit(ctx context.Context, name string, payload domain.EventPayload) {
	if e == nil || e.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("telemetry sink panicked", "event", name, "panic", r)
		}
	}()
	if err := e.sink.Emit(ctx, name, payload); err != nil {
		e.logger.Warn("telemetry emit failed", "event", name, "error", err)
	}
}
