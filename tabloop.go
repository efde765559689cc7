package tabloop

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/tabloop/internal/logging"
	"github.com/aretw0/tabloop/internal/runtime"
	"github.com/aretw0/tabloop/internal/sandbox"
	"github.com/aretw0/tabloop/internal/sanitize"
	"github.com/aretw0/tabloop/pkg/domain"
	"github.com/aretw0/tabloop/pkg/ledger"
	"github.com/aretw0/tabloop/pkg/observability"
	"github.com/aretw0/tabloop/pkg/ports"
)

// Engine is the high-level entry point for the tabloop library.
// It wraps the internal runtime and provides a simplified API for consumers.
type Engine struct {
	runtime *runtime.Engine
	ledger  *ledger.Ledger

	sinks       observability.Fanout
	hooks       []domain.LifecycleHooks
	logger      *slog.Logger
	store       ports.LedgerStore
	locker      ports.DistributedLocker
	sandboxOpts []sandbox.Option
	runtimeOpts []runtime.Option
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks. It may be given more than
// once; hooks run in registration order.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, hooks)
	}
}

// WithSink adds a telemetry sink. Several sinks receive every event in order.
func WithSink(sink ports.Sink) Option {
	return func(e *Engine) {
		e.sinks = append(e.sinks, sink)
	}
}

// WithMetrics records events and loop outcomes in Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.sinks = append(e.sinks, m)
		e.hooks = append(e.hooks, m.Hooks())
	}
}

// WithLedgerStore records every finished loop in store.
func WithLedgerStore(store ports.LedgerStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLedgerLocker serialises ledger writes across replicas.
func WithLedgerLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithSandbox replaces the built-in interpreter.
func WithSandbox(s ports.Sandbox) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithSandbox(s))
	}
}

// WithSandboxTimeout bounds each snippet execution.
func WithSandboxTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.sandboxOpts = append(e.sandboxOpts, sandbox.WithTimeout(d))
	}
}

// WithDeniedTerms rejects snippets containing any of terms, on top of the
// built-in denylist.
func WithDeniedTerms(terms ...string) Option {
	return func(e *Engine) {
		e.sandboxOpts = append(e.sandboxOpts, sandbox.WithDeniedTerms(terms...))
	}
}

// WithMaxIterations sets the round budget for requests that leave it unset.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxIterations(n))
	}
}

// WithMaxTokens sets the per-round completion budget.
func WithMaxTokens(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxTokens(n))
	}
}

// WithForceMaxTokens sets the forced-answer completion budget.
func WithForceMaxTokens(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithForceMaxTokens(n))
	}
}

// WithPreviewRows sets how many table rows prompts show.
func WithPreviewRows(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithPreviewRows(n))
	}
}

// New initializes an engine driving model.
func New(model ports.Model, opts ...Option) *Engine {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}

	runtimeOpts := []runtime.Option{
		runtime.WithLogger(eng.logger),
		runtime.WithSandbox(sandbox.New(append([]sandbox.Option{sandbox.WithLogger(eng.logger)}, eng.sandboxOpts...)...)),
		runtime.WithLifecycleHooks(chainHooks(eng.hooks)),
	}
	if len(eng.sinks) > 0 {
		runtimeOpts = append(runtimeOpts, runtime.WithSink(eng.sinks))
	}
	if eng.store != nil {
		var ledgerOpts []ledger.Option
		if eng.locker != nil {
			ledgerOpts = append(ledgerOpts, ledger.WithLocker(eng.locker))
		}
		eng.ledger = ledger.New(eng.store, append(ledgerOpts, ledger.WithLogger(eng.logger))...)
		runtimeOpts = append(runtimeOpts, runtime.WithLedger(eng.ledger))
	}
	// User options come last so WithSandbox overrides the default interpreter.
	runtimeOpts = append(runtimeOpts, eng.runtimeOpts...)

	eng.runtime = runtime.NewEngine(model, runtimeOpts...)
	return eng
}

// Ask sanitises the question and runs one loop.
func (e *Engine) Ask(ctx context.Context, req domain.Request) (*domain.LoopResult, error) {
	q, err := sanitize.Question(req.Question)
	if err != nil {
		return nil, err
	}
	req.Question = q
	return e.runtime.Run(ctx, req)
}

// Run implements ports.Asker.
func (e *Engine) Run(ctx context.Context, req domain.Request) (*domain.LoopResult, error) {
	return e.Ask(ctx, req)
}

// Ledger returns the engine's ledger, or nil when no store is configured.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// chainHooks merges hook sets into one that calls each in order.
func chainHooks(sets []domain.LifecycleHooks) domain.LifecycleHooks {
	if len(sets) == 1 {
		return sets[0]
	}
	var out domain.LifecycleHooks
	for _, h := range sets {
		if h.OnAction != nil {
			prev, next := out.OnAction, h.OnAction
			out.OnAction = func(ctx context.Context, a domain.Action) {
				if prev != nil {
					prev(ctx, a)
				}
				next(ctx, a)
			}
		}
		if h.OnExecution != nil {
			prev, next := out.OnExecution, h.OnExecution
			out.OnExecution = func(ctx context.Context, r domain.ExecutionRecord) {
				if prev != nil {
					prev(ctx, r)
				}
				next(ctx, r)
			}
		}
		if h.OnFinish != nil {
			prev, next := out.OnFinish, h.OnFinish
			out.OnFinish = func(ctx context.Context, r *domain.LoopResult) {
				if prev != nil {
					prev(ctx, r)
				}
				next(ctx, r)
			}
		}
	}
	return out
}
