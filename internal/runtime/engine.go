// Package runtime implements the loop controller.
//
// One invocation of Engine.Run drives a model through at most MaxIterations
// rounds. Each round the model either reasons ([THINK]), runs a snippet
// against the working table ([CODE]) or answers ([Final Answer]). When the
// budget runs out the engine makes one extra forced call for an answer, with
// a deterministic fallback when that call fails too.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/tabloop/internal/dialogue"
	"github.com/aretw0/tabloop/internal/logging"
	"github.com/aretw0/tabloop/internal/sandbox"
	"github.com/aretw0/tabloop/internal/transcript"
	"github.com/aretw0/tabloop/pkg/domain"
	"github.com/aretw0/tabloop/pkg/observability"
	"github.com/aretw0/tabloop/pkg/ports"
	"github.com/aretw0/tabloop/pkg/table"
	"github.com/google/uuid"
)

const (
	// DefaultMaxTokens bounds each round's completion.
	DefaultMaxTokens = 3072

	// DefaultForceMaxTokens bounds the forced-answer completion.
	DefaultForceMaxTokens = 4096

	// DefaultPreviewRows is how many rows prompts and feedback show.
	DefaultPreviewRows = 20

	forceRecentEntries = 5
	forceRecentChars   = 3000
	fallbackRows       = 10
)

// Engine is the loop controller. It holds no per-invocation state, so one
// Engine can serve concurrent Run calls.
type Engine struct {
	model          ports.Model
	sandbox        ports.Sandbox
	sink           ports.Sink
	ledger         ports.LedgerStore
	hooks          domain.LifecycleHooks
	logger         *slog.Logger
	maxIterations  int
	maxTokens      int
	forceMaxTokens int
	previewRows    int
}

// Option configures an Engine.
type Option func(*Engine)

// WithSandbox replaces the default yaegi sandbox.
func WithSandbox(s ports.Sandbox) Option {
	return func(e *Engine) {
		e.sandbox = s
	}
}

// WithSink sets the telemetry sink.
func WithSink(s ports.Sink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithLedger records every finished loop in store.
func WithLedger(store ports.LedgerStore) Option {
	return func(e *Engine) {
		e.ledger = store
	}
}

// WithLifecycleHooks sets the lifecycle hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMaxIterations sets the round budget used when a request leaves it unset.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// WithMaxTokens sets the per-round completion budget.
func WithMaxTokens(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithForceMaxTokens sets the forced-answer completion budget.
func WithForceMaxTokens(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.forceMaxTokens = n
		}
	}
}

// WithPreviewRows sets how many rows prompts show.
func WithPreviewRows(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.previewRows = n
		}
	}
}

// NewEngine creates an engine driving model.
func NewEngine(model ports.Model, opts ...Option) *Engine {
	e := &Engine{
		model:          model,
		logger:         logging.NewNop(),
		maxIterations:  domain.DefaultMaxIterations,
		maxTokens:      DefaultMaxTokens,
		forceMaxTokens: DefaultForceMaxTokens,
		previewRows:    DefaultPreviewRows,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sandbox == nil {
		e.sandbox = sandbox.New(sandbox.WithLogger(e.logger))
	}
	return e
}

// invocation is the state of one Run call.
type invocation struct {
	*Engine
	req     domain.Request
	budget  int
	log     *transcript.Log
	working *table.Table
	result  *domain.LoopResult
	events  *observability.Emitter
	logger  *slog.Logger
}

// Run drives one loop. The error is only for invalid requests; model and
// sandbox failures are reported through the result.
func (e *Engine) Run(ctx context.Context, req domain.Request) (*domain.LoopResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := req.Table.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNilTable, err)
	}
	budget := req.MaxIterations
	if budget == 0 {
		budget = e.maxIterations
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := e.logger.With("run_id", runID)
	inv := &invocation{
		Engine:  e,
		req:     req,
		budget:  budget,
		working: req.Table,
		result: &domain.LoopResult{
			RunID:      runID,
			AnswerKind: domain.AnswerNone,
		},
		events: observability.NewEmitter(e.sink, logger),
		logger: logger,
	}

	prompt, err := e.taskPrompt(req, budget)
	if err != nil {
		return nil, err
	}
	inv.log = transcript.New(prompt)

	logger.Info("loop started", "budget", budget, "shape", req.Table.Shape().String())
	inv.announcePlan(ctx)
	return inv.loop(ctx), nil
}

func (inv *invocation) emit(ctx context.Context, name string, p domain.EventPayload) {
	p.RunID = inv.result.RunID
	inv.events.Emit(ctx, name, p)
}

func (inv *invocation) announcePlan(ctx context.Context) {
	var b strings.Builder
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "AUTONOMOUS LOOP EXECUTION (max %d iterations)\n", inv.budget)
	fmt.Fprintf(&b, "Reference Operator Sequence: %s\n", strings.Join(inv.req.ReferenceSteps, " → "))
	b.WriteString("   (the model can follow or deviate based on its judgment)\n")

	inv.emit(ctx, domain.EventPlanDelta, domain.EventPayload{Type: "plan", Content: b.String()})
	inv.emit(ctx, domain.EventPlanDone, domain.EventPayload{Type: "plan", Content: "<plan_done>"})
}

func (inv *invocation) loop(ctx context.Context) *domain.LoopResult {
	for round := 1; round <= inv.budget; round++ {
		inv.emit(ctx, domain.EventTaskStart, domain.EventPayload{
			Type:      "reasoning",
			Operation: fmt.Sprintf("Iteration %d/%d", round, inv.budget),
			Content:   "<reasoning_start>",
			Round:     round,
		})

		response, err := inv.model.Call(ctx, inv.log.Prompt(), inv.maxTokens)
		if err != nil {
			inv.logger.Error("model call failed", "round", round, "error", err)
			inv.result.Reason = domain.ReasonModelError
			inv.result.Error = err.Error()
			inv.result.IterationsUsed = round - 1
			return inv.finish(ctx)
		}
		inv.log.Append(responseEntry(round, response))

		action := dialogue.Parse(round, response)
		inv.result.Actions = append(inv.result.Actions, action)
		if inv.hooks.OnAction != nil {
			inv.hooks.OnAction(ctx, action)
		}
		inv.logger.Debug("round classified", "round", round, "kind", action.Kind)

		switch action.Kind {
		case domain.ActionFinalAnswer:
			inv.result.Answer = dialogue.ExtractFinalAnswer(response)
			inv.result.AnswerKind = domain.AnswerTagged
			inv.result.Success = true
			inv.result.IterationsUsed = round
			inv.emit(ctx, domain.EventTaskDone, domain.EventPayload{
				Type:      "final answer",
				Operation: "[FINAL_ANSWER]",
				Content:   "Finished",
				Round:     round,
			})
			return inv.finish(ctx)
		case domain.ActionCode:
			inv.code(ctx, round, response)
		case domain.ActionThink:
			inv.think(ctx, round, response)
		default:
			inv.unknown(ctx, round)
		}
	}

	inv.result.IterationsUsed = inv.budget
	inv.result.Reason = domain.ReasonMaxIterations
	inv.force(ctx)
	return inv.finish(ctx)
}

func (inv *invocation) code(ctx context.Context, round int, response string) {
	code := dialogue.ExtractCode(response)
	if dialogue.IsPlaceholder(code) {
		inv.logger.Warn("no code extracted", "round", round)
		inv.log.Append(feedbackEntry(emptyCodeCorrection))
		return
	}

	inv.emit(ctx, domain.EventTaskDelta, domain.EventPayload{
		Type:      "code_generation",
		Operation: "[CODE]",
		Content:   code,
		Mode:      "code",
		Clean:     true,
		Round:     round,
	})

	res := inv.sandbox.Execute(ctx, code, inv.working)
	rec := domain.ExecutionRecord{
		Round:     round,
		Code:      code,
		Succeeded: res.Succeeded,
		Error:     res.Error,
		Elapsed:   res.Elapsed,
		Stdout:    res.Stdout,
	}
	trace := domain.TraceEntry{
		Round:     round,
		Action:    domain.TraceCodeExecution,
		Code:      code,
		Succeeded: res.Succeeded,
		Error:     res.Error,
	}

	var feedback string
	var err error
	if res.Succeeded {
		inv.working = res.Table
		shape := inv.working.Shape()
		rec.Shape = shape
		trace.Shape = &shape
		feedback, err = inv.successFeedback(inv.working, res.Stdout)
		inv.emit(ctx, domain.EventTaskDone, domain.EventPayload{
			Type:      "code_execution",
			Operation: "[CODE] | Execution Success",
			Content:   fmt.Sprintf("Execution Success: (Shape: %s)", shape),
			Round:     round,
		})
	} else {
		rec.Shape = inv.working.Shape()
		feedback, err = failureFeedback(res.Error)
		inv.emit(ctx, domain.EventTaskDone, domain.EventPayload{
			Type:      "code_execution",
			Operation: fmt.Sprintf("[CODE] | Execution Failed: 「%s...」", truncate(res.Error, 50)),
			Content:   "Execution Failed: " + res.Error,
			Round:     round,
		})
	}
	if err != nil {
		inv.logger.Error("feedback rendering failed", "round", round, "error", err)
		feedback = plainFeedback(res, inv.working)
	}
	inv.log.Append(feedback)

	inv.result.Trace = append(inv.result.Trace, trace)
	inv.result.Executions = append(inv.result.Executions, rec)
	if inv.hooks.OnExecution != nil {
		inv.hooks.OnExecution(ctx, rec)
	}
	inv.logger.Debug("snippet executed", "round", round, "succeeded", res.Succeeded, "elapsed", res.Elapsed)
}

func (inv *invocation) think(ctx context.Context, round int, response string) {
	thought := dialogue.ExtractThink(response)
	inv.emit(ctx, domain.EventTaskDelta, domain.EventPayload{
		Type:      "reflection",
		Operation: "[THINK]",
		Content:   thought,
		Clean:     true,
		Round:     round,
	})
	inv.result.Trace = append(inv.result.Trace, domain.TraceEntry{
		Round:     round,
		Action:    domain.TraceThink,
		Content:   thought,
		Succeeded: true,
	})
	inv.log.Append(thinkContinuation)
	inv.emit(ctx, domain.EventTaskDone, domain.EventPayload{
		Type:      "reflection",
		Operation: "[THINK]",
		Content:   "<task_done>",
		Round:     round,
	})
}

func (inv *invocation) unknown(ctx context.Context, round int) {
	inv.logger.Warn("no action tag detected", "round", round)
	inv.emit(ctx, domain.EventTaskDelta, domain.EventPayload{
		Type:      "reflection",
		Operation: "[UNKNOWN]",
		Content:   unknownNotice,
		Clean:     true,
		Round:     round,
	})
	inv.log.Append(tagReminder)
	inv.emit(ctx, domain.EventTaskDone, domain.EventPayload{
		Type:      "reflection",
		Operation: "[UNKNOWN]",
		Content:   "<task_done>",
		Round:     round,
	})
}

// force makes the out-of-budget call for a final answer.
func (inv *invocation) force(ctx context.Context) {
	inv.logger.Warn("iteration budget exhausted, forcing final answer", "budget", inv.budget)
	inv.emit(ctx, domain.EventForceStart, domain.EventPayload{
		Type:      "reflection",
		Operation: "[FORCE FINAL ANSWER]",
		Content:   fmt.Sprintf("Reached maximum iterations (%d)\nForcing final answer extraction...", inv.budget),
		Clean:     true,
	})

	answer, kind := inv.forcedAnswer(ctx)
	inv.result.Answer = answer
	inv.result.AnswerKind = kind

	inv.emit(ctx, domain.EventForceDelta, domain.EventPayload{
		Type:      "reflection",
		Operation: "[FORCE FINAL ANSWER]",
		Content:   answer,
		Clean:     true,
	})
}

func (inv *invocation) forcedAnswer(ctx context.Context) (string, domain.AnswerKind) {
	recent := inv.log.Recent(forceRecentEntries, forceRecentChars)
	prompt, err := inv.forcePrompt(inv.req.Question, inv.working, inv.req.Meta, recent)
	if err == nil {
		var response string
		response, err = inv.model.Call(ctx, prompt, inv.forceMaxTokens)
		if err == nil {
			return dialogue.ExtractFinalAnswer(response), domain.AnswerForced
		}
	}
	inv.logger.Error("forced answer failed, using table fallback", "error", err)
	return fallbackAnswer(inv.working)
}

// fallbackAnswer renders the working table when no model answer is available.
func fallbackAnswer(t *table.Table) (string, domain.AnswerKind) {
	if t.IsEmpty() {
		return domain.NoDataAnswer, domain.AnswerNoData
	}
	return fmt.Sprintf("Based on the processed data (shape: %s), here are the results:\n%s",
		t.Shape(), t.Head(fallbackRows)), domain.AnswerTableFallback
}

func (inv *invocation) finish(ctx context.Context) *domain.LoopResult {
	res := inv.result
	res.Table = inv.working
	if inv.hooks.OnFinish != nil {
		inv.hooks.OnFinish(ctx, res)
	}
	inv.record(ctx)
	inv.logger.Info("loop finished",
		"success", res.Success,
		"iterations", res.IterationsUsed,
		"reason", res.Reason,
		"answer_kind", res.AnswerKind,
	)
	return res
}

// record appends the outcome to the ledger. Failures are logged only.
func (inv *invocation) record(ctx context.Context) {
	if inv.ledger == nil {
		return
	}
	res := inv.result
	entry := domain.LedgerEntry{
		ID:             uuid.NewString(),
		RunID:          res.RunID,
		Question:       inv.req.Question,
		Success:        res.Success,
		IterationsUsed: res.IterationsUsed,
		Reason:         res.Reason,
		Answer:         res.Answer,
		CreatedAt:      time.Now().UTC(),
	}
	if err := inv.ledger.Append(context.WithoutCancel(ctx), entry); err != nil {
		inv.logger.Warn("ledger append failed", "error", err)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
