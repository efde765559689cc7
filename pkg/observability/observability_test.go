package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aretw0/tabloop/pkg/domain"
	"github.com/aretw0/tabloop/pkg/observability"
	"github.com/aretw0/tabloop/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEmitter_SwallowsErrorsAndPanics(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	failing := ports.SinkFunc(func(context.Context, string, domain.EventPayload) error {
		return errors.New("sink down")
	})
	panicking := ports.SinkFunc(func(context.Context, string, domain.EventPayload) error {
		panic("boom")
	})

	assert.NotPanics(t, func() {
		observability.NewEmitter(failing, logger).Emit(context.Background(), domain.EventTaskStart, domain.EventPayload{})
		observability.NewEmitter(panicking, logger).Emit(context.Background(), domain.EventTaskDone, domain.EventPayload{})
		observability.NewEmitter(nil, nil).Emit(context.Background(), domain.EventTaskDone, domain.EventPayload{})
	})
	assert.Contains(t, buf.String(), "sink down")
	assert.Contains(t, buf.String(), "boom")
}

func TestFanout(t *testing.T) {
	a, b := observability.NewRecorder(), observability.NewRecorder()
	failing := ports.SinkFunc(func(context.Context, string, domain.EventPayload) error {
		return errors.New("nope")
	})

	err := observability.Fanout{a, failing, nil, b}.Emit(context.Background(), domain.EventPlanDone, domain.EventPayload{Type: "plan"})
	assert.EqualError(t, err, "nope")
	assert.Equal(t, []string{domain.EventPlanDone}, a.Names())
	assert.Equal(t, []string{domain.EventPlanDone}, b.Names())
	assert.Equal(t, "plan", b.Events()[0].Payload.Type)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := observability.NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)), slog.LevelInfo)

	require.NoError(t, sink.Emit(context.Background(), domain.EventTaskDelta, domain.EventPayload{Type: "task", Operation: "code", Round: 2}))
	assert.Contains(t, buf.String(), "tabloop.task.delta")
	assert.Contains(t, buf.String(), "operation=code")
	assert.Contains(t, buf.String(), "round=2")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	ctx := context.Background()

	require.NoError(t, m.Emit(ctx, domain.EventTaskStart, domain.EventPayload{}))
	require.NoError(t, m.Emit(ctx, domain.EventTaskStart, domain.EventPayload{}))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Events.WithLabelValues(domain.EventTaskStart)))

	hooks := m.Hooks()
	hooks.OnAction(ctx, domain.Action{Kind: domain.ActionCode})
	hooks.OnExecution(ctx, domain.ExecutionRecord{Succeeded: false, Elapsed: 5 * time.Millisecond})
	hooks.OnFinish(ctx, &domain.LoopResult{Success: true, IterationsUsed: 2, AnswerKind: domain.AnswerTagged})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Actions.WithLabelValues("CODE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("true", "", "tagged")))

	count, err := testutil.GatherAndCount(reg, "tabloop_run_iterations")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
