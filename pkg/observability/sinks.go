package observability

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/aretw0/tabloop/pkg/domain"
	"github.com/aretw0/tabloop/pkg/ports"
)

// LogSink writes every event as a structured log record.
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogSink logs events at the given level.
func NewLogSink(logger *slog.Logger, level slog.Level) *LogSink {
	return &LogSink{logger: logger, level: level}
}

// Emit implements ports.Sink.
func (s *LogSink) Emit(ctx context.Context, name string, p domain.EventPayload) error {
	s.logger.Log(ctx, s.level, name,
		"type", p.Type,
		"operation", p.Operation,
		"round", p.Round,
		"run_id", p.RunID,
		"content_len", len(p.Content),
	)
	return nil
}

// Recorder keeps every event in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit implements ports.Sink.
func (r *Recorder) Emit(_ context.Context, name string, p domain.EventPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, domain.Event{Name: name, Payload: p})
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// Names returns the recorded event names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, e := range r.events {
		names[i] = e.Name
	}
	return names
}

// Fanout delivers each event to every sink, in order. A failing sink does not
// stop the others; their errors are joined.
type Fanout []ports.Sink

// Emit implements ports.Sink.
func (f Fanout) Emit(ctx context.Context, name string, p domain.EventPayload) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, name, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
