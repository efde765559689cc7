// Package openai adapts OpenAI-compatible chat completion APIs to ports.Model.
package openai

import (
	"context"
	"errors"
	"fmt"

	backend "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/aretw0/tabloop/pkg/adapters/openai")

// DefaultModel is used when no model name is configured.
const DefaultModel = "gpt-4o-mini"

// ErrNoChoices is returned when the API answers without any completion.
var ErrNoChoices = errors.New("openai api call: no choices returned")

// Model implements ports.Model with a single-message chat completion.
type Model struct {
	client      *backend.Client
	model       string
	temperature float32
}

type Option func(*Model)

// WithModel sets the model name.
func WithModel(name string) Option {
	return func(m *Model) {
		if name != "" {
			m.model = name
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(m *Model) {
		m.temperature = t
	}
}

// New creates a model for apiKey. A non-empty baseURL points the client at
// another OpenAI-compatible server; it must include the version path
// (for example "http://localhost:8000/v1").
func New(apiKey, baseURL string, opts ...Option) *Model {
	config := backend.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return NewFromClient(backend.NewClientWithConfig(config), opts...)
}

// NewFromClient creates a model from a pre-configured client.
func NewFromClient(client *backend.Client, opts ...Option) *Model {
	m := &Model{client: client, model: DefaultModel}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the configured model name.
func (m *Model) Name() string {
	return m.model
}

// Call implements ports.Model.
func (m *Model) Call(ctx context.Context, prompt string, maxTokens int) (string, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(
			attribute.String("gen_ai.system", "openai"),
			attribute.String("gen_ai.request.model", m.model),
			attribute.Int("gen_ai.request.max_tokens", maxTokens),
		))
	defer span.End()

	resp, err := m.client.CreateChatCompletion(ctx, backend.ChatCompletionRequest{
		Model: m.model,
		Messages: []backend.ChatCompletionMessage{
			{Role: backend.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: m.temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("openai api call: %w", err)
	}
	if len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, ErrNoChoices.Error())
		return "", ErrNoChoices
	}

	span.SetAttributes(
		attribute.Int("gen_ai.usage.input_tokens", resp.Usage.PromptTokens),
		attribute.Int("gen_ai.usage.output_tokens", resp.Usage.CompletionTokens),
		attribute.String("gen_ai.response.finish_reason", string(resp.Choices[0].FinishReason)),
	)
	return resp.Choices[0].Message.Content, nil
}
