// Package gemini adapts the Google Gen AI SDK to ports.Model.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

var tracer = otel.Tracer("github.com/aretw0/tabloop/pkg/adapters/gemini")

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-2.5-flash"

var (
	// ErrAPIKeyRequired is returned by New without an API key.
	ErrAPIKeyRequired = errors.New("GenAI API key is required")

	// ErrEmptyResponse is returned when the API answers without text.
	ErrEmptyResponse = errors.New("GenAI returned no text")
)

// Model implements ports.Model on the Gemini API.
type Model struct {
	client *genai.Client
	model  string
}

// Config holds the client settings.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// New creates a Gemini model.
func New(ctx context.Context, cfg Config) (*Model, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Model{client: client, model: model}, nil
}

// Name returns the configured model name.
func (m *Model) Name() string {
	return m.model
}

// Call implements ports.Model.
func (m *Model) Call(ctx context.Context, prompt string, maxTokens int) (string, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(
			attribute.String("gen_ai.system", "gemini"),
			attribute.String("gen_ai.request.model", m.model),
			attribute.Int("gen_ai.request.max_tokens", maxTokens),
		))
	defer span.End()

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		span.SetStatus(codes.Error, ErrEmptyResponse.Error())
		return "", ErrEmptyResponse
	}
	if u := resp.UsageMetadata; u != nil {
		span.SetAttributes(
			attribute.Int("gen_ai.usage.input_tokens", int(u.PromptTokenCount)),
			attribute.Int("gen_ai.usage.output_tokens", int(u.CandidatesTokenCount)),
		)
	}
	return text, nil
}
