package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrScriptExhausted is returned once every scripted response was used.
var ErrScriptExhausted = errors.New("script exhausted")

// Script replays canned responses in order, ignoring the prompt.
// It is safe for concurrent use.
type Script struct {
	mu        sync.Mutex
	responses []string
	next      int
	prompts   []string
}

type scriptFile struct {
	Responses []string `yaml:"responses"`
}

// NewScript creates a script model.
func NewScript(responses ...string) *Script {
	return &Script{responses: responses}
}

// LoadScript reads a YAML file with a top-level "responses" list.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	var f scriptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse script file: %w", err)
	}
	if len(f.Responses) == 0 {
		return nil, fmt.Errorf("script file %s has no responses", path)
	}
	return NewScript(f.Responses...), nil
}

// Call implements ports.Model.
func (s *Script) Call(ctx context.Context, prompt string, _ int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if s.next >= len(s.responses) {
		return "", ErrScriptExhausted
	}
	r := s.responses[s.next]
	s.next++
	return r, nil
}

// Prompts returns every prompt received so far.
func (s *Script) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}
