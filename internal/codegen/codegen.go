// Package codegen implements the code-generation stage: one chat completion
// that turns the question and the reasoned solution into a schemdraw program,
// plus the layered extraction that recovers the program from whatever format
// the model actually answered in.
package codegen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/voltlab/eetutor-go/internal/logging"
	"github.com/voltlab/eetutor-go/internal/provider"
)

// ChatModel is the completion surface the stage needs. Satisfied by any eino
// chat model; tests substitute a fake.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Awaiter blocks until an endpoint is ready to serve. Satisfied by
// health.Gate.
type Awaiter interface {
	Await(ctx context.Context, endpoint string) error
}

// Stage is the code-generation stage. One Stage is shared by all requests.
type Stage struct {
	chat     ChatModel
	gate     Awaiter
	endpoint string
	timeout  time.Duration
}

// NewStage constructs a code-generation Stage.
func NewStage(chat ChatModel, gate Awaiter, endpoint string, timeout time.Duration) (*Stage, error) {
	if chat == nil {
		return nil, fmt.Errorf("codegen: chat model must not be nil")
	}
	if gate == nil {
		return nil, fmt.Errorf("codegen: readiness gate must not be nil")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("codegen: endpoint must not be empty")
	}
	if timeout <= 0 {
		timeout = provider.RequestTimeoutFromEnv()
	}
	return &Stage{chat: chat, gate: gate, endpoint: endpoint, timeout: timeout}, nil
}

// Generate waits for the endpoint, renders the few-shot prompt with the
// question and solution, and extracts the diagram program from the response.
// The extracted program is returned unvalidated — syntax errors surface in
// the compiler, structured. Completion failures are wrapped with
// provider.ErrUpstream.
func (s *Stage) Generate(ctx context.Context, question, solution string) (string, error) {
	if err := s.gate.Await(ctx, s.endpoint); err != nil {
		return "", fmt.Errorf("codegen: endpoint not ready: %w", err)
	}

	prompt := strings.ReplaceAll(promptTemplate, "{question}", question)
	prompt = strings.ReplaceAll(prompt, "{solution}", solution)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.chat.Generate(callCtx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(prompt),
	})
	if err != nil {
		return "", fmt.Errorf("codegen: completion failed: %w: %v", provider.ErrUpstream, err)
	}
	if resp == nil || resp.Content == "" {
		return "", fmt.Errorf("codegen: %w: empty completion", provider.ErrUpstream)
	}

	program := extractProgram(resp.Content)
	logging.FromContext(ctx).Debug("codegen: program extracted",
		slog.Int("response_len", len(resp.Content)),
		slog.Int("program_len", len(program)),
	)
	return program, nil
}
