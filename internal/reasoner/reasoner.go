// Package reasoner implements the vision-language reasoning stage: one
// multi-part chat completion that turns a question, the user's figures, and
// the retrieved textbook pages into a step-by-step textual solution.
package reasoner

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
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

// Stage is the reasoning stage. One Stage is shared by all requests.
type Stage struct {
	// chat is the vision-language chat model.
	chat ChatModel
	// gate blocks requests until the serving endpoint is ready.
	gate Awaiter
	// endpoint is the serving endpoint's base URL, probed via gate.
	endpoint string
	// timeout bounds one completion call. Much longer than the probe
	// timeout — generation is slow, probing is not.
	timeout time.Duration
}

// NewStage constructs a reasoning Stage.
func NewStage(chat ChatModel, gate Awaiter, endpoint string, timeout time.Duration) (*Stage, error) {
	if chat == nil {
		return nil, fmt.Errorf("reasoner: chat model must not be nil")
	}
	if gate == nil {
		return nil, fmt.Errorf("reasoner: readiness gate must not be nil")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("reasoner: endpoint must not be empty")
	}
	if timeout <= 0 {
		timeout = provider.RequestTimeoutFromEnv()
	}
	return &Stage{chat: chat, gate: gate, endpoint: endpoint, timeout: timeout}, nil
}

// Analyze waits for the endpoint, builds the multi-part message, and issues
// one completion call. userImages and contextPages are PNG-encoded; either
// may be empty. Returns the completion text verbatim. Completion failures
// and empty responses are wrapped with provider.ErrUpstream; readiness
// failures keep their health classification.
func (s *Stage) Analyze(ctx context.Context, question string, userImages, contextPages [][]byte) (string, error) {
	if err := s.gate.Await(ctx, s.endpoint); err != nil {
		return "", fmt.Errorf("reasoner: endpoint not ready: %w", err)
	}

	msg := buildMessage(question, userImages, contextPages)

	logging.FromContext(ctx).Debug("reasoner: issuing completion",
		slog.Int("user_images", len(userImages)),
		slog.Int("context_pages", len(contextPages)),
	)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.chat.Generate(callCtx, []*schema.Message{msg})
	if err != nil {
		return "", fmt.Errorf("reasoner: completion failed: %w: %v", provider.ErrUpstream, err)
	}
	if resp == nil || resp.Content == "" {
		return "", fmt.Errorf("reasoner: %w: empty completion", provider.ErrUpstream)
	}
	return resp.Content, nil
}

// buildMessage assembles the single user message: instruction preamble plus
// question, then user figures, then a labeled separator and the textbook
// pages. Part order matters — the model associates each image with the text
// preceding it.
func buildMessage(question string, userImages, contextPages [][]byte) *schema.Message {
	parts := make([]schema.ChatMessagePart, 0, len(userImages)+len(contextPages)+2)
	parts = append(parts, schema.ChatMessagePart{
		Type: schema.ChatMessagePartTypeText,
		Text: instructions + "\n\nQuestion: " + question,
	})

	for _, img := range userImages {
		parts = append(parts, imagePart(img))
	}

	if len(contextPages) > 0 {
		parts = append(parts, schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeText,
			Text: contextSeparator,
		})
		for _, page := range contextPages {
			parts = append(parts, imagePart(page))
		}
	}

	return &schema.Message{Role: schema.User, MultiContent: parts}
}

// imagePart wraps one PNG image as an inline data-URL attachment.
func imagePart(png []byte) schema.ChatMessagePart {
	return schema.ChatMessagePart{
		Type: schema.ChatMessagePartTypeImageURL,
		ImageURL: &schema.ChatMessageImageURL{
			URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		},
	}
}
