package catalog

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/toolbridge/toolbridge/pkg/models"
)

// enrichConcurrency caps the parallel enrichment fan-out so a large spec does
// not open one upstream call per operation at once.
const enrichConcurrency = 4

// Describer produces, for one operation, a one-sentence human description and
// a short machine-friendly alias. Implementations are best-effort; an error
// leaves the operation's prior description and alias untouched.
type Describer interface {
	Describe(ctx context.Context, op models.OperationDescriptor) (description, alias string, err error)
}

// Enrich asks the describer about every operation in the profile's catalog.
// Calls run in parallel under a bounded worker pool; a failure for one
// operation is logged and discarded without canceling its siblings, so a
// batch enrichment never fails wholesale.
func Enrich(ctx context.Context, profile *models.APIProfile, d Describer) {
	if d == nil || len(profile.Operations) == 0 {
		return
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)

	for key, op := range profile.Operations {
		key, op := key, op
		g.Go(func() error {
			desc, alias, err := d.Describe(ctx, op)
			if err != nil {
				log.Printf("enrichment skipped for %s: %v", key, err)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if desc != "" {
				op.Description = desc
				profile.Operations[key] = op
			}
			if alias != "" {
				if profile.ToolNames == nil {
					profile.ToolNames = make(map[string]string)
				}
				profile.ToolNames[op.OperationID] = alias
			}
			return nil
		})
	}
	g.Wait()
}

// chatCompleter is the slice of the OpenAI client the describer needs.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIDescriber enriches operations through a chat completion model.
type OpenAIDescriber struct {
	client chatCompleter
	model  string
}

// NewOpenAIDescriber creates a describer using the given API key and model.
func NewOpenAIDescriber(apiKey, model string) *OpenAIDescriber {
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	return &OpenAIDescriber{client: openai.NewClient(apiKey), model: model}
}

// Describe asks the model for a one-sentence endpoint description and a short
// snake_case alias, expected on two separate lines.
func (d *OpenAIDescriber) Describe(ctx context.Context, op models.OperationDescriptor) (string, string, error) {
	prompt := fmt.Sprintf(
		"Describe the purpose of this REST endpoint in one sentence, then on a second line suggest a short snake_case tool name for it:\n%s %s",
		strings.ToUpper(op.Method), op.Path)

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       d.model,
		MaxTokens:   60,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", "", err
	}
	if len(resp.Choices) == 0 {
		return "", "", fmt.Errorf("empty completion for %s %s", op.Method, op.Path)
	}

	lines := strings.Split(strings.TrimSpace(resp.Choices[0].Message.Content), "\n")
	description := strings.TrimSpace(lines[0])
	alias := ""
	if len(lines) > 1 {
		alias = sanitizeAlias(lines[len(lines)-1])
	}
	return description, alias, nil
}

// sanitizeAlias reduces a model suggestion to a machine-friendly identifier.
func sanitizeAlias(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ', r == '-':
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
