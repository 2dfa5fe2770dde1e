package worker

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aristath/agentpool/internal/store"
)

const defaultMaxTokens = 8192

// AnthropicInvoker calls the Anthropic Messages API using each agent
// profile's model, temperature, and token budget.
type AnthropicInvoker struct {
	client anthropic.Client
}

// NewAnthropicInvoker creates an invoker. An empty apiKey falls back to
// the SDK's ANTHROPIC_API_KEY environment lookup.
func NewAnthropicInvoker(apiKey string) *AnthropicInvoker {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &AnthropicInvoker{client: anthropic.NewClient(opts...)}
}

// Invoke sends the prompt as a single user message under the agent's
// system prompt and concatenates the text blocks of the reply.
func (a *AnthropicInvoker) Invoke(ctx context.Context, agent *store.Agent, prompt string) (string, error) {
	maxTokens := int64(agent.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(agent.Model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: agent.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if agent.Temperature > 0 {
		params.Temperature = anthropic.Float(agent.Temperature)
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("messages API call failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += variant.Text
		}
	}
	return text, nil
}
