// Package query performs single LLM calls with bounded retry, backoff
// and timeout, classifying provider errors as transient or permanent.
// Every terminal state is a value; nothing here panics or aborts
// sibling work.
package query

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mindshare-cli/internal/model"
	"github.com/sells-group/mindshare-cli/internal/resilience"
	"github.com/sells-group/mindshare-cli/pkg/anthropic"
	"github.com/sells-group/mindshare-cli/pkg/openai"
	"github.com/sells-group/mindshare-cli/pkg/perplexity"
)

// Answer is the provider-agnostic success payload of one call.
type Answer struct {
	Text  string
	Usage model.TokenUsage
}

// Client performs one chat-style call against a provider. Errors carry
// transient/permanent classification for the executor's retry loop.
type Client interface {
	Ask(ctx context.Context, modelID, prompt string) (*Answer, error)
}

// Known provider names, the keys of the client factory.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderPerplexity = "perplexity"
)

// NewClient builds a provider client by name. Unknown providers are a
// configuration error, surfaced before any work is dispatched.
func NewClient(provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return &anthropicAdapter{c: anthropic.NewClient(apiKey)}, nil
	case ProviderOpenAI:
		return &openaiAdapter{c: openai.NewClient(apiKey)}, nil
	case ProviderPerplexity:
		return &perplexityAdapter{c: perplexity.NewClient(apiKey)}, nil
	default:
		return nil, eris.Errorf("query: unknown provider %q", provider)
	}
}

type anthropicAdapter struct {
	c anthropic.Client
}

func (a *anthropicAdapter) Ask(ctx context.Context, modelID, prompt string) (*Answer, error) {
	resp, err := a.c.CreateMessage(ctx, anthropic.MessageRequest{
		Model:  modelID,
		Prompt: prompt,
	})
	if err != nil {
		if code, ok := anthropic.StatusCode(err); ok {
			return nil, resilience.ClassifyHTTPStatus(err, code)
		}
		return nil, err
	}
	return &Answer{
		Text: resp.Text,
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

type openaiAdapter struct {
	c openai.Client
}

func (a *openaiAdapter) Ask(ctx context.Context, modelID, prompt string) (*Answer, error) {
	resp, err := a.c.ChatCompletion(ctx, openai.ChatRequest{
		Model:  modelID,
		Prompt: prompt,
	})
	if err != nil {
		if code, ok := openai.StatusCode(err); ok {
			return nil, resilience.ClassifyHTTPStatus(err, code)
		}
		return nil, err
	}
	return &Answer{
		Text: resp.Text,
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

type perplexityAdapter struct {
	c perplexity.Client
}

func (a *perplexityAdapter) Ask(ctx context.Context, modelID, prompt string) (*Answer, error) {
	resp, err := a.c.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model:    modelID,
		Messages: []perplexity.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		if code, ok := perplexity.StatusCode(err); ok {
			return nil, resilience.ClassifyHTTPStatus(err, code)
		}
		return nil, err
	}
	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	return &Answer{
		Text: text,
		Usage: model.TokenUsage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
		},
	}, nil
}
