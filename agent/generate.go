package agent

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/llms"
)

// Generate sends a message list to model and returns the first choice's text.
// A negative temperature or a non-positive maxTokens leaves the model default.
func Generate(ctx context.Context, model llms.Model, messages []llms.MessageContent, temperature float64, maxTokens int) (string, error) {
	resp, err := model.GenerateContent(ctx, messages, callOptions(temperature, maxTokens)...)
	if err != nil {
		return "", classify("generate", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", E(KindUpstream, "generate", ErrEmptyResponse)
	}
	return resp.Choices[0].Content, nil
}

// GeneratePrompt is Generate for a single human prompt.
func GeneratePrompt(ctx context.Context, model llms.Model, prompt string, temperature float64, maxTokens int) (string, error) {
	return Generate(ctx, model, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, temperature, maxTokens)
}

func callOptions(temperature float64, maxTokens int) []llms.CallOption {
	var opts []llms.CallOption
	if temperature >= 0 {
		opts = append(opts, llms.WithTemperature(temperature))
	}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}
	return opts
}

func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return E(KindTimeout, op, err)
	}
	return E(KindUpstream, op, err)
}
