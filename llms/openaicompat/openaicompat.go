// Package openaicompat adapts any OpenAI-compatible chat endpoint to
// langchaingo's llms.Model.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
)

var (
	ErrEmptyResponse = errors.New("no response")
	ErrMissingAPIKey = errors.New("OPENAI_API_KEY not set")
)

// LLM is a chat model served over the OpenAI wire protocol.
type LLM struct {
	client           *openai.Client
	model            string
	embeddingModel   string
	CallbacksHandler callbacks.Handler
}

var _ llms.Model = (*LLM)(nil)

// New returns a client. Without WithAPIKey, OPENAI_API_KEY is used.
//
//	llm, err := openaicompat.New(
//		openaicompat.WithBaseURL("https://openrouter.ai/api/v1"),
//		openaicompat.WithModel("google/gemini-2.5-flash"),
//	)
func New(opts ...Option) (*LLM, error) {
	o := &options{
		apiKey:         getEnvOrDefault("OPENAI_API_KEY", ""),
		baseURL:        getEnvOrDefault("OPENAI_BASE_URL", DefaultBaseURL),
		model:          DefaultModel,
		embeddingModel: DefaultEmbeddingModel,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	cfg := openai.DefaultConfig(o.apiKey)
	cfg.BaseURL = o.baseURL
	if o.httpClient != nil {
		cfg.HTTPClient = o.httpClient
	}

	return &LLM{
		client:           openai.NewClientWithConfig(cfg),
		model:            o.model,
		embeddingModel:   o.embeddingModel,
		CallbacksHandler: o.callbacksHandler,
	}, nil
}

// Call generates a response from the LLM for the given prompt.
func (l *LLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, l, prompt, options...)
}

// GenerateContent implements the Model interface.
func (l *LLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if l.CallbacksHandler != nil {
		l.CallbacksHandler.HandleLLMGenerateContentStart(ctx, messages)
	}

	opts := &llms.CallOptions{}
	for _, opt := range options {
		opt(opts)
	}

	req := openai.ChatCompletionRequest{
		Model:       l.model,
		Messages:    convertMessages(messages),
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
		TopP:        float32(opts.TopP),
		Stop:        opts.StopWords,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	for _, t := range opts.Tools {
		if t.Function == nil {
			continue
		}
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	if len(req.Tools) > 0 && opts.ToolChoice != nil {
		req.ToolChoice = opts.ToolChoice
	}

	result, err := l.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if l.CallbacksHandler != nil {
			l.CallbacksHandler.HandleLLMError(ctx, err)
		}
		return nil, err
	}
	if len(result.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	resp := &llms.ContentResponse{}
	for _, c := range result.Choices {
		choice := &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: string(c.FinishReason),
			GenerationInfo: map[string]any{
				"prompt_tokens":     result.Usage.PromptTokens,
				"completion_tokens": result.Usage.CompletionTokens,
				"total_tokens":      result.Usage.TotalTokens,
			},
		}
		for _, tc := range c.Message.ToolCalls {
			choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
				ID:   tc.ID,
				Type: string(tc.Type),
				FunctionCall: &llms.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		resp.Choices = append(resp.Choices, choice)
	}

	if l.CallbacksHandler != nil {
		l.CallbacksHandler.HandleLLMGenerateContentEnd(ctx, resp)
	}
	return resp, nil
}

// CreateEmbedding embeds texts with the configured embedding model. It
// satisfies langchaingo's embeddings.EmbedderClient.
func (l *LLM) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := l.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(l.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("create embedding: got %d vectors for %d texts", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("create embedding: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func convertMessages(messages []llms.MessageContent) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		var text strings.Builder
		var calls []openai.ToolCall
		var responses []llms.ToolCallResponse
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				text.WriteString(p.Text)
			case llms.ToolCall:
				if p.FunctionCall == nil {
					continue
				}
				calls = append(calls, openai.ToolCall{
					ID:   p.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      p.FunctionCall.Name,
						Arguments: p.FunctionCall.Arguments,
					},
				})
			case llms.ToolCallResponse:
				responses = append(responses, p)
			}
		}

		// Every tool response is its own message on the wire.
		if len(responses) > 0 {
			for _, r := range responses {
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    r.Content,
					Name:       r.Name,
					ToolCallID: r.ToolCallID,
				})
			}
			continue
		}

		out = append(out, openai.ChatCompletionMessage{
			Role:      roleOf(msg.Role),
			Content:   text.String(),
			ToolCalls: calls,
		})
	}
	return out
}

func roleOf(t llms.ChatMessageType) string {
	switch t {
	case llms.ChatMessageTypeSystem:
		return openai.ChatMessageRoleSystem
	case llms.ChatMessageTypeAI:
		return openai.ChatMessageRoleAssistant
	case llms.ChatMessageTypeTool:
		return openai.ChatMessageRoleTool
	default:
		return openai.ChatMessageRoleUser
	}
}
