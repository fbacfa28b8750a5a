package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/smallnest/researchchat/graph"
	"github.com/smallnest/researchchat/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

// runState is the state threaded through the tool-calling loop.
type runState struct {
	Messages   []llms.MessageContent
	Pending    []llms.ToolCall
	Iterations int
	Output     string
}

// Runner executes tasks for one agent: the model is called with the agent's
// tools, requested tools run, and their results are fed back until the model
// answers in plain text or the iteration budget is spent.
type Runner struct {
	agent    *Agent
	tools    map[string]tools.Tool
	runnable *graph.StateRunnable[runState]
	logger   log.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the runner's logger.
func WithRunnerLogger(l log.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner builds the agent loop for a.
func NewRunner(a *Agent, opts ...RunnerOption) (*Runner, error) {
	if a == nil || a.Model == nil {
		return nil, fmt.Errorf("agent runner: model is required")
	}
	r := &Runner{
		agent:  a,
		tools:  make(map[string]tools.Tool, len(a.Tools)),
		logger: log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, t := range a.Tools {
		r.tools[t.Name()] = t
	}

	g := graph.NewStateGraph[runState]()
	g.AddNode("agent", "Call the model with the agent's tools", r.callModel)
	g.AddNode("tools", "Execute requested tools", r.executeTools)
	g.SetEntryPoint("agent")
	g.AddConditionalEdge("agent", func(ctx context.Context, s runState) string {
		if len(s.Pending) > 0 {
			return "tools"
		}
		return graph.END
	})
	g.AddEdge("tools", "agent")

	runnable, err := g.Compile()
	if err != nil {
		return nil, err
	}
	r.runnable = runnable
	return r, nil
}

// Execute runs task and returns the agent's final answer.
func (r *Runner) Execute(ctx context.Context, task *Task, taskContext string) (string, error) {
	initial := runState{
		Messages: []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, r.agent.SystemPrompt()),
			llms.TextParts(llms.ChatMessageTypeHuman, task.Prompt(taskContext)),
		},
	}
	// agent + tools per iteration, plus the final answer.
	cfg := &graph.Config{MaxSteps: 2*r.agent.maxIterations() + 2}

	final, err := r.runnable.InvokeWithConfig(ctx, initial, cfg)
	if err != nil {
		if KindOf(err) != KindUnknown {
			return "", err
		}
		return "", classify("agent "+r.agent.Name, err)
	}
	return final.Output, nil
}

func (r *Runner) callModel(ctx context.Context, s runState) (runState, error) {
	opts := callOptions(r.agent.Temperature, r.agent.MaxTokens)
	withTools := len(r.tools) > 0 && s.Iterations < r.agent.maxIterations()
	if withTools {
		opts = append(opts, llms.WithTools(r.toolDefinitions()), llms.WithToolChoice("auto"))
	}

	resp, err := r.agent.Model.GenerateContent(ctx, s.Messages, opts...)
	if err != nil {
		return s, classify("agent "+r.agent.Name, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return s, E(KindUpstream, "agent "+r.agent.Name, ErrEmptyResponse)
	}
	choice := resp.Choices[0]

	if withTools && len(choice.ToolCalls) > 0 {
		parts := make([]llms.ContentPart, 0, len(choice.ToolCalls)+1)
		if choice.Content != "" {
			parts = append(parts, llms.TextPart(choice.Content))
		}
		for _, tc := range choice.ToolCalls {
			parts = append(parts, tc)
		}
		s.Messages = append(s.Messages, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})
		s.Pending = choice.ToolCalls
		return s, nil
	}

	if choice.Content == "" {
		return s, E(KindUpstream, "agent "+r.agent.Name, ErrEmptyResponse)
	}
	s.Messages = append(s.Messages, llms.TextParts(llms.ChatMessageTypeAI, choice.Content))
	s.Pending = nil
	s.Output = choice.Content
	return s, nil
}

func (r *Runner) executeTools(ctx context.Context, s runState) (runState, error) {
	parts := make([]llms.ContentPart, 0, len(s.Pending))
	for _, tc := range s.Pending {
		if tc.FunctionCall == nil {
			continue
		}
		name := tc.FunctionCall.Name
		result := r.callTool(ctx, name, tc.FunctionCall.Arguments)
		parts = append(parts, llms.ToolCallResponse{
			ToolCallID: tc.ID,
			Name:       name,
			Content:    result,
		})
	}
	s.Messages = append(s.Messages, llms.MessageContent{Role: llms.ChatMessageTypeTool, Parts: parts})
	s.Pending = nil
	s.Iterations++
	return s, nil
}

// callTool never fails the loop: errors go back to the model as text.
func (r *Runner) callTool(ctx context.Context, name, arguments string) string {
	t, ok := r.tools[name]
	if !ok {
		return fmt.Sprintf("Tool %s does not exist", name)
	}

	input := arguments
	if arguments != "" {
		var args struct {
			Input string `json:"input"`
		}
		if err := json.Unmarshal([]byte(arguments), &args); err == nil && args.Input != "" {
			input = args.Input
		}
	}

	r.logger.Debug("agent %s calls tool %s", r.agent.Name, name)
	out, err := t.Call(ctx, input)
	if err != nil {
		r.logger.Warn("tool %s failed: %v", name, err)
		return fmt.Sprintf("Tool %s failed: %v", name, err)
	}
	return out
}

func (r *Runner) toolDefinitions() []llms.Tool {
	defs := make([]llms.Tool, 0, len(r.agent.Tools))
	for _, t := range r.agent.Tools {
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"input": map[string]any{
							"type":        "string",
							"description": fmt.Sprintf("Input for the %s tool", t.Name()),
						},
					},
					"required": []string{"input"},
				},
			},
		})
	}
	return defs
}
