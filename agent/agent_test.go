package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"

	"github.com/smallnest/researchchat/agent/agenttest"
	"github.com/smallnest/researchchat/event"
	"github.com/smallnest/researchchat/log"
)

type echoTool struct {
	name  string
	calls []string
	err   error
}

func (t *echoTool) Name() string        { return t.name }
func (t *echoTool) Description() string { return "echoes its input" }
func (t *echoTool) Call(ctx context.Context, input string) (string, error) {
	t.calls = append(t.calls, input)
	if t.err != nil {
		return "", t.err
	}
	return "Result: " + input, nil
}

func toolCall(id, name, args string) llms.ContentChoice {
	return llms.ContentChoice{ToolCalls: []llms.ToolCall{{
		ID:           id,
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
	}}}
}

func TestRunner_PlainAnswer(t *testing.T) {
	model := agenttest.NewText("final answer")
	r, err := NewRunner(&Agent{Name: "writer", Role: "Writer", Goal: "write", Model: model}, WithRunnerLogger(log.Discard))
	require.NoError(t, err)

	out, err := r.Execute(context.Background(), &Task{Description: "Write something"}, "")
	require.NoError(t, err)
	assert.Equal(t, "final answer", out)

	reqs := model.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, llms.ChatMessageTypeSystem, reqs[0][0].Role)
	assert.Contains(t, agenttest.Text(reqs[0]), "You are Writer.")
	assert.Contains(t, agenttest.Text(reqs[0]), "Write something")
}

func TestRunner_ToolLoop(t *testing.T) {
	search := &echoTool{name: "search"}
	model := agenttest.NewChoices(
		toolCall("call_1", "search", `{"input":"golang"}`),
		llms.ContentChoice{Content: "golang is a language"},
	)
	r, err := NewRunner(&Agent{Name: "web", Role: "Researcher", Model: model, Tools: []tools.Tool{search}}, WithRunnerLogger(log.Discard))
	require.NoError(t, err)

	out, err := r.Execute(context.Background(), &Task{Description: "Research golang"}, "")
	require.NoError(t, err)
	assert.Equal(t, "golang is a language", out)
	assert.Equal(t, []string{"golang"}, search.calls)

	reqs := model.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1][len(reqs[1])-1]
	assert.Equal(t, llms.ChatMessageTypeTool, last.Role)
	resp, ok := last.Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "call_1", resp.ToolCallID)
	assert.Equal(t, "Result: golang", resp.Content)

	require.Len(t, model.Options()[0].Tools, 1)
	assert.Equal(t, "search", model.Options()[0].Tools[0].Function.Name)
}

func TestRunner_ToolErrorsAreFedBack(t *testing.T) {
	broken := &echoTool{name: "search", err: errors.New("quota exceeded")}
	model := agenttest.NewChoices(
		toolCall("c1", "search", `{"input":"x"}`),
		toolCall("c2", "missing", `{"input":"y"}`),
		llms.ContentChoice{Content: "done anyway"},
	)
	r, err := NewRunner(&Agent{Name: "web", Role: "Researcher", Model: model, Tools: []tools.Tool{broken}}, WithRunnerLogger(log.Discard))
	require.NoError(t, err)

	out, err := r.Execute(context.Background(), &Task{Description: "x"}, "")
	require.NoError(t, err)
	assert.Equal(t, "done anyway", out)

	prompts := model.Prompts()
	assert.Contains(t, prompts[1], "Tool search failed: quota exceeded")
	assert.Contains(t, prompts[2], "Tool missing does not exist")
}

func TestRunner_IterationBudgetDisablesTools(t *testing.T) {
	search := &echoTool{name: "search"}
	model := agenttest.NewChoices(
		toolCall("c1", "search", `{"input":"a"}`),
		llms.ContentChoice{Content: "summary"},
	)
	r, err := NewRunner(&Agent{Name: "web", Role: "R", Model: model, Tools: []tools.Tool{search}, MaxIterations: 1}, WithRunnerLogger(log.Discard))
	require.NoError(t, err)

	out, err := r.Execute(context.Background(), &Task{Description: "x"}, "")
	require.NoError(t, err)
	assert.Equal(t, "summary", out)
	assert.Empty(t, model.Options()[1].Tools)
}

func TestRunner_UpstreamErrorIsClassified(t *testing.T) {
	model := agenttest.NewFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("503 from provider")
	})
	r, err := NewRunner(&Agent{Name: "web", Role: "R", Model: model}, WithRunnerLogger(log.Discard))
	require.NoError(t, err)

	_, err = r.Execute(context.Background(), &Task{Description: "x"}, "")
	require.Error(t, err)
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.Contains(t, err.Error(), "503 from provider")
}

func TestRunner_EmptyResponse(t *testing.T) {
	r, err := NewRunner(&Agent{Name: "a", Role: "R", Model: agenttest.NewText("")}, WithRunnerLogger(log.Discard))
	require.NoError(t, err)

	_, err = r.Execute(context.Background(), &Task{Description: "x"}, "")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNewRunner_RequiresModel(t *testing.T) {
	_, err := NewRunner(&Agent{Name: "a"})
	assert.Error(t, err)
}

func TestCrew_SequentialPassesContext(t *testing.T) {
	model := agenttest.NewFunc(func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "Step two") {
			return "two saw: " + prompt[strings.Index(prompt, "Context from previous work:"):], nil
		}
		return "one", nil
	})
	a := &Agent{Name: "a", Role: "Analyst", Model: model}
	rec := &event.Recorder{}

	crew := &Crew{
		Agents:   []*Agent{a},
		Tasks:    []*Task{{Name: "first", Description: "Step one", Agent: a}, {Name: "second", Description: "Step two", Agent: a}},
		Notifier: rec,
		Logger:   log.Discard,
	}
	res, err := crew.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.TaskOutputs, 2)
	assert.Equal(t, "one", res.TaskOutputs[0].Output)
	assert.Contains(t, res.Output, "one")
	assert.Equal(t, []event.Type{event.CrewProgress, event.AgentMessage, event.CrewProgress, event.AgentMessage}, rec.Types())
}

func TestCrew_HierarchicalMerges(t *testing.T) {
	model := agenttest.NewFunc(func(ctx context.Context, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Combine the work"):
			return "merged", nil
		case strings.Contains(prompt, "Context from previous work"):
			return "", errors.New("independent tasks must not see context")
		default:
			return "part", nil
		}
	})
	manager := &Agent{Name: "manager", Role: "Manager", Model: model}
	worker := &Agent{Name: "worker", Role: "Worker", Model: model}

	crew := &Crew{
		Agents:  []*Agent{manager, worker},
		Tasks:   []*Task{{Name: "a", Description: "A", Agent: worker}, {Name: "b", Description: "B", Agent: worker}},
		Process: ProcessHierarchical,
		Logger:  log.Discard,
	}
	res, err := crew.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "merged", res.Output)
	assert.Len(t, res.TaskOutputs, 2)
}

func TestCrew_Errors(t *testing.T) {
	_, err := (&Crew{}).Run(context.Background())
	assert.ErrorIs(t, err, ErrNoTasks)
	assert.Equal(t, KindPrecondition, KindOf(err))

	_, err = (&Crew{Tasks: []*Task{{Name: "orphan"}}, Logger: log.Discard}).Run(context.Background())
	assert.ErrorIs(t, err, ErrNoAgent)
}

func TestGenerate(t *testing.T) {
	model := agenttest.NewText("hello")
	out, err := GeneratePrompt(context.Background(), model, "hi", 0.7, 128)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	opts := model.Options()[0]
	assert.InDelta(t, 0.7, opts.Temperature, 1e-9)
	assert.Equal(t, 128, opts.MaxTokens)

	_, err = GeneratePrompt(context.Background(), model, "again", -1, 0)
	assert.Equal(t, KindUpstream, KindOf(err))
}

func TestKindOf(t *testing.T) {
	base := errors.New("boom")
	err := E(KindMalformedOutput, "extract", base)

	assert.Equal(t, KindMalformedOutput, KindOf(err))
	assert.Equal(t, KindMalformedOutput, KindOf(errors.Join(errors.New("outer"), err)))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindUnknown, KindOf(base))
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.Nil(t, E(KindUpstream, "x", nil))
	assert.True(t, IsKind(err, KindMalformedOutput))
	assert.Equal(t, "extract: malformed_output: boom", err.Error())
}
