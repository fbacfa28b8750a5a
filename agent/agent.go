package agent

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

// DefaultMaxIterations bounds the tool-calling loop of one task.
const DefaultMaxIterations = 8

// Agent is an LLM-bound role with a goal and a set of tools.
type Agent struct {
	Name      string
	Role      string
	Goal      string
	Backstory string
	Tools     []tools.Tool
	Model     llms.Model

	// MaxIterations bounds tool rounds; zero means DefaultMaxIterations.
	MaxIterations int
	// Temperature is passed to the model when non-negative.
	Temperature float64
	MaxTokens   int
}

// SystemPrompt renders the agent's persona.
func (a *Agent) SystemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.", a.Role)
	if a.Backstory != "" {
		fmt.Fprintf(&b, " %s", a.Backstory)
	}
	if a.Goal != "" {
		fmt.Fprintf(&b, "\nYour personal goal is: %s", a.Goal)
	}
	if len(a.Tools) > 0 {
		b.WriteString("\nUse the provided tools when they help. When you have enough information, answer without calling tools.")
	}
	return b.String()
}

func (a *Agent) maxIterations() int {
	if a.MaxIterations > 0 {
		return a.MaxIterations
	}
	return DefaultMaxIterations
}

// Task is one unit of work for an agent.
type Task struct {
	Name           string
	Description    string
	ExpectedOutput string
	Agent          *Agent
}

// Prompt renders the task, with the output of earlier tasks as context.
func (t *Task) Prompt(taskContext string) string {
	var b strings.Builder
	b.WriteString(t.Description)
	if t.ExpectedOutput != "" {
		fmt.Fprintf(&b, "\n\nExpected output: %s", t.ExpectedOutput)
	}
	if taskContext != "" {
		fmt.Fprintf(&b, "\n\nContext from previous work:\n%s", taskContext)
	}
	return b.String()
}

// TaskOutput is the result of one task.
type TaskOutput struct {
	Task   string `json:"task"`
	Agent  string `json:"agent"`
	Output string `json:"output"`
}
