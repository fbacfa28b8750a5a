package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/researchchat/event"
	"github.com/smallnest/researchchat/log"
)

// Process selects how a crew runs its tasks.
type Process int

const (
	// ProcessSequential runs tasks in order; each task sees the previous outputs.
	ProcessSequential Process = iota
	// ProcessHierarchical runs tasks independently and lets the manager,
	// the first agent, merge their outputs.
	ProcessHierarchical
)

// Crew is a set of agents and the tasks they work through together.
type Crew struct {
	Agents  []*Agent
	Tasks   []*Task
	Process Process

	Notifier event.Notifier
	Logger   log.Logger
}

// CrewResult holds every task output and the crew's final answer.
type CrewResult struct {
	Output      string       `json:"output"`
	TaskOutputs []TaskOutput `json:"task_outputs"`
}

// Run executes the crew. Any failing task fails the whole run.
func (c *Crew) Run(ctx context.Context) (*CrewResult, error) {
	if len(c.Tasks) == 0 {
		return nil, E(KindPrecondition, "crew", ErrNoTasks)
	}
	notifier := c.Notifier
	if notifier == nil {
		notifier = event.Discard
	}
	logger := c.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	result := &CrewResult{}
	var previous []string

	for _, task := range c.Tasks {
		if task.Agent == nil {
			return nil, E(KindPrecondition, "crew task "+task.Name, ErrNoAgent)
		}
		runner, err := NewRunner(task.Agent, WithRunnerLogger(logger))
		if err != nil {
			return nil, E(KindPrecondition, "crew task "+task.Name, err)
		}

		taskContext := ""
		if c.Process == ProcessSequential {
			taskContext = strings.Join(previous, "\n\n")
		}

		notifier.Notify(event.New(event.CrewProgress, task.Agent.Name,
			fmt.Sprintf("%s started: %s", task.Agent.Role, task.Name), nil))
		logger.Debug("crew: %s working on %s", task.Agent.Name, task.Name)

		out, err := runner.Execute(ctx, task, taskContext)
		if err != nil {
			return nil, err
		}

		notifier.Notify(event.New(event.AgentMessage, task.Agent.Name,
			fmt.Sprintf("%s finished: %s", task.Agent.Role, task.Name),
			map[string]any{"output_length": len(out)}))

		result.TaskOutputs = append(result.TaskOutputs, TaskOutput{
			Task:   task.Name,
			Agent:  task.Agent.Name,
			Output: out,
		})
		previous = append(previous, out)
	}

	if c.Process == ProcessHierarchical && len(c.Agents) > 0 && len(result.TaskOutputs) > 1 {
		merged, err := c.merge(ctx, c.Agents[0], result.TaskOutputs, logger)
		if err != nil {
			return nil, err
		}
		result.Output = merged
		return result, nil
	}

	result.Output = result.TaskOutputs[len(result.TaskOutputs)-1].Output
	return result, nil
}

func (c *Crew) merge(ctx context.Context, manager *Agent, outputs []TaskOutput, logger log.Logger) (string, error) {
	var b strings.Builder
	for _, o := range outputs {
		fmt.Fprintf(&b, "### %s (%s)\n%s\n\n", o.Task, o.Agent, o.Output)
	}
	runner, err := NewRunner(&Agent{
		Name:        manager.Name,
		Role:        manager.Role,
		Goal:        manager.Goal,
		Backstory:   manager.Backstory,
		Model:       manager.Model,
		Temperature: manager.Temperature,
		MaxTokens:   manager.MaxTokens,
	}, WithRunnerLogger(logger))
	if err != nil {
		return "", E(KindPrecondition, "crew manager", err)
	}
	return runner.Execute(ctx, &Task{
		Name:           "merge",
		Description:    "Combine the work of your team into one coherent answer.",
		ExpectedOutput: "A single consolidated result.",
	}, b.String())
}
