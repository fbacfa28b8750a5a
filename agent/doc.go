// Package agent runs LLM-backed agents.
//
// An Agent is a role with a goal, a model and a set of tools. A Runner executes
// one Task for an agent as a small state graph that alternates between the
// model and the requested tools. A Crew runs several tasks, either chaining
// their outputs (ProcessSequential) or merging them through a manager agent
// (ProcessHierarchical).
//
// Blocking work goes through a Pool, which bounds concurrency across all
// sessions and enforces a per-job timeout. Failures are classified with Kind so
// callers can tell malformed output, upstream failures, missing preconditions,
// protocol errors and timeouts apart.
package agent
