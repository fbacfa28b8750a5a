// Package research coordinates the multi-agent research workflow.
//
// A run goes through five strictly sequential phases:
//
//  1. web research on the topic,
//  2. video research on the topic,
//  3. structuring of both reports into titled sections,
//  4. per-section detail research, in section order,
//  5. persistence of the result and a chat summary.
//
// Every agent call goes through an agent.Pool, so a timed-out phase is
// retried once with a shorter brief before the run fails. Progress is
// reported as events on the notifier passed to Run.
package research
