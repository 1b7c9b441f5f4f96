// Package agent defines the pipeline agent contract and the closed set
// of concrete agents (analysis, review, coding, testing, documentation).
//
// Agents are thin: they build a role prompt, call the Completer boundary
// (the LLM seam), and shape the result into a stage artifact. Recovery,
// retries, and circuit breaking belong to the orchestrator layer; an
// agent's Execute observes and forwards errors, never swallows them.
package agent
